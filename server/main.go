package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gammadia/harrier/accounts"
	"github.com/gammadia/harrier/hunt"
	"github.com/gammadia/harrier/loghub"
	"github.com/gammadia/harrier/notify"
	"github.com/gammadia/harrier/provider/local"
	"github.com/gammadia/harrier/provider/openstack"
	"github.com/gammadia/harrier/server/flags"
	"github.com/gammadia/harrier/server/log"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var ctx, cancel = context.WithCancel(context.Background())

var wg sync.WaitGroup

func main() {
	// Setup logger first as this will be used to report progress of the rest of the setup
	if err := log.Init(); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, err))
		os.Exit(1)
	}
	log.Info("Harrier server starting up...", "version", version, "commit", commit)

	// Setup account source
	store, err := accounts.NewStore(viper.GetString(flags.AccountsDir))
	if err != nil {
		log.Error("Failed to open accounts directory", "error", err)
		os.Exit(1)
	}
	watcher, err := accounts.NewWatcher(store, log.Base.With("component", "accounts"))
	if err != nil {
		log.Error("Failed to watch accounts directory", "error", err)
		os.Exit(1)
	}
	if err := watcher.Start(ctx); err != nil {
		log.Error("Failed to start accounts watcher", "error", err)
		os.Exit(1)
	}

	// Setup compute connector
	connector, err := createConnector()
	if err != nil {
		log.Error("Failed to create compute connector", "error", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	setupInterrupts()

	hub := loghub.New()
	supervisor, err := hunt.NewSupervisor(hunt.Config{
		Source:    watcher,
		Connector: connector,
		Notifier:  notify.NewRouter(log.Base.With("component", "notify")),
		Hub:       hub,
		Logger:    log.Base.With("component", "hunt"),
	})
	if err != nil {
		log.Error("Failed to create supervisor", "error", err)
		os.Exit(1)
	}

	// Supervisor goroutines are tracked internally; on shutdown we stop all
	// hunts and wait for their loops to unwind before letting main exit.
	wg.Add(1)
	go func() {
		<-ctx.Done()
		supervisor.Shutdown()
		wg.Done()
	}()

	// HTTP server
	httpServer := &http.Server{
		Addr:    viper.GetString(flags.Listen),
		Handler: newAPI(supervisor, watcher, hub).routes(),
	}

	wg.Add(1)
	go func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("HTTP server shutdown was not clean", "error", err)
			}
		}()

		log.Info("Server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to serve", "error", err)
			os.Exit(1)
		}
		wg.Done()
	}()

	wg.Wait()
	log.Info("Shutdown completed. Bye!")
}

func createConnector() (hunt.ComputeConnector, error) {
	switch provider := viper.GetString(flags.Provider); provider {
	case "openstack":
		return openstack.NewConnector(log.Base.With("component", "openstack")), nil
	case "local":
		return local.New(local.Config{
			SucceedAfter:   viper.GetInt(flags.LocalSucceedAfter),
			RateLimitRatio: viper.GetFloat64(flags.LocalRateLimitRatio),
		}, log.Base.With("component", "local")), nil
	default:
		return nil, fmt.Errorf("unknown provider '%s'", provider)
	}
}

// setupInterrupts handles SIGINT: the first signal starts a graceful shutdown,
// a second one forces immediate exit.
func setupInterrupts() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	go func() {
		<-sig
		log.Info("Shutdown signal received, attempting graceful shutdown")
		cancel()
		<-sig
		log.Warn("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()
}
