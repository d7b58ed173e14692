package flags

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LogFormat = "log-format"
	LogLevel  = "log-level"
	LogSource = "log-source"

	Listen      = "listen"
	AccountsDir = "accounts-dir"

	Provider            = "provider"
	LocalSucceedAfter   = "local-succeed-after"
	LocalRateLimitRatio = "local-rate-limit-ratio"
)

func init() {
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	// Harrier
	flags.String(LogFormat, "json", "log format (json, text)")
	flags.String(LogLevel, "INFO", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.String(Listen, ":8080", "HTTP listen address")
	flags.String(AccountsDir, "./accounts", "directory of per-account .env files")
	flags.String(Provider, "openstack", "compute provider to use (openstack, local)")

	// Local provider
	flags.Int(LocalSucceedAfter, 0, "local provider: attempts before a launch succeeds (0 = never)")
	flags.Float64(LocalRateLimitRatio, 0.5, "local provider: fraction of failures reported as rate limits")

	// Init
	if err := flags.Parse(os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	viper.SetEnvPrefix("harrier")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(viper.BindPFlags(flags))
}
