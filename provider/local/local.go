// Package local implements a simulated compute provider for development and
// tests: attempts fail with configurable contention until a configured
// attempt count succeeds.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammadia/harrier/hunt"
	"github.com/gammadia/harrier/namegen"
)

type Config struct {
	// Zones reported by ListZones. Defaults to three simulated zones.
	Zones []string
	// SucceedAfter is the number of attempts before a launch succeeds.
	// Zero or negative means a launch never succeeds.
	SucceedAfter int
	// RateLimitRatio is the fraction of failed attempts reported as rate
	// limited rather than out of capacity.
	RateLimitRatio float64
	// Latency is the simulated duration of one provider call.
	Latency time.Duration
}

type Connector struct {
	config Config
	log    *slog.Logger
}

// Connector implements hunt.ComputeConnector
var _ hunt.ComputeConnector = (*Connector)(nil)

func New(config Config, logger *slog.Logger) *Connector {
	if len(config.Zones) == 0 {
		config.Zones = []string{"zone-1", "zone-2", "zone-3"}
	}
	return &Connector{config: config, log: logger}
}

func (c *Connector) Connect(ctx context.Context, account hunt.Account) (hunt.Compute, error) {
	return &Compute{
		config: c.config,
		log:    c.log.With("account", account.ID),
	}, nil
}

type Compute struct {
	config   Config
	log      *slog.Logger
	attempts atomic.Int64

	mu       sync.Mutex
	launched []hunt.Instance
}

// Compute implements hunt.Compute and hunt.Inventory
var (
	_ hunt.Compute   = (*Compute)(nil)
	_ hunt.Inventory = (*Compute)(nil)
)

func (c *Compute) ListZones(ctx context.Context, account hunt.Account) ([]string, error) {
	return c.config.Zones, nil
}

func (c *Compute) LaunchAttempt(ctx context.Context, account hunt.Account, zone string) hunt.AttemptResult {
	if c.config.Latency > 0 {
		select {
		case <-ctx.Done():
			return hunt.AttemptFailed{Message: ctx.Err().Error()}
		case <-time.After(c.config.Latency):
		}
	}

	attempt := c.attempts.Add(1)
	if c.config.SucceedAfter > 0 && attempt >= int64(c.config.SucceedAfter) {
		name := account.Shape.DisplayName
		if name == "" {
			name = namegen.Instance()
		}
		instance := hunt.Instance{
			ID:      fmt.Sprintf("local-%s-%d", account.ID, attempt),
			Name:    name,
			Flavor:  account.Shape.Flavor,
			Status:  "ACTIVE",
			Zone:    zone,
			Created: time.Now(),
		}

		c.mu.Lock()
		c.launched = append(c.launched, instance)
		c.mu.Unlock()

		return hunt.Launched{ResourceID: instance.ID}
	}

	if rand.Float64() < c.config.RateLimitRatio {
		return hunt.RateLimited{Message: "simulated: too many requests"}
	}
	return hunt.AttemptFailed{Message: "simulated: out of host capacity"}
}

func (c *Compute) ResolveAddress(ctx context.Context, resourceID string) (string, error) {
	return "198.51.100.1", nil
}

func (c *Compute) ListInstances(ctx context.Context) ([]hunt.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hunt.Instance(nil), c.launched...), nil
}

func (c *Compute) ListVolumes(ctx context.Context) ([]hunt.Volume, error) {
	return nil, nil
}
