package hunt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// addressResolutionTimeout bounds the best-effort address lookup after a
// successful launch.
const addressResolutionTimeout = 30 * time.Second

// loop drives one account's provisioning attempts until success,
// cancellation, or a fatal setup error. It is the sole writer of the
// account's RunStatus for the duration of the run.
type loop struct {
	accountID string
	source    Source
	connector ComputeConnector
	notifier  Notifier
	statuses  *StatusStore
	log       *slog.Logger
}

// run executes the hunt and returns its terminal state.
func (l *loop) run(ctx context.Context) (state RunState) {
	defer func() {
		l.statuses.update(l.accountID, func(status *RunStatus) {
			status.Running = false
			status.State = state
		})
	}()

	account, err := l.source.Account(l.accountID)
	if err != nil {
		return l.fail(fmt.Errorf("failed to resolve account: %w", err))
	}

	compute, err := l.connector.Connect(ctx, account)
	if err != nil {
		return l.fail(fmt.Errorf("failed to connect to provider: %w", err))
	}

	zones := []string{account.Zone}
	if account.Zone == "" {
		if zones, err = compute.ListZones(ctx, account); err != nil {
			return l.fail(fmt.Errorf("failed to list zones: %w", err))
		}
		if len(zones) == 0 {
			return l.fail(errors.New("provider reported no zones"))
		}
	}

	l.log.Info("Hunt started",
		"name", account.Name,
		"flavor", account.Shape.Flavor,
		"cpus", account.Shape.CPUs,
		"memory_gb", account.Shape.MemoryGB,
		"zones", len(zones))
	l.notify(ctx, account, fmt.Sprintf(
		"Hunt started for %s: %d CPUs, %d GB across %d zone(s)",
		account.Name, account.Shape.CPUs, account.Shape.MemoryGB, len(zones)))

	wait := newBackoff(account.BaseWait, account.MinWait, account.MaxWait)
	retries := 0

	for ctx.Err() == nil {
		for _, zone := range zones {
			if ctx.Err() != nil {
				return l.stopped()
			}

			l.statuses.update(l.accountID, func(status *RunStatus) {
				now := time.Now()
				status.CurrentZone = zone
				status.LastCheck = &now
			})

			switch result := compute.LaunchAttempt(ctx, account, zone).(type) {
			case Launched:
				l.succeed(ctx, compute, account, zone, result.ResourceID, retries)
				return StateSucceeded

			case RateLimited:
				retries++
				wait.observe(signalRateLimited)
				if !l.pause(ctx, &wait, zone, retries, "rate limited: "+result.Message) {
					return l.stopped()
				}

			case AttemptFailed:
				retries++
				wait.observe(signalFailure)
				if !l.pause(ctx, &wait, zone, retries, result.Message) {
					return l.stopped()
				}
			}
		}
	}

	return l.stopped()
}

// pause records the failure and sleeps for a sampled wait.
// Returns false when cancellation interrupted the sleep.
func (l *loop) pause(ctx context.Context, wait *backoff, zone string, retries int, cause string) bool {
	actual := wait.sample()

	l.statuses.update(l.accountID, func(status *RunStatus) {
		status.RetryCount = retries
		status.LastError = cause
	})

	l.log.Info("Attempt failed",
		"zone", zone,
		"retry", retries,
		"error", cause,
		"wait", actual)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(actual):
		return true
	}
}

func (l *loop) succeed(ctx context.Context, compute Compute, account Account, zone, resourceID string, retries int) {
	address := "pending"
	resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), addressResolutionTimeout)
	defer cancel()
	if resolved, err := compute.ResolveAddress(resolveCtx, resourceID); err != nil {
		l.log.Debug("Address resolution failed", "resource_id", resourceID, "error", err)
	} else if resolved != "" {
		address = resolved
	}

	l.log.Info("Instance launched",
		"zone", zone,
		"resource_id", resourceID,
		"address", address,
		"retries", retries)

	l.notify(ctx, account, fmt.Sprintf(
		"Instance launched for %s in %s (address: %s, retries: %d)",
		account.Name, zone, address, retries))
}

func (l *loop) stopped() RunState {
	l.log.Info("Hunt stopped")
	return StateStopped
}

func (l *loop) fail(err error) RunState {
	l.statuses.update(l.accountID, func(status *RunStatus) {
		status.LastError = err.Error()
	})
	l.log.Error("Hunt setup failed", "error", err)
	return StateFailed
}

// notify is fire and forget: delivery failures never affect the hunt.
func (l *loop) notify(ctx context.Context, account Account, message string) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(context.WithoutCancel(ctx), account, message); err != nil {
		l.log.Debug("Notification delivery failed", "error", err)
	}
}
