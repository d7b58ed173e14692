package hunt

import (
	"context"
	"time"
)

// Compute is the provider capability one hunt needs: enumerate zones,
// attempt a launch, resolve the address of a launched instance.
type Compute interface {
	// ListZones returns the zones to rotate, in the order they should be tried.
	ListZones(ctx context.Context, account Account) ([]string, error)

	// LaunchAttempt makes one synchronous provisioning attempt in the given zone.
	LaunchAttempt(ctx context.Context, account Account, zone string) AttemptResult

	// ResolveAddress looks up the public address of a launched instance.
	// An empty address with nil error means the address is still pending.
	ResolveAddress(ctx context.Context, resourceID string) (string, error)
}

// ComputeConnector builds a Compute bound to one account's credentials.
// Connection failures are fatal to the run that requested the connection.
type ComputeConnector interface {
	Connect(ctx context.Context, account Account) (Compute, error)
}

// AttemptResult is the outcome of a single launch attempt.
// The set of results is closed: Launched, RateLimited or AttemptFailed.
type AttemptResult interface {
	attemptResult()
}

// Launched reports a successful provisioning attempt.
type Launched struct {
	ResourceID string
}

// RateLimited reports the provider refusing the attempt with "too many requests".
type RateLimited struct {
	Message string
}

// AttemptFailed reports any other failed attempt: out of capacity, quota,
// transient network errors, malformed responses.
type AttemptFailed struct {
	Message string
}

func (Launched) attemptResult()      {}
func (RateLimited) attemptResult()   {}
func (AttemptFailed) attemptResult() {}

// Notifier delivers best-effort messages about an account's hunt.
// Failures are reported to the caller but never escalate beyond a debug log.
type Notifier interface {
	Notify(ctx context.Context, account Account, message string) error
}

// Inventory is the optional read-only provider surface the API layer exposes
// for a connected account. Compute implementations may choose to provide it.
type Inventory interface {
	ListInstances(ctx context.Context) ([]Instance, error)
	ListVolumes(ctx context.Context) ([]Volume, error)
}

// Instance is a provider instance as shown to status consumers.
type Instance struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Flavor  string    `json:"flavor"`
	Status  string    `json:"status"`
	Zone    string    `json:"zone"`
	Created time.Time `json:"created"`
}

// Volume is a provider volume as shown to status consumers.
type Volume struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	SizeGB int    `json:"size_gb"`
	Status string `json:"status"`
}
