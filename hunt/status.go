package hunt

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// RunState is the lifecycle state of one account's hunt.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateSucceeded RunState = "succeeded"
	StateStopped   RunState = "stopped"
	StateFailed    RunState = "failed"
)

// RunStatus is a snapshot of an account's current or most recent run.
// A terminal status is never deleted, only overwritten by the next run.
type RunStatus struct {
	Running     bool       `json:"running"`
	State       RunState   `json:"state"`
	StartTime   *time.Time `json:"start_time"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	LastCheck   *time.Time `json:"last_check"`
	CurrentZone string     `json:"current_zone,omitempty"`
}

// StatusStore holds the RunStatus of every account that ever ran.
// Each status has a single writer (the account's own loop); readers always
// get consistent value snapshots, possibly stale.
type StatusStore struct {
	mu       sync.RWMutex
	statuses map[string]RunStatus
}

func NewStatusStore() *StatusStore {
	return &StatusStore{statuses: make(map[string]RunStatus)}
}

// Get returns the status snapshot for an account.
// Accounts that never ran report an idle status.
func (s *StatusStore) Get(accountID string) RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status, ok := s.statuses[accountID]; ok {
		return status
	}
	return RunStatus{State: StateIdle}
}

// All returns a snapshot of every known status, keyed by account ID.
func (s *StatusStore) All() map[string]RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Assign(map[string]RunStatus{}, s.statuses)
}

// update applies fn to the account's status under the write lock, so external
// readers never observe a partially applied update.
func (s *StatusStore) update(accountID string, fn func(*RunStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.statuses[accountID]
	fn(&status)
	s.statuses[accountID] = status
}
