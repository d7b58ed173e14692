package hunt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gammadia/harrier/loghub"
)

var (
	ErrAlreadyRunning = errors.New("hunt is already running")
	ErrNotRunning     = errors.New("hunt is not running")
)

// runHandle tracks one live or finished loop: its cancellation signal, a
// completion channel, and the terminal state once reached.
type runHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	// final must only be read after done is closed.
	final RunState
}

func (h *runHandle) live() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Supervisor owns the set of acquisition loops, at most one live per account.
type Supervisor struct {
	config   Config
	statuses *StatusStore
	log      *slog.Logger

	mu      sync.Mutex
	handles map[string]*runHandle
	wg      sync.WaitGroup
}

func NewSupervisor(config Config) (*Supervisor, error) {
	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid supervisor config: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		config:   config,
		statuses: NewStatusStore(),
		log:      logger,
		handles:  make(map[string]*runHandle),
	}, nil
}

// Connector exposes the compute connector for read-only provider queries
// made outside any loop, such as inventory listings.
func (s *Supervisor) Connector() ComputeConnector {
	return s.config.Connector
}

// Status returns the RunStatus snapshot of one account.
func (s *Supervisor) Status(accountID string) RunStatus {
	return s.statuses.Get(accountID)
}

// Statuses returns the RunStatus of every account that ever ran.
func (s *Supervisor) Statuses() map[string]RunStatus {
	return s.statuses.All()
}

// Start launches the acquisition loop for one account and returns without
// waiting for it to reach a terminal state. Account resolution happens inside
// the loop: an unknown account yields a Failed run, not a Start error.
func (s *Supervisor) Start(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.start(accountID)
}

// start launches one loop; the caller holds s.mu.
func (s *Supervisor) start(accountID string) error {
	if handle, ok := s.handles[accountID]; ok && handle.live() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel, done: make(chan struct{})}
	s.handles[accountID] = handle

	now := time.Now()
	s.statuses.update(accountID, func(status *RunStatus) {
		*status = RunStatus{
			Running:   true,
			State:     StateRunning,
			StartTime: &now,
		}
	})

	l := &loop{
		accountID: accountID,
		source:    s.config.Source,
		connector: s.config.Connector,
		notifier:  s.config.Notifier,
		statuses:  s.statuses,
		log:       s.loopLogger(accountID),
	}

	s.log.Info("Starting hunt", "account", accountID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		handle.final = l.run(ctx)
		close(handle.done)
	}()

	return nil
}

// Stop signals cancellation to one account's loop and returns immediately.
// The loop's own transition to Stopped is asynchronous and observable
// through its RunStatus and logs.
func (s *Supervisor) Stop(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.handles[accountID]
	if !ok || !handle.live() {
		return ErrNotRunning
	}

	s.log.Info("Stopping hunt", "account", accountID)
	handle.cancel()
	return nil
}

// StartAll starts a hunt for every account not already running and returns
// the number of hunts started. Accounts whose previous run succeeded are
// skipped: their capacity is acquired, and only an explicit Start re-arms them.
func (s *Supervisor) StartAll() (int, error) {
	accounts, err := s.config.Source.Accounts()
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	started := 0
	for _, account := range accounts {
		if handle, ok := s.handles[account.ID]; ok {
			if handle.live() || handle.final == StateSucceeded {
				continue
			}
		}
		if s.start(account.ID) == nil {
			started++
		}
	}
	return started, nil
}

// StopAll signals cancellation to every live loop and returns the number of
// hunts affected.
func (s *Supervisor) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := 0
	for accountID, handle := range s.handles {
		if handle.live() {
			s.log.Info("Stopping hunt", "account", accountID)
			handle.cancel()
			stopped++
		}
	}
	return stopped
}

// Shutdown cancels every live loop and blocks until all of them have reached
// a terminal state.
func (s *Supervisor) Shutdown() {
	s.StopAll()
	s.wg.Wait()
}

// loopLogger builds the logger a loop writes to: the supervisor's own handler
// teed into the hub ring for that account. The account attribute only goes to
// the base handler; hub entries already carry the account ID.
func (s *Supervisor) loopLogger(accountID string) *slog.Logger {
	base := s.log.With("account", accountID).Handler()
	if s.config.Hub == nil {
		return slog.New(base)
	}
	return slog.New(loghub.Tee(base, s.config.Hub.Handler(accountID)))
}
