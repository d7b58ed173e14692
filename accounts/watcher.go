package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gammadia/harrier/hunt"
	"github.com/samber/lo"
)

// Watcher keeps an in-memory cache of the accounts directory, refreshed
// through fsnotify so edits to account files are picked up without restarts.
type Watcher struct {
	store    *Store
	log      *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.RWMutex
	accounts map[string]hunt.Account
}

// Watcher implements hunt.Source
var _ hunt.Source = (*Watcher)(nil)

func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		store:    store,
		log:      logger,
		watcher:  fsWatcher,
		debounce: 100 * time.Millisecond,
		accounts: make(map[string]hunt.Account),
	}, nil
}

// Start loads the existing account files and begins watching the directory.
// The watch goroutine exits when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	accounts, err := w.store.Accounts()
	if err != nil {
		return fmt.Errorf("failed to load existing accounts: %w", err)
	}

	w.mu.Lock()
	for _, account := range accounts {
		w.accounts[account.ID] = account
	}
	w.mu.Unlock()

	if err := w.watcher.Add(w.store.dir); err != nil {
		return fmt.Errorf("failed to watch directory '%s': %w", w.store.dir, err)
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) Account(id string) (hunt.Account, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	account, ok := w.accounts[id]
	if !ok {
		return hunt.Account{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return account, nil
}

func (w *Watcher) Accounts() ([]hunt.Account, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	accounts := lo.Values(w.accounts)
	slices.SortFunc(accounts, func(a, b hunt.Account) int {
		return strings.Compare(a.ID, b.ID)
	})
	return accounts, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	// Debounce editors that fire several write events per save.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".env") {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending[event.Name] = time.Now()
			} else if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handleRemove(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("Accounts watcher error", "error", err)

		case <-ticker.C:
			now := time.Now()
			for path, stamp := range pending {
				if now.Sub(stamp) >= w.debounce {
					w.handleUpdate(path)
					delete(pending, path)
				}
			}
		}
	}
}

func (w *Watcher) handleUpdate(path string) {
	id := strings.TrimSuffix(filepath.Base(path), ".env")

	account, err := w.store.load(id, path)
	if err != nil {
		w.log.Warn("Failed to reload account file", "path", path, "error", err)
		return
	}

	w.mu.Lock()
	w.accounts[id] = account
	w.mu.Unlock()

	w.log.Info("Account configuration loaded", "account", id)
}

func (w *Watcher) handleRemove(path string) {
	id := strings.TrimSuffix(filepath.Base(path), ".env")

	w.mu.Lock()
	delete(w.accounts, id)
	w.mu.Unlock()

	w.log.Info("Account configuration removed", "account", id)
}
