// Package accounts reads per-account hunt configuration from a directory of
// <id>.env files, one key/value file per cloud account.
package accounts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gammadia/harrier/hunt"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh"
)

var ErrNotFound = errors.New("account not found")

// Default retry tuning, applied when an account file leaves them out.
const (
	defaultRetryInterval    = 30
	defaultMinRetryInterval = 10
	defaultMaxRetryInterval = 120
	defaultCPUs             = 4
	defaultMemoryGB         = 24
)

// Store reads accounts straight from disk on every call.
// Wrap it in a Watcher for cached access.
type Store struct {
	dir string
}

// Store implements hunt.Source
var _ hunt.Source = (*Store)(nil)

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create accounts directory '%s': %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Account(id string) (hunt.Account, error) {
	path := filepath.Join(s.dir, id+".env")
	if _, err := os.Stat(path); err != nil {
		return hunt.Account{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.load(id, path)
}

// Accounts lists every parseable account file, sorted by account ID.
// Broken files are skipped so one bad account doesn't hide the others.
func (s *Store) Accounts() ([]hunt.Account, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.env"))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts directory '%s': %w", s.dir, err)
	}
	slices.Sort(matches)

	var accounts []hunt.Account
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".env")
		account, err := s.load(id, path)
		if err != nil {
			slog.Warn("Skipping unreadable account file", "path", path, "error", err)
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (s *Store) load(id, path string) (hunt.Account, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return hunt.Account{}, fmt.Errorf("failed to read account file '%s': %w", path, err)
	}

	v.SetDefault("retry_interval", defaultRetryInterval)
	v.SetDefault("min_retry_interval", defaultMinRetryInterval)
	v.SetDefault("max_retry_interval", defaultMaxRetryInterval)
	v.SetDefault("cpus", defaultCPUs)
	v.SetDefault("memory_gb", defaultMemoryGB)

	account := hunt.Account{
		ID:   id,
		Name: v.GetString("name"),
		Zone: v.GetString("zone"),
		Shape: hunt.Shape{
			Flavor:      v.GetString("flavor"),
			CPUs:        v.GetInt("cpus"),
			MemoryGB:    v.GetInt("memory_gb"),
			Image:       v.GetString("image"),
			Network:     v.GetString("network"),
			DisplayName: v.GetString("display_name"),
		},
		Credentials: hunt.Credentials{
			AuthURL:  v.GetString("auth_url"),
			Username: v.GetString("username"),
			Password: v.GetString("password"),
			Project:  v.GetString("project"),
			Domain:   v.GetString("domain"),
			Region:   v.GetString("region"),
		},
		Notify: hunt.NotifyTarget{
			WebhookURL:     v.GetString("webhook_url"),
			TelegramToken:  v.GetString("telegram_token"),
			TelegramChatID: v.GetString("telegram_chat_id"),
		},
		BaseWait: time.Duration(v.GetInt("retry_interval")) * time.Second,
		MinWait:  time.Duration(v.GetInt("min_retry_interval")) * time.Second,
		MaxWait:  time.Duration(v.GetInt("max_retry_interval")) * time.Second,
	}

	if account.Name == "" {
		account.Name = id
	}

	if key := v.GetString("ssh_public_key"); key != "" {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return hunt.Account{}, fmt.Errorf("invalid SSH public key in account '%s': %w", id, err)
		}
		account.Shape.SSHKey = key
	}

	return account, nil
}
