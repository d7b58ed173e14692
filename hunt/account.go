package hunt

import "time"

// Account is one cloud tenant the supervisor can hunt capacity for.
// Accounts are owned by the configuration layer; the core only ever reads them.
type Account struct {
	ID   string
	Name string

	// Zone pins the hunt to a single availability zone.
	// When empty, every zone reported by the provider is rotated in order.
	Zone string

	Shape       Shape
	Credentials Credentials
	Notify      NotifyTarget

	// Retry tuning. BaseWait is the starting wait ceiling, moved up and down
	// between MinWait and MaxWait as contention signals come in.
	// MinWait <= BaseWait is not enforced; the loop clamps defensively.
	BaseWait time.Duration
	MinWait  time.Duration
	MaxWait  time.Duration
}

// Shape describes the instance the account is hunting for.
type Shape struct {
	// Flavor is the provider flavor reference. When empty, the smallest
	// flavor satisfying CPUs and MemoryGB is resolved at launch time.
	Flavor   string
	CPUs     int
	MemoryGB int

	Image   string
	Network string
	SSHKey  string

	// DisplayName for the launched instance; generated when empty.
	DisplayName string
}

// Credentials authenticate one account against its provider.
type Credentials struct {
	AuthURL  string
	Username string
	Password string
	Project  string
	Domain   string
	Region   string
}

// NotifyTarget is where success/startup notifications for this account go.
// All fields optional; delivery is always best-effort.
type NotifyTarget struct {
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string
}

// Source provides read access to configured accounts. Account mutation is
// owned by the configuration layer and never happens through the core.
type Source interface {
	// Account resolves a single account by ID.
	Account(id string) (Account, error)
	// Accounts lists every known account.
	Accounts() ([]Account, error)
}
