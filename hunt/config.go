package hunt

import (
	"errors"
	"log/slog"

	"github.com/gammadia/harrier/loghub"
)

// Config wires a Supervisor to its collaborators.
type Config struct {
	// Source resolves account configuration. Required.
	Source Source
	// Connector builds per-account compute clients. Required.
	Connector ComputeConnector
	// Notifier receives fire-and-forget hunt notifications. Optional.
	Notifier Notifier
	// Hub captures per-account structured log events. Optional.
	Hub *loghub.Hub
	// Logger is the base logger for the supervisor and its loops.
	// Defaults to slog.Default.
	Logger *slog.Logger
}

func Validate(config Config) error {
	if config.Source == nil {
		return errors.New("account source is required")
	}
	if config.Connector == nil {
		return errors.New("compute connector is required")
	}
	return nil
}
