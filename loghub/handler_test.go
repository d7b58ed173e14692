package loghub

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerCapturesRecords(t *testing.T) {
	hub := New()
	logger := slog.New(hub.Handler("acme"))

	logger.Info("Attempt failed", "zone", "zone-1", "retry", 3)

	entries := hub.Recent("acme", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, "acme", entries[0].AccountID)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "Attempt failed zone=zone-1 retry=3", entries[0].Message)
	assert.False(t, entries[0].Time.IsZero())
}

func TestHandlerCarriesWithAttrs(t *testing.T) {
	hub := New()
	logger := slog.New(hub.Handler("acme")).With("zone", "zone-2")

	logger.Warn("Attempt failed", "retry", 1)
	logger.Error("Hunt setup failed")

	entries := hub.Recent("acme", 0)
	require.Len(t, entries, 2)
	assert.Equal(t, "Attempt failed zone=zone-2 retry=1", entries[0].Message)
	assert.Equal(t, "WARN", entries[0].Level)
	assert.Equal(t, "Hunt setup failed zone=zone-2", entries[1].Message)
	assert.Equal(t, "ERROR", entries[1].Level)
}

func TestHandlerSiblingsDoNotShareAttrs(t *testing.T) {
	hub := New()
	base := slog.New(hub.Handler("acme"))

	base.With("zone", "zone-1").Info("one")
	base.With("zone", "zone-2").Info("two")

	entries := hub.Recent("acme", 0)
	require.Len(t, entries, 2)
	assert.Equal(t, "one zone=zone-1", entries[0].Message)
	assert.Equal(t, "two zone=zone-2", entries[1].Message)
}

func TestTeeForwardsToAllHandlers(t *testing.T) {
	hub := New()
	var buffer bytes.Buffer
	text := slog.NewTextHandler(&buffer, nil)

	logger := slog.New(Tee(text, hub.Handler("acme")))
	logger.Info("Instance launched", "address", "203.0.113.7")

	assert.Contains(t, buffer.String(), "Instance launched")
	assert.Contains(t, buffer.String(), "address=203.0.113.7")

	entries := hub.Recent("acme", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, "Instance launched address=203.0.113.7", entries[0].Message)
}

func TestTeeRespectsHandlerLevels(t *testing.T) {
	hub := New()
	var buffer bytes.Buffer
	text := slog.NewTextHandler(&buffer, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(Tee(text, hub.Handler("acme")))
	logger.Debug("noisy detail")

	// The hub accepts every level; the text handler stays quiet
	assert.Empty(t, strings.TrimSpace(buffer.String()))
	assert.Len(t, hub.Recent("acme", 0), 1)
}
