package loghub

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Handler adapts the hub as a slog.Handler bound to one account, so loop code
// logs through plain slog and every record lands in the account's ring.
// Attributes are flattened into the message text.
func (h *Hub) Handler(accountID string) slog.Handler {
	return &hubHandler{hub: h, accountID: accountID}
}

type hubHandler struct {
	hub       *Hub
	accountID string
	attrs     []slog.Attr
}

func (h *hubHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *hubHandler) Handle(_ context.Context, record slog.Record) error {
	var message strings.Builder
	message.WriteString(record.Message)
	appendAttr := func(attr slog.Attr) bool {
		fmt.Fprintf(&message, " %s=%v", attr.Key, attr.Value.Any())
		return true
	}
	for _, attr := range h.attrs {
		appendAttr(attr)
	}
	record.Attrs(appendAttr)

	h.hub.Append(Entry{
		Time:      record.Time,
		Level:     record.Level.String(),
		Message:   message.String(),
		AccountID: h.accountID,
	})
	return nil
}

func (h *hubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(slices.Clip(h.attrs), attrs...)
	return &next
}

// Groups are not used by hub consumers; group names are dropped.
func (h *hubHandler) WithGroup(string) slog.Handler {
	return h
}

// Tee returns a handler forwarding every record to all given handlers.
func Tee(handlers ...slog.Handler) slog.Handler {
	return teeHandler{handlers: handlers}
}

type teeHandler struct {
	handlers []slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return lo.SomeBy(t.handlers, func(handler slog.Handler) bool {
		return handler.Enabled(ctx, level)
	})
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var lastErr error
	for _, handler := range t.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{handlers: lo.Map(t.handlers, func(handler slog.Handler, _ int) slog.Handler {
		return handler.WithAttrs(attrs)
	})}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{handlers: lo.Map(t.handlers, func(handler slog.Handler, _ int) slog.Handler {
		return handler.WithGroup(name)
	})}
}
