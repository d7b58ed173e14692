// Package notify delivers best-effort hunt notifications to the targets
// configured on each account. Delivery failures are reported to the caller
// and otherwise ignored; nothing here may affect a running hunt.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gammadia/harrier/hunt"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Router sends each notification to every target configured on the account.
type Router struct {
	client *http.Client
	log    *slog.Logger

	// TelegramAPI overrides the Telegram endpoint, for tests.
	TelegramAPI string
}

// Router implements hunt.Notifier
var _ hunt.Notifier = (*Router)(nil)

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         logger,
		TelegramAPI: defaultTelegramAPI,
	}
}

func (r *Router) Notify(ctx context.Context, account hunt.Account, message string) error {
	target := account.Notify

	var errs []error
	if target.WebhookURL != "" {
		errs = append(errs, r.sendWebhook(ctx, target.WebhookURL, message))
	}
	if target.TelegramToken != "" && target.TelegramChatID != "" {
		errs = append(errs, r.sendTelegram(ctx, target, message))
	}
	return errors.Join(errs...)
}

// webhookMessage is the generic JSON payload posted to webhook targets.
// The "text" key makes it directly usable as a Slack incoming webhook.
type webhookMessage struct {
	Text string `json:"text"`
}

func (r *Router) sendWebhook(ctx context.Context, webhookURL, message string) error {
	return r.postJSON(ctx, webhookURL, webhookMessage{Text: message})
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (r *Router) sendTelegram(ctx context.Context, target hunt.NotifyTarget, message string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", r.TelegramAPI, url.PathEscape(target.TelegramToken))
	return r.postJSON(ctx, endpoint, telegramMessage{ChatID: target.TelegramChatID, Text: message})
}

func (r *Router) postJSON(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := r.client.Do(request)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %s", response.Status)
	}
	return nil
}

// Noop is a notifier that does nothing, for tests and disabled notifications.
type Noop struct{}

func (Noop) Notify(context.Context, hunt.Account, string) error { return nil }
