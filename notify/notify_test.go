package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gammadia/harrier/hunt"
)

func TestNotifySendsWebhook(t *testing.T) {
	received := make(chan webhookMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var message webhookMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&message))
		received <- message
	}))
	defer server.Close()

	router := NewRouter(slog.New(slog.DiscardHandler))
	account := hunt.Account{ID: "acme", Notify: hunt.NotifyTarget{WebhookURL: server.URL}}

	require.NoError(t, router.Notify(context.Background(), account, "Instance launched"))
	assert.Equal(t, webhookMessage{Text: "Instance launched"}, <-received)
}

func TestNotifySendsTelegram(t *testing.T) {
	type request struct {
		path    string
		message telegramMessage
	}
	received := make(chan request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var message telegramMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&message))
		received <- request{path: r.URL.Path, message: message}
	}))
	defer server.Close()

	router := NewRouter(slog.New(slog.DiscardHandler))
	router.TelegramAPI = server.URL
	account := hunt.Account{ID: "acme", Notify: hunt.NotifyTarget{
		TelegramToken:  "123456:token",
		TelegramChatID: "-1000001",
	}}

	require.NoError(t, router.Notify(context.Background(), account, "Instance launched"))

	got := <-received
	assert.Equal(t, "/bot123456:token/sendMessage", got.path)
	assert.Equal(t, telegramMessage{ChatID: "-1000001", Text: "Instance launched"}, got.message)
}

func TestNotifyNoTargetsIsANoop(t *testing.T) {
	router := NewRouter(slog.New(slog.DiscardHandler))
	assert.NoError(t, router.Notify(context.Background(), hunt.Account{ID: "acme"}, "ignored"))
}

func TestNotifyTelegramRequiresBothTokenAndChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer server.Close()

	router := NewRouter(slog.New(slog.DiscardHandler))
	router.TelegramAPI = server.URL

	account := hunt.Account{ID: "acme", Notify: hunt.NotifyTarget{TelegramToken: "123456:token"}}
	assert.NoError(t, router.Notify(context.Background(), account, "ignored"))
}

func TestNotifyReportsEndpointErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such channel", http.StatusNotFound)
	}))
	defer server.Close()

	router := NewRouter(slog.New(slog.DiscardHandler))
	account := hunt.Account{ID: "acme", Notify: hunt.NotifyTarget{WebhookURL: server.URL}}

	err := router.Notify(context.Background(), account, "Instance launched")
	assert.ErrorContains(t, err, "404")
}

func TestNotifyCollectsErrorsAcrossTargets(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer failing.Close()

	delivered := make(chan struct{}, 1)
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- struct{}{}
	}))
	defer working.Close()

	router := NewRouter(slog.New(slog.DiscardHandler))
	router.TelegramAPI = working.URL
	account := hunt.Account{ID: "acme", Notify: hunt.NotifyTarget{
		WebhookURL:     failing.URL,
		TelegramToken:  "123456:token",
		TelegramChatID: "-1000001",
	}}

	err := router.Notify(context.Background(), account, "Instance launched")
	assert.ErrorContains(t, err, "500")
	assert.Len(t, delivered, 1, "the healthy target still gets the message")
}
