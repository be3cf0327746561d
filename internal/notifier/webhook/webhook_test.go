package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/notifier"
)

func sampleSummary() notifier.Summary {
	return notifier.Summary{
		RunID:       "0b5e3f7a-4a47-4d4e-9b0f-7d1c3f1b2a10",
		Symbol:      "AAPL",
		Strategy:    "zscore",
		Bars:        252,
		Fills:       14,
		FinalEquity: 10432.5,
		SharpeRatio: 0.87,
		MaxDrawdown: -0.042,
		CompletedAt: time.Now(),
	}
}

func TestWebhook_ImplementsNotifier(t *testing.T) {
	var _ notifier.Notifier = (*Webhook)(nil)
}

func TestWebhook_Name(t *testing.T) {
	w := New("http://example.com/hook", nil)
	if w.Name() != "webhook" {
		t.Errorf("expected 'webhook', got %s", w.Name())
	}
}

func TestWebhook_Init_RequiresURL(t *testing.T) {
	w := &Webhook{}
	err := w.Init(notifier.Config{Params: map[string]any{}})
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for missing URL, got %v", err)
	}
}

func TestWebhook_Init_WithURL(t *testing.T) {
	w := &Webhook{}
	err := w.Init(notifier.Config{
		Params: map[string]any{
			"url":     "http://example.com/hook",
			"headers": map[string]any{"X-Token": "abc"},
		},
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if w.url != "http://example.com/hook" {
		t.Errorf("expected url, got %s", w.url)
	}
	if w.headers["X-Token"] != "abc" {
		t.Errorf("expected header from params, got %v", w.headers)
	}
}

func TestWebhook_Notify(t *testing.T) {
	var receivedPayload map[string]any
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&receivedPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := New(server.URL, nil)

	err := w.Notify(context.Background(), sampleSummary())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("expected JSON content type, got %s", contentType)
	}
	if receivedPayload["type"] != "backtest" {
		t.Errorf("expected type backtest, got %v", receivedPayload["type"])
	}
	if receivedPayload["symbol"] != "AAPL" {
		t.Errorf("expected symbol AAPL, got %v", receivedPayload["symbol"])
	}
	if receivedPayload["fills"].(float64) != 14 {
		t.Errorf("expected fills 14, got %v", receivedPayload["fills"])
	}
	if receivedPayload["sharpe_ratio"].(float64) != 0.87 {
		t.Errorf("expected sharpe 0.87, got %v", receivedPayload["sharpe_ratio"])
	}
}

func TestWebhook_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	w := New(server.URL, nil)

	err := w.Notify(context.Background(), sampleSummary())
	if !errors.Is(err, core.ErrNotifierFailed) {
		t.Errorf("expected ErrNotifierFailed for server error response, got %v", err)
	}
}

func TestWebhook_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(server.URL, nil).Notify(ctx, sampleSummary())
	if !errors.Is(err, core.ErrNotifierFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected wrapped context.Canceled, got %v", err)
	}
}

func TestWebhook_CustomHeaders(t *testing.T) {
	var receivedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	headers := map[string]string{
		"Authorization": "Bearer test-token",
		"X-Custom":      "value",
	}
	w := New(server.URL, headers)

	w.Notify(context.Background(), sampleSummary())

	if receivedHeaders.Get("Authorization") != "Bearer test-token" {
		t.Error("expected Authorization header")
	}
	if receivedHeaders.Get("X-Custom") != "value" {
		t.Error("expected X-Custom header")
	}
}
