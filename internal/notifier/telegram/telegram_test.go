package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/notifier"
)

func TestTelegram_ImplementsNotifier(t *testing.T) {
	var _ notifier.Notifier = (*Telegram)(nil)
}

func TestTelegram_Name(t *testing.T) {
	tg := New("token", "chatid")
	if tg.Name() != "telegram" {
		t.Errorf("expected 'telegram', got '%s'", tg.Name())
	}
}

func TestTelegram_Init(t *testing.T) {
	tg := &Telegram{}

	cfg := notifier.Config{
		Params: map[string]any{
			"bot_token": "test-token",
			"chat_id":   "test-chat",
		},
	}

	err := tg.Init(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tg.botToken != "test-token" {
		t.Errorf("expected bot_token 'test-token', got '%s'", tg.botToken)
	}
	if tg.chatID != "test-chat" {
		t.Errorf("expected chat_id 'test-chat', got '%s'", tg.chatID)
	}
	if tg.apiBase != defaultAPIBase {
		t.Errorf("expected default api base, got '%s'", tg.apiBase)
	}
}

func TestTelegram_Init_MissingToken(t *testing.T) {
	tg := &Telegram{}

	cfg := notifier.Config{
		Params: map[string]any{
			"chat_id": "test-chat",
		},
	}

	err := tg.Init(cfg)
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for missing bot_token, got %v", err)
	}
}

func TestTelegram_Init_MissingChatID(t *testing.T) {
	tg := &Telegram{}

	cfg := notifier.Config{
		Params: map[string]any{
			"bot_token": "test-token",
		},
	}

	err := tg.Init(cfg)
	if err == nil {
		t.Error("expected error for missing chat_id")
	}
}

func TestTelegram_Notify(t *testing.T) {
	var receivedPayload map[string]any
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&receivedPayload)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	tg := New("test-token", "test-chat")
	if err := tg.Init(notifier.Config{Params: map[string]any{"api_base": server.URL}}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err := tg.Notify(context.Background(), notifier.Summary{Symbol: "AAPL", Strategy: "zscore", FinalEquity: 10100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedPath != "/bottest-token/sendMessage" {
		t.Errorf("unexpected path %s", receivedPath)
	}
	if receivedPayload["chat_id"] != "test-chat" {
		t.Errorf("expected chat_id test-chat, got %v", receivedPayload["chat_id"])
	}
	if !strings.Contains(receivedPayload["text"].(string), "AAPL") {
		t.Errorf("message should contain symbol, got %v", receivedPayload["text"])
	}
}

func TestTelegram_Notify_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Unauthorized"})
	}))
	defer server.Close()

	tg := New("bad-token", "chat")
	tg.apiBase = server.URL

	err := tg.Notify(context.Background(), notifier.Summary{Symbol: "AAPL"})
	if !errors.Is(err, core.ErrNotifierFailed) {
		t.Errorf("expected ErrNotifierFailed, got %v", err)
	}
}

func TestTelegram_FormatSummary(t *testing.T) {
	tg := New("token", "chat")

	s := notifier.Summary{
		RunID:       "run-42",
		Symbol:      "AAPL",
		Strategy:    "zscore",
		StartDate:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Bars:        251,
		Fills:       12,
		Trades:      6,
		WinRate:     66.666,
		FinalEquity: 10250.5,
		TotalReturn: 0.025,
		SharpeRatio: 1.234,
		MaxDrawdown: -0.0312,
	}

	formatted := tg.formatSummary(s)

	for _, want := range []string{"📈", "AAPL", "zscore", "2024-01-02 to 2024-12-31", "$10250.50", "+2.50%", "1.234", "-3.12%", "66.7%", "run-42"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("formatted message should contain %q:\n%s", want, formatted)
		}
	}
}

func TestTelegram_FormatSummary_Loss(t *testing.T) {
	tg := New("token", "chat")

	formatted := tg.formatSummary(notifier.Summary{Symbol: "TSLA", TotalReturn: -0.1})

	if !strings.Contains(formatted, "📉") {
		t.Error("losing run should have 📉 emoji")
	}
	if strings.Contains(formatted, "📅") {
		t.Error("missing dates should be omitted")
	}
}
