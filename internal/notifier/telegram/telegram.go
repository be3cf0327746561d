package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/notifier"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// New creates a new Telegram notifier
func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Init(cfg notifier.Config) error {
	if token, ok := cfg.Params["bot_token"].(string); ok {
		t.botToken = token
	}
	if chatID, ok := cfg.Params["chat_id"].(string); ok {
		t.chatID = chatID
	}
	if base, ok := cfg.Params["api_base"].(string); ok && base != "" {
		t.apiBase = strings.TrimRight(base, "/")
	}

	if t.botToken == "" {
		return core.Wrapf(core.ErrConfigInvalid, "telegram: bot_token is required")
	}
	if t.chatID == "" {
		return core.Wrapf(core.ErrConfigInvalid, "telegram: chat_id is required")
	}
	if t.apiBase == "" {
		t.apiBase = defaultAPIBase
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (t *Telegram) Notify(ctx context.Context, s notifier.Summary) error {
	return t.sendMessage(ctx, t.formatSummary(s))
}

func (t *Telegram) formatSummary(s notifier.Summary) string {
	var sb strings.Builder

	emoji := "📈"
	if s.TotalReturn < 0 {
		emoji = "📉"
	}

	sb.WriteString(fmt.Sprintf("%s *%s* backtest (%s)\n", emoji, s.Symbol, s.Strategy))
	if !s.StartDate.IsZero() {
		sb.WriteString(fmt.Sprintf("📅 %s to %s, %d bars\n",
			s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"), s.Bars))
	}
	sb.WriteString(fmt.Sprintf("💰 Final equity: $%.2f (%+.2f%%)\n", s.FinalEquity, s.TotalReturn*100))
	sb.WriteString(fmt.Sprintf("📊 Sharpe: %.3f, max drawdown: %.2f%%\n", s.SharpeRatio, s.MaxDrawdown*100))
	sb.WriteString(fmt.Sprintf("🔁 Fills: %d, round trips: %d, win rate: %.1f%%", s.Fills, s.Trades, s.WinRate))

	if s.RunID != "" {
		sb.WriteString(fmt.Sprintf("\n🆔 `%s`", s.RunID))
	}

	return sb.String()
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: failed to marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: failed to send message: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return core.Wrapf(core.ErrNotifierFailed, "telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
