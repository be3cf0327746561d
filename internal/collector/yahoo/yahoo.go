package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/newthinker/meanrev/internal/collector"
	"github.com/newthinker/meanrev/internal/core"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	userAgent      = "Mozilla/5.0 (compatible; meanrev/1.0)"
)

// validSymbol matches symbols like AAPL, SPY, BRK-B, 600519.SH, 0700.HK, ^GSPC
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9-]{1,10}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Option configures a Yahoo collector
type Option func(*Yahoo)

// WithBaseURL points the collector at a different chart endpoint
func WithBaseURL(u string) Option {
	return func(y *Yahoo) { y.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sends requests through c instead of the default transport
func WithHTTPClient(c *http.Client) Option {
	return func(y *Yahoo) {
		if c != nil {
			y.client = resty.NewWithClient(c)
		}
	}
}

// Yahoo fetches daily closes from the Yahoo Finance chart API
type Yahoo struct {
	client  *resty.Client
	baseURL string
	now     func() time.Time
}

// New creates a new Yahoo collector
func New(opts ...Option) *Yahoo {
	y := &Yahoo{
		client:  resty.New().SetTimeout(10 * time.Second),
		baseURL: defaultBaseURL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

var _ collector.HistoryProvider = (*Yahoo)(nil)

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches daily bars. The adjusted close is used when the
// response carries it, the raw close otherwise. Days with no close are
// skipped.
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.PriceBar, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	if end.IsZero() {
		end = y.now()
	}
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}
	if !start.Before(end) {
		return nil, core.Wrapf(core.ErrConfigInvalid, "start %s is not before end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	resp, err := y.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", userAgent).
		SetPathParam("symbol", y.toYahooSymbol(symbol)).
		SetQueryParams(map[string]string{
			"interval": "1d",
			"period1":  fmt.Sprint(start.Unix()),
			"period2":  fmt.Sprint(end.Unix()),
			"events":   "div,splits",
		}).
		Get(y.baseURL + "/{symbol}")
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching history: %w", err))
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, core.Wrapf(core.ErrCollectorFailed, "unexpected status: %d", resp.StatusCode())
	}

	var result chartResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}

	if result.Chart.Error != nil {
		return nil, core.Wrapf(core.ErrCollectorFailed, "yahoo error: %s", result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 {
		return nil, core.Wrapf(core.ErrNoData, "no data for symbol: %s", symbol)
	}

	bars := toBars(result.Chart.Result[0])
	if len(bars) == 0 {
		return nil, core.Wrapf(core.ErrNoData, "no closes for symbol: %s", symbol)
	}
	return collector.Clip(bars, time.Time{}, time.Time{}), nil
}

func toBars(r chartResult) []core.PriceBar {
	closes := r.closes()

	bars := make([]core.PriceBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // Skip missing data
		}
		bars = append(bars, core.PriceBar{
			Time:  time.Unix(ts, 0).UTC(),
			Price: *closes[i],
		})
	}
	return bars
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

func (r chartResult) closes() []*float64 {
	if len(r.Indicators.AdjClose) > 0 && len(r.Indicators.AdjClose[0].AdjClose) > 0 {
		return r.Indicators.AdjClose[0].AdjClose
	}
	if len(r.Indicators.Quote) > 0 {
		return r.Indicators.Quote[0].Close
	}
	return nil
}

type chartMeta struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Timezone string `json:"exchangeTimezoneName"`
}

type indicators struct {
	Quote    []quoteIndicator `json:"quote"`
	AdjClose []struct {
		AdjClose []*float64 `json:"adjclose"`
	} `json:"adjclose"`
}

type quoteIndicator struct {
	Close []*float64 `json:"close"`
}
