package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/meanrev/internal/core"
)

const sample = `Date,Open,High,Low,Close,Adj Close,Volume
2024-01-03,101,102,100,101.5,100.10,1000
2024-01-02,100,101,99,100.5,99.20,1200
2024-01-04,102,103,101,102.5,,900
2024-01-05,103,104,102,103.5,102.30,1100
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	bars, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, bars, 3, "row with missing price is skipped")
	assert.Equal(t, 100.10, bars[0].Price, "adj close is preferred over close")
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 102.30, bars[2].Price)
}

func TestParse_PriceColumn(t *testing.T) {
	bars, err := Parse(strings.NewReader("timestamp,price\n2024-01-02T09:30:00Z,12.5\n2024-01-02 10:30:00,13\n"))
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, 12.5, bars[0].Price)
	assert.Equal(t, 10, bars[1].Time.Hour())
}

func TestParse_KeepsNonPositivePrices(t *testing.T) {
	bars, err := Parse(strings.NewReader("date,close\n2024-01-02,0\n2024-01-03,-1\n"))
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.False(t, bars[0].IsValid())
	assert.False(t, bars[1].IsValid())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", core.ErrNoData},
		{"missing price column", "date,volume\n2024-01-02,100\n", core.ErrCollectorFailed},
		{"bad date", "date,close\nyesterday,100\n", core.ErrCollectorFailed},
		{"bad price", "date,close\n2024-01-02,abc\n", core.ErrCollectorFailed},
		{"infinite price", "date,close\n2024-01-02,Inf\n", core.ErrCollectorFailed},
		{"hex float price", "date,close\n2024-01-02,0x1p4\n", core.ErrCollectorFailed},
		{"short row", "close,date\n100\n", core.ErrCollectorFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReader_FetchHistoryFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "spy.csv", sample)
	r := New(path)

	assert.Equal(t, "csv", r.Name())

	bars, err := r.FetchHistory(context.Background(), "ignored", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 99.20, bars[0].Price, "bars are sorted by date")

	bars, err = r.FetchHistory(context.Background(), "ignored",
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 100.10, bars[0].Price)
}

func TestReader_FetchHistoryDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "SPY.csv", sample)
	r := New(dir)

	bars, err := r.FetchHistory(context.Background(), "SPY", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, bars, 3)

	_, err = r.FetchHistory(context.Background(), "QQQ", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, core.ErrCollectorFailed)

	_, err = r.FetchHistory(context.Background(), "../SPY", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestReader_FetchHistoryEmptyRange(t *testing.T) {
	path := writeFile(t, t.TempDir(), "spy.csv", sample)

	_, err := New(path).FetchHistory(context.Background(), "SPY",
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestReader_Errors(t *testing.T) {
	_, err := New("").FetchHistory(context.Background(), "SPY", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(filepath.Join(t.TempDir(), "missing.csv")).FetchHistory(context.Background(), "SPY", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, core.ErrCollectorFailed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New("x.csv").FetchHistory(ctx, "SPY", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}
