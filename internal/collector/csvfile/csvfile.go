// Package csvfile reads closing-price history from CSV files.
//
// The first row is a header. The date column is matched by the names
// "date", "time", "timestamp" or "datetime", and the price column by
// "adj close", "adj_close", "close" or "price", all case-insensitive.
// Rows with an empty, "null" or "nan" price are skipped.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/meanrev/internal/collector"
	"github.com/newthinker/meanrev/internal/core"
)

var (
	dateColumns  = []string{"date", "time", "timestamp", "datetime"}
	priceColumns = []string{"adj close", "adj_close", "adjclose", "close", "price"}

	timeLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006/01/02",
	}
)

// Reader implements collector.HistoryProvider over local CSV files. If path
// is a directory, FetchHistory reads <path>/<symbol>.csv.
type Reader struct {
	path string
}

// New creates a CSV reader rooted at path
func New(path string) *Reader {
	return &Reader{path: path}
}

var _ collector.HistoryProvider = (*Reader)(nil)

func (r *Reader) Name() string {
	return "csv"
}

// FetchHistory loads the file for symbol and clips it to [start, end]
func (r *Reader) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := r.resolve(symbol)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}
	defer f.Close()

	bars, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	bars = collector.Clip(bars, start, end)
	if len(bars) == 0 {
		return nil, core.Wrapf(core.ErrNoData, "no prices in %s for the requested range", file)
	}
	return bars, nil
}

func (r *Reader) resolve(symbol string) (string, error) {
	if r.path == "" {
		return "", core.Wrapf(core.ErrConfigInvalid, "csv path is empty")
	}

	info, err := os.Stat(r.path)
	if err != nil {
		return "", core.WrapError(core.ErrCollectorFailed, err)
	}
	if !info.IsDir() {
		return r.path, nil
	}
	if symbol == "" || strings.ContainsAny(symbol, `/\`) || strings.Contains(symbol, "..") {
		return "", core.Wrapf(core.ErrConfigInvalid, "invalid symbol %q", symbol)
	}
	return filepath.Join(r.path, symbol+".csv"), nil
}

// Parse reads date/price rows in file order. Prices must be plain decimal
// numbers; infinities and hex floats are rejected.
func Parse(in io.Reader) ([]core.PriceBar, error) {
	cr := csv.NewReader(in)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.Wrapf(core.ErrNoData, "empty csv")
	}
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}

	dateIdx := findColumn(header, dateColumns)
	priceIdx := findColumn(header, priceColumns)
	if dateIdx < 0 || priceIdx < 0 {
		return nil, core.Wrapf(core.ErrCollectorFailed, "csv header %v needs a date and a price column", header)
	}

	var bars []core.PriceBar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrCollectorFailed, err)
		}
		if len(rec) <= dateIdx || len(rec) <= priceIdx {
			return nil, core.Wrapf(core.ErrCollectorFailed, "line %d: expected %d fields, got %d", line, len(header), len(rec))
		}

		raw := strings.TrimSpace(rec[priceIdx])
		switch strings.ToLower(raw) {
		case "", "null", "nan", "na":
			continue
		}

		ts, err := parseTime(strings.TrimSpace(rec[dateIdx]))
		if err != nil {
			return nil, core.Wrapf(core.ErrCollectorFailed, "line %d: %v", line, err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, core.Wrapf(core.ErrCollectorFailed, "line %d: invalid price %q", line, raw)
		}

		bars = append(bars, core.PriceBar{Time: ts, Price: price.InexactFloat64()})
	}

	return bars, nil
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
