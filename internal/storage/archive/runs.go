package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/meanrev/internal/backtest"
	"github.com/newthinker/meanrev/internal/broker"
	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/indicator"
)

const runsPrefix = "runs"

// Record is the archived form of a completed run
type Record struct {
	ID          string                   `json:"id"`
	CreatedAt   time.Time                `json:"created_at"`
	Symbol      string                   `json:"symbol"`
	Strategy    string                   `json:"strategy"`
	Params      backtest.Params          `json:"params"`
	StartDate   time.Time                `json:"start_date"`
	EndDate     time.Time                `json:"end_date"`
	Performance backtest.Performance     `json:"performance"`
	Stats       backtest.Stats           `json:"stats"`
	Regimes     map[indicator.Regime]int `json:"regimes,omitempty"`
	EquityCurve []float64                `json:"equity_curve"`
	Fills       []broker.Fill            `json:"fills"`
	Trades      []backtest.Trade         `json:"trades"`
}

// NewRecord snapshots res under id
func NewRecord(id string, res *backtest.Result, createdAt time.Time) *Record {
	return &Record{
		ID:          id,
		CreatedAt:   createdAt.UTC(),
		Symbol:      res.Symbol,
		Strategy:    res.Strategy,
		Params:      res.Params,
		StartDate:   res.StartDate,
		EndDate:     res.EndDate,
		Performance: res.Performance,
		Stats:       res.Stats,
		Regimes:     res.Regimes,
		EquityCurve: res.EquityCurve,
		Fills:       res.Fills,
		Trades:      res.Trades,
	}
}

// Result rebuilds the summary view of the archived run. Per-bar rows live in
// the run's CSV and are not restored.
func (r *Record) Result() *backtest.Result {
	return &backtest.Result{
		Strategy:    r.Strategy,
		Symbol:      r.Symbol,
		Params:      r.Params,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		EquityCurve: r.EquityCurve,
		Fills:       r.Fills,
		Trades:      r.Trades,
		Performance: r.Performance,
		Stats:       r.Stats,
		Regimes:     r.Regimes,
	}
}

// RunArchive stores each run as runs/<id>.json plus a per-bar runs/<id>.csv
type RunArchive struct {
	store Storage
	now   func() time.Time
}

// NewRunArchive wraps a storage backend
func NewRunArchive(store Storage) *RunArchive {
	return &RunArchive{store: store, now: time.Now}
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// Save archives res under id. An empty id gets a fresh one.
func (a *RunArchive) Save(ctx context.Context, id string, res *backtest.Result) (*Record, error) {
	if id == "" {
		id = NewRunID()
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.Wrapf(core.ErrConfigInvalid, "invalid run id %q", id)
	}

	rec := NewRecord(id, res, a.now())
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding run %s: %w", id, err)
	}

	var csv bytes.Buffer
	if err := backtest.WriteEquityCSV(&csv, res.Bars); err != nil {
		return nil, fmt.Errorf("encoding equity csv for run %s: %w", id, err)
	}

	// the csv goes first so a listed run always has both files
	if err := a.store.Write(ctx, csvPath(id), csv.Bytes()); err != nil {
		return nil, fmt.Errorf("writing run %s: %w", id, err)
	}
	if err := a.store.Write(ctx, jsonPath(id), data); err != nil {
		return nil, fmt.Errorf("writing run %s: %w", id, err)
	}
	return rec, nil
}

// Load reads a run back. Unknown ids return core.ErrRunNotFound.
func (a *RunArchive) Load(ctx context.Context, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.Wrapf(core.ErrRunNotFound, "invalid run id %q", id)
	}

	data, err := a.store.Read(ctx, jsonPath(id))
	if errors.Is(err, ErrNotFound) {
		return nil, core.Wrapf(core.ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &rec, nil
}

// EquityCSV returns the archived per-bar CSV of a run
func (a *RunArchive) EquityCSV(ctx context.Context, id string) ([]byte, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.Wrapf(core.ErrRunNotFound, "invalid run id %q", id)
	}
	data, err := a.store.Read(ctx, csvPath(id))
	if errors.Is(err, ErrNotFound) {
		return nil, core.Wrapf(core.ErrRunNotFound, "run %s", id)
	}
	return data, err
}

// List returns the archived run ids, sorted
func (a *RunArchive) List(ctx context.Context) ([]string, error) {
	paths, err := a.store.List(ctx, runsPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		name := path.Base(p)
		if id, ok := strings.CutSuffix(name, ".json"); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes both files of a run
func (a *RunArchive) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.Wrapf(core.ErrRunNotFound, "invalid run id %q", id)
	}

	ok, err := a.store.Exists(ctx, jsonPath(id))
	if err != nil {
		return err
	}
	if !ok {
		return core.Wrapf(core.ErrRunNotFound, "run %s", id)
	}

	if err := a.store.Delete(ctx, jsonPath(id)); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, csvPath(id)); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func jsonPath(id string) string { return runsPrefix + "/" + id + ".json" }
func csvPath(id string) string  { return runsPrefix + "/" + id + ".csv" }
