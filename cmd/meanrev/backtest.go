package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/meanrev/internal/backtest"
	"github.com/newthinker/meanrev/internal/collector"
	"github.com/newthinker/meanrev/internal/collector/csvfile"
	"github.com/newthinker/meanrev/internal/collector/yahoo"
	"github.com/newthinker/meanrev/internal/config"
	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/forecast"
	"github.com/newthinker/meanrev/internal/logger"
	"github.com/newthinker/meanrev/internal/metrics"
	"github.com/newthinker/meanrev/internal/notifier"
	"github.com/newthinker/meanrev/internal/notifier/telegram"
	"github.com/newthinker/meanrev/internal/notifier/webhook"
	"github.com/newthinker/meanrev/internal/report"
	"github.com/newthinker/meanrev/internal/storage/archive"
)

// backtestFlags override the loaded configuration when set
type backtestFlags struct {
	symbol       string
	from         string
	to           string
	source       string
	path         string
	lookback     int
	buyZ         float64
	sellZ        float64
	forecastDays int
	out          string
	fillsOut     string
	metricsFile  string
	noArchive    bool
}

var btFlags backtestFlags

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a z-score mean reversion backtest",
	Long: `Load a daily price series from a CSV file or Yahoo Finance, replay it
through the z-score strategy and print performance statistics.`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&btFlags.symbol, "symbol", "", "symbol to backtest")
	f.StringVar(&btFlags.from, "from", "", "start date YYYY-MM-DD")
	f.StringVar(&btFlags.to, "to", "", "end date YYYY-MM-DD")
	f.StringVar(&btFlags.source, "source", "", "price source: csv or yahoo")
	f.StringVar(&btFlags.path, "path", "", "CSV file, or directory of <symbol>.csv files")
	f.IntVar(&btFlags.lookback, "lookback", 0, "rolling window length")
	f.Float64Var(&btFlags.buyZ, "buy-z", 0, "buy when the z-score is below this value")
	f.Float64Var(&btFlags.sellZ, "sell-z", 0, "sell when the z-score is above this value")
	f.IntVar(&btFlags.forecastDays, "forecast-days", 0, "append this many Monte Carlo projected business days")
	f.StringVar(&btFlags.out, "out", "", "write the per-bar equity CSV to this file")
	f.StringVar(&btFlags.fillsOut, "fills-out", "", "write the fills CSV to this file")
	f.StringVar(&btFlags.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format")
	f.BoolVar(&btFlags.noArchive, "no-archive", false, "skip archiving the run")

	rootCmd.AddCommand(backtestCmd)
}

// apply copies every flag the user set onto cfg
func (b backtestFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("symbol") {
		cfg.Data.Symbol = b.symbol
	}
	if changed("from") {
		cfg.Data.From = b.from
	}
	if changed("to") {
		cfg.Data.To = b.to
	}
	if changed("source") {
		cfg.Data.Source = b.source
	}
	if changed("path") {
		cfg.Data.Path = b.path
	}
	if changed("lookback") {
		cfg.Backtest.Lookback = b.lookback
	}
	if changed("buy-z") {
		cfg.Backtest.BuyZScore = b.buyZ
	}
	if changed("sell-z") {
		cfg.Backtest.SellZScore = b.sellZ
	}
	if changed("forecast-days") {
		cfg.Forecast.Days = b.forecastDays
	}
	if changed("metrics-file") {
		cfg.Metrics.Textfile = b.metricsFile
	}
	if b.noArchive {
		cfg.Archive.Enabled = false
	}
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	btFlags.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	out, err := executeBacktest(ctx, cfg, log, btFlags)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), report.Render(out.result, out.runID))
	return nil
}

// backtestOutput is what a completed pipeline hands back to the command
type backtestOutput struct {
	runID  string
	result *backtest.Result
	// notifyErrors holds failed deliveries by notifier name
	notifyErrors map[string]error
}

// executeBacktest runs the whole pipeline: fetch, optional forecast,
// simulate, archive, notify and export. cfg must already be validated.
func executeBacktest(ctx context.Context, cfg *config.Config, log *zap.Logger, flags backtestFlags) (*backtestOutput, error) {
	runID := archive.NewRunID()
	symbol := runSymbol(cfg.Data)
	log = logger.ForRun(log, runID, symbol)

	reg := metrics.NewRegistry()
	defer exportMetrics(ctx, cfg.Metrics, reg, log)

	bars, err := loadBars(ctx, cfg, symbol)
	if err != nil {
		reg.RecordBacktest("failed", 0)
		return nil, fmt.Errorf("loading prices: %w", err)
	}
	log.Info("prices loaded",
		zap.String("source", cfg.Data.Source),
		zap.Int("bars", len(bars)),
		zap.Time("first", bars[0].Time),
		zap.Time("last", bars[len(bars)-1].Time),
	)

	params := cfg.Backtest.Params()
	if cfg.Forecast.Days > 0 {
		historical := len(bars)
		bars, err = forecast.Extend(bars, forecast.Options{
			Days:        cfg.Forecast.Days,
			Simulations: cfg.Forecast.Simulations,
			Seed:        params.RandomSeed,
		})
		if err != nil {
			reg.RecordBacktest("failed", 0)
			return nil, fmt.Errorf("forecasting: %w", err)
		}
		log.Info("forecast appended",
			zap.Int("days", len(bars)-historical),
			zap.Int("simulations", cfg.Forecast.Simulations),
		)
	}

	opts := []backtest.Option{
		backtest.WithLogger(log),
		backtest.WithRecorder(reg),
	}
	if cfg.Regime.Enabled {
		opts = append(opts, backtest.WithRegimes(cfg.Regime.Window, cfg.Regime.VolThreshold))
	}

	engine, err := backtest.NewEngine(params, opts...)
	if err != nil {
		return nil, err
	}
	res, err := engine.Run(ctx, symbol, bars)
	if err != nil {
		return nil, fmt.Errorf("running backtest: %w", err)
	}

	out := &backtestOutput{runID: runID, result: res}

	if cfg.Archive.Enabled {
		if err := saveRun(ctx, cfg.Archive, runID, res); err != nil {
			// The result is still printed; a broken archive only loses history.
			log.Error("archiving run failed", zap.Error(err))
		} else {
			log.Info("run archived", zap.String("type", cfg.Archive.Type))
		}
	}

	out.notifyErrors = notify(ctx, cfg.Notifiers, notifier.NewSummary(runID, res, time.Now()), reg, log)

	if flags.out != "" {
		if err := writeFile(flags.out, func(w io.Writer) error { return backtest.WriteEquityCSV(w, res.Bars) }); err != nil {
			return nil, fmt.Errorf("writing equity csv: %w", err)
		}
	}
	if flags.fillsOut != "" {
		if err := writeFile(flags.fillsOut, func(w io.Writer) error { return backtest.WriteFillsCSV(w, res.Fills) }); err != nil {
			return nil, fmt.Errorf("writing fills csv: %w", err)
		}
	}

	return out, nil
}

// runSymbol names the run. A CSV file source without a symbol is named
// after the file.
func runSymbol(d config.DataConfig) string {
	if d.Symbol != "" {
		return d.Symbol
	}
	if d.Source == "csv" && d.Path != "" {
		base := filepath.Base(d.Path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return ""
}

func loadBars(ctx context.Context, cfg *config.Config, symbol string) ([]core.PriceBar, error) {
	registry := collector.NewRegistry()
	registry.Register(csvfile.New(cfg.Data.Path))
	registry.Register(yahoo.New())

	provider, err := registry.MustGet(cfg.Data.Source)
	if err != nil {
		return nil, err
	}

	start, end, err := cfg.Data.Range()
	if err != nil {
		return nil, err
	}
	return provider.FetchHistory(ctx, symbol, start, end)
}

func saveRun(ctx context.Context, cfg config.ArchiveConfig, runID string, res *backtest.Result) error {
	store, err := archive.Open(cfg.Storage())
	if err != nil {
		return err
	}
	_, err = archive.NewRunArchive(store).Save(ctx, runID, res)
	return err
}

// buildNotifiers initializes every enabled notifier from config
func buildNotifiers(cfgs map[string]config.NotifierConfig) (*notifier.Registry, error) {
	registry := notifier.NewRegistry()
	for name, nc := range cfgs {
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		params := map[string]any{}
		switch name {
		case "webhook":
			n = webhook.New("", nil)
			params["url"] = nc.URL
			params["headers"] = nc.Headers
		case "telegram":
			n = telegram.New("", "")
			params["bot_token"] = nc.BotToken
			params["chat_id"] = nc.ChatID
			params["api_base"] = nc.APIBase
		default:
			return nil, fmt.Errorf("unknown notifier: %s", name)
		}

		if err := n.Init(notifier.Config{Type: name, Params: params}); err != nil {
			return nil, fmt.Errorf("initializing %s notifier: %w", name, err)
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func notify(ctx context.Context, cfgs map[string]config.NotifierConfig, s notifier.Summary, reg *metrics.Registry, log *zap.Logger) map[string]error {
	registry, err := buildNotifiers(cfgs)
	if err != nil {
		log.Error("notifier setup failed", zap.Error(err))
		return map[string]error{"setup": err}
	}
	if registry.Len() == 0 {
		return nil
	}

	failed := registry.NotifyAll(ctx, s)
	for _, n := range registry.GetAll() {
		if err, ok := failed[n.Name()]; ok {
			reg.RecordNotification(n.Name(), "failed")
			log.Warn("notification failed", zap.String("notifier", n.Name()), zap.Error(err))
			continue
		}
		reg.RecordNotification(n.Name(), "sent")
		log.Debug("notification sent", zap.String("notifier", n.Name()))
	}
	return failed
}

func exportMetrics(ctx context.Context, cfg config.MetricsConfig, reg *metrics.Registry, log *zap.Logger) {
	if cfg.Textfile != "" {
		if err := reg.WriteTextfile(cfg.Textfile); err != nil {
			log.Warn("writing metrics textfile failed", zap.String("path", cfg.Textfile), zap.Error(err))
		}
	}
	if cfg.PushGateway != "" {
		if err := reg.Push(ctx, cfg.PushGateway, cfg.Job); err != nil {
			log.Warn("pushing metrics failed", zap.String("url", cfg.PushGateway), zap.Error(err))
		}
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
