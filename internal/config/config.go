package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/newthinker/meanrev/internal/backtest"
	"github.com/newthinker/meanrev/internal/core"
	"github.com/newthinker/meanrev/internal/storage/archive"
)

// EnvPrefix prefixes environment overrides, e.g. MEANREV_BACKTEST_LOOKBACK
const EnvPrefix = "MEANREV"

const dateLayout = "2006-01-02"

type Config struct {
	Backtest  BacktestConfig            `mapstructure:"backtest"`
	Data      DataConfig                `mapstructure:"data"`
	Forecast  ForecastConfig            `mapstructure:"forecast"`
	Regime    RegimeConfig              `mapstructure:"regime"`
	Archive   ArchiveConfig             `mapstructure:"archive"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	Log       LogConfig                 `mapstructure:"log"`
}

// BacktestConfig holds the engine parameters
type BacktestConfig struct {
	InitialCapital  float64 `mapstructure:"initial_capital"`
	Lookback        int     `mapstructure:"lookback"`
	BuyZScore       float64 `mapstructure:"buy_zscore"`
	SellZScore      float64 `mapstructure:"sell_zscore"`
	MaxPositionPct  float64 `mapstructure:"max_position_pct"`
	TransactionCost float64 `mapstructure:"transaction_cost"`
	PeriodsPerYear  float64 `mapstructure:"periods_per_year"`
	RandomSeed      int64   `mapstructure:"random_seed"`
}

// DataConfig selects the price history
type DataConfig struct {
	Source string `mapstructure:"source"` // "csv" or "yahoo"
	Path   string `mapstructure:"path"`   // file or directory for csv
	Symbol string `mapstructure:"symbol"`
	From   string `mapstructure:"from"` // YYYY-MM-DD, optional
	To     string `mapstructure:"to"`   // YYYY-MM-DD, optional
}

// ForecastConfig controls the Monte Carlo extension. Days == 0 disables it.
type ForecastConfig struct {
	Days        int `mapstructure:"days"`
	Simulations int `mapstructure:"simulations"`
}

// RegimeConfig controls per-bar regime labelling
type RegimeConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Window       int     `mapstructure:"window"`
	VolThreshold float64 `mapstructure:"vol_threshold"`
}

// ArchiveConfig holds run archive settings
type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Textfile    string `mapstructure:"textfile"`
	PushGateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

type NotifierConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Telegram notifier fields
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
	// Webhook notifier fields
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from file. An empty path loads defaults plus
// environment overrides only. A .env file next to the config file (or in the
// working directory) is loaded first; it never overrides variables already
// set in the environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if ok && strings.Contains(val, "${") {
			v.Set(key, os.ExpandEnv(val))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}

	for _, f := range candidates {
		err := godotenv.Load(f)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("backtest.initial_capital", d.Backtest.InitialCapital)
	v.SetDefault("backtest.lookback", d.Backtest.Lookback)
	v.SetDefault("backtest.buy_zscore", d.Backtest.BuyZScore)
	v.SetDefault("backtest.sell_zscore", d.Backtest.SellZScore)
	v.SetDefault("backtest.max_position_pct", d.Backtest.MaxPositionPct)
	v.SetDefault("backtest.transaction_cost", d.Backtest.TransactionCost)
	v.SetDefault("backtest.periods_per_year", d.Backtest.PeriodsPerYear)
	v.SetDefault("backtest.random_seed", d.Backtest.RandomSeed)

	v.SetDefault("data.source", d.Data.Source)
	v.SetDefault("data.path", d.Data.Path)
	v.SetDefault("data.symbol", d.Data.Symbol)
	v.SetDefault("data.from", d.Data.From)
	v.SetDefault("data.to", d.Data.To)

	v.SetDefault("forecast.days", d.Forecast.Days)
	v.SetDefault("forecast.simulations", d.Forecast.Simulations)

	v.SetDefault("regime.enabled", d.Regime.Enabled)
	v.SetDefault("regime.window", d.Regime.Window)
	v.SetDefault("regime.vol_threshold", d.Regime.VolThreshold)

	v.SetDefault("archive.enabled", d.Archive.Enabled)
	v.SetDefault("archive.type", d.Archive.Type)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.s3.bucket", d.Archive.S3.Bucket)
	v.SetDefault("archive.s3.endpoint", d.Archive.S3.Endpoint)
	v.SetDefault("archive.s3.region", d.Archive.S3.Region)
	v.SetDefault("archive.s3.access_key", d.Archive.S3.AccessKey)
	v.SetDefault("archive.s3.secret_key", d.Archive.S3.SecretKey)
	v.SetDefault("archive.s3.prefix", d.Archive.S3.Prefix)

	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("metrics.pushgateway", d.Metrics.PushGateway)
	v.SetDefault("metrics.job", d.Metrics.Job)

	v.SetDefault("log.development", d.Log.Development)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	p := backtest.DefaultParams()
	return &Config{
		Backtest: BacktestConfig{
			InitialCapital:  p.InitialCapital,
			Lookback:        p.Lookback,
			BuyZScore:       p.BuyZScore,
			SellZScore:      p.SellZScore,
			MaxPositionPct:  p.MaxPositionPct,
			TransactionCost: p.TransactionCost,
			PeriodsPerYear:  p.PeriodsPerYear,
			RandomSeed:      p.RandomSeed,
		},
		Data: DataConfig{
			Source: "csv",
		},
		Forecast: ForecastConfig{
			Days:        0,
			Simulations: 500,
		},
		Regime: RegimeConfig{
			Enabled:      true,
			Window:       20,
			VolThreshold: 0.02,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Type:    "localfs",
			Path:    "./data/archive",
		},
		Metrics: MetricsConfig{
			Job: "meanrev",
		},
	}
}

// Params converts the section into engine parameters
func (b BacktestConfig) Params() backtest.Params {
	return backtest.Params{
		InitialCapital:  b.InitialCapital,
		Lookback:        b.Lookback,
		BuyZScore:       b.BuyZScore,
		SellZScore:      b.SellZScore,
		MaxPositionPct:  b.MaxPositionPct,
		TransactionCost: b.TransactionCost,
		PeriodsPerYear:  b.PeriodsPerYear,
		RandomSeed:      b.RandomSeed,
	}
}

// Range parses From and To. Unset bounds are zero times.
func (d DataConfig) Range() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if d.From != "" {
		if start, err = time.Parse(dateLayout, d.From); err != nil {
			return start, end, core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("data.from must be YYYY-MM-DD, got %q", d.From))
		}
	}
	if d.To != "" {
		if end, err = time.Parse(dateLayout, d.To); err != nil {
			return start, end, core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("data.to must be YYYY-MM-DD, got %q", d.To))
		}
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return start, end, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("data.from %s must be before data.to %s", d.From, d.To))
	}
	return start, end, nil
}

// Storage converts the section into archive backend settings
func (a ArchiveConfig) Storage() archive.Config {
	return archive.Config{
		Type: a.Type,
		Path: a.Path,
		S3: archive.S3Config{
			Bucket:    a.S3.Bucket,
			Endpoint:  a.S3.Endpoint,
			Region:    a.S3.Region,
			AccessKey: a.S3.AccessKey,
			SecretKey: a.S3.SecretKey,
			Prefix:    a.S3.Prefix,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Engine parameters
	if err := c.Backtest.Params().Validate(); err != nil {
		return err
	}

	// Data validation
	switch c.Data.Source {
	case "csv":
		if c.Data.Path == "" {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("data.path is required for the csv source"))
		}
	case "yahoo":
		if c.Data.Symbol == "" {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("data.symbol is required for the yahoo source"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("data.source must be csv or yahoo, got %q", c.Data.Source))
	}
	if _, _, err := c.Data.Range(); err != nil {
		return err
	}

	// Forecast validation
	if c.Forecast.Days < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("forecast.days cannot be negative, got %d", c.Forecast.Days))
	}
	if c.Forecast.Days > 0 && c.Forecast.Simulations < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("forecast.simulations must be positive, got %d", c.Forecast.Simulations))
	}

	// Regime validation
	if c.Regime.Enabled {
		if c.Regime.Window < 2 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("regime.window must be >= 2, got %d", c.Regime.Window))
		}
		if c.Regime.VolThreshold < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("regime.vol_threshold cannot be negative, got %f", c.Regime.VolThreshold))
		}
	}

	// Archive validation
	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "localfs":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("archive.path is required for localfs"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("archive.s3.bucket is required for s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("archive.type must be localfs or s3, got %q", c.Archive.Type))
		}
	}

	// Notifier validation
	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch name {
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("notifiers.webhook.url is required"))
			}
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("notifiers.telegram needs bot_token and chat_id"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown notifier %q", name))
		}
	}

	return nil
}
