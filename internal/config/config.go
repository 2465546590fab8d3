package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quantick/internal/domain"
	"quantick/internal/engine"
	"quantick/internal/metrics"
	"quantick/internal/strategy"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for quantick.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Backtest Backtest `yaml:"backtest"`
	Fetch    Fetch    `yaml:"fetch"`
	Runs     []RunDef `yaml:"runs"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest holds the execution defaults applied to every run unless the run
// overrides them.
type Backtest struct {
	Continuous     bool    `yaml:"continuous"`
	OnBarClose     bool    `yaml:"on_bar_close"`
	InitialCapital float64 `yaml:"initial_capital"`
	BuyWithEquity  bool    `yaml:"buy_with_equity"`
	// Convention is the zero-denominator rule for ratio metrics: zero, ieee
	// or nan.
	Convention   string  `yaml:"convention"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`
	// Workers bounds parallel sweep evaluations. 0 means GOMAXPROCS.
	Workers int    `yaml:"workers"`
	Market  string `yaml:"market"`
}

// Execution returns the engine configuration.
func (b Backtest) Execution() engine.Config {
	return engine.Config{
		Continuous:     b.Continuous,
		OnBarClose:     b.OnBarClose,
		InitialCapital: b.InitialCapital,
		BuyWithEquity:  b.BuyWithEquity,
	}
}

// Fetch controls daily bar gathering.
type Fetch struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxRetries      int      `yaml:"max_retries"`
}

// RunDef is a named backtest definition. Nil execution fields fall back to
// the backtest section.
type RunDef struct {
	Name     string           `yaml:"name"`
	Strategy string           `yaml:"strategy"`
	Symbol   string           `yaml:"symbol"`
	Market   string           `yaml:"market"`
	Start    string           `yaml:"start"`
	End      string           `yaml:"end"`
	Params   map[string]any   `yaml:"params"`
	Sweep    map[string][]any `yaml:"sweep"`

	Continuous     *bool    `yaml:"continuous"`
	OnBarClose     *bool    `yaml:"on_bar_close"`
	InitialCapital *float64 `yaml:"initial_capital"`
	BuyWithEquity  *bool    `yaml:"buy_with_equity"`
}

// Request resolves the definition against the backtest defaults.
func (r RunDef) Request(defaults Backtest) (strategy.Request, error) {
	exec := defaults.Execution()
	if r.Continuous != nil {
		exec.Continuous = *r.Continuous
	}
	if r.OnBarClose != nil {
		exec.OnBarClose = *r.OnBarClose
	}
	if r.InitialCapital != nil {
		exec.InitialCapital = *r.InitialCapital
	}
	if r.BuyWithEquity != nil {
		exec.BuyWithEquity = *r.BuyWithEquity
	}

	req := strategy.Request{
		Strategy:   r.Strategy,
		Symbol:     strings.ToUpper(r.Symbol),
		Market:     domain.Market(firstNonEmpty(r.Market, defaults.Market)),
		Params:     strategy.Params(r.Params),
		Execution:  exec,
		Convention: metrics.Convention(defaults.Convention),
		RiskFree:   defaults.RiskFreeRate,
	}
	var err error
	if req.Start, err = parseDate(r.Start); err != nil {
		return req, fmt.Errorf("run %s start: %w", r.Name, err)
	}
	if req.End, err = parseDate(r.End); err != nil {
		return req, fmt.Errorf("run %s end: %w", r.Name, err)
	}
	return req, nil
}

// Run returns the run definition with the given name.
func (c *Config) Run(name string) (RunDef, bool) {
	for _, r := range c.Runs {
		if r.Name == name {
			return r, true
		}
	}
	return RunDef{}, false
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used for any field the YAML file omits.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/quantick.db",
		},
		Server: Server{
			Host:     "127.0.0.1",
			Port:     8080,
			GRPCPort: 9090,
		},
		Alpaca: Alpaca{
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Backtest: Backtest{
			OnBarClose:     true,
			InitialCapital: 10000,
			Convention:     string(metrics.ConventionZero),
			Market:         string(domain.MarketUS),
		},
		Fetch: Fetch{
			StartDate:       "2015-01-01",
			BatchSize:       100,
			RateLimitPerMin: 200,
			MaxRetries:      3,
		},
	}
}

// Load reads the YAML configuration file at the given path over the
// defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields the defaults with
// environment overrides applied.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("BACKTEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backtest.Workers = n
		}
	}

	// Standard Alpaca env vars (highest priority, the names the SDK reads).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := c.Backtest.Execution().Validate(); err != nil {
		add("backtest: %w", err)
	}
	if _, err := metrics.ParseConvention(c.Backtest.Convention); err != nil {
		add("backtest: %w", err)
	}
	if c.Backtest.Workers < 0 {
		add("backtest: workers must not be negative, got %d", c.Backtest.Workers)
	}
	for name, port := range map[string]int{"port": c.Server.Port, "grpc_port": c.Server.GRPCPort} {
		if port < 0 || port > 65535 {
			add("server: %s %d out of range", name, port)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("logging: unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		add("logging: unknown format %q", c.Logging.Format)
	}
	if _, err := parseDate(c.Fetch.StartDate); err != nil {
		add("fetch: start_date: %w", err)
	}
	if c.Fetch.BatchSize < 0 || c.Fetch.RateLimitPerMin < 0 || c.Fetch.MaxRetries < 0 {
		add("fetch: batch_size, rate_limit_per_min and max_retries must not be negative")
	}

	seen := make(map[string]bool, len(c.Runs))
	for i, r := range c.Runs {
		switch {
		case r.Name == "":
			add("runs[%d]: name is required", i)
		case seen[r.Name]:
			add("runs[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if r.Strategy == "" {
			add("runs[%d]: strategy is required", i)
		}
		if r.Symbol == "" {
			add("runs[%d]: symbol is required", i)
		}
		if _, err := r.Request(c.Backtest); err != nil {
			add("runs[%d]: %w", i, err)
		} else if r.InitialCapital != nil && !(*r.InitialCapital > 0) {
			add("runs[%d]: initial_capital must be positive", i)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// parseDate parses YYYY-MM-DD. The empty string is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
