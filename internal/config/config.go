package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete CLI and server configuration, read from YAML.
type Config struct {
	Analysis Analysis                `yaml:"analysis"`
	Solver   portfolio.SolverOptions `yaml:"solver"`
	Window   Window                  `yaml:"window"`
	Universe []string                `yaml:"universe"`
	Data     Data                    `yaml:"data"`
	Server   Server                  `yaml:"server"`
	Store    Store                   `yaml:"store"`
	Log      Log                     `yaml:"log"`
}

// Analysis holds the per-run engine settings.
type Analysis struct {
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	TotalAmount    float64 `yaml:"total_amount"`
	FrontierPoints int     `yaml:"frontier_points"`
}

// Window is the closed date interval analysed, as YYYY-MM-DD.
type Window struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Data configures the price source and its guards. Source is "yahoo" or
// "sina"; BaseURL overrides the chosen source's endpoint.
type Data struct {
	Source           string        `yaml:"source"`
	BaseURL          string        `yaml:"base_url"`
	RequestsPerSec   float64       `yaml:"rps"`
	Burst            int           `yaml:"burst"`
	Timeout          time.Duration `yaml:"timeout"`
	Retries          int           `yaml:"retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisPassword    string        `yaml:"redis_password"`
	RedisDB          int           `yaml:"redis_db"`
}

// Server configures the HTTP API.
type Server struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAssets      int           `yaml:"max_assets"`
}

// Store selects the run history database.
type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Log configures the zerolog logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	p := portfolio.DefaultParams()
	now := time.Now().UTC()
	return &Config{
		Analysis: Analysis{
			RiskFreeRate:   p.RiskFreeRate,
			TotalAmount:    p.TotalAmount,
			FrontierPoints: p.FrontierPoints,
		},
		Solver: p.Solver,
		Window: Window{
			Start: now.AddDate(-1, 0, 0).Format(time.DateOnly),
			End:   now.Format(time.DateOnly),
		},
		Data: Data{
			Source:           "yahoo",
			RequestsPerSec:   2,
			Burst:            4,
			Timeout:          15 * time.Second,
			Retries:          2,
			RetryBackoff:     500 * time.Millisecond,
			CacheTTL:         time.Hour,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Server: Server{Addr: ":8080", RequestTimeout: 60 * time.Second, MaxAssets: 20},
		Store:  Store{Driver: "sqlite", DSN: "frontier.db"},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// FRONTIER_REDIS_ADDR and FRONTIER_STORE_DSN override the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FRONTIER_REDIS_ADDR"); v != "" {
		cfg.Data.RedisAddr = v
	}
	if v := os.Getenv("FRONTIER_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
}

// Validate checks every section and reports all failures at once, wrapped
// in ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	if c.Analysis.TotalAmount <= 0 {
		errs = append(errs, fmt.Errorf("analysis.total_amount must be positive, got %g", c.Analysis.TotalAmount))
	}
	if c.Analysis.FrontierPoints < 2 {
		errs = append(errs, fmt.Errorf("analysis.frontier_points must be at least 2, got %d", c.Analysis.FrontierPoints))
	}
	if c.Solver.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("solver.tolerance must be positive, got %g", c.Solver.Tolerance))
	}
	if c.Solver.MaxIterations < 0 || c.Solver.Workers < 0 || c.Solver.Ridge < 0 {
		errs = append(errs, errors.New("solver settings must not be negative"))
	}
	if _, _, err := c.Window.Dates(); err != nil {
		errs = append(errs, err)
	}
	switch c.Data.Source {
	case "yahoo", "sina":
	default:
		errs = append(errs, fmt.Errorf("data.source %q is not one of yahoo, sina", c.Data.Source))
	}
	if c.Data.Retries < 0 {
		errs = append(errs, fmt.Errorf("data.retries must not be negative, got %d", c.Data.Retries))
	}
	if c.Data.RequestsPerSec < 0 {
		errs = append(errs, fmt.Errorf("data.rps must not be negative, got %g", c.Data.RequestsPerSec))
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of console, json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Dates parses the window bounds.
func (w Window) Dates() (start, end time.Time, err error) {
	start, err = time.Parse(time.DateOnly, strings.TrimSpace(w.Start))
	if err != nil {
		return start, end, fmt.Errorf("window.start: %w", err)
	}
	end, err = time.Parse(time.DateOnly, strings.TrimSpace(w.End))
	if err != nil {
		return start, end, fmt.Errorf("window.end: %w", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("window.end %s is before window.start %s", w.End, w.Start)
	}
	return start, end, nil
}

// Params converts the analysis and solver sections into engine parameters.
func (c *Config) Params() portfolio.Params {
	return portfolio.Params{
		RiskFreeRate:   c.Analysis.RiskFreeRate,
		TotalAmount:    c.Analysis.TotalAmount,
		FrontierPoints: c.Analysis.FrontierPoints,
		Solver:         c.Solver,
	}
}
