package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/philp97/frontier/internal/config"
	"github.com/philp97/frontier/internal/data"
	"github.com/philp97/frontier/internal/metrics"
	"github.com/philp97/frontier/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
)

// rootCmd is the base command for the frontier CLI
var rootCmd = &cobra.Command{
	Use:   "frontier",
	Short: "Efficient frontier, max-Sharpe and risk-parity allocations",
	Long: `frontier downloads daily prices for a set of assets, estimates their
return moments and computes the long-only efficient frontier, the maximum
Sharpe ratio portfolio and the equal risk contribution portfolio.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		logger = newLogger(cfg.Log, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "frontier.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
}

// newLogger writes JSON lines, or coloured console output when w is a
// terminal and the console format is selected.
func newLogger(c config.Log, w *os.File) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out io.Writer = w
	if c.Format != "json" && term.IsTerminal(int(w.Fd())) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// buildSource returns the guarded price source described by c. The returned
// close function releases the redis connection when one is used.
func buildSource(ctx context.Context, c config.Data, m *metrics.Metrics) (data.Source, func(), error) {
	var upstream data.Source
	switch c.Source {
	case "sina":
		upstream = data.NewSinaSource(c.BaseURL, c.Timeout)
	default:
		upstream = data.NewYahooSource(c.BaseURL, c.Timeout)
	}
	opts := data.GuardOptions{
		Name:             c.Source,
		RequestsPerSec:   c.RequestsPerSec,
		Burst:            c.Burst,
		FailureThreshold: c.FailureThreshold,
		OpenTimeout:      c.OpenTimeout,
		Retries:          c.Retries,
		RetryBackoff:     c.RetryBackoff,
		CacheTTL:         c.CacheTTL,
	}
	if m != nil {
		opts.Observer = m
	}
	closer := func() {}
	if c.RedisAddr != "" {
		rc, err := data.DialRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		opts.Cache = rc
		closer = func() { rc.Close() }
	} else if c.CacheTTL > 0 {
		opts.Cache = data.NewMemoryCache()
	}
	src := data.NewGuarded(upstream, opts, logger)
	return src, closer, nil
}

func openStore(ctx context.Context, c config.Store) (*store.Store, error) {
	return store.Open(ctx, c.Driver, c.DSN)
}
