package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/philp97/frontier/internal/config"
	"github.com/philp97/frontier/internal/data"
	"github.com/philp97/frontier/internal/portfolio"
	"github.com/philp97/frontier/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Fetch prices and compute the frontier and allocations",
	Long: `Fetch daily prices for the requested assets over a closed date window and
print the per-asset statistics, the maximum Sharpe portfolio and the equal
risk contribution portfolio, both scaled to the total amount.

Examples:
  frontier analyze --assets AAPL,MSFT,GLD --start 2023-01-01 --end 2023-12-31
  frontier analyze --assets SPY,TLT --risk-free 0.01 --total 50000 --json
  frontier analyze --save`,
	RunE: runAnalyze,
}

var (
	analyzeJSON bool
	analyzeSave bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addAnalysisFlags(analyzeCmd.Flags())
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full result as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Store the run in the history database")
}

func addAnalysisFlags(fs *pflag.FlagSet) {
	fs.StringSlice("assets", nil, "Comma separated asset symbols (default: universe from config)")
	fs.String("start", "", "First day of the window, YYYY-MM-DD")
	fs.String("end", "", "Last day of the window, YYYY-MM-DD")
	fs.Float64("risk-free", 0, "Per-period risk-free rate in percent")
	fs.Float64("total", portfolio.DefaultTotalAmount, "Notional the allocations are scaled to")
	fs.Int("points", portfolio.DefaultFrontierPoints, "Number of frontier target returns")
	fs.Int("workers", 0, "Concurrent frontier solves (0 = GOMAXPROCS)")
}

// applyAnalysisFlags copies explicitly set flags over the configuration.
func applyAnalysisFlags(fs *pflag.FlagSet, c *config.Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "assets":
			c.Universe, err = fs.GetStringSlice("assets")
		case "start":
			c.Window.Start = f.Value.String()
		case "end":
			c.Window.End = f.Value.String()
		case "risk-free":
			c.Analysis.RiskFreeRate, err = fs.GetFloat64("risk-free")
		case "total":
			c.Analysis.TotalAmount, err = fs.GetFloat64("total")
		case "points":
			c.Analysis.FrontierPoints, err = fs.GetInt("points")
		case "workers":
			c.Solver.Workers, err = fs.GetInt("workers")
		}
	})
	if err != nil {
		return err
	}
	return c.Validate()
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := applyAnalysisFlags(cmd.Flags(), cfg); err != nil {
		return err
	}
	assets := make([]string, 0, len(cfg.Universe))
	for _, a := range cfg.Universe {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			assets = append(assets, a)
		}
	}
	if len(assets) == 0 {
		return fmt.Errorf("no assets given: use --assets or set universe in %s", configPath)
	}
	start, end, err := cfg.Window.Dates()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := buildSource(ctx, cfg.Data, nil)
	if err != nil {
		return err
	}
	defer closeSrc()

	logger.Info().Strs("assets", assets).Str("start", cfg.Window.Start).Str("end", cfg.Window.End).Msg("fetching prices")
	series, err := data.Collect(ctx, src, assets, start, end)
	if err != nil {
		return err
	}
	res, err := portfolio.NewEngine(logger, nil).Run(series, cfg.Params())
	if err != nil {
		return err
	}

	if analyzeSave {
		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()
		sum, err := st.Save(ctx, res)
		if err != nil {
			return err
		}
		logger.Info().Str("run_id", sum.ID).Msg("run saved")
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return report.Write(out, res)
}
