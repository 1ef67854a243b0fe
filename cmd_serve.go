package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/philp97/frontier/internal/api"
	"github.com/philp97/frontier/internal/metrics"
	"github.com/philp97/frontier/internal/portfolio"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the analytics over HTTP:

  GET  /api/health
  POST /api/analyze
  GET  /api/runs
  GET  /api/runs/{id}
  GET  /metrics`,
	RunE: runServe,
}

var (
	serveAddr      string
	serveNoHistory bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&serveNoHistory, "no-history", false, "Disable the run history endpoints")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	src, closeSrc, err := buildSource(ctx, cfg.Data, m)
	if err != nil {
		return err
	}
	defer closeSrc()

	opts := api.Options{
		Source:    src,
		Engine:    portfolio.NewEngine(logger, m),
		Params:    cfg.Params(),
		Metrics:   m,
		Logger:    logger,
		Timeout:   cfg.Server.RequestTimeout,
		MaxAssets: cfg.Server.MaxAssets,
	}
	if !serveNoHistory {
		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Store = st
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return api.NewServer(opts).ListenAndServe(ctx, addr)
}
