package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frontier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, portfolio.DefaultParams(), cfg.Params())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "yahoo", cfg.Data.Source)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
analysis:
  risk_free_rate: 0.02
  total_amount: 5000
solver:
  tolerance: 1e-6
  workers: 2
window:
  start: 2024-01-01
  end: 2024-06-30
universe: [AAPL, MSFT, GLD]
data:
  source: sina
  rps: 0.5
  timeout: 3s
  cache_ttl: 10m
store:
  driver: postgres
  dsn: postgres://localhost/frontier
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT", "GLD"}, cfg.Universe)
	assert.Equal(t, 3*time.Second, cfg.Data.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Data.CacheTTL)
	assert.Equal(t, "sina", cfg.Data.Source)
	assert.Equal(t, 4, cfg.Data.Burst, "unset keys keep their defaults")

	p := cfg.Params()
	assert.Equal(t, 0.02, p.RiskFreeRate)
	assert.Equal(t, 5000.0, p.TotalAmount)
	assert.Equal(t, portfolio.DefaultFrontierPoints, p.FrontierPoints)
	assert.Equal(t, 1e-6, p.Solver.Tolerance)
	assert.Equal(t, 2, p.Solver.Workers)
	assert.Equal(t, 10000, p.Solver.MaxIterations)

	start, end, err := cfg.Window.Dates()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), end)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FRONTIER_REDIS_ADDR", "cache:6379")
	t.Setenv("FRONTIER_STORE_DSN", "/tmp/runs.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.Data.RedisAddr)
	assert.Equal(t, "/tmp/runs.db", cfg.Store.DSN)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "analysis: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero amount", func(c *Config) { c.Analysis.TotalAmount = 0 }},
		{"one point", func(c *Config) { c.Analysis.FrontierPoints = 1 }},
		{"zero tolerance", func(c *Config) { c.Solver.Tolerance = 0 }},
		{"negative workers", func(c *Config) { c.Solver.Workers = -1 }},
		{"inverted window", func(c *Config) { c.Window = Window{Start: "2024-02-01", End: "2024-01-01"} }},
		{"bad date", func(c *Config) { c.Window.Start = "01/02/2024" }},
		{"unknown source", func(c *Config) { c.Data.Source = "bloomberg" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
