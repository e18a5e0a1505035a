package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohrner-it/task-timr/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, name := range []string{"PORT", "BIND_IP", "TIMR_API_BASE_URL"} {
		t.Setenv(name, "")
	}

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.BindIP)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Addr())
	assert.Equal(t, config.BackendTimr, cfg.Backend)
	assert.Equal(t, "https://api.timr.com/v0.2", cfg.Timr.BaseURL)
	assert.Equal(t, 500, cfg.Timr.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Timr.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	// GIVEN: A YAML file, deployment env vars and a changed flag
	// WHEN: Loading
	// THEN: Flags beat env, env beats the file, the file beats defaults

	path := filepath.Join(t.TempDir(), "task-timr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: sqlite
server:
  port: 6000
  bind_ip: 0.0.0.0
timr:
  company_id: from-file
  timeout: 10s
sqlite:
  path: /tmp/file.db
placeholder_task_id: NONE
`), 0o600))

	t.Setenv("TIMR_COMPANY_ID", "acme")
	t.Setenv("PORT", "7000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.Int("port", 0, "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--db", "/tmp/flag.db"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, config.BackendSQLite, cfg.Backend)
	assert.Equal(t, "0.0.0.0", cfg.Server.BindIP)
	assert.Equal(t, 7000, cfg.Server.Port, "env beats file; unset flag does not override")
	assert.Equal(t, "acme", cfg.Timr.CompanyID)
	assert.Equal(t, 10*time.Second, cfg.Timr.Timeout)
	assert.Equal(t, "/tmp/flag.db", cfg.SQLite.Path)
	assert.Equal(t, "NONE", cfg.PlaceholderTaskID)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Setenv("TASK_TIMR_LOG_LEVEL", "debug")
	t.Setenv("TASK_TIMR_TIMR_PAGE_SIZE", "100")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Timr.PageSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.Load("", nil)
		require.NoError(t, err)
		cfg.Timr.CompanyID, cfg.Timr.Username, cfg.Timr.Password = "acme", "jane", "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid timr", func(*config.Config) {}, ""},
		{"memory needs nothing", func(c *config.Config) { c.Backend = config.BackendMemory; c.Timr = config.TimrConfig{} }, ""},
		{"unknown backend", func(c *config.Config) { c.Backend = "postgres" }, "unknown backend"},
		{"missing credentials", func(c *config.Config) { c.Timr.Password = "" }, "timr.password"},
		{"page size too large", func(c *config.Config) { c.Timr.PageSize = 501 }, "page_size"},
		{"port out of range", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"sqlite without path", func(c *config.Config) { c.Backend = config.BackendSQLite; c.SQLite.Path = "" }, "sqlite.path"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := config.LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "period_id", "wp-1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"period_id":"wp-1"`)
}
