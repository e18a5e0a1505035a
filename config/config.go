// Package config loads task-timr settings from defaults, an optional YAML
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendTimr   = "timr"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig `mapstructure:"server"`
	Backend string       `mapstructure:"backend"`
	Timr    TimrConfig   `mapstructure:"timr"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Log     LogConfig    `mapstructure:"log"`

	// PlaceholderTaskID carries "nothing to allocate" markers. Empty
	// disables marking.
	PlaceholderTaskID string `mapstructure:"placeholder_task_id"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	BindIP         string   `mapstructure:"bind_ip"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.BindIP, strconv.Itoa(s.Port))
}

// TimrConfig configures the remote client.
type TimrConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	CompanyID string        `mapstructure:"company_id"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	PageSize  int           `mapstructure:"page_size"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// DefaultWorkingTimeTypeID is the type of created working times that
	// name none.
	DefaultWorkingTimeTypeID string `mapstructure:"default_working_time_type_id"`
}

// SQLiteConfig configures the local backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envNames maps keys to the environment names used by existing deployments.
// Every key is also readable as TASK_TIMR_<KEY>.
var envNames = map[string][]string{
	"server.bind_ip":      {"BIND_IP"},
	"server.port":         {"PORT"},
	"timr.company_id":     {"TIMR_COMPANY_ID"},
	"timr.username":       {"TIMR_USER"},
	"timr.password":       {"TIMR_PASSWORD"},
	"timr.base_url":       {"TIMR_API_BASE_URL"},
	"placeholder_task_id": {"TIMR_PLACEHOLDER_TASK_ID"},
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"backend":    "backend",
	"bind":       "server.bind_ip",
	"port":       "server.port",
	"db":         "sqlite.path",
	"log-level":  "log.level",
	"log-format": "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_ip", "127.0.0.1")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("backend", BackendTimr)
	v.SetDefault("timr.base_url", "https://api.timr.com/v0.2")
	v.SetDefault("timr.company_id", "")
	v.SetDefault("timr.username", "")
	v.SetDefault("timr.password", "")
	v.SetDefault("timr.page_size", 500)
	v.SetDefault("timr.timeout", 30*time.Second)
	v.SetDefault("timr.default_working_time_type_id", "3f1953ee-f5d6-471f-a4ed-95ced921dd86")
	v.SetDefault("sqlite.path", "task-timr.db")
	v.SetDefault("placeholder_task_id", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. path may be empty; flags may be nil. Only flags
// the user actually set override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("TASK_TIMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envNames {
		args := append([]string{key, "TASK_TIMR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendTimr:
		if c.Timr.CompanyID == "" || c.Timr.Username == "" || c.Timr.Password == "" {
			errs = append(errs, errors.New("timr backend requires timr.company_id, timr.username and timr.password"))
		}
		if c.Timr.PageSize < 1 || c.Timr.PageSize > 500 {
			errs = append(errs, fmt.Errorf("timr.page_size must be within 1..500, got %d", c.Timr.PageSize))
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite backend requires sqlite.path"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want timr, sqlite or memory)", c.Backend))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be within 1..65535, got %d", c.Server.Port))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
