/*
main.go - Application entry point

PURPOSE:
  Command tree for task-timr. Without a subcommand the HTTP server starts.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve                                  HTTP server (default)
  records <working-time-id>              Print records and status as JSON
  set <working-time-id> <task-id> <n>    Set a task's minutes ("none" removes)

STARTUP SEQUENCE:
  1. Load configuration (defaults, --config file, environment, flags)
  2. Validate it and build the logger
  3. Build the configured backend and allocation service
  4. Run the command

GLOBAL FLAGS:
  --config      YAML configuration file
  --backend     timr | sqlite | memory
  --bind        Listen address (default: 127.0.0.1)
  --port        Listen port (default: 5000)
  --db          SQLite database path for the sqlite backend
  --log-level   debug | info | warn | error
  --log-format  text | json

ENVIRONMENT:
  TIMR_COMPANY_ID, TIMR_USER, TIMR_PASSWORD, TIMR_API_BASE_URL,
  TIMR_PLACEHOLDER_TASK_ID, BIND_IP, PORT, and TASK_TIMR_<KEY> for every
  other setting.

EXAMPLES:
  # Run against timr
  TIMR_COMPANY_ID=acme TIMR_USER=jane TIMR_PASSWORD=... ./server

  # Offline demo with scenarios
  ./server --backend sqlite --db ./demo.db

  # Book 90 minutes on a working time
  ./server set 4711 task-backend 90

SEE ALSO:
  - config/config.go: Settings and precedence
  - factory/backend.go: Backend construction
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ohrner-it/task-timr/config"
	"github.com/ohrner-it/task-timr/factory"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "task-timr",
		Short:         "Book task durations onto timr working times",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("backend", config.BackendTimr, "backend: timr, sqlite or memory")
	flags.String("bind", "127.0.0.1", "listen address")
	flags.Int("port", 5000, "listen port")
	flags.String("db", "task-timr.db", "SQLite database path")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(recordsCmd())
	cmd.AddCommand(setCmd())

	return cmd
}

// app is what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	built  *factory.Built
}

func (a *app) Close() error {
	return a.built.Close()
}

func setup(cmd *cobra.Command) (*app, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	built, err := factory.Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, built: built}, nil
}
