/*
Package factory builds the configured allocation backend.

PURPOSE:
  Turns config.Config into the pieces the server and CLI need: a Backend
  (slots, periods, tasks, working-time types), an optional Seeder for demo scenarios, and the
  allocation.Service on top.

BACKENDS:
  timr    the remote time-tracking service (production)
  sqlite  a local database file with the same behaviour (offline, demos)
  memory  process memory; lost on exit (tests, quick demos)

USAGE:
  built, err := factory.Build(cfg, logger)
  if err != nil {
      log.Fatal(err)
  }
  defer built.Close()

  res, err := built.Service.GetDurationRecords(ctx, period)

SEE ALSO:
  - config/config.go: settings
  - timr/repository.go, store/sqlite/sqlite.go, allocation/store/memory.go
*/
package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ohrner-it/task-timr/allocation"
	"github.com/ohrner-it/task-timr/allocation/store"
	"github.com/ohrner-it/task-timr/config"
	"github.com/ohrner-it/task-timr/store/sqlite"
	"github.com/ohrner-it/task-timr/timr"
)

// Seeder loads demo data into a local backend.
type Seeder interface {
	Reset(ctx context.Context) error
	SavePeriod(ctx context.Context, p allocation.WorkingPeriod) error
	SaveTask(ctx context.Context, t allocation.Task) error
	SaveWorkingTimeType(ctx context.Context, t allocation.WorkingTimeType) error
	SaveSlot(ctx context.Context, s allocation.TimeSlot) (allocation.TimeSlot, error)
}

var (
	_ Seeder = (*sqlite.Store)(nil)
	_ Seeder = (*store.Memory)(nil)
)

// Built is a ready-to-use backend with its service.
type Built struct {
	Name    string
	Backend allocation.Backend
	Service *allocation.Service

	// Seeder is nil for the timr backend.
	Seeder Seeder

	close func() error
}

// Close releases the backend's resources.
func (b *Built) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Build creates the backend named by cfg.Backend.
func Build(cfg *config.Config, logger *slog.Logger) (*Built, error) {
	if logger == nil {
		logger = slog.Default()
	}

	built := &Built{Name: cfg.Backend}
	switch cfg.Backend {
	case config.BackendTimr:
		client, err := timr.New(timr.Config{
			BaseURL:   cfg.Timr.BaseURL,
			CompanyID: cfg.Timr.CompanyID,
			Username:  cfg.Timr.Username,
			Password:  cfg.Timr.Password,
			PageSize:  cfg.Timr.PageSize,
			Timeout:   cfg.Timr.Timeout,
			Logger:    logger.With("component", "timr"),
		})
		if err != nil {
			return nil, fmt.Errorf("create timr client: %w", err)
		}
		repo := timr.NewRepository(client, nil, logger.With("component", "timr"))
		if cfg.Timr.DefaultWorkingTimeTypeID != "" {
			repo.DefaultTypeID = cfg.Timr.DefaultWorkingTimeTypeID
		}
		built.Backend = repo

	case config.BackendSQLite:
		db, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		built.Backend = db
		built.Seeder = db
		built.close = db.Close

	case config.BackendMemory:
		mem := store.NewMemory()
		built.Backend = mem
		built.Seeder = mem

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	built.Service = allocation.NewService(allocation.ServiceConfig{
		Slots:             built.Backend,
		Tasks:             built.Backend,
		Periods:           built.Backend,
		History:           built.Backend,
		Types:             built.Backend,
		PlaceholderTaskID: allocation.TaskID(cfg.PlaceholderTaskID),
		Logger:            logger.With("component", "allocation"),
	})

	logger.Info("backend ready", "backend", built.Name)
	return built, nil
}
