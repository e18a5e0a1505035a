/*
Package sqlite provides a SQLite-backed implementation of allocation.Backend.

PURPOSE:
  A local stand-in for the remote time-tracking service: working periods,
  tasks and booked time slots live in one database file. Used for demos,
  offline development and the scenario loader of the HTTP API.

INTERFACES IMPLEMENTED:
  allocation.SlotRepository:        slot CRUD
  allocation.SlotHistory:           slots across periods by date
  allocation.PeriodStore:           working period lookup and edits
  allocation.TaskCatalog:           task lookup and search
  allocation.WorkingTimeTypeSource: working-time types

KEY TABLES:
  working_periods:    id, start, end (NULL while ongoing), break minutes, type
  working_time_types: id, name, category, archived flag
  tasks:              bookable tasks with display name and breadcrumbs
  time_slots:         booked slots; duration_minutes NULL means end - start

INDEXES:
  - idx_time_slots_period: FetchSlots (hot path)
  - idx_working_periods_start: date range listing

REMOTE BEHAVIOUR MIRRORED:
  - Creating a slot for an unknown task fails with a NotFoundError, which the
    executor reports like a remote rejection.
  - Duplicate slots for one task are allowed; the engine absorbs them.
  - Timestamps are stored as RFC 3339 strings and keep their offset.
  - Deleting a working period deletes its slots.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single connection so that
  ":memory:" databases are shared by all callers.

USAGE:
  store, err := sqlite.New("./task-timr.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := allocation.NewService(allocation.ServiceConfig{Slots: store, Tasks: store})

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ohrner-it/task-timr/allocation"
)

var _ allocation.Backend = (*Store)(nil)

// Store implements allocation.Backend using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// NewID assigns slot and period ids. Defaults to random UUIDs.
	NewID func() string

	// DefaultTypeID is given to created periods without a type.
	DefaultTypeID string
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, NewID: uuid.NewString}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS working_periods (
		id TEXT PRIMARY KEY,
		start_at TEXT NOT NULL,
		end_at TEXT,
		break_minutes INTEGER NOT NULL DEFAULT 0 CHECK (break_minutes >= 0),
		type_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS working_time_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		archived INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_working_periods_start
		ON working_periods(start_at);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		breadcrumbs TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS time_slots (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL REFERENCES working_periods(id) ON DELETE CASCADE,
		task_id TEXT NOT NULL REFERENCES tasks(id),
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		duration_minutes INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_time_slots_period
		ON time_slots(period_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Databases created before working-time types lack the column.
	_, err := s.db.Exec("ALTER TABLE working_periods ADD COLUMN type_id TEXT NOT NULL DEFAULT ''")
	if err != nil && !strings.Contains(err.Error(), "duplicate column name") {
		return err
	}
	return nil
}

// =============================================================================
// SLOT REPOSITORY
// =============================================================================

// FetchSlots returns all slots of a period ordered by start, then id.
func (s *Store) FetchSlots(ctx context.Context, periodID allocation.PeriodID) ([]allocation.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getPeriod(ctx, periodID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts.id, ts.period_id, ts.task_id, ts.start_at, ts.end_at, ts.duration_minutes,
			t.name, t.breadcrumbs
		FROM time_slots ts
		JOIN tasks t ON t.id = ts.task_id
		WHERE ts.period_id = ?
		ORDER BY ts.start_at, ts.id
	`, string(periodID))
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []allocation.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (s *Store) CreateSlot(ctx context.Context, periodID allocation.PeriodID, taskID allocation.TaskID, start, end time.Time) (allocation.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getPeriod(ctx, periodID); err != nil {
		return allocation.TimeSlot{}, err
	}
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return allocation.TimeSlot{}, err
	}

	slot := allocation.NewTimeSlot(periodID, taskID, start, end)
	slot.ID = allocation.SlotID(s.NewID())
	slot.TaskName = task.Name
	slot.TaskBreadcrumbs = task.Breadcrumbs

	if err := s.insertSlot(ctx, slot, nil); err != nil {
		return allocation.TimeSlot{}, err
	}
	return slot, nil
}

func (s *Store) UpdateSlot(ctx context.Context, slotID allocation.SlotID, start, end time.Time) (allocation.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE time_slots SET start_at = ?, end_at = ?, duration_minutes = NULL WHERE id = ?
	`, start.Format(time.RFC3339), end.Format(time.RFC3339), string(slotID))
	if err != nil {
		return allocation.TimeSlot{}, fmt.Errorf("update slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return allocation.TimeSlot{}, &allocation.NotFoundError{Kind: "slot", ID: string(slotID)}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT ts.id, ts.period_id, ts.task_id, ts.start_at, ts.end_at, ts.duration_minutes,
			t.name, t.breadcrumbs
		FROM time_slots ts
		JOIN tasks t ON t.id = ts.task_id
		WHERE ts.id = ?
	`, string(slotID))
	return scanSlot(row)
}

func (s *Store) DeleteSlot(ctx context.Context, slotID allocation.SlotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM time_slots WHERE id = ?", string(slotID))
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &allocation.NotFoundError{Kind: "slot", ID: string(slotID)}
	}
	return nil
}

// ListSlots returns the slots of all periods that start within [from, to],
// ordered by start.
func (s *Store) ListSlots(ctx context.Context, from, to time.Time) ([]allocation.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts.id, ts.period_id, ts.task_id, ts.start_at, ts.end_at, ts.duration_minutes,
			t.name, t.breadcrumbs
		FROM time_slots ts
		JOIN tasks t ON t.id = ts.task_id
		ORDER BY ts.start_at, ts.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []allocation.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		if slot.Start.Before(from) || slot.Start.After(to) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// =============================================================================
// PERIOD STORE
// =============================================================================

func (s *Store) GetWorkingPeriod(ctx context.Context, id allocation.PeriodID) (allocation.WorkingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPeriod(ctx, id)
}

// ListWorkingPeriods returns periods starting within [from, to], ordered by
// start.
func (s *Store) ListWorkingPeriods(ctx context.Context, from, to time.Time) ([]allocation.WorkingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_at, end_at, break_minutes, type_id FROM working_periods ORDER BY start_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query working periods: %w", err)
	}
	defer rows.Close()

	var out []allocation.WorkingPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		// Offsets may differ between rows, so the range test runs on parsed times.
		if p.Start.Before(from) || p.Start.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) getPeriod(ctx context.Context, id allocation.PeriodID) (allocation.WorkingPeriod, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, start_at, end_at, break_minutes, type_id FROM working_periods WHERE id = ?", string(id))
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return allocation.WorkingPeriod{}, &allocation.NotFoundError{Kind: "working_period", ID: string(id)}
	}
	return p, err
}

func (s *Store) CreateWorkingPeriod(ctx context.Context, p allocation.WorkingPeriod) (allocation.WorkingPeriod, error) {
	p.ID = allocation.PeriodID(s.NewID())
	if p.TypeID == "" {
		p.TypeID = s.DefaultTypeID
	}
	if err := s.SavePeriod(ctx, p); err != nil {
		return allocation.WorkingPeriod{}, err
	}
	return p, nil
}

func (s *Store) UpdateWorkingPeriod(ctx context.Context, p allocation.WorkingPeriod) (allocation.WorkingPeriod, error) {
	if _, err := s.GetWorkingPeriod(ctx, p.ID); err != nil {
		return allocation.WorkingPeriod{}, err
	}
	if err := s.SavePeriod(ctx, p); err != nil {
		return allocation.WorkingPeriod{}, err
	}
	return p, nil
}

// DeleteWorkingPeriod removes the period; its slots go with it.
func (s *Store) DeleteWorkingPeriod(ctx context.Context, id allocation.PeriodID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM working_periods WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("delete working period: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &allocation.NotFoundError{Kind: "working_period", ID: string(id)}
	}
	return nil
}

// ListWorkingTimeTypes returns all types in the order they were saved.
func (s *Store) ListWorkingTimeTypes(ctx context.Context) ([]allocation.WorkingTimeType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, category, archived FROM working_time_types ORDER BY position, id")
	if err != nil {
		return nil, fmt.Errorf("query working-time types: %w", err)
	}
	defer rows.Close()

	var out []allocation.WorkingTimeType
	for rows.Next() {
		var t allocation.WorkingTimeType
		if err := rows.Scan(&t.ID, &t.Name, &t.Category, &t.Archived); err != nil {
			return nil, fmt.Errorf("scan working-time type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// TASK CATALOG
// =============================================================================

func (s *Store) GetTask(ctx context.Context, id allocation.TaskID) (allocation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTask(ctx, id)
}

// SearchTasks matches name or breadcrumbs case-insensitively. Queries shorter
// than three characters return every task.
func (s *Store) SearchTasks(ctx context.Context, query string) ([]allocation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.TrimSpace(query)
	var (
		rows *sql.Rows
		err  error
	)
	if len([]rune(q)) < 3 {
		rows, err = s.db.QueryContext(ctx, "SELECT id, name, breadcrumbs FROM tasks ORDER BY name, id")
	} else {
		like := "%" + strings.ToLower(q) + "%"
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, name, breadcrumbs FROM tasks
			WHERE LOWER(name) LIKE ? OR LOWER(breadcrumbs) LIKE ?
			ORDER BY name, id
		`, like, like)
	}
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []allocation.Task
	for rows.Next() {
		var t allocation.Task
		var id string
		if err := rows.Scan(&id, &t.Name, &t.Breadcrumbs); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ID = allocation.TaskID(id)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) getTask(ctx context.Context, id allocation.TaskID) (allocation.Task, error) {
	t := allocation.Task{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT name, breadcrumbs FROM tasks WHERE id = ?", string(id)).
		Scan(&t.Name, &t.Breadcrumbs)
	if errors.Is(err, sql.ErrNoRows) {
		return allocation.Task{}, &allocation.NotFoundError{Kind: "task", ID: string(id)}
	}
	if err != nil {
		return allocation.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// =============================================================================
// SEEDING (scenarios, tests)
// =============================================================================

// Reset deletes all periods, tasks and slots.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM time_slots;
		DELETE FROM working_periods;
		DELETE FROM working_time_types;
		DELETE FROM tasks;
	`)
	return err
}

// SavePeriod inserts or replaces a working period.
func (s *Store) SavePeriod(ctx context.Context, p allocation.WorkingPeriod) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var end sql.NullString
	if p.End != nil {
		end = sql.NullString{String: p.End.Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO working_periods (id, start_at, end_at, break_minutes, type_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET start_at = excluded.start_at, end_at = excluded.end_at,
			break_minutes = excluded.break_minutes, type_id = excluded.type_id
	`, string(p.ID), p.Start.Format(time.RFC3339), end, p.BreakMinutes, p.TypeID)
	if err != nil {
		return fmt.Errorf("save working period: %w", err)
	}
	return nil
}

// SaveWorkingTimeType inserts or replaces a working-time type. Types are
// listed in the order they were first saved.
func (s *Store) SaveWorkingTimeType(ctx context.Context, t allocation.WorkingTimeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO working_time_types (id, name, category, archived, position)
		VALUES (?, ?, ?, ?, (SELECT COUNT(*) FROM working_time_types))
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, category = excluded.category,
			archived = excluded.archived
	`, t.ID, t.Name, t.Category, t.Archived)
	if err != nil {
		return fmt.Errorf("save working-time type: %w", err)
	}
	return nil
}

// SaveTask inserts or replaces a task.
func (s *Store) SaveTask(ctx context.Context, t allocation.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, breadcrumbs) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, breadcrumbs = excluded.breadcrumbs
	`, string(t.ID), t.Name, t.Breadcrumbs)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// SaveSlot stores a slot as-is, including a reported duration that differs
// from its span. A slot without an id gets one.
func (s *Store) SaveSlot(ctx context.Context, slot allocation.TimeSlot) (allocation.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == "" {
		slot.ID = allocation.SlotID(s.NewID())
	}
	var reported *int
	if slot.DurationMinutes != allocation.MinutesBetween(slot.Start, slot.End) {
		d := slot.DurationMinutes
		reported = &d
	}
	if err := s.insertSlot(ctx, slot, reported); err != nil {
		return allocation.TimeSlot{}, err
	}
	return slot, nil
}

func (s *Store) insertSlot(ctx context.Context, slot allocation.TimeSlot, reported *int) error {
	var duration sql.NullInt64
	if reported != nil {
		duration = sql.NullInt64{Int64: int64(*reported), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO time_slots (id, period_id, task_id, start_at, end_at, duration_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(slot.ID),
		string(slot.PeriodID),
		string(slot.TaskID),
		slot.Start.Format(time.RFC3339),
		slot.End.Format(time.RFC3339),
		duration,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row scanner) (allocation.WorkingPeriod, error) {
	var (
		id, start string
		end       sql.NullString
		p         allocation.WorkingPeriod
	)
	if err := row.Scan(&id, &start, &end, &p.BreakMinutes, &p.TypeID); err != nil {
		return allocation.WorkingPeriod{}, err
	}
	p.ID = allocation.PeriodID(id)
	var err error
	if p.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return allocation.WorkingPeriod{}, fmt.Errorf("parse start of %s: %w", id, err)
	}
	if end.Valid {
		t, err := time.Parse(time.RFC3339, end.String)
		if err != nil {
			return allocation.WorkingPeriod{}, fmt.Errorf("parse end of %s: %w", id, err)
		}
		p.End = &t
	}
	return p, nil
}

func scanSlot(row scanner) (allocation.TimeSlot, error) {
	var (
		id, periodID, taskID, start, end string
		duration                         sql.NullInt64
		slot                             allocation.TimeSlot
	)
	err := row.Scan(&id, &periodID, &taskID, &start, &end, &duration, &slot.TaskName, &slot.TaskBreadcrumbs)
	if errors.Is(err, sql.ErrNoRows) {
		return allocation.TimeSlot{}, &allocation.NotFoundError{Kind: "slot", ID: id}
	}
	if err != nil {
		return allocation.TimeSlot{}, fmt.Errorf("scan slot: %w", err)
	}

	startAt, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return allocation.TimeSlot{}, fmt.Errorf("parse start of slot %s: %w", id, err)
	}
	endAt, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return allocation.TimeSlot{}, fmt.Errorf("parse end of slot %s: %w", id, err)
	}

	name, crumbs := slot.TaskName, slot.TaskBreadcrumbs
	slot = allocation.NewTimeSlot(allocation.PeriodID(periodID), allocation.TaskID(taskID), startAt, endAt)
	slot.ID = allocation.SlotID(id)
	slot.TaskName, slot.TaskBreadcrumbs = name, crumbs
	if duration.Valid {
		slot.DurationMinutes = int(duration.Int64)
	}
	return slot, nil
}
