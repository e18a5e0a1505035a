/*
repository.go - Interfaces to the remote time-tracking service

PURPOSE:
  The engine owns no persistence. Everything it reads or writes goes through
  these interfaces, implemented by:
  - timr/repository.go: the real remote service
  - store/sqlite/sqlite.go: local stand-in for offline use and demos
  - allocation/store/memory.go: in-memory, for tests

CONTRACT:
  SlotRepository.DeleteSlot on an already-deleted slot must return a
  NotFoundError; the Executor treats it as success because the desired end
  state already holds.

  No implementation retries. Retries belong to the caller, after re-reading
  remote state.

SEE ALSO:
  - errors.go: error kinds implementations must return
  - apply.go: the only caller of the write methods
*/
package allocation

import (
	"context"
	"time"
)

// =============================================================================
// SLOT REPOSITORY - Remote time slots
// =============================================================================

// SlotRepository reads and writes the time slots of working periods.
type SlotRepository interface {
	// FetchSlots returns every slot of the working period, unordered.
	// NotFoundError if the period is absent, UpstreamError on transport failure.
	FetchSlots(ctx context.Context, periodID PeriodID) ([]TimeSlot, error)

	// CreateSlot persists a new slot and returns it with its assigned id.
	CreateSlot(ctx context.Context, periodID PeriodID, taskID TaskID, start, end time.Time) (TimeSlot, error)

	// UpdateSlot moves an existing slot.
	UpdateSlot(ctx context.Context, slotID SlotID, start, end time.Time) (TimeSlot, error)

	// DeleteSlot removes a slot.
	DeleteSlot(ctx context.Context, slotID SlotID) error
}

// SlotHistory lists slots across working periods.
type SlotHistory interface {
	// ListSlots returns the slots starting within [from, to]. PeriodID may
	// be empty when the backend cannot attribute a slot cheaply.
	ListSlots(ctx context.Context, from, to time.Time) ([]TimeSlot, error)
}

// =============================================================================
// PERIOD SOURCE - Working periods
// =============================================================================

// PeriodSource looks up working periods.
type PeriodSource interface {
	GetWorkingPeriod(ctx context.Context, id PeriodID) (WorkingPeriod, error)

	// ListWorkingPeriods returns periods starting within [from, to], by start.
	ListWorkingPeriods(ctx context.Context, from, to time.Time) ([]WorkingPeriod, error)
}

// PeriodWriter records the user's working periods. Callers validate first;
// implementations only enforce what their storage enforces.
type PeriodWriter interface {
	// CreateWorkingPeriod stores p and returns it with its assigned id. An
	// empty TypeID selects the backend's default type.
	CreateWorkingPeriod(ctx context.Context, p WorkingPeriod) (WorkingPeriod, error)

	// UpdateWorkingPeriod overwrites the period with p.ID. NotFoundError if
	// absent.
	UpdateWorkingPeriod(ctx context.Context, p WorkingPeriod) (WorkingPeriod, error)

	// DeleteWorkingPeriod removes a period. NotFoundError if absent.
	DeleteWorkingPeriod(ctx context.Context, id PeriodID) error
}

// PeriodStore reads and writes working periods.
type PeriodStore interface {
	PeriodSource
	PeriodWriter
}

// WorkingTimeTypeSource lists the working-time types of the account.
type WorkingTimeTypeSource interface {
	ListWorkingTimeTypes(ctx context.Context) ([]WorkingTimeType, error)
}

// =============================================================================
// TASK CATALOG - Task metadata (read-only)
// =============================================================================

// TaskCatalog resolves task ids to display metadata.
type TaskCatalog interface {
	GetTask(ctx context.Context, id TaskID) (Task, error)

	// SearchTasks returns bookable tasks matching query. Queries shorter than
	// three characters are not filtered.
	SearchTasks(ctx context.Context, query string) ([]Task, error)
}

// Backend bundles the interfaces. All implementations in this module
// provide all of them from one value.
type Backend interface {
	SlotRepository
	SlotHistory
	PeriodStore
	TaskCatalog
	WorkingTimeTypeSource
}
