/*
Package allocation converts between the two time-tracking models of the
remote service.

PURPOSE:
  The remote service stores work as time slots: explicit start/end
  intervals per task. Users think in durations: "I spent 2h on T1 today".
  This package bridges the two.

KEY CONCEPTS IN THIS FILE (types.go):
  - TimeSlot: one persisted interval of task work (remote model)
  - DurationRecord: all slots of one task in one working period, as minutes
  - AllocationStatus: how much of the working period is allocated
  - Task: display metadata for a task

PIPELINES:
  Read:  SlotRepository.FetchSlots -> Consolidate -> CalculateStatus
  Write: desired durations -> Distribute -> Reconcile -> Executor -> re-read

DESIGN PRINCIPLES:
  1. Durations are derived, never stored. Records are recomputed on every read.
  2. The remote service is authoritative. No retries, no rollback.
  3. Pure steps (Consolidate, Distribute, Reconcile, CalculateStatus) do no I/O.

SEE ALSO:
  - consolidate.go: slots -> records
  - distribute.go: records -> slot layout
  - reconcile.go: layout diff -> operations
  - service.go: caller-facing operations
*/
package allocation

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	PeriodID string
	TaskID   string
	SlotID   string
)

// =============================================================================
// TIME SLOT - Remote model
// =============================================================================

// TimeSlot is one externally persisted interval of task work.
// ID is empty until the slot has been created remotely.
type TimeSlot struct {
	ID       SlotID
	PeriodID PeriodID
	TaskID   TaskID
	Start    time.Time
	End      time.Time

	// DurationMinutes is the slot's booked duration. The remote service may
	// report it separately from the span; when it doesn't, it equals End-Start.
	DurationMinutes int

	// Task metadata as reported alongside the slot.
	TaskName        string
	TaskBreadcrumbs string
}

// NewTimeSlot builds an unpersisted slot whose duration equals its span.
func NewTimeSlot(periodID PeriodID, taskID TaskID, start, end time.Time) TimeSlot {
	return TimeSlot{
		PeriodID:        periodID,
		TaskID:          taskID,
		Start:           start,
		End:             end,
		DurationMinutes: MinutesBetween(start, end),
	}
}

// IsPlaceholder reports whether the slot is a zero-duration marker meaning
// "fully allocated, nothing left".
func (s TimeSlot) IsPlaceholder() bool {
	return s.DurationMinutes == 0
}

// SamePlacement reports whether two slots occupy the same interval at the
// remote service's second precision.
func (s TimeSlot) SamePlacement(other TimeSlot) bool {
	return s.Start.Truncate(time.Second).Equal(other.Start.Truncate(time.Second)) &&
		s.End.Truncate(time.Second).Equal(other.End.Truncate(time.Second))
}

// =============================================================================
// DURATION RECORD - User-facing model
// =============================================================================

// DurationRecord aggregates every slot of one task within one working period.
// At most one record exists per (PeriodID, TaskID).
type DurationRecord struct {
	PeriodID        PeriodID
	TaskID          TaskID
	DurationMinutes int
	TaskName        string
	TaskBreadcrumbs string

	// SlotIDs lists the remote slots folded into this record, lowest first.
	SlotIDs []SlotID
}

// Task is display metadata for a bookable task.
type Task struct {
	ID          TaskID
	Name        string
	Breadcrumbs string
}

// =============================================================================
// ALLOCATION STATUS
// =============================================================================

// AllocationStatus summarizes how much of a period's net duration is covered.
type AllocationStatus struct {
	NetDurationMinutes    int
	TotalAllocatedMinutes int
	RemainingMinutes      int // negative when over-allocated
	IsFullyAllocated      bool
	IsOverAllocated       bool
}

// Result is what every Service operation returns.
type Result struct {
	Period  WorkingPeriod
	Records []DurationRecord
	Status  AllocationStatus

	// Placeholder is true when the period is marked as having nothing to
	// allocate and holds no positive allocation.
	Placeholder bool
}
