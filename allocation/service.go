/*
service.go - Caller-facing operations

PURPOSE:
  Wires the pure steps to the repositories. Every write is a full
  convergence pass:

    lock(period) -> fetch slots -> consolidate -> change desired set
      -> distribute -> reconcile -> execute -> re-read -> unlock

OPERATIONS:
  GetDurationRecords     read path; concurrent reads of one period share a fetch
  ApplyDurationChange    set one task's minutes, or remove it (nil)
  AddDuration            add minutes to one task
  ReplaceDurations       replace the whole desired set
  MarkNothingToAllocate  mark an empty period as fully allocated

  Working-period edits, recent tasks and working-time types live in
  service_periods.go.

CONCURRENCY:
  Writers are serialized per working period with PeriodLocks. The diff is
  computed against a snapshot; the lock keeps that snapshot current for the
  duration of one pass within this process. Writers in other processes are
  not coordinated; the remote service stays the arbiter.

VALIDATION:
  Input errors (non-positive minutes, missing placeholder task) are returned
  before any remote call. Unknown tasks are found by catalog lookups made
  before the period's slots are fetched, so nothing is written either.
*/
package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	Slots SlotRepository
	Tasks TaskCatalog

	// PlaceholderTaskID carries the "nothing to allocate" marker slot.
	// Empty disables MarkNothingToAllocate.
	PlaceholderTaskID TaskID

	// Periods, History and Types back the working-time operations. Each
	// may be nil; the operations needing it then fail with a
	// ValidationError.
	Periods PeriodStore
	History SlotHistory
	Types   WorkingTimeTypeSource

	// RecentTaskDays and RecentTaskLimit shape RecentTasks. Default 30 days
	// and DefaultRecentTaskLimit.
	RecentTaskDays  int
	RecentTaskLimit int

	// Now measures ongoing periods. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Service exposes duration records over a SlotRepository.
type Service struct {
	slots             SlotRepository
	tasks             TaskCatalog
	periods           PeriodStore
	history           SlotHistory
	types             WorkingTimeTypeSource
	placeholderTaskID TaskID
	recentDays        int
	recentLimit       int
	now               func() time.Time
	logger            *slog.Logger

	locks *PeriodLocks
	reads singleflight.Group
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RecentTaskDays <= 0 {
		cfg.RecentTaskDays = 30
	}
	if cfg.RecentTaskLimit <= 0 {
		cfg.RecentTaskLimit = DefaultRecentTaskLimit
	}
	return &Service{
		slots:             cfg.Slots,
		tasks:             cfg.Tasks,
		periods:           cfg.Periods,
		history:           cfg.History,
		types:             cfg.Types,
		placeholderTaskID: cfg.PlaceholderTaskID,
		recentDays:        cfg.RecentTaskDays,
		recentLimit:       cfg.RecentTaskLimit,
		now:               cfg.Now,
		logger:            cfg.Logger,
		locks:             NewPeriodLocks(),
	}
}

// =============================================================================
// READ PATH
// =============================================================================

// GetDurationRecords returns the period's records and allocation status.
func (s *Service) GetDurationRecords(ctx context.Context, period WorkingPeriod) (*Result, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	end := int64(0)
	if period.End != nil {
		end = period.End.Unix()
	}
	key := fmt.Sprintf("%s|%d|%d|%d|%s", period.ID, period.Start.Unix(), end, period.BreakMinutes, period.TypeID)
	// The shared fetch outlives any one caller; each caller waits on its own
	// context.
	ch := s.reads.DoChan(key, func() (any, error) {
		return s.read(context.WithoutCancel(ctx), period)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result).clone(), nil
	}
}

func (s *Service) read(ctx context.Context, period WorkingPeriod) (*Result, error) {
	slots, err := s.fetch(ctx, period.ID)
	if err != nil {
		return nil, err
	}
	return s.result(period, s.consolidator().Consolidate(period.ID, slots)), nil
}

func (s *Service) result(period WorkingPeriod, cons Consolidation) *Result {
	return &Result{
		Period:      period,
		Records:     cons.Records,
		Status:      CalculateStatus(period.NetDurationMinutes(s.now()), cons.Records),
		Placeholder: cons.HasPlaceholder(),
	}
}

// =============================================================================
// WRITE PATH
// =============================================================================

// ApplyDurationChange sets taskID to minutes, or removes the task's
// allocation when minutes is nil. Removing a task that has no allocation is
// a no-op.
func (s *Service) ApplyDurationChange(ctx context.Context, period WorkingPeriod, taskID TaskID, minutes *int) (*Result, error) {
	if taskID == "" {
		return nil, invalid("task_id", "must not be empty")
	}
	if minutes != nil && *minutes <= 0 {
		return nil, invalid("duration_minutes", "must be > 0, got %d (use removal instead)", *minutes)
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	if minutes == nil {
		return s.converge(ctx, period, func(current Consolidation) desiredState {
			desired := current.Desired()
			delete(desired, taskID)
			return desiredState{allocations: desired, nothingToAllocate: current.HasPlaceholder()}
		})
	}

	tasks, err := s.resolveTasks(ctx, []TaskID{taskID})
	if err != nil {
		return nil, err
	}
	return s.converge(ctx, period, func(current Consolidation) desiredState {
		desired := current.Desired()
		alloc := allocationFor(desired, tasks[taskID])
		alloc.DurationMinutes = *minutes
		desired[taskID] = alloc
		return desiredState{allocations: desired}
	})
}

// AddDuration adds minutes to taskID's current allocation, creating it if
// the task has none yet.
func (s *Service) AddDuration(ctx context.Context, period WorkingPeriod, taskID TaskID, minutes int) (*Result, error) {
	if taskID == "" {
		return nil, invalid("task_id", "must not be empty")
	}
	if minutes <= 0 {
		return nil, invalid("duration_minutes", "must be > 0, got %d", minutes)
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	tasks, err := s.resolveTasks(ctx, []TaskID{taskID})
	if err != nil {
		return nil, err
	}
	return s.converge(ctx, period, func(current Consolidation) desiredState {
		desired := current.Desired()
		alloc := allocationFor(desired, tasks[taskID])
		alloc.DurationMinutes += minutes
		desired[taskID] = alloc
		return desiredState{allocations: desired}
	})
}

// ReplaceDurations makes durations the complete desired set of the period.
// Tasks not named are removed. Over-allocation is allowed.
func (s *Service) ReplaceDurations(ctx context.Context, period WorkingPeriod, durations map[TaskID]int) (*Result, error) {
	ids := make([]TaskID, 0, len(durations))
	for taskID, m := range durations {
		if taskID == "" {
			return nil, invalid("task_id", "must not be empty")
		}
		if m <= 0 {
			return nil, invalid("duration_minutes", "task %s: must be > 0, got %d", taskID, m)
		}
		ids = append(ids, taskID)
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	tasks, err := s.resolveTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.converge(ctx, period, func(current Consolidation) desiredState {
		existing := current.Desired()
		desired := make(map[TaskID]Allocation, len(durations))
		for taskID, m := range durations {
			alloc := allocationFor(existing, tasks[taskID])
			alloc.DurationMinutes = m
			desired[taskID] = alloc
		}
		return desiredState{
			allocations:       desired,
			nothingToAllocate: len(desired) == 0 && current.HasPlaceholder(),
		}
	})
}

// MarkNothingToAllocate records that the period is fully allocated with
// nothing to book, using a zero-duration placeholder slot. The period must
// not hold any allocation.
func (s *Service) MarkNothingToAllocate(ctx context.Context, period WorkingPeriod) (*Result, error) {
	if s.placeholderTaskID == "" {
		return nil, invalid("placeholder_task_id", "no placeholder task configured")
	}

	if err := period.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(period.ID)
	defer unlock()

	current, err := s.fetch(ctx, period.ID)
	if err != nil {
		return nil, err
	}
	if records := s.consolidator().Consolidate(period.ID, current).Records; len(records) > 0 {
		return nil, invalid("working_period", "%s still has %d allocated task(s)", period.ID, len(records))
	}
	return s.apply(ctx, period, current, func(Consolidation) desiredState {
		return desiredState{nothingToAllocate: true}
	})
}

// desiredState is what a write operation wants the period to look like.
type desiredState struct {
	allocations       map[TaskID]Allocation
	nothingToAllocate bool
}

// mutation derives the desired state from the current one. Input that can
// be rejected is checked before the period is locked.
type mutation func(current Consolidation) desiredState

// converge runs one locked pass over the period.
func (s *Service) converge(ctx context.Context, period WorkingPeriod, mutate mutation) (*Result, error) {
	unlock := s.locks.Lock(period.ID)
	defer unlock()

	current, err := s.fetch(ctx, period.ID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, period, current, mutate)
}

// apply lays the desired state out on period and writes the difference to
// current. The caller holds the period lock. current may have been fetched
// before the period's boundaries changed.
func (s *Service) apply(ctx context.Context, period WorkingPeriod, current []TimeSlot, mutate mutation) (*Result, error) {
	log := s.logger.With("period_id", period.ID)

	consolidated := s.consolidator().Consolidate(period.ID, current)
	want := mutate(consolidated)

	distributor := &Distributor{PlaceholderTaskID: s.placeholderFor(consolidated), Logger: s.logger}
	layout := distributor.Distribute(period, want.allocations, want.nothingToAllocate)

	reconciler := &Reconciler{}
	plan := reconciler.Reconcile(layout, current)
	if plan.IsEmpty() {
		log.Debug("period already converged", "unchanged", len(plan.Unchanged))
		return s.result(period, consolidated), nil
	}

	executor := &Executor{Slots: s.slots, Logger: s.logger}
	if _, err := executor.Execute(ctx, period.ID, plan); err != nil {
		return nil, err
	}

	return s.read(ctx, period)
}

func (s *Service) fetch(ctx context.Context, id PeriodID) ([]TimeSlot, error) {
	slots, err := s.slots.FetchSlots(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch slots of %s: %w", id, err)
	}
	return slots, nil
}

// resolveTasks looks every task up in the catalog, concurrently. An unknown
// task is a ValidationError.
func (s *Service) resolveTasks(ctx context.Context, ids []TaskID) (map[TaskID]Task, error) {
	tasks := make([]Task, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(taskLookupConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			task, err := s.tasks.GetTask(gctx, id)
			if IsNotFound(err) {
				return invalid("task_id", "unknown task %s", id)
			}
			if err != nil {
				return fmt.Errorf("look up task %s: %w", id, err)
			}
			task.ID = id
			tasks[i] = task
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[TaskID]Task, len(ids))
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out, nil
}

const taskLookupConcurrency = 4

// allocationFor returns the current allocation for task, or a zero-minute
// allocation with catalog metadata for a task not yet allocated.
func allocationFor(current map[TaskID]Allocation, task Task) Allocation {
	if alloc, ok := current[task.ID]; ok {
		return alloc
	}
	return Allocation{Task: task}
}

// placeholderFor keeps an existing marker on its task so preserving it does
// not rewrite it.
func (s *Service) placeholderFor(c Consolidation) TaskID {
	if len(c.Placeholders) > 0 {
		return c.Placeholders[0].TaskID
	}
	return s.placeholderTaskID
}

func (s *Service) consolidator() *Consolidator {
	return &Consolidator{Logger: s.logger}
}

func (r *Result) clone() *Result {
	out := *r
	out.Records = make([]DurationRecord, len(r.Records))
	for i, rec := range r.Records {
		rec.SlotIDs = append([]SlotID(nil), rec.SlotIDs...)
		out.Records[i] = rec
	}
	return &out
}
