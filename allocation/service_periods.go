package allocation

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// WORKING PERIODS
// =============================================================================

// ListWorkingPeriods returns the periods starting within [from, to],
// sanitized so that no two of them overlap.
func (s *Service) ListWorkingPeriods(ctx context.Context, from, to time.Time) ([]WorkingPeriod, error) {
	store, err := s.periodStore()
	if err != nil {
		return nil, err
	}
	periods, err := store.ListWorkingPeriods(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return SanitizePeriods(periods, s.logger), nil
}

// CreateWorkingPeriod records a new closed period. p.ID is ignored. A
// period clashing with another one is rejected with a ConflictError.
func (s *Service) CreateWorkingPeriod(ctx context.Context, p WorkingPeriod) (WorkingPeriod, error) {
	store, err := s.periodStore()
	if err != nil {
		return WorkingPeriod{}, err
	}
	p.ID = ""
	if err := validateWritable(p, false); err != nil {
		return WorkingPeriod{}, err
	}
	if err := s.checkClashes(ctx, store, p); err != nil {
		return WorkingPeriod{}, err
	}

	created, err := store.CreateWorkingPeriod(ctx, p)
	if err != nil {
		return WorkingPeriod{}, fmt.Errorf("create working period: %w", err)
	}
	s.logger.Info("working period created", "period_id", created.ID, "start", created.Start, "end", created.End)
	return created, nil
}

// UpdateWorkingPeriod edits a period and returns its records afterwards.
//
// When the edit moves the start or the end, the period's allocation is laid
// out again inside the new boundaries: durations are kept, slots move. The
// slots are read before the period is written, so a backend that finds slots
// by time still sees the old ones.
func (s *Service) UpdateWorkingPeriod(ctx context.Context, id PeriodID, change PeriodChange) (*Result, error) {
	store, err := s.periodStore()
	if err != nil {
		return nil, err
	}
	if change.IsEmpty() {
		return nil, invalid("working_period", "nothing to change")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := store.GetWorkingPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := change.Apply(current)
	if err := validateWritable(updated, true); err != nil {
		return nil, err
	}
	if err := s.checkClashes(ctx, store, updated); err != nil {
		return nil, err
	}

	moved := change.MovesBoundaries(current)
	var snapshot []TimeSlot
	if moved {
		if snapshot, err = s.fetch(ctx, id); err != nil {
			return nil, err
		}
	}

	saved, err := store.UpdateWorkingPeriod(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("update working period %s: %w", id, err)
	}
	log := s.logger.With("period_id", id)
	log.Info("working period updated", "start", saved.Start, "end", saved.End, "moved", moved)

	if !moved {
		return s.read(ctx, saved)
	}
	return s.apply(ctx, saved, snapshot, func(c Consolidation) desiredState {
		return desiredState{allocations: c.Desired(), nothingToAllocate: c.HasPlaceholder()}
	})
}

// DeleteWorkingPeriod removes a period. Its slots are left to the backend.
func (s *Service) DeleteWorkingPeriod(ctx context.Context, id PeriodID) error {
	store, err := s.periodStore()
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := store.DeleteWorkingPeriod(ctx, id); err != nil {
		return err
	}
	s.logger.Info("working period deleted", "period_id", id)
	return nil
}

// checkClashes rejects p when it clashes with another period of the user.
// The search window starts a day early to catch periods running over
// midnight.
func (s *Service) checkClashes(ctx context.Context, store PeriodSource, p WorkingPeriod) error {
	now := s.now()
	others, err := store.ListWorkingPeriods(ctx, p.Start.AddDate(0, 0, -1), p.EndOr(now))
	if err != nil {
		return fmt.Errorf("list working periods: %w", err)
	}
	if other, ok := firstClash(p, others, now); ok {
		return &ConflictError{Message: fmt.Sprintf("working time would overlap with working time %s", other.ID)}
	}
	return nil
}

func (s *Service) periodStore() (PeriodStore, error) {
	if s.periods == nil {
		return nil, invalid("working_period", "no working period store configured")
	}
	return s.periods, nil
}

// =============================================================================
// RECENT TASKS AND TYPES
// =============================================================================

// RecentTasks returns the tasks booked recently, the latest first. The
// placeholder task is never listed.
func (s *Service) RecentTasks(ctx context.Context) ([]Task, error) {
	if s.history == nil {
		return nil, invalid("recent_tasks", "no slot history configured")
	}
	now := s.now()
	slots, err := s.history.ListSlots(ctx, now.AddDate(0, 0, -s.recentDays), now)
	if err != nil {
		return nil, fmt.Errorf("list recent slots: %w", err)
	}
	return RecentTasks(slots, s.placeholderTaskID, s.recentLimit), nil
}

// WorkingTimeTypes returns the account's types split into attendance types,
// which users may book, and the rest.
func (s *Service) WorkingTimeTypes(ctx context.Context) (attendance, other []WorkingTimeType, err error) {
	if s.types == nil {
		return nil, nil, invalid("working_time_types", "no working-time type source configured")
	}
	types, err := s.types.ListWorkingTimeTypes(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list working-time types: %w", err)
	}
	attendance, other = SplitWorkingTimeTypes(types)
	return attendance, other, nil
}
