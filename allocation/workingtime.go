/*
workingtime.go - Editing working periods and the data around them

PURPOSE:
  Working periods are recorded by the user, not by the engine, but the user
  edits them through the same front end. This file holds the pure parts of
  that: edit requests, the rules an edited period must satisfy, repairing
  overlapping periods on read, the recent-task list and working-time types.

RULES FOR A WRITTEN PERIOD:
  - start and end are both set, end strictly after start; an edit may keep
    a running period open
  - break minutes within 0..(end - start)
  - it does not clash with another period of the user; touching is fine

BOUNDARY EDITS:
  When an edit moves the start or the end, the period's allocation is laid
  out again inside the new boundaries (see Service.UpdateWorkingPeriod).
  Break and type edits leave the slots alone.
*/
package allocation

import (
	"log/slog"
	"sort"
	"time"
)

// =============================================================================
// EDITS
// =============================================================================

// PeriodChange is a partial edit of a working period. Nil fields keep the
// current value.
type PeriodChange struct {
	Start        *time.Time
	End          *time.Time
	BreakMinutes *int
	TypeID       *string
}

// IsEmpty returns true if the change sets nothing.
func (c PeriodChange) IsEmpty() bool {
	return c.Start == nil && c.End == nil && c.BreakMinutes == nil && c.TypeID == nil
}

// Apply returns p with the change applied.
func (c PeriodChange) Apply(p WorkingPeriod) WorkingPeriod {
	if c.Start != nil {
		p.Start = *c.Start
	}
	if c.End != nil {
		end := *c.End
		p.End = &end
	}
	if c.BreakMinutes != nil {
		p.BreakMinutes = *c.BreakMinutes
	}
	if c.TypeID != nil {
		p.TypeID = *c.TypeID
	}
	return p
}

// MovesBoundaries reports whether applying the change to p moves its start
// or end.
func (c PeriodChange) MovesBoundaries(p WorkingPeriod) bool {
	if c.Start != nil && !c.Start.Equal(p.Start) {
		return true
	}
	if c.End != nil && (p.End == nil || !c.End.Equal(*p.End)) {
		return true
	}
	return false
}

// validateWritable checks the rules a created or edited period must satisfy
// on its own. An edit may leave a running period ongoing.
func validateWritable(p WorkingPeriod, allowOngoing bool) error {
	if p.Start.IsZero() {
		return invalid("start", "must be set")
	}
	if p.End == nil {
		if !allowOngoing {
			return invalid("end", "must be set")
		}
		if p.BreakMinutes < 0 {
			return invalid("break_minutes", "must be >= 0, got %d", p.BreakMinutes)
		}
		return nil
	}
	if !p.End.After(p.Start) {
		return invalid("end", "must be after start")
	}
	if p.BreakMinutes < 0 {
		return invalid("break_minutes", "must be >= 0, got %d", p.BreakMinutes)
	}
	if gross := MinutesBetween(p.Start, *p.End); p.BreakMinutes > gross {
		return invalid("break_minutes", "%d exceeds the %d minutes of the working time", p.BreakMinutes, gross)
	}
	return nil
}

// firstClash returns the first of others that clashes with p, skipping p
// itself.
func firstClash(p WorkingPeriod, others []WorkingPeriod, now time.Time) (WorkingPeriod, bool) {
	for _, o := range others {
		if o.ID == p.ID && p.ID != "" {
			continue
		}
		if p.Clashes(o, now) {
			return o, true
		}
	}
	return WorkingPeriod{}, false
}

// =============================================================================
// SANITIZING
// =============================================================================

// SanitizePeriods orders periods by start and cuts each closed period that
// runs into its successor back to the successor's start. The input is not
// modified.
//
// Example:
//
//	A 09:00-12:30, B 12:00-17:00  ->  A 09:00-12:00, B 12:00-17:00
func SanitizePeriods(periods []WorkingPeriod, logger *slog.Logger) []WorkingPeriod {
	if logger == nil {
		logger = slog.Default()
	}
	out := append([]WorkingPeriod(nil), periods...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	for i := 1; i < len(out); i++ {
		prev, curr := &out[i-1], out[i]
		if prev.End == nil || !curr.Start.Before(*prev.End) {
			continue
		}
		logger.Warn("overlapping working periods",
			"period_id", prev.ID,
			"next_period_id", curr.ID,
			"end", *prev.End,
			"adjusted_end", curr.Start)
		end := curr.Start
		prev.End = &end
	}
	return out
}

// =============================================================================
// RECENT TASKS
// =============================================================================

// DefaultRecentTaskLimit caps the recent task list.
const DefaultRecentTaskLimit = 10

// RecentTasks returns the distinct tasks of slots, the most recently started
// first. Zero-duration marker slots and the exclude task are skipped. limit
// <= 0 means no limit.
func RecentTasks(slots []TimeSlot, exclude TaskID, limit int) []Task {
	ordered := append([]TimeSlot(nil), slots...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start.After(ordered[j].Start) })

	seen := make(map[TaskID]bool)
	var out []Task
	for _, s := range ordered {
		if s.TaskID == "" || s.TaskID == exclude || s.IsPlaceholder() || seen[s.TaskID] {
			continue
		}
		seen[s.TaskID] = true
		out = append(out, Task{ID: s.TaskID, Name: s.TaskName, Breadcrumbs: s.TaskBreadcrumbs})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// =============================================================================
// WORKING-TIME TYPES
// =============================================================================

// CategoryAttendance is the type category users may book themselves.
const CategoryAttendance = "attendance_time"

// WorkingTimeType classifies a working period, e.g. office or remote work.
type WorkingTimeType struct {
	ID       string
	Name     string
	Category string
	Archived bool
}

// SplitWorkingTimeTypes separates editable attendance types from the rest.
// Archived types are dropped. Both lists keep the input order.
func SplitWorkingTimeTypes(types []WorkingTimeType) (attendance, other []WorkingTimeType) {
	for _, t := range types {
		switch {
		case t.Archived:
		case t.Category == CategoryAttendance:
			attendance = append(attendance, t)
		default:
			other = append(other, t)
		}
	}
	return attendance, other
}
