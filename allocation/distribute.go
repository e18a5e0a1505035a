/*
distribute.go - Duration records to a concrete slot layout (write path)

PURPOSE:
  The remote service has no notion of "2h on T1, no particular time". Every
  duration needs a concrete interval, and the choice must be reproducible so
  that an unchanged allocation maps to an unchanged slot.

ALGORITHM:
  1. Sort desired allocations by task name descending, then task id
     descending. Map iteration order never leaks into the layout.
  2. Place slots back to back from the period start:
       slot[i].Start = cursor
       slot[i].End   = cursor + minutes[i]
       cursor        = slot[i].End
  3. No clipping at the period end. When the durations add up to more than
     the period holds, the tail extends past the end and keeps its full
     duration. A slot never starts later than one minute before the period
     end, so every slot still starts inside the period and is found again
     on the next read. Overshooting slots overlap each other.
  4. An empty desired set on a period marked "nothing to allocate" yields a
     single zero-duration placeholder slot.

EXAMPLE:
  start 09:00, desired {T1: 120, T2: 90}
  -> T2 [09:00-10:30], T1 [10:30-12:30]

  09:00-17:30, desired {T1: 60, T2: 600}
  -> T2 [09:00-19:00], T1 [17:29-18:29]
*/
package allocation

import (
	"log/slog"
	"sort"
	"time"
)

// Allocation is one desired entry: a task and its total minutes.
type Allocation struct {
	Task            Task
	DurationMinutes int
}

// Distributor computes the slot layout for a desired set of allocations.
type Distributor struct {
	// PlaceholderTaskID is the task that carries the zero-duration marker.
	PlaceholderTaskID TaskID

	Logger *slog.Logger
}

// Distribute returns the ordered slot layout for desired. Entries with a
// non-positive duration are skipped. When nothing remains and
// nothingToAllocate is set, the layout is one placeholder slot.
func (d *Distributor) Distribute(period WorkingPeriod, desired map[TaskID]Allocation, nothingToAllocate bool) []TimeSlot {
	ordered := make([]Allocation, 0, len(desired))
	for taskID, a := range desired {
		if a.DurationMinutes <= 0 {
			continue
		}
		a.Task.ID = taskID
		ordered = append(ordered, a)
	}
	sortForLayout(ordered)

	if len(ordered) == 0 {
		if nothingToAllocate && d.PlaceholderTaskID != "" {
			placeholder := NewTimeSlot(period.ID, d.PlaceholderTaskID, period.Start, period.Start)
			return []TimeSlot{placeholder}
		}
		return nil
	}

	slots := make([]TimeSlot, 0, len(ordered))
	cursor := period.Start
	for _, a := range ordered {
		start := latestStart(period, cursor)
		end := AddMinutes(start, a.DurationMinutes)
		slot := NewTimeSlot(period.ID, a.Task.ID, start, end)
		slot.TaskName = a.Task.Name
		slot.TaskBreadcrumbs = a.Task.Breadcrumbs
		slots = append(slots, slot)
		cursor = end
	}

	if period.End != nil && cursor.After(*period.End) {
		d.logger().Warn("layout extends beyond working period end",
			"period_id", period.ID,
			"layout_end", cursor,
			"period_end", *period.End,
			"overshoot_minutes", MinutesBetween(*period.End, cursor))
	}
	return slots
}

// latestStart clamps cursor to one minute before the period end. A slot
// starting exactly at the end does not belong to the period. Ongoing periods
// are not clamped.
func latestStart(period WorkingPeriod, cursor time.Time) time.Time {
	if period.End == nil {
		return cursor
	}
	limit := AddMinutes(*period.End, -1)
	if limit.Before(period.Start) {
		limit = period.Start
	}
	if cursor.After(limit) {
		return limit
	}
	return cursor
}

// sortForLayout orders allocations by task name descending, then task id
// descending.
func sortForLayout(allocs []Allocation) {
	sort.Slice(allocs, func(i, j int) bool {
		if allocs[i].Task.Name != allocs[j].Task.Name {
			return allocs[i].Task.Name > allocs[j].Task.Name
		}
		return allocs[i].Task.ID > allocs[j].Task.ID
	})
}

func (d *Distributor) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
