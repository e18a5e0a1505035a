/*
consolidate.go - Time slots to duration records (read path)

PURPOSE:
  Users don't care when they worked on a task, only how long. The
  Consolidator folds every slot of a working period into one DurationRecord
  per task.

RULES:
  1. Group by task id. Slots without a task id are ignored.
  2. Duration is the exact sum of each slot's DurationMinutes. Nothing is
     recomputed from the covered span, so overlapping slots are counted in
     full and never double-subtracted.
  3. Name and breadcrumbs come from the slot with the lowest id.
  4. Zero-duration slots are placeholders ("fully allocated, nothing left").
     They are dropped as soon as their task has real duration, and are
     reported separately otherwise.

REMOTE QUIRKS:
  The remote service sometimes holds several slots for one task in one
  period. They are absorbed into a single record here; the Reconciler
  removes the extras on the next write.

EXAMPLE:
  slots: T1 20m (id a), T1 25m (id b), T2 0m (id c)
  -> records: [T1 45m {a,b}]   placeholders: [c]
*/
package allocation

import (
	"log/slog"
	"sort"
)

// Consolidation is the output of one consolidation pass.
type Consolidation struct {
	Records []DurationRecord

	// Placeholders are zero-duration slots of tasks without real duration.
	Placeholders []TimeSlot

	// AbsorbedDuplicates counts slots beyond the first for a task.
	AbsorbedDuplicates int
}

// HasPlaceholder reports whether the period is marked as having nothing to
// allocate: it holds a placeholder and no positive record.
func (c Consolidation) HasPlaceholder() bool {
	return len(c.Placeholders) > 0 && len(c.Records) == 0
}

// Desired returns the records as a desired-state map for the Distributor.
func (c Consolidation) Desired() map[TaskID]Allocation {
	out := make(map[TaskID]Allocation, len(c.Records))
	for _, r := range c.Records {
		out[r.TaskID] = Allocation{
			Task:            Task{ID: r.TaskID, Name: r.TaskName, Breadcrumbs: r.TaskBreadcrumbs},
			DurationMinutes: r.DurationMinutes,
		}
	}
	return out
}

// Consolidator groups raw slots by task.
type Consolidator struct {
	Logger *slog.Logger
}

// Consolidate folds the slots of one working period into duration records.
// The input order does not matter; records come back sorted by task name,
// then task id.
func (c *Consolidator) Consolidate(periodID PeriodID, slots []TimeSlot) Consolidation {
	byTask := make(map[TaskID][]TimeSlot)
	for _, s := range slots {
		if s.TaskID == "" {
			c.logger().Warn("slot without task id ignored", "slot_id", s.ID, "period_id", periodID)
			continue
		}
		byTask[s.TaskID] = append(byTask[s.TaskID], s)
	}

	var result Consolidation
	for taskID, group := range byTask {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		if len(group) > 1 {
			result.AbsorbedDuplicates += len(group) - 1
		}

		counted := make([]TimeSlot, 0, len(group))
		for _, s := range group {
			if !s.IsPlaceholder() {
				counted = append(counted, s)
			}
		}
		if len(counted) == 0 {
			result.Placeholders = append(result.Placeholders, group[0])
			continue
		}

		record := DurationRecord{
			PeriodID:        periodID,
			TaskID:          taskID,
			TaskName:        counted[0].TaskName,
			TaskBreadcrumbs: counted[0].TaskBreadcrumbs,
		}
		for _, s := range counted {
			record.DurationMinutes += s.DurationMinutes
			record.SlotIDs = append(record.SlotIDs, s.ID)
		}

		// Malformed slots (end before start) can net out to nothing.
		if record.DurationMinutes <= 0 {
			c.logger().Warn("task has no positive duration, skipping",
				"task_id", taskID, "period_id", periodID, "minutes", record.DurationMinutes)
			continue
		}
		result.Records = append(result.Records, record)
	}

	SortRecords(result.Records)
	sort.Slice(result.Placeholders, func(i, j int) bool {
		return result.Placeholders[i].ID < result.Placeholders[j].ID
	})

	c.logger().Debug("consolidated slots",
		"period_id", periodID,
		"slots", len(slots),
		"records", len(result.Records),
		"placeholders", len(result.Placeholders),
		"absorbed_duplicates", result.AbsorbedDuplicates)

	return result
}

// SortRecords orders records by task name ascending, then task id.
func SortRecords(records []DurationRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].TaskName != records[j].TaskName {
			return records[i].TaskName < records[j].TaskName
		}
		return records[i].TaskID < records[j].TaskID
	})
}

func (c *Consolidator) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
