package allocation_test

import (
	"time"

	"github.com/ohrner-it/task-timr/allocation"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

var day = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// period9to17 is 09:00-17:30 with a 30 minute break: net 480 minutes.
func period9to17() allocation.WorkingPeriod {
	end := at(17, 30)
	return allocation.WorkingPeriod{ID: "wp-1", Start: at(9, 0), End: &end, BreakMinutes: 30}
}

func slot(id, task string, start, end time.Time) allocation.TimeSlot {
	s := allocation.NewTimeSlot("wp-1", allocation.TaskID(task), start, end)
	s.ID = allocation.SlotID(id)
	s.TaskName = task
	return s
}

func alloc(task string, minutes int) allocation.Allocation {
	return allocation.Allocation{
		Task:            allocation.Task{ID: allocation.TaskID(task), Name: task},
		DurationMinutes: minutes,
	}
}

func desired(allocs ...allocation.Allocation) map[allocation.TaskID]allocation.Allocation {
	out := make(map[allocation.TaskID]allocation.Allocation, len(allocs))
	for _, a := range allocs {
		out[a.Task.ID] = a
	}
	return out
}

func minutesByTask(records []allocation.DurationRecord) map[allocation.TaskID]int {
	out := make(map[allocation.TaskID]int, len(records))
	for _, r := range records {
		out[r.TaskID] = r.DurationMinutes
	}
	return out
}

func intPtr(n int) *int { return &n }
