package allocation_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohrner-it/task-timr/allocation"
)

func TestSanitizePeriods(t *testing.T) {
	// GIVEN: B (12:00-17:00) listed before A (09:00-12:30), and an ongoing C
	// WHEN: Sanitizing
	// THEN: Periods are ordered and A is cut back to B's start

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	b := allocation.WorkingPeriod{ID: "B", Start: at(12, 0), End: timePtr(at(17, 0))}
	a := allocation.WorkingPeriod{ID: "A", Start: at(9, 0), End: timePtr(at(12, 30))}
	c := allocation.WorkingPeriod{ID: "C", Start: at(18, 0)}
	in := []allocation.WorkingPeriod{b, c, a}

	out := allocation.SanitizePeriods(in, logger)

	require.Len(t, out, 3)
	assert.Equal(t, allocation.PeriodID("A"), out[0].ID)
	assert.Equal(t, at(12, 0), *out[0].End)
	assert.Equal(t, at(17, 0), *out[1].End)
	assert.Nil(t, out[2].End)
	assert.Contains(t, logs.String(), "overlapping working periods")

	assert.Equal(t, at(12, 30), *in[2].End, "input is not modified")
}

func TestSanitizePeriods_TouchingUntouched(t *testing.T) {
	var logs bytes.Buffer
	in := []allocation.WorkingPeriod{
		{ID: "A", Start: at(9, 0), End: timePtr(at(12, 0))},
		{ID: "B", Start: at(12, 0), End: timePtr(at(17, 0))},
	}

	out := allocation.SanitizePeriods(in, slog.New(slog.NewTextHandler(&logs, nil)))

	assert.Equal(t, in, out)
	assert.Empty(t, logs.String())
}

func TestRecentTasks_DistinctLatestFirstWithLimit(t *testing.T) {
	slots := []allocation.TimeSlot{
		slot("pt-1", "T1", at(8, 0), at(9, 0)),
		slot("pt-2", "T2", at(10, 0), at(11, 0)),
		slot("pt-3", "T1", at(12, 0), at(13, 0)),
		slot("pt-4", "T3", at(9, 0), at(10, 0)),
		slot("pt-5", "NONE", at(14, 0), at(14, 0)),
		slot("pt-6", "T4", at(7, 0), at(7, 0)),
	}

	tasks := allocation.RecentTasks(slots, "NONE", 2)

	require.Len(t, tasks, 2)
	assert.Equal(t, allocation.TaskID("T1"), tasks[0].ID)
	assert.Equal(t, allocation.TaskID("T2"), tasks[1].ID)

	all := allocation.RecentTasks(slots, "NONE", 0)
	assert.Len(t, all, 3, "zero-duration markers are never recent tasks")
}

func TestPeriodChange(t *testing.T) {
	p := period9to17()

	tests := []struct {
		name   string
		change allocation.PeriodChange
		moves  bool
	}{
		{"break only", allocation.PeriodChange{BreakMinutes: intPtr(45)}, false},
		{"type only", allocation.PeriodChange{TypeID: strPtr("wtt-remote")}, false},
		{"same start", allocation.PeriodChange{Start: timePtr(at(9, 0))}, false},
		{"new start", allocation.PeriodChange{Start: timePtr(at(8, 0))}, true},
		{"new end", allocation.PeriodChange{End: timePtr(at(18, 0))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.change.IsEmpty())
			assert.Equal(t, tt.moves, tt.change.MovesBoundaries(p))
		})
	}

	ongoing := allocation.WorkingPeriod{ID: "wp-2", Start: at(9, 0)}
	closing := allocation.PeriodChange{End: timePtr(at(12, 0))}
	assert.True(t, closing.MovesBoundaries(ongoing), "closing a running period moves its end")

	applied := closing.Apply(ongoing)
	assert.Equal(t, at(12, 0), *applied.End)
	assert.Nil(t, ongoing.End)
	assert.True(t, allocation.PeriodChange{}.IsEmpty())
}

func TestSplitWorkingTimeTypes(t *testing.T) {
	types := []allocation.WorkingTimeType{
		{ID: "a", Category: allocation.CategoryAttendance},
		{ID: "b", Category: "leave"},
		{ID: "c", Category: allocation.CategoryAttendance, Archived: true},
		{ID: "d", Category: allocation.CategoryAttendance},
	}

	attendance, other := allocation.SplitWorkingTimeTypes(types)

	assert.Equal(t, []string{"a", "d"}, typeIDs(attendance))
	assert.Equal(t, []string{"b"}, typeIDs(other))
}

func typeIDs(types []allocation.WorkingTimeType) []string {
	ids := make([]string, 0, len(types))
	for _, t := range types {
		ids = append(ids, t.ID)
	}
	return ids
}
