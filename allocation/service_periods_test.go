package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohrner-it/task-timr/allocation"
)

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

// =============================================================================
// CREATE / LIST / DELETE
// =============================================================================

func TestCreateWorkingPeriod(t *testing.T) {
	f := newFixture(t)
	f.backend.NextID = func() string { return "wp-2" }

	created, err := f.service.CreateWorkingPeriod(f.ctx, allocation.WorkingPeriod{
		ID:           "ignored",
		Start:        at(18, 0),
		End:          timePtr(at(20, 0)),
		BreakMinutes: 15,
		TypeID:       "wtt-remote",
	})

	require.NoError(t, err)
	assert.Equal(t, allocation.PeriodID("wp-2"), created.ID)
	assert.Equal(t, "wtt-remote", created.TypeID)

	stored, err := f.backend.GetWorkingPeriod(f.ctx, "wp-2")
	require.NoError(t, err)
	assert.Equal(t, 105, stored.NetDurationMinutes(at(23, 0)))
}

func TestCreateWorkingPeriod_TouchingIsAllowed(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateWorkingPeriod(f.ctx, allocation.WorkingPeriod{Start: at(17, 30), End: timePtr(at(19, 0))})

	assert.NoError(t, err)
}

func TestCreateWorkingPeriod_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		period  allocation.WorkingPeriod
		checkFn func(error) bool
	}{
		{"overlaps wp-1", allocation.WorkingPeriod{Start: at(17, 0), End: timePtr(at(19, 0))}, allocation.IsConflict},
		{"inside wp-1", allocation.WorkingPeriod{Start: at(10, 0), End: timePtr(at(11, 0))}, allocation.IsConflict},
		{"no end", allocation.WorkingPeriod{Start: at(18, 0)}, allocation.IsValidation},
		{"no start", allocation.WorkingPeriod{End: timePtr(at(19, 0))}, allocation.IsValidation},
		{"end before start", allocation.WorkingPeriod{Start: at(19, 0), End: timePtr(at(18, 0))}, allocation.IsValidation},
		{"break too long", allocation.WorkingPeriod{Start: at(18, 0), End: timePtr(at(19, 0)), BreakMinutes: 61}, allocation.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.service.CreateWorkingPeriod(f.ctx, tt.period)

			assert.True(t, tt.checkFn(err), "got %v", err)
			periods, listErr := f.backend.ListWorkingPeriods(f.ctx, day, day.AddDate(0, 0, 1))
			require.NoError(t, listErr)
			assert.Len(t, periods, 1)
		})
	}
}

func TestListWorkingPeriods_CutsOverlaps(t *testing.T) {
	f := newFixture(t)
	f.backend.AddPeriod(allocation.WorkingPeriod{ID: "wp-2", Start: at(17, 0), End: timePtr(at(19, 0))})

	periods, err := f.service.ListWorkingPeriods(f.ctx, day, day.AddDate(0, 0, 1))

	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, at(17, 0), *periods[0].End)
	assert.Equal(t, at(19, 0), *periods[1].End)

	stored, err := f.backend.GetWorkingPeriod(f.ctx, "wp-1")
	require.NoError(t, err)
	assert.Equal(t, at(17, 30), *stored.End, "stored periods stay untouched")
}

func TestDeleteWorkingPeriod(t *testing.T) {
	f := newFixture(t)
	f.set(t, "T1", 60)

	require.NoError(t, f.service.DeleteWorkingPeriod(f.ctx, "wp-1"))

	_, err := f.backend.GetWorkingPeriod(f.ctx, "wp-1")
	assert.True(t, allocation.IsNotFound(err))
	assert.Empty(t, f.backend.Slots("wp-1"))

	err = f.service.DeleteWorkingPeriod(f.ctx, "wp-1")
	assert.True(t, allocation.IsNotFound(err))
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdateWorkingPeriod_MovedStartRedistributes(t *testing.T) {
	// GIVEN: T1=60 and T2=30 laid out from 09:00
	// WHEN: The working time now starts at 10:00
	// THEN: Durations are kept and the slots are laid out from 10:00

	f := newFixture(t)
	f.set(t, "T1", 60)
	f.set(t, "T2", 30)

	res, err := f.service.UpdateWorkingPeriod(f.ctx, "wp-1", allocation.PeriodChange{Start: timePtr(at(10, 0))})

	require.NoError(t, err)
	assert.Equal(t, map[allocation.TaskID]int{"T1": 60, "T2": 30}, minutesByTask(res.Records))
	assert.Equal(t, 330, res.Status.RemainingMinutes)
	assert.Equal(t, at(10, 0), res.Period.Start)

	slots := f.backend.Slots("wp-1")
	require.Len(t, slots, 2)
	assert.Equal(t, allocation.TaskID("T2"), slots[0].TaskID)
	assert.Equal(t, at(10, 0), slots[0].Start)
	assert.Equal(t, allocation.TaskID("T1"), slots[1].TaskID)
	assert.Equal(t, at(10, 30), slots[1].Start)
	assert.Equal(t, at(11, 30), slots[1].End)
}

func TestUpdateWorkingPeriod_ShorterEndKeepsDurations(t *testing.T) {
	f := newFixture(t)
	f.set(t, "T1", 300)
	f.set(t, "T2", 120)

	res, err := f.service.UpdateWorkingPeriod(f.ctx, "wp-1", allocation.PeriodChange{End: timePtr(at(13, 0))})

	require.NoError(t, err)
	assert.Equal(t, map[allocation.TaskID]int{"T1": 300, "T2": 120}, minutesByTask(res.Records))
	assert.True(t, res.Status.IsOverAllocated)
	for _, s := range f.backend.Slots("wp-1") {
		assert.True(t, s.Start.Before(at(13, 0)), "slot %s starts at %s", s.ID, s.Start)
	}
}

func TestUpdateWorkingPeriod_MovedStartKeepsPlaceholder(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.MarkNothingToAllocate(f.ctx, f.period)
	require.NoError(t, err)

	res, err := f.service.UpdateWorkingPeriod(f.ctx, "wp-1", allocation.PeriodChange{Start: timePtr(at(8, 0))})

	require.NoError(t, err)
	assert.True(t, res.Placeholder)
	slots := f.backend.Slots("wp-1")
	require.Len(t, slots, 1)
	assert.Equal(t, at(8, 0), slots[0].Start)
}

func TestUpdateWorkingPeriod_BreakEditLeavesSlots(t *testing.T) {
	f := newFixture(t)
	f.set(t, "T1", 60)
	f.backend.ResetCalls()

	res, err := f.service.UpdateWorkingPeriod(f.ctx, "wp-1", allocation.PeriodChange{BreakMinutes: intPtr(60)})

	require.NoError(t, err)
	assert.Empty(t, f.backend.Calls())
	assert.Equal(t, 60, res.Period.BreakMinutes)
	assert.Equal(t, 390, res.Status.RemainingMinutes)
	assert.Equal(t, at(9, 0), f.backend.Slots("wp-1")[0].Start)
}

func TestUpdateWorkingPeriod_SameBoundsDoNotMove(t *testing.T) {
	f := newFixture(t)
	f.set(t, "T1", 60)
	f.backend.ResetCalls()

	_, err := f.service.UpdateWorkingPeriod(f.ctx, "wp-1", allocation.PeriodChange{
		Start:  timePtr(at(9, 0)),
		End:    timePtr(at(17, 30)),
		TypeID: strPtr("wtt-remote"),
	})

	require.NoError(t, err)
	assert.Empty(t, f.backend.Calls())
	stored, err := f.backend.GetWorkingPeriod(f.ctx, "wp-1")
	require.NoError(t, err)
	assert.Equal(t, "wtt-remote", stored.TypeID)
}

func TestUpdateWorkingPeriod_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		id      allocation.PeriodID
		change  allocation.PeriodChange
		checkFn func(error) bool
	}{
		{"empty change", "wp-1", allocation.PeriodChange{}, allocation.IsValidation},
		{"unknown period", "wp-404", allocation.PeriodChange{BreakMinutes: intPtr(10)}, allocation.IsNotFound},
		{"end before start", "wp-1", allocation.PeriodChange{End: timePtr(at(8, 0))}, allocation.IsValidation},
		{"negative break", "wp-1", allocation.PeriodChange{BreakMinutes: intPtr(-5)}, allocation.IsValidation},
		{"runs into wp-2", "wp-1", allocation.PeriodChange{End: timePtr(at(18, 30))}, allocation.IsConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.AddPeriod(allocation.WorkingPeriod{ID: "wp-2", Start: at(18, 0), End: timePtr(at(20, 0))})
			f.set(t, "T1", 60)
			f.backend.ResetCalls()

			_, err := f.service.UpdateWorkingPeriod(f.ctx, tt.id, tt.change)

			assert.True(t, tt.checkFn(err), "got %v", err)
			assert.Empty(t, f.backend.Calls())
			stored, getErr := f.backend.GetWorkingPeriod(f.ctx, "wp-1")
			require.NoError(t, getErr)
			assert.Equal(t, f.period, stored)
		})
	}
}

// =============================================================================
// RECENT TASKS AND TYPES
// =============================================================================

func TestRecentTasks(t *testing.T) {
	// GIVEN: Bookings today, last week, and 40 days ago, plus a placeholder
	// WHEN: Listing recent tasks
	// THEN: Only the last 30 days count, latest first, placeholder skipped

	f := newFixture(t)
	f.backend.PutSlot(slot("pt-1", "T1", at(9, 0), at(10, 0)))
	f.backend.PutSlot(slot("pt-2", "T2", at(9, 0).AddDate(0, 0, -7), at(10, 0).AddDate(0, 0, -7)))
	f.backend.PutSlot(slot("pt-3", "T3", at(9, 0).AddDate(0, 0, -40), at(10, 0).AddDate(0, 0, -40)))
	f.backend.PutSlot(slot("pt-4", "NONE", at(11, 0), at(11, 0)))
	f.backend.PutSlot(slot("pt-5", "T2", at(12, 0).AddDate(0, 0, -8), at(13, 0).AddDate(0, 0, -8)))

	tasks, err := f.service.RecentTasks(f.ctx)

	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, allocation.TaskID("T1"), tasks[0].ID)
	assert.Equal(t, "ACME > T1", tasks[0].Breadcrumbs)
	assert.Equal(t, allocation.TaskID("T2"), tasks[1].ID)
}

func TestWorkingTimeTypes(t *testing.T) {
	f := newFixture(t)
	f.backend.AddWorkingTimeType(allocation.WorkingTimeType{ID: "wtt-office", Name: "Office", Category: allocation.CategoryAttendance})
	f.backend.AddWorkingTimeType(allocation.WorkingTimeType{ID: "wtt-vacation", Name: "Vacation", Category: "leave"})
	f.backend.AddWorkingTimeType(allocation.WorkingTimeType{ID: "wtt-old", Name: "Old", Category: allocation.CategoryAttendance, Archived: true})

	attendance, other, err := f.service.WorkingTimeTypes(f.ctx)

	require.NoError(t, err)
	require.Len(t, attendance, 1)
	assert.Equal(t, "wtt-office", attendance[0].ID)
	require.Len(t, other, 1)
	assert.Equal(t, "wtt-vacation", other[0].ID)
}

func TestWorkingPeriodOperations_RequireStore(t *testing.T) {
	svc := allocation.NewService(allocation.ServiceConfig{})

	_, err := svc.CreateWorkingPeriod(context.Background(), allocation.WorkingPeriod{Start: at(9, 0), End: timePtr(at(10, 0))})
	assert.True(t, allocation.IsValidation(err))

	_, err = svc.RecentTasks(context.Background())
	assert.True(t, allocation.IsValidation(err))

	_, _, err = svc.WorkingTimeTypes(context.Background())
	assert.True(t, allocation.IsValidation(err))
}
