package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohrner-it/task-timr/allocation"
	"github.com/ohrner-it/task-timr/store/sqlite"
)

var (
	day = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	ctx = context.Background()
)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n := 0
	s.NewID = func() string {
		n++
		return fmt.Sprintf("slot-%02d", n)
	}

	end := at(17, 30)
	require.NoError(t, s.SavePeriod(ctx, allocation.WorkingPeriod{ID: "wp-1", Start: at(9, 0), End: &end, BreakMinutes: 30}))
	require.NoError(t, s.SaveTask(ctx, allocation.Task{ID: "T1", Name: "Backend", Breadcrumbs: "ACME > Platform"}))
	require.NoError(t, s.SaveTask(ctx, allocation.Task{ID: "T2", Name: "Frontend", Breadcrumbs: "ACME > Web"}))
	return s
}

func TestStore_CreateFetchUpdateDelete(t *testing.T) {
	s := newStore(t)

	created, err := s.CreateSlot(ctx, "wp-1", "T1", at(9, 0), at(10, 30))
	require.NoError(t, err)
	assert.Equal(t, allocation.SlotID("slot-01"), created.ID)
	assert.Equal(t, 90, created.DurationMinutes)
	assert.Equal(t, "Backend", created.TaskName)

	updated, err := s.UpdateSlot(ctx, created.ID, at(10, 0), at(10, 45))
	require.NoError(t, err)
	assert.Equal(t, 45, updated.DurationMinutes)
	assert.Equal(t, "ACME > Platform", updated.TaskBreadcrumbs)

	slots, err := s.FetchSlots(ctx, "wp-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Start.Equal(at(10, 0)))
	assert.Equal(t, allocation.PeriodID("wp-1"), slots[0].PeriodID)

	require.NoError(t, s.DeleteSlot(ctx, created.ID))
	assert.True(t, allocation.IsNotFound(s.DeleteSlot(ctx, created.ID)))

	slots, err = s.FetchSlots(ctx, "wp-1")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestStore_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.FetchSlots(ctx, "missing")
	assert.True(t, allocation.IsNotFound(err))

	_, err = s.CreateSlot(ctx, "wp-1", "T404", at(9, 0), at(10, 0))
	var nf *allocation.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "task", nf.Kind)

	_, err = s.UpdateSlot(ctx, "nope", at(9, 0), at(10, 0))
	assert.True(t, allocation.IsNotFound(err))

	_, err = s.GetTask(ctx, "T404")
	assert.True(t, allocation.IsNotFound(err))

	_, err = s.GetWorkingPeriod(ctx, "missing")
	assert.True(t, allocation.IsNotFound(err))
}

func TestStore_SaveSlotKeepsReportedDuration(t *testing.T) {
	// GIVEN: A seeded slot whose reported duration differs from its span
	// WHEN: Fetching
	// THEN: The reported duration is returned; an update resets it

	s := newStore(t)
	seeded := allocation.NewTimeSlot("wp-1", "T1", at(9, 0), at(10, 0))
	seeded.DurationMinutes = 50

	saved, err := s.SaveSlot(ctx, seeded)
	require.NoError(t, err)

	slots, err := s.FetchSlots(ctx, "wp-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 50, slots[0].DurationMinutes)

	updated, err := s.UpdateSlot(ctx, saved.ID, at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, 60, updated.DurationMinutes)
}

func TestStore_OngoingPeriod(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SavePeriod(ctx, allocation.WorkingPeriod{ID: "wp-live", Start: at(18, 0)}))

	p, err := s.GetWorkingPeriod(ctx, "wp-live")

	require.NoError(t, err)
	assert.Nil(t, p.End)
	assert.True(t, p.IsOngoing())
}

func TestStore_ListWorkingPeriods(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SavePeriod(ctx, allocation.WorkingPeriod{ID: "wp-0", Start: at(6, 0)}))
	require.NoError(t, s.SavePeriod(ctx, allocation.WorkingPeriod{ID: "wp-next", Start: at(33, 0)}))

	periods, err := s.ListWorkingPeriods(ctx, day, day.Add(24*time.Hour-time.Second))

	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, allocation.PeriodID("wp-0"), periods[0].ID)
	assert.Equal(t, allocation.PeriodID("wp-1"), periods[1].ID)
}

func TestStore_SearchTasks(t *testing.T) {
	s := newStore(t)

	all, err := s.SearchTasks(ctx, "ba")
	require.NoError(t, err)
	assert.Len(t, all, 2, "short queries return every task")

	web, err := s.SearchTasks(ctx, "WEB")
	require.NoError(t, err)
	require.Len(t, web, 1)
	assert.Equal(t, allocation.TaskID("T2"), web[0].ID)
}

func TestStore_Reset(t *testing.T) {
	s := newStore(t)
	_, err := s.CreateSlot(ctx, "wp-1", "T1", at(9, 0), at(10, 0))
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	_, err = s.GetWorkingPeriod(ctx, "wp-1")
	assert.True(t, allocation.IsNotFound(err))
	tasks, err := s.SearchTasks(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStore_ServesAllocationService(t *testing.T) {
	// GIVEN: Duplicate T1 slots in the database
	// WHEN: Running a change through the allocation service
	// THEN: The database converges to the canonical layout

	s := newStore(t)
	_, err := s.SaveSlot(ctx, allocation.NewTimeSlot("wp-1", "T1", at(9, 0), at(9, 20)))
	require.NoError(t, err)
	_, err = s.SaveSlot(ctx, allocation.NewTimeSlot("wp-1", "T1", at(9, 20), at(9, 45)))
	require.NoError(t, err)

	svc := allocation.NewService(allocation.ServiceConfig{Slots: s, Tasks: s})
	period, err := s.GetWorkingPeriod(ctx, "wp-1")
	require.NoError(t, err)

	minutes := 90
	res, err := svc.ApplyDurationChange(ctx, period, "T2", &minutes)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	slots, err := s.FetchSlots(ctx, "wp-1")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, allocation.TaskID("T2"), slots[0].TaskID)
	assert.True(t, slots[0].End.Equal(at(10, 30)))
	assert.Equal(t, allocation.TaskID("T1"), slots[1].TaskID)
	assert.Equal(t, 45, slots[1].DurationMinutes)
}

func TestStore_WorkingPeriodLifecycle(t *testing.T) {
	s := newStore(t)
	s.DefaultTypeID = "wtt-office"
	end := at(20, 0)

	created, err := s.CreateWorkingPeriod(ctx, allocation.WorkingPeriod{Start: at(18, 0), End: &end, BreakMinutes: 10})
	require.NoError(t, err)
	assert.Equal(t, allocation.PeriodID("slot-01"), created.ID)
	assert.Equal(t, "wtt-office", created.TypeID)

	created.BreakMinutes = 20
	created.TypeID = "wtt-remote"
	_, err = s.UpdateWorkingPeriod(ctx, created)
	require.NoError(t, err)

	stored, err := s.GetWorkingPeriod(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.BreakMinutes)
	assert.Equal(t, "wtt-remote", stored.TypeID)
	assert.True(t, stored.End.Equal(end))

	missing := created
	missing.ID = "wp-404"
	_, err = s.UpdateWorkingPeriod(ctx, missing)
	assert.True(t, allocation.IsNotFound(err))
}

func TestStore_DeleteWorkingPeriodRemovesSlots(t *testing.T) {
	s := newStore(t)
	_, err := s.CreateSlot(ctx, "wp-1", "T1", at(9, 0), at(10, 0))
	require.NoError(t, err)

	require.NoError(t, s.DeleteWorkingPeriod(ctx, "wp-1"))

	slots, err := s.ListSlots(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.True(t, allocation.IsNotFound(s.DeleteWorkingPeriod(ctx, "wp-1")))
}

func TestStore_ListSlotsAcrossPeriods(t *testing.T) {
	s := newStore(t)
	end := at(20, 0).AddDate(0, 0, -3)
	require.NoError(t, s.SavePeriod(ctx, allocation.WorkingPeriod{ID: "wp-0", Start: at(18, 0).AddDate(0, 0, -3), End: &end}))
	_, err := s.CreateSlot(ctx, "wp-0", "T2", at(18, 0).AddDate(0, 0, -3), at(19, 0).AddDate(0, 0, -3))
	require.NoError(t, err)
	_, err = s.CreateSlot(ctx, "wp-1", "T1", at(9, 0), at(10, 0))
	require.NoError(t, err)

	slots, err := s.ListSlots(ctx, day.AddDate(0, 0, -7), at(23, 0))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, allocation.TaskID("T2"), slots[0].TaskID)
	assert.Equal(t, "ACME > Web", slots[0].TaskBreadcrumbs)
	assert.Equal(t, allocation.TaskID("T1"), slots[1].TaskID)

	slots, err = s.ListSlots(ctx, day, at(23, 0))
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestStore_WorkingTimeTypesKeepSaveOrder(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveWorkingTimeType(ctx, allocation.WorkingTimeType{ID: "z", Name: "Office", Category: allocation.CategoryAttendance}))
	require.NoError(t, s.SaveWorkingTimeType(ctx, allocation.WorkingTimeType{ID: "a", Name: "Vacation", Category: "leave"}))
	require.NoError(t, s.SaveWorkingTimeType(ctx, allocation.WorkingTimeType{ID: "z", Name: "Office", Category: allocation.CategoryAttendance, Archived: true}))

	types, err := s.ListWorkingTimeTypes(ctx)

	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "z", types[0].ID)
	assert.True(t, types[0].Archived)
	assert.Equal(t, "a", types[1].ID)
}

func TestStore_ServesWorkingPeriodEdits(t *testing.T) {
	// GIVEN: T1=60 booked on wp-1 through the service
	// WHEN: wp-1 is moved to start at 10:00
	// THEN: The stored slot follows the new start

	s := newStore(t)
	svc := allocation.NewService(allocation.ServiceConfig{Slots: s, Tasks: s, Periods: s, History: s, Types: s})
	period, err := s.GetWorkingPeriod(ctx, "wp-1")
	require.NoError(t, err)
	minutes := 60
	_, err = svc.ApplyDurationChange(ctx, period, "T1", &minutes)
	require.NoError(t, err)

	start := at(10, 0)
	res, err := svc.UpdateWorkingPeriod(ctx, "wp-1", allocation.PeriodChange{Start: &start})
	require.NoError(t, err)
	assert.Equal(t, 60, res.Records[0].DurationMinutes)

	slots, err := s.FetchSlots(ctx, "wp-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Start.Equal(at(10, 0)))
	assert.True(t, slots[0].End.Equal(at(11, 0)))
}
