package allocation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohrner-it/task-timr/allocation"
)

func kinds(plan allocation.Plan) []allocation.OperationKind {
	out := make([]allocation.OperationKind, 0, len(plan.Operations))
	for _, op := range plan.Operations {
		out = append(out, op.Kind)
	}
	return out
}

func TestReconcile_NoOpWhenConverged(t *testing.T) {
	// GIVEN: Current remote slots equal the desired layout
	// WHEN: Reconciling
	// THEN: No operations

	current := []allocation.TimeSlot{
		slot("a", "T2", at(9, 0), at(10, 30)),
		slot("b", "T1", at(10, 30), at(12, 30)),
	}
	layout := (&allocation.Distributor{}).Distribute(period9to17(), desired(alloc("T1", 120), alloc("T2", 90)), false)

	plan := (&allocation.Reconciler{}).Reconcile(layout, current)

	assert.True(t, plan.IsEmpty())
	assert.ElementsMatch(t, []allocation.TaskID{"T1", "T2"}, plan.Unchanged)
}

func TestReconcile_NoOpIgnoresSubSecondDrift(t *testing.T) {
	current := []allocation.TimeSlot{slot("a", "T1", at(9, 0), at(10, 0))}
	want := []allocation.TimeSlot{slot("", "T1", at(9, 0).Add(300_000_000), at(10, 0).Add(300_000_000))}

	plan := (&allocation.Reconciler{}).Reconcile(want, current)

	assert.True(t, plan.IsEmpty())
}

func TestReconcile_CreateUpdateDelete(t *testing.T) {
	// GIVEN: T1 exists but moves, T2 is new, T3 is no longer wanted
	// WHEN: Reconciling
	// THEN: delete T3, create T2, update T1 - in that order

	current := []allocation.TimeSlot{
		slot("a", "T1", at(9, 0), at(10, 0)),
		slot("c", "T3", at(10, 0), at(11, 0)),
	}
	want := []allocation.TimeSlot{
		slot("", "T2", at(9, 0), at(9, 30)),
		slot("", "T1", at(9, 30), at(10, 30)),
	}

	plan := (&allocation.Reconciler{}).Reconcile(want, current)

	require.Equal(t, []allocation.OperationKind{allocation.OpDelete, allocation.OpCreate, allocation.OpUpdate}, kinds(plan))
	assert.Equal(t, allocation.SlotID("c"), plan.Operations[0].SlotID)
	assert.Equal(t, allocation.TaskID("T2"), plan.Operations[1].TaskID)
	assert.Equal(t, allocation.SlotID("a"), plan.Operations[2].SlotID)
	assert.Equal(t, at(9, 30), plan.Operations[2].Slot.Start)
}

func TestReconcile_DuplicatesDeletedAnchorKept(t *testing.T) {
	// GIVEN: Three remote slots for T1 (ids b, a, c)
	// WHEN: Reconciling against one desired T1 slot equal to the anchor
	// THEN: The lowest id (a) is kept untouched, b and c are deleted

	current := []allocation.TimeSlot{
		slot("b", "T1", at(10, 0), at(10, 20)),
		slot("a", "T1", at(9, 0), at(10, 0)),
		slot("c", "T1", at(11, 0), at(11, 10)),
	}
	want := []allocation.TimeSlot{slot("", "T1", at(9, 0), at(10, 0))}

	plan := (&allocation.Reconciler{}).Reconcile(want, current)

	require.Equal(t, []allocation.OperationKind{allocation.OpDelete, allocation.OpDelete}, kinds(plan))
	assert.Equal(t, allocation.SlotID("b"), plan.Operations[0].SlotID)
	assert.Equal(t, allocation.SlotID("c"), plan.Operations[1].SlotID)
	assert.Equal(t, []allocation.TaskID{"T1"}, plan.Unchanged)
}

func TestReconcile_DuplicatesAndUpdate(t *testing.T) {
	// GIVEN: Duplicate T1 slots 20+25 minutes, desired T1 45 minutes
	// WHEN: Reconciling
	// THEN: Delete the extra slot, then stretch the anchor to 45 minutes

	current := []allocation.TimeSlot{
		slot("a", "T1", at(9, 0), at(9, 20)),
		slot("b", "T1", at(9, 20), at(9, 45)),
	}
	want := []allocation.TimeSlot{slot("", "T1", at(9, 0), at(9, 45))}

	plan := (&allocation.Reconciler{}).Reconcile(want, current)

	require.Equal(t, []allocation.OperationKind{allocation.OpDelete, allocation.OpUpdate}, kinds(plan))
	assert.Equal(t, allocation.SlotID("b"), plan.Operations[0].SlotID)
	assert.Equal(t, allocation.SlotID("a"), plan.Operations[1].SlotID)
}

func TestReconcile_DurationMismatchForcesUpdate(t *testing.T) {
	// Same placement, but the remote reports a different booked duration.
	current := slot("a", "T1", at(9, 0), at(10, 0))
	current.DurationMinutes = 45
	want := []allocation.TimeSlot{slot("", "T1", at(9, 0), at(10, 0))}

	plan := (&allocation.Reconciler{}).Reconcile(want, []allocation.TimeSlot{current})

	require.Equal(t, []allocation.OperationKind{allocation.OpUpdate}, kinds(plan))
}

func TestReconcile_EmptyDesiredDeletesAll(t *testing.T) {
	current := []allocation.TimeSlot{
		slot("b", "T2", at(10, 0), at(11, 0)),
		slot("a", "T1", at(9, 0), at(10, 0)),
	}

	plan := (&allocation.Reconciler{}).Reconcile(nil, current)

	require.Equal(t, []allocation.OperationKind{allocation.OpDelete, allocation.OpDelete}, kinds(plan))
	assert.Equal(t, allocation.SlotID("a"), plan.Operations[0].SlotID)
	assert.Equal(t, allocation.SlotID("b"), plan.Operations[1].SlotID)
}

func TestReconcile_EmptyCurrentCreatesAll(t *testing.T) {
	layout := (&allocation.Distributor{}).Distribute(period9to17(), desired(alloc("T1", 120), alloc("T2", 90)), false)

	plan := (&allocation.Reconciler{}).Reconcile(layout, nil)

	assert.Equal(t, 2, plan.Count(allocation.OpCreate))
	assert.Equal(t, allocation.TaskID("T2"), plan.Operations[0].TaskID, "creates follow layout order")
}

func TestReconcile_ShiftCascades(t *testing.T) {
	// GIVEN: A, B, C laid out back to back
	// WHEN: B grows by 30 minutes
	// THEN: B and the slot after it move; the slot before it is untouched

	before := (&allocation.Distributor{}).Distribute(period9to17(), desired(alloc("C", 30), alloc("B", 30), alloc("A", 30)), false)
	for i := range before {
		before[i].ID = allocation.SlotID(string(rune('a' + i)))
	}
	after := (&allocation.Distributor{}).Distribute(period9to17(), desired(alloc("C", 30), alloc("B", 60), alloc("A", 30)), false)

	plan := (&allocation.Reconciler{}).Reconcile(after, before)

	assert.Equal(t, 2, plan.Count(allocation.OpUpdate))
	assert.Equal(t, []allocation.TaskID{"C"}, plan.Unchanged)
}
