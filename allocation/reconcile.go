/*
reconcile.go - Minimal remote writes to reach a desired slot layout

PURPOSE:
  Rewriting every slot on each change would cost one call per task and lose
  slot identity. The Reconciler diffs the desired layout against the slots
  currently stored remotely and emits only what differs.

ALGORITHM:
  1. Bucket current slots by task. The lowest-id slot of each task is its
     anchor; every other slot of that task is deleted. This restores the
     one-slot-per-task invariant before diffing.
  2. Task in both:    anchor matches duration and placement -> nothing,
                      else update(anchor.ID, desired).
  3. Desired only:    create(desired).
  4. Current only:    delete(anchor.ID).
  5. Order: deletes, creates, updates. The remote service checks overlaps on
     every write; freeing space first avoids transient double-booking.

  Within each group operations follow the desired layout order (creates and
  updates) or ascending slot id (deletes), so a plan is reproducible.

EXAMPLE:
  current: T1 [09:00-10:00] id a, T1 [10:00-10:20] id b, T3 [..] id c
  desired: T1 [09:00-11:00], T2 [11:00-11:30]
  -> delete b, delete c, create T2, update a
*/
package allocation

import (
	"fmt"
	"sort"
)

// OperationKind is the type of a remote write.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// Operation is one remote write. Slot holds the desired interval for create
// and update; SlotID names the remote slot for update and delete.
type Operation struct {
	Kind   OperationKind
	TaskID TaskID
	SlotID SlotID
	Slot   TimeSlot
}

func (o Operation) String() string {
	switch o.Kind {
	case OpDelete:
		return fmt.Sprintf("delete %s (task %s)", o.SlotID, o.TaskID)
	case OpUpdate:
		return fmt.Sprintf("update %s (task %s) -> %s..%s", o.SlotID, o.TaskID,
			o.Slot.Start.Format("15:04"), o.Slot.End.Format("15:04"))
	default:
		return fmt.Sprintf("create task %s %s..%s", o.TaskID,
			o.Slot.Start.Format("15:04"), o.Slot.End.Format("15:04"))
	}
}

// Plan is the ordered output of a reconciliation.
type Plan struct {
	Operations []Operation

	// Unchanged lists tasks whose anchor already matches.
	Unchanged []TaskID
}

// IsEmpty reports whether current state already equals the desired state.
func (p Plan) IsEmpty() bool { return len(p.Operations) == 0 }

// Count returns the number of operations of the given kind.
func (p Plan) Count(kind OperationKind) int {
	n := 0
	for _, op := range p.Operations {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Reconciler diffs desired against current slots.
type Reconciler struct{}

// Reconcile computes the operations that move current to desired.
// desired must hold at most one slot per task, as the Distributor produces.
func (r *Reconciler) Reconcile(desired, current []TimeSlot) Plan {
	anchors, duplicates := anchorByTask(current)

	var deletes, creates, updates []Operation
	var unchanged []TaskID

	for _, dup := range duplicates {
		deletes = append(deletes, Operation{Kind: OpDelete, TaskID: dup.TaskID, SlotID: dup.ID})
	}

	wanted := make(map[TaskID]bool, len(desired))
	for _, want := range desired {
		wanted[want.TaskID] = true

		anchor, exists := anchors[want.TaskID]
		if !exists {
			creates = append(creates, Operation{Kind: OpCreate, TaskID: want.TaskID, Slot: want})
			continue
		}
		if anchor.DurationMinutes == want.DurationMinutes && anchor.SamePlacement(want) {
			unchanged = append(unchanged, want.TaskID)
			continue
		}
		updates = append(updates, Operation{Kind: OpUpdate, TaskID: want.TaskID, SlotID: anchor.ID, Slot: want})
	}

	var stale []TimeSlot
	for taskID, anchor := range anchors {
		if !wanted[taskID] {
			stale = append(stale, anchor)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	for _, s := range stale {
		deletes = append(deletes, Operation{Kind: OpDelete, TaskID: s.TaskID, SlotID: s.ID})
	}

	ops := make([]Operation, 0, len(deletes)+len(creates)+len(updates))
	ops = append(ops, deletes...)
	ops = append(ops, creates...)
	ops = append(ops, updates...)
	return Plan{Operations: ops, Unchanged: unchanged}
}

// anchorByTask picks the lowest-id slot per task and returns the others,
// sorted by id, as duplicates.
func anchorByTask(current []TimeSlot) (map[TaskID]TimeSlot, []TimeSlot) {
	sorted := make([]TimeSlot, len(current))
	copy(sorted, current)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	anchors := make(map[TaskID]TimeSlot, len(sorted))
	var duplicates []TimeSlot
	for _, s := range sorted {
		if s.TaskID == "" {
			continue
		}
		if _, ok := anchors[s.TaskID]; ok {
			duplicates = append(duplicates, s)
			continue
		}
		anchors[s.TaskID] = s
	}
	return anchors, duplicates
}
