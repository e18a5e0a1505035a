package allocation

import (
	"context"
	"errors"
	"log/slog"
)

// =============================================================================
// EXECUTOR - Runs a Plan against a SlotRepository
// =============================================================================

// Executor applies reconciliation plans. Operations are independent: a
// failure is recorded and the batch continues. Nothing is rolled back; the
// remote state is re-read by the caller afterwards.
type Executor struct {
	Slots  SlotRepository
	Logger *slog.Logger
}

// ApplyReport lists what happened to each task of a plan.
type ApplyReport struct {
	Succeeded []TaskID
	Failed    []OperationFailure
}

// Execute runs every operation of plan in order. It returns a
// *PartialApplyError if any operation failed.
func (e *Executor) Execute(ctx context.Context, periodID PeriodID, plan Plan) (ApplyReport, error) {
	log := e.logger().With("period_id", periodID)

	var report ApplyReport
	failed := make(map[TaskID]bool)
	var touched []TaskID
	seen := make(map[TaskID]bool)

	for _, op := range plan.Operations {
		if !seen[op.TaskID] {
			seen[op.TaskID] = true
			touched = append(touched, op.TaskID)
		}

		err := e.apply(ctx, periodID, op)
		if err != nil {
			log.Warn("operation failed", "op", op.Kind, "task_id", op.TaskID, "slot_id", op.SlotID, "error", err)
			failed[op.TaskID] = true
			report.Failed = append(report.Failed, OperationFailure{
				TaskID: op.TaskID,
				Kind:   op.Kind,
				SlotID: op.SlotID,
				Err:    err,
			})
			continue
		}
		log.Debug("operation applied", "op", op.String())
	}

	for _, id := range touched {
		if !failed[id] {
			report.Succeeded = append(report.Succeeded, id)
		}
	}

	log.Info("plan executed",
		"deletes", plan.Count(OpDelete),
		"creates", plan.Count(OpCreate),
		"updates", plan.Count(OpUpdate),
		"failed", len(report.Failed))

	if len(report.Failed) > 0 {
		return report, &PartialApplyError{
			PeriodID:  periodID,
			Succeeded: report.Succeeded,
			Failed:    report.Failed,
		}
	}
	return report, nil
}

func (e *Executor) apply(ctx context.Context, periodID PeriodID, op Operation) error {
	switch op.Kind {
	case OpDelete:
		err := e.Slots.DeleteSlot(ctx, op.SlotID)
		if errors.Is(err, ErrNotFound) {
			// Already gone: the desired end state holds.
			return nil
		}
		return err
	case OpCreate:
		_, err := e.Slots.CreateSlot(ctx, periodID, op.TaskID, op.Slot.Start, op.Slot.End)
		return err
	case OpUpdate:
		_, err := e.Slots.UpdateSlot(ctx, op.SlotID, op.Slot.Start, op.Slot.End)
		return err
	default:
		return invalid("operation.kind", "unknown operation %q", op.Kind)
	}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
