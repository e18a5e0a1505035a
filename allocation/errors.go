/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error kinds in one place. Repositories (timr, sqlite, memory) return
  these so the engine and the HTTP layer can classify failures without
  knowing which backend produced them.

ERROR CATEGORIES:
  1. Validation - bad input, raised before any remote call
  2. Not found  - period, task or slot absent
  3. Conflict   - the remote service rejected a placement
  4. Upstream   - transport, auth, rate limit or protocol failure
  5. Partial    - some operations of a reconciliation batch failed

USAGE:
  if errors.Is(err, allocation.ErrConflict) { ... }

  var partial *allocation.PartialApplyError
  if errors.As(err, &partial) {
      for _, f := range partial.Failed { ... }
  }

SEE ALSO:
  - apply.go: builds PartialApplyError
  - timr/client.go: maps HTTP status codes onto these kinds
*/
package allocation

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for invalid input. No remote call was made.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a period, task or slot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the remote service rejects a write,
	// e.g. because of an overlap rule it enforces.
	ErrConflict = errors.New("rejected by remote service")

	// ErrUpstream is returned for transport, auth and protocol failures.
	ErrUpstream = errors.New("upstream failure")

	// ErrPartialApply is returned when a reconciliation batch finished with
	// at least one failed operation.
	ErrPartialApply = errors.New("partial apply")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which input was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string // "working_period", "task", "slot"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError carries the remote service's reason for rejecting a write.
type ConflictError struct {
	TaskID  TaskID
	Message string
}

func (e *ConflictError) Error() string {
	if e.TaskID == "" {
		return "rejected by remote service: " + e.Message
	}
	return fmt.Sprintf("rejected by remote service for task %s: %s", e.TaskID, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// UpstreamError wraps a failure talking to the remote service.
type UpstreamError struct {
	Op         string // e.g. "GET /project-times"
	StatusCode int    // 0 for transport errors
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("upstream failure")
	if e.Op != "" {
		b.WriteString(" in " + e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// OperationFailure is one failed operation inside a batch.
type OperationFailure struct {
	TaskID TaskID
	Kind   OperationKind
	SlotID SlotID
	Err    error
}

// PartialApplyError is returned once a whole batch has been attempted and at
// least one operation failed. Already-applied operations are not rolled back.
type PartialApplyError struct {
	PeriodID  PeriodID
	Succeeded []TaskID
	Failed    []OperationFailure
}

func (e *PartialApplyError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s %s: %v", f.Kind, f.TaskID, f.Err))
	}
	return fmt.Sprintf("partial apply on working period %s: %d succeeded, %d failed [%s]",
		e.PeriodID, len(e.Succeeded), len(e.Failed), strings.Join(parts, "; "))
}

func (e *PartialApplyError) Is(target error) bool { return target == ErrPartialApply }

func (e *PartialApplyError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedTaskIDs returns the task ids of all failed operations, in batch order.
func (e *PartialApplyError) FailedTaskIDs() []TaskID {
	ids := make([]TaskID, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.TaskID)
	}
	return ids
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsUpstream(err error) bool   { return errors.Is(err, ErrUpstream) }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
