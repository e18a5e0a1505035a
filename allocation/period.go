package allocation

import "time"

// =============================================================================
// WORKING PERIOD - The boundary every allocation is computed for
// =============================================================================

// WorkingPeriod is an externally recorded attendance span. The engine never
// writes it.
//
// Examples:
//   - 09:00-17:30 with 30 break minutes: net 480 minutes
//   - 09:00-(ongoing) with no break: net grows with the clock
type WorkingPeriod struct {
	ID           PeriodID
	Start        time.Time
	End          *time.Time // nil while ongoing
	BreakMinutes int

	// TypeID is the remote working-time type. Empty means the backend's
	// default.
	TypeID string
}

// IsOngoing returns true while the period has no end yet.
func (p WorkingPeriod) IsOngoing() bool {
	return p.End == nil
}

// EndOr returns the period end, or now for an ongoing period.
func (p WorkingPeriod) EndOr(now time.Time) time.Time {
	if p.End == nil {
		return now
	}
	return *p.End
}

// NetDurationMinutes is (end - start) - break minutes. An ongoing period is
// measured up to now.
func (p WorkingPeriod) NetDurationMinutes(now time.Time) int {
	return MinutesBetween(p.Start, p.EndOr(now)) - p.BreakMinutes
}

// Overlaps returns true if [start, end] intersects the period: the slot
// starts inside it, ends inside it, or encloses it.
func (p WorkingPeriod) Overlaps(start, end time.Time, now time.Time) bool {
	pEnd := p.EndOr(now)
	startsInside := !start.Before(p.Start) && start.Before(pEnd)
	endsInside := end.After(p.Start) && !end.After(pEnd)
	encloses := !start.After(p.Start) && !end.Before(pEnd)
	return startsInside || endsInside || encloses
}

// Clashes reports whether p and other share any instant. Touching periods do
// not clash. An ongoing period runs until now.
func (p WorkingPeriod) Clashes(other WorkingPeriod, now time.Time) bool {
	return p.Start.Before(other.EndOr(now)) && p.EndOr(now).After(other.Start)
}

// String returns a compact representation of the period.
func (p WorkingPeriod) String() string {
	end := "ongoing"
	if p.End != nil {
		end = p.End.Format(time.RFC3339)
	}
	return string(p.ID) + " [" + p.Start.Format(time.RFC3339) + ", " + end + "]"
}

// Validate rejects malformed periods before any computation.
func (p WorkingPeriod) Validate() error {
	if p.ID == "" {
		return invalid("working_period.id", "must not be empty")
	}
	if p.Start.IsZero() {
		return invalid("working_period.start", "must be set")
	}
	if p.End != nil && p.End.Before(p.Start) {
		return invalid("working_period.end", "before start")
	}
	if p.BreakMinutes < 0 {
		return invalid("working_period.break_minutes", "must be >= 0, got %d", p.BreakMinutes)
	}
	return nil
}
