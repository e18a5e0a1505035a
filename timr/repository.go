package timr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ohrner-it/task-timr/allocation"
)

// =============================================================================
// REPOSITORY - allocation.Backend over the Timr API
// =============================================================================

var _ allocation.Backend = (*Repository)(nil)

const ongoingLookahead = 24 * time.Hour

// Repository maps working times to periods and project times to slots.
type Repository struct {
	client *Client
	now    func() time.Time
	logger *slog.Logger

	// DefaultTypeID is sent for created working times without a type.
	DefaultTypeID string
}

// DefaultWorkingTimeTypeID is the attendance type sent when neither the
// request nor the configuration names one.
const DefaultWorkingTimeTypeID = "3f1953ee-f5d6-471f-a4ed-95ced921dd86"

// NewRepository creates a Repository. now measures ongoing working times;
// nil means time.Now.
func NewRepository(client *Client, now func() time.Time, logger *slog.Logger) *Repository {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{client: client, now: now, logger: logger, DefaultTypeID: DefaultWorkingTimeTypeID}
}

// FetchSlots returns the project times overlapping the working time. The
// remote filters by start date only, so the overlap test runs here.
//
// Slot starts of a closed working time are laid out before its end. An
// ongoing working time has no end yet, so slots laid out past now are looked
// for up to a day ahead.
func (r *Repository) FetchSlots(ctx context.Context, periodID allocation.PeriodID) ([]allocation.TimeSlot, error) {
	wt, err := r.client.GetWorkingTime(ctx, string(periodID))
	if err != nil {
		return nil, err
	}
	period := wt.Period()
	end := period.EndOr(r.now())
	if period.End == nil {
		if wt.Duration != nil && wt.Duration.Minutes != nil {
			end = allocation.AddMinutes(period.Start, *wt.Duration.Minutes)
		}
		end = end.Add(ongoingLookahead)
	}

	times, err := r.client.ListProjectTimes(ctx, period.Start, end)
	if err != nil {
		return nil, fmt.Errorf("list project times of %s: %w", periodID, err)
	}

	var slots []allocation.TimeSlot
	for _, pt := range times {
		if !period.Overlaps(pt.Start, pt.End, end) {
			continue
		}
		slots = append(slots, pt.Slot(periodID))
	}
	r.logger.Debug("fetched slots", "period_id", periodID, "listed", len(times), "overlapping", len(slots))
	return slots, nil
}

func (r *Repository) CreateSlot(ctx context.Context, periodID allocation.PeriodID, taskID allocation.TaskID, start, end time.Time) (allocation.TimeSlot, error) {
	pt, err := r.client.CreateProjectTime(ctx, string(taskID), start, end)
	if err != nil {
		return allocation.TimeSlot{}, err
	}
	return pt.Slot(periodID), nil
}

func (r *Repository) UpdateSlot(ctx context.Context, slotID allocation.SlotID, start, end time.Time) (allocation.TimeSlot, error) {
	pt, err := r.client.UpdateProjectTime(ctx, string(slotID), start, end)
	if err != nil {
		return allocation.TimeSlot{}, err
	}
	return pt.Slot(""), nil
}

func (r *Repository) DeleteSlot(ctx context.Context, slotID allocation.SlotID) error {
	return r.client.DeleteProjectTime(ctx, string(slotID))
}

// ListSlots returns the project times starting within [from, to]. The
// slots carry no period id.
func (r *Repository) ListSlots(ctx context.Context, from, to time.Time) ([]allocation.TimeSlot, error) {
	times, err := r.client.ListProjectTimes(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list project times: %w", err)
	}
	slots := make([]allocation.TimeSlot, 0, len(times))
	for _, pt := range times {
		if pt.Start.Before(from) || pt.Start.After(to) {
			continue
		}
		slots = append(slots, pt.Slot(""))
	}
	return slots, nil
}

// =============================================================================
// PERIOD STORE
// =============================================================================

func (r *Repository) GetWorkingPeriod(ctx context.Context, id allocation.PeriodID) (allocation.WorkingPeriod, error) {
	wt, err := r.client.GetWorkingTime(ctx, string(id))
	if err != nil {
		return allocation.WorkingPeriod{}, err
	}
	return wt.Period(), nil
}

func (r *Repository) ListWorkingPeriods(ctx context.Context, from, to time.Time) ([]allocation.WorkingPeriod, error) {
	wts, err := r.client.ListWorkingTimes(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]allocation.WorkingPeriod, 0, len(wts))
	for _, wt := range wts {
		out = append(out, wt.Period())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *Repository) CreateWorkingPeriod(ctx context.Context, p allocation.WorkingPeriod) (allocation.WorkingPeriod, error) {
	if p.End == nil {
		return allocation.WorkingPeriod{}, &allocation.ValidationError{Field: "end", Message: "must be set"}
	}
	typeID := p.TypeID
	if typeID == "" {
		typeID = r.DefaultTypeID
	}
	wt, err := r.client.CreateWorkingTime(ctx, p.Start, *p.End, p.BreakMinutes, typeID)
	if err != nil {
		return allocation.WorkingPeriod{}, err
	}
	return r.period(wt, typeID), nil
}

func (r *Repository) UpdateWorkingPeriod(ctx context.Context, p allocation.WorkingPeriod) (allocation.WorkingPeriod, error) {
	wt, err := r.client.UpdateWorkingTime(ctx, string(p.ID), p.Start, p.End, p.BreakMinutes, p.TypeID)
	if err != nil {
		return allocation.WorkingPeriod{}, err
	}
	return r.period(wt, p.TypeID), nil
}

func (r *Repository) DeleteWorkingPeriod(ctx context.Context, id allocation.PeriodID) error {
	return r.client.DeleteWorkingTime(ctx, string(id))
}

// period converts a written working time. Write responses may omit the
// embedded type, so the requested one fills in.
func (r *Repository) period(wt WorkingTime, typeID string) allocation.WorkingPeriod {
	p := wt.Period()
	if p.TypeID == "" {
		p.TypeID = typeID
	}
	return p
}

func (r *Repository) ListWorkingTimeTypes(ctx context.Context) ([]allocation.WorkingTimeType, error) {
	types, err := r.client.ListWorkingTimeTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]allocation.WorkingTimeType, 0, len(types))
	for _, t := range types {
		out = append(out, t.toType())
	}
	return out, nil
}

// =============================================================================
// TASK CATALOG
// =============================================================================

func (r *Repository) GetTask(ctx context.Context, id allocation.TaskID) (allocation.Task, error) {
	t, err := r.client.GetTask(ctx, string(id))
	if err != nil {
		return allocation.Task{}, err
	}
	return t.toTask(), nil
}

// SearchTasks returns active tasks matching query, ordered by name then id.
func (r *Repository) SearchTasks(ctx context.Context, query string) ([]allocation.Task, error) {
	tasks, err := r.client.ListTasks(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	now := r.now()
	out := make([]allocation.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Active(now) || (t.Bookable != nil && !*t.Bookable) {
			continue
		}
		out = append(out, t.toTask())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
