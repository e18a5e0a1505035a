package timr

import (
	"time"

	"github.com/ohrner-it/task-timr/allocation"
)

// =============================================================================
// WIRE TYPES - JSON shapes of the Timr REST API (v0.2)
// =============================================================================

type loginRequest struct {
	Identifier string `json:"identifier"`
	Login      string `json:"login"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token      string  `json:"token"`
	User       userRef `json:"user"`
	ValidUntil string  `json:"valid_until,omitempty"`
}

type userRef struct {
	ID string `json:"id"`
}

// page is one cursor page of a list endpoint.
type page[T any] struct {
	Data          []T    `json:"data"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

type durationRef struct {
	Minutes *int `json:"minutes"`
}

// WorkingTime is an attendance record.
type WorkingTime struct {
	ID                    string           `json:"id"`
	Start                 time.Time        `json:"start"`
	End                   *time.Time       `json:"end"`
	BreakTimeTotalMinutes int              `json:"break_time_total_minutes"`
	Duration              *durationRef     `json:"duration,omitempty"`
	Status                string           `json:"status,omitempty"`
	WorkingTimeType       *WorkingTimeType `json:"working_time_type,omitempty"`
}

// Period converts the working time to the engine's view.
func (w WorkingTime) Period() allocation.WorkingPeriod {
	p := allocation.WorkingPeriod{
		ID:           allocation.PeriodID(w.ID),
		Start:        w.Start,
		End:          w.End,
		BreakMinutes: w.BreakTimeTotalMinutes,
	}
	if w.WorkingTimeType != nil {
		p.TypeID = w.WorkingTimeType.ID
	}
	return p
}

// WorkingTimeType classifies working times. Only attendance_time types are
// booked by users.
type WorkingTimeType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name,omitempty"`
	Category  string `json:"category"`
	Archived  bool   `json:"archived"`
}

func (t WorkingTimeType) toType() allocation.WorkingTimeType {
	return allocation.WorkingTimeType{ID: t.ID, Name: t.Name, Category: t.Category, Archived: t.Archived}
}

// breakTime is a manual break. The remote places it when start is omitted.
type breakTime struct {
	Type            string `json:"type"`
	Start           string `json:"start,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
}

type workingTimeCreate struct {
	Start             string      `json:"start"`
	End               string      `json:"end"`
	Status            string      `json:"status"`
	Changed           bool        `json:"changed"`
	WorkingTimeTypeID string      `json:"working_time_type_id"`
	BreakTimes        []breakTime `json:"break_times,omitempty"`
	UserID            string      `json:"user_id,omitempty"`
}

// workingTimeUpdate always sends break_times; an empty list clears them.
type workingTimeUpdate struct {
	Start             string      `json:"start"`
	End               string      `json:"end,omitempty"`
	Changed           bool        `json:"changed"`
	WorkingTimeTypeID string      `json:"working_time_type_id,omitempty"`
	BreakTimes        []breakTime `json:"break_times"`
}

// TaskRef is the task embedded in a project time.
type TaskRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Breadcrumbs string `json:"breadcrumbs"`
}

// ProjectTime is one booked slot on a task.
type ProjectTime struct {
	ID       string       `json:"id"`
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Duration *durationRef `json:"duration,omitempty"`
	Task     TaskRef      `json:"task"`
	Status   string       `json:"status,omitempty"`
}

// Slot converts the project time to a slot of periodID. The remote
// duration wins over end-start when present.
func (p ProjectTime) Slot(periodID allocation.PeriodID) allocation.TimeSlot {
	s := allocation.NewTimeSlot(periodID, allocation.TaskID(p.Task.ID), p.Start, p.End)
	s.ID = allocation.SlotID(p.ID)
	s.TaskName = p.Task.Name
	s.TaskBreadcrumbs = p.Task.Breadcrumbs
	if p.Duration != nil && p.Duration.Minutes != nil {
		s.DurationMinutes = *p.Duration.Minutes
	}
	return s
}

type projectTimeCreate struct {
	TaskID  string `json:"task_id"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Status  string `json:"status"`
	Changed bool   `json:"changed"`
	UserID  string `json:"user_id,omitempty"`
}

type projectTimeUpdate struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Changed bool   `json:"changed"`
}

// Task is a bookable task of the catalog.
type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Breadcrumbs string `json:"breadcrumbs"`
	Bookable    *bool  `json:"bookable,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

// Active reports whether the task has no end date or ends after now.
// Unparseable end dates count as active.
func (t Task) Active(now time.Time) bool {
	if t.EndDate == "" {
		return true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if end, err := time.Parse(layout, t.EndDate); err == nil {
			return end.After(now)
		}
	}
	return true
}

func (t Task) toTask() allocation.Task {
	name := t.Name
	if name == "" {
		name = t.Title
	}
	return allocation.Task{ID: allocation.TaskID(t.ID), Name: name, Breadcrumbs: t.Breadcrumbs}
}

type apiError struct {
	Message string `json:"message"`
}

// timestamp formats t as RFC 3339 with a numeric offset.
func timestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}
