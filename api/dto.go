/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the allocation model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Working times:
    WorkingPeriodDTO, CreateWorkingTimeRequest, UpdateWorkingTimeRequest,
    WorkingTimeTypeDTO, WorkingTimeTypesResponse

  Durations:
    DurationRecordDTO, AllocationStatusDTO, DurationsResponse,
    SetDurationRequest, AddDurationRequest, ReplaceDurationsRequest

  Tasks:
    TaskDTO, TaskSearchResponse (also used for recent tasks)

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

  Errors:
    ErrorResponse, PartialApplyDTO

HOURS:
  Minutes are authoritative. Hour figures are minutes/60 rounded to two
  decimals and serialized as decimal strings ("1.5").

SEE ALSO:
  - handlers.go: Uses these types
  - allocation/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ohrner-it/task-timr/allocation"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// WorkingPeriodDTO represents a working time in API responses.
type WorkingPeriodDTO struct {
	ID                 string     `json:"id"`
	Start              time.Time  `json:"start"`
	End                *time.Time `json:"end"`
	BreakMinutes       int        `json:"break_minutes"`
	NetDurationMinutes int        `json:"net_duration_minutes"`
	Ongoing            bool       `json:"ongoing"`
	WorkingTimeTypeID  string     `json:"working_time_type_id,omitempty"`
}

// CreateWorkingTimeRequest records a new working time.
type CreateWorkingTimeRequest struct {
	Start             *time.Time `json:"start"`
	End               *time.Time `json:"end"`
	BreakMinutes      int        `json:"break_minutes"`
	WorkingTimeTypeID string     `json:"working_time_type_id"`
}

// UpdateWorkingTimeRequest edits a working time. Omitted fields are kept.
type UpdateWorkingTimeRequest struct {
	Start             *time.Time `json:"start"`
	End               *time.Time `json:"end"`
	BreakMinutes      *int       `json:"break_minutes"`
	WorkingTimeTypeID *string    `json:"working_time_type_id"`
}

// WorkingTimeTypeDTO is one working-time type.
type WorkingTimeTypeDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// WorkingTimeTypesResponse splits types into those users may book and the
// rest.
type WorkingTimeTypesResponse struct {
	AttendanceTypes []WorkingTimeTypeDTO `json:"attendance_types"`
	OtherTypes      []WorkingTimeTypeDTO `json:"other_types"`
}

// DurationRecordDTO is one task's consolidated duration.
type DurationRecordDTO struct {
	TaskID          string          `json:"task_id"`
	TaskName        string          `json:"task_name"`
	TaskBreadcrumbs string          `json:"task_breadcrumbs"`
	DurationMinutes int             `json:"duration_minutes"`
	DurationHours   decimal.Decimal `json:"duration_hours"`
	Formatted       string          `json:"formatted"`
	SlotIDs         []string        `json:"slot_ids"`
}

// AllocationStatusDTO summarizes how much of the period is allocated.
type AllocationStatusDTO struct {
	NetDurationMinutes    int             `json:"net_duration_minutes"`
	TotalAllocatedMinutes int             `json:"total_allocated_minutes"`
	RemainingMinutes      int             `json:"remaining_minutes"`
	NetHours              decimal.Decimal `json:"net_hours"`
	AllocatedHours        decimal.Decimal `json:"allocated_hours"`
	RemainingHours        decimal.Decimal `json:"remaining_hours"`
	IsFullyAllocated      bool            `json:"is_fully_allocated"`
	IsOverAllocated       bool            `json:"is_over_allocated"`
}

// DurationsResponse is returned by every durations endpoint.
type DurationsResponse struct {
	WorkingTime       WorkingPeriodDTO    `json:"working_time"`
	Records           []DurationRecordDTO `json:"records"`
	Status            AllocationStatusDTO `json:"status"`
	NothingToAllocate bool                `json:"nothing_to_allocate"`
}

// SetDurationRequest sets one task's minutes.
type SetDurationRequest struct {
	DurationMinutes *int `json:"duration_minutes"`
}

// AddDurationRequest adds minutes to a task.
type AddDurationRequest struct {
	TaskID          string `json:"task_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

// TaskDurationDTO is one entry of a replacement set.
type TaskDurationDTO struct {
	TaskID          string `json:"task_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ReplaceDurationsRequest replaces a period's whole allocation.
type ReplaceDurationsRequest struct {
	Durations []TaskDurationDTO `json:"durations"`
}

// TaskDTO represents a bookable task.
type TaskDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Breadcrumbs string `json:"breadcrumbs"`
}

// TaskSearchResponse wraps search results.
type TaskSearchResponse struct {
	Tasks []TaskDTO `json:"tasks"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// PartialApplyDTO lists per-task outcomes of a partially applied change.
type PartialApplyDTO struct {
	WorkingTimeID string               `json:"working_time_id"`
	Succeeded     []string             `json:"succeeded"`
	Failed        []FailedOperationDTO `json:"failed"`
}

// FailedOperationDTO is one failed remote write.
type FailedOperationDTO struct {
	TaskID    string `json:"task_id"`
	Operation string `json:"operation"`
	SlotID    string `json:"slot_id,omitempty"`
	Error     string `json:"error"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toWorkingPeriodDTO(p allocation.WorkingPeriod, now time.Time) WorkingPeriodDTO {
	return WorkingPeriodDTO{
		ID:                 string(p.ID),
		Start:              p.Start,
		End:                p.End,
		BreakMinutes:       p.BreakMinutes,
		NetDurationMinutes: p.NetDurationMinutes(now),
		Ongoing:            p.IsOngoing(),
		WorkingTimeTypeID:  p.TypeID,
	}
}

func toTaskDTOs(tasks []allocation.Task, skip allocation.TaskID) []TaskDTO {
	dtos := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		if skip != "" && t.ID == skip {
			continue
		}
		dtos = append(dtos, TaskDTO{ID: string(t.ID), Name: t.Name, Breadcrumbs: t.Breadcrumbs})
	}
	return dtos
}

func toWorkingTimeTypeDTOs(types []allocation.WorkingTimeType) []WorkingTimeTypeDTO {
	dtos := make([]WorkingTimeTypeDTO, 0, len(types))
	for _, t := range types {
		dtos = append(dtos, WorkingTimeTypeDTO{ID: t.ID, Name: t.Name, Category: t.Category})
	}
	return dtos
}

// NewDurationsResponse converts a service result. now resolves the net
// duration of an ongoing working time.
func NewDurationsResponse(res *allocation.Result, now time.Time) DurationsResponse {
	records := make([]DurationRecordDTO, len(res.Records))
	for i, r := range res.Records {
		slotIDs := make([]string, len(r.SlotIDs))
		for j, id := range r.SlotIDs {
			slotIDs[j] = string(id)
		}
		records[i] = DurationRecordDTO{
			TaskID:          string(r.TaskID),
			TaskName:        r.TaskName,
			TaskBreadcrumbs: r.TaskBreadcrumbs,
			DurationMinutes: r.DurationMinutes,
			DurationHours:   allocation.Hours(r.DurationMinutes),
			Formatted:       allocation.FormatMinutes(r.DurationMinutes),
			SlotIDs:         slotIDs,
		}
	}

	s := res.Status
	return DurationsResponse{
		WorkingTime: toWorkingPeriodDTO(res.Period, now),
		Records:     records,
		Status: AllocationStatusDTO{
			NetDurationMinutes:    s.NetDurationMinutes,
			TotalAllocatedMinutes: s.TotalAllocatedMinutes,
			RemainingMinutes:      s.RemainingMinutes,
			NetHours:              allocation.Hours(s.NetDurationMinutes),
			AllocatedHours:        allocation.Hours(s.TotalAllocatedMinutes),
			RemainingHours:        allocation.Hours(s.RemainingMinutes),
			IsFullyAllocated:      s.IsFullyAllocated,
			IsOverAllocated:       s.IsOverAllocated,
		},
		NothingToAllocate: res.Placeholder,
	}
}

func toPartialApplyDTO(e *allocation.PartialApplyError) PartialApplyDTO {
	dto := PartialApplyDTO{
		WorkingTimeID: string(e.PeriodID),
		Succeeded:     make([]string, 0, len(e.Succeeded)),
		Failed:        make([]FailedOperationDTO, 0, len(e.Failed)),
	}
	for _, id := range e.Succeeded {
		dto.Succeeded = append(dto.Succeeded, string(id))
	}
	for _, f := range e.Failed {
		dto.Failed = append(dto.Failed, FailedOperationDTO{
			TaskID:    string(f.TaskID),
			Operation: string(f.Kind),
			SlotID:    string(f.SlotID),
			Error:     f.Err.Error(),
		})
	}
	return dto
}
