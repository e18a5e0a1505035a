/*
handlers.go - HTTP API handlers for task duration allocation

PURPOSE:
  Exposes the allocation service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to allocation.Service.

ENDPOINTS:
  Working times:
    GET    /api/working-times?date=YYYY-MM-DD      Periods starting that day
    GET    /api/working-times?from=...&to=...      Periods in a date range
    POST   /api/working-times                      Record a working time
    PATCH  /api/working-times/{id}                 Edit; moved bounds re-lay slots
    DELETE /api/working-times/{id}                 Delete a working time
    GET    /api/working-time-types                 Attendance and other types

  Durations:
    GET    /api/working-times/{id}/durations            Records and status
    PUT    /api/working-times/{id}/durations            Replace all durations
    POST   /api/working-times/{id}/durations            Add minutes to a task
    PUT    /api/working-times/{id}/durations/{taskID}   Set one task's minutes
    DELETE /api/working-times/{id}/durations/{taskID}   Remove one task
    POST   /api/working-times/{id}/nothing-to-allocate  Mark as nothing to allocate

  Tasks:
    GET    /api/tasks/search?q=...                 Bookable tasks
    GET    /api/tasks/recent                       Tasks booked recently

  Scenarios (local backends only):
    GET    /api/scenarios                          List demo scenarios
    GET    /api/scenarios/current                  Currently loaded scenario
    POST   /api/scenarios/load                     Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Resolve the working time from the period source
  3. Call the allocation service
  4. Serialize the fresh records and status

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: Working time or task not found
  - 409: Change rejected by the time-tracking service, or overlapping
         working times
  - 502: Time-tracking service unreachable, or a change applied partially
  - 500: Internal errors

  A partially applied change answers 502 with code "partial_apply" and the
  per-task outcome in details, so the client can retry the failed tasks.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ohrner-it/task-timr/allocation"
	"github.com/ohrner-it/task-timr/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Backend string
	Service *allocation.Service
	Periods allocation.PeriodSource
	Tasks   allocation.TaskCatalog

	// Seeder is nil when the backend cannot be seeded; scenario endpoints
	// then answer 404.
	Seeder factory.Seeder

	PlaceholderTaskID allocation.TaskID

	// Location interprets date query parameters.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler for a built backend.
func NewHandler(built *factory.Built, placeholder allocation.TaskID, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Backend:           built.Name,
		Service:           built.Service,
		Periods:           built.Backend,
		Tasks:             built.Backend,
		Seeder:            built.Seeder,
		PlaceholderTaskID: placeholder,
		Location:          time.Local,
		Now:               time.Now,
		Logger:            logger,
	}
}

// Health reports liveness and the active backend.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": h.Backend})
}

// =============================================================================
// WORKING TIME HANDLERS
// =============================================================================

// ListWorkingTimes returns the periods starting on ?date, or within ?from..?to.
// Overlapping periods are cut back so that none overlaps its successor.
func (h *Handler) ListWorkingTimes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromStr, toStr := q.Get("from"), q.Get("to")
	if date := q.Get("date"); date != "" {
		fromStr, toStr = date, date
	}
	if fromStr == "" {
		fromStr = h.Now().In(h.Location).Format(time.DateOnly)
	}
	if toStr == "" {
		toStr = fromStr
	}

	from, err := time.ParseInLocation(time.DateOnly, fromStr, h.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date, use YYYY-MM-DD", err)
		return
	}
	to, err := time.ParseInLocation(time.DateOnly, toStr, h.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date, use YYYY-MM-DD", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return
	}

	periods, err := h.Service.ListWorkingPeriods(r.Context(), from, to.AddDate(0, 0, 1).Add(-time.Nanosecond))
	if err != nil {
		h.writeServiceError(w, "Failed to list working times", err)
		return
	}

	now := h.Now()
	dtos := make([]WorkingPeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toWorkingPeriodDTO(p, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWorkingTime records a closed working time.
func (h *Handler) CreateWorkingTime(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkingTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Start == nil || req.End == nil {
		writeError(w, http.StatusBadRequest, "Start and end times are required", nil)
		return
	}

	created, err := h.Service.CreateWorkingPeriod(r.Context(), allocation.WorkingPeriod{
		Start:        *req.Start,
		End:          req.End,
		BreakMinutes: req.BreakMinutes,
		TypeID:       req.WorkingTimeTypeID,
	})
	if err != nil {
		h.writeServiceError(w, "Failed to create working time", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkingPeriodDTO(created, h.Now()))
}

// UpdateWorkingTime edits a working time and answers with its durations.
// Moving the start or end lays the booked durations out again.
func (h *Handler) UpdateWorkingTime(w http.ResponseWriter, r *http.Request) {
	var req UpdateWorkingTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := allocation.PeriodID(chi.URLParam(r, "id"))
	res, err := h.Service.UpdateWorkingPeriod(r.Context(), id, allocation.PeriodChange{
		Start:        req.Start,
		End:          req.End,
		BreakMinutes: req.BreakMinutes,
		TypeID:       req.WorkingTimeTypeID,
	})
	h.respond(w, "Failed to update working time", res, err)
}

// DeleteWorkingTime deletes a working time.
func (h *Handler) DeleteWorkingTime(w http.ResponseWriter, r *http.Request) {
	id := allocation.PeriodID(chi.URLParam(r, "id"))
	if err := h.Service.DeleteWorkingPeriod(r.Context(), id); err != nil {
		h.writeServiceError(w, "Failed to delete working time", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// ListWorkingTimeTypes returns the non-archived working-time types.
func (h *Handler) ListWorkingTimeTypes(w http.ResponseWriter, r *http.Request) {
	attendance, other, err := h.Service.WorkingTimeTypes(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list working-time types", err)
		return
	}
	writeJSON(w, http.StatusOK, WorkingTimeTypesResponse{
		AttendanceTypes: toWorkingTimeTypeDTOs(attendance),
		OtherTypes:      toWorkingTimeTypeDTOs(other),
	})
}

// =============================================================================
// DURATION HANDLERS
// =============================================================================

// GetDurations returns the consolidated records and allocation status.
func (h *Handler) GetDurations(w http.ResponseWriter, r *http.Request) {
	period, ok := h.period(w, r)
	if !ok {
		return
	}

	res, err := h.Service.GetDurationRecords(r.Context(), period)
	h.respond(w, "Failed to read durations", res, err)
}

// SetDuration sets one task's minutes. A null duration removes the task.
func (h *Handler) SetDuration(w http.ResponseWriter, r *http.Request) {
	var req SetDurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, ok := h.period(w, r)
	if !ok {
		return
	}

	taskID := allocation.TaskID(chi.URLParam(r, "taskID"))
	res, err := h.Service.ApplyDurationChange(r.Context(), period, taskID, req.DurationMinutes)
	h.respond(w, "Failed to set duration", res, err)
}

// DeleteDuration removes a task from the period.
func (h *Handler) DeleteDuration(w http.ResponseWriter, r *http.Request) {
	period, ok := h.period(w, r)
	if !ok {
		return
	}

	taskID := allocation.TaskID(chi.URLParam(r, "taskID"))
	res, err := h.Service.ApplyDurationChange(r.Context(), period, taskID, nil)
	h.respond(w, "Failed to remove duration", res, err)
}

// AddDuration adds minutes to a task's current allocation.
func (h *Handler) AddDuration(w http.ResponseWriter, r *http.Request) {
	var req AddDurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, ok := h.period(w, r)
	if !ok {
		return
	}

	res, err := h.Service.AddDuration(r.Context(), period, allocation.TaskID(req.TaskID), req.DurationMinutes)
	h.respond(w, "Failed to add duration", res, err)
}

// ReplaceDurations replaces the whole allocation of a period.
func (h *Handler) ReplaceDurations(w http.ResponseWriter, r *http.Request) {
	var req ReplaceDurationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	durations := make(map[allocation.TaskID]int, len(req.Durations))
	for _, d := range req.Durations {
		if _, dup := durations[allocation.TaskID(d.TaskID)]; dup {
			writeError(w, http.StatusBadRequest, "Task listed twice: "+d.TaskID, nil)
			return
		}
		durations[allocation.TaskID(d.TaskID)] = d.DurationMinutes
	}

	period, ok := h.period(w, r)
	if !ok {
		return
	}

	res, err := h.Service.ReplaceDurations(r.Context(), period, durations)
	h.respond(w, "Failed to replace durations", res, err)
}

// MarkNothingToAllocate marks an unallocated period as intentionally empty.
func (h *Handler) MarkNothingToAllocate(w http.ResponseWriter, r *http.Request) {
	period, ok := h.period(w, r)
	if !ok {
		return
	}

	res, err := h.Service.MarkNothingToAllocate(r.Context(), period)
	h.respond(w, "Failed to mark nothing to allocate", res, err)
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// SearchTasks returns bookable tasks matching ?q. Queries shorter than three
// characters return an empty list.
func (h *Handler) SearchTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if len([]rune(query)) < 3 {
		writeJSON(w, http.StatusOK, TaskSearchResponse{Tasks: []TaskDTO{}})
		return
	}

	tasks, err := h.Tasks.SearchTasks(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, "Failed to search tasks", err)
		return
	}

	writeJSON(w, http.StatusOK, TaskSearchResponse{Tasks: toTaskDTOs(tasks, h.PlaceholderTaskID)})
}

// RecentTasks returns the tasks booked in the last 30 days, latest first.
func (h *Handler) RecentTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Service.RecentTasks(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list recent tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, TaskSearchResponse{Tasks: toTaskDTOs(tasks, h.PlaceholderTaskID)})
}

// =============================================================================
// HELPERS
// =============================================================================

// period resolves the {id} URL parameter. It writes the error response and
// returns false when the working time cannot be loaded.
func (h *Handler) period(w http.ResponseWriter, r *http.Request) (allocation.WorkingPeriod, bool) {
	id := allocation.PeriodID(chi.URLParam(r, "id"))
	period, err := h.Periods.GetWorkingPeriod(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "Failed to load working time", err)
		return allocation.WorkingPeriod{}, false
	}
	return period, true
}

func (h *Handler) respond(w http.ResponseWriter, message string, res *allocation.Result, err error) {
	if err != nil {
		h.writeServiceError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, NewDurationsResponse(res, h.Now()))
}

// writeServiceError maps allocation errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	var partial *allocation.PartialApplyError
	switch {
	case errors.As(err, &partial):
		h.Logger.Warn("change applied partially", "period_id", partial.PeriodID, "failed", len(partial.Failed), "error", err)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   message + ": change applied partially, retry the failed tasks",
			Code:    "partial_apply",
			Details: toPartialApplyDTO(partial),
		})
	case allocation.IsValidation(err):
		writeCodedError(w, http.StatusBadRequest, "validation", message, err)
	case allocation.IsNotFound(err):
		writeCodedError(w, http.StatusNotFound, "not_found", message, err)
	case allocation.IsConflict(err):
		writeCodedError(w, http.StatusConflict, "conflict", message, err)
	case allocation.IsUpstream(err):
		h.Logger.Error("time-tracking service failed", "error", err)
		writeCodedError(w, http.StatusBadGateway, "upstream", message, err)
	default:
		h.Logger.Error(message, "error", err)
		writeCodedError(w, http.StatusInternalServerError, "internal", message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, err error) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}
