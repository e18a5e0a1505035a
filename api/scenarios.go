/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate a local backend (sqlite or
	memory) with working times, tasks, and project-time slots that show
	specific allocation situations, including the remote-service quirks the
	consolidation step repairs.

AVAILABLE SCENARIOS:

	empty-day:            One working time, nothing booked yet
	partially-allocated:  Two tasks laid out back-to-back, time remaining
	duplicate-slots:      One task booked as two slots, merged on read
	over-allocated:       More minutes booked than the working time holds
	nothing-to-allocate:  A short working time marked with a placeholder
	ongoing:              A working time that has not ended yet

HOW SCENARIOS WORK:
 1. Reset the backend (clear all data)
 2. Save the working-time types and the task catalog
 3. Save today's working times
 4. Save slots directly, bypassing the allocation service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "duplicate-slots"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, day)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the backend. The timr backend cannot be seeded, so the
	scenario endpoints answer 404 there.

SEE ALSO:
  - handlers.go: Handler and error mapping
  - factory/backend.go: Seeder
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ohrner-it/task-timr/allocation"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty-day",
		Name:        "Empty Day",
		Description: "8h working time with a 30 minute break and nothing booked",
	},
	{
		ID:          "partially-allocated",
		Name:        "Partially Allocated",
		Description: "Frontend 2h and Backend 1.5h booked, 4.5h remaining",
	},
	{
		ID:          "duplicate-slots",
		Name:        "Duplicate Slots",
		Description: "Backend booked as two separate slots; shown as one record and merged on the next change",
	},
	{
		ID:          "over-allocated",
		Name:        "Over-Allocated",
		Description: "5h booked on a 4h working time",
	},
	{
		ID:          "nothing-to-allocate",
		Name:        "Nothing To Allocate",
		Description: "30 minute working time marked as intentionally unallocated",
	},
	{
		ID:          "ongoing",
		Name:        "Ongoing Working Time",
		Description: "Working time started three hours ago and not yet ended",
	},
}

// Task catalog shared by all scenarios.
const (
	taskBackend  allocation.TaskID = "task-backend"
	taskFrontend allocation.TaskID = "task-frontend"
	taskMeetings allocation.TaskID = "task-meetings"
	taskSupport  allocation.TaskID = "task-support"
	taskReview   allocation.TaskID = "task-review"

	// defaultPlaceholderTask is seeded when no placeholder task is configured.
	defaultPlaceholderTask allocation.TaskID = "task-nothing-to-allocate"
)

// typeOffice is the working-time type of every seeded working time.
const typeOffice = "wtt-office"


// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	if h.Seeder == nil {
		writeError(w, http.StatusNotFound, "Scenarios need the sqlite or memory backend", nil)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the backend and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Seeder == nil {
		writeError(w, http.StatusNotFound, "Scenarios need the sqlite or memory backend", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context, time.Time) error
	switch req.ScenarioID {
	case "empty-day":
		load = h.loadEmptyDayScenario
	case "partially-allocated":
		load = h.loadPartiallyAllocatedScenario
	case "duplicate-slots":
		load = h.loadDuplicateSlotsScenario
	case "over-allocated":
		load = h.loadOverAllocatedScenario
	case "nothing-to-allocate":
		load = h.loadNothingToAllocateScenario
	case "ongoing":
		load = h.loadOngoingScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Seeder.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset backend", err)
		return
	}
	h.currentScenario = ""

	if err := h.seedCatalog(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	now := h.Now().In(h.Location)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.Location)
	if err := load(ctx, day); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadEmptyDayScenario(ctx context.Context, day time.Time) error {
	return h.seedPeriod(ctx, "wt-empty-day", at(day, 8, 30), at(day, 17, 0), 30)
}

func (h *Handler) loadPartiallyAllocatedScenario(ctx context.Context, day time.Time) error {
	const id = "wt-partially-allocated"
	if err := h.seedPeriod(ctx, id, at(day, 9, 0), at(day, 17, 30), 30); err != nil {
		return err
	}
	// Canonical layout: descending task name, back-to-back from the start.
	if err := h.seedSlot(ctx, id, taskFrontend, at(day, 9, 0), 120); err != nil {
		return err
	}
	return h.seedSlot(ctx, id, taskBackend, at(day, 11, 0), 90)
}

func (h *Handler) loadDuplicateSlotsScenario(ctx context.Context, day time.Time) error {
	const id = "wt-duplicate-slots"
	if err := h.seedPeriod(ctx, id, at(day, 9, 0), at(day, 17, 0), 0); err != nil {
		return err
	}
	if err := h.seedSlot(ctx, id, taskBackend, at(day, 9, 0), 20); err != nil {
		return err
	}
	if err := h.seedSlot(ctx, id, taskBackend, at(day, 9, 20), 25); err != nil {
		return err
	}
	return h.seedSlot(ctx, id, taskMeetings, at(day, 10, 0), 60)
}

func (h *Handler) loadOverAllocatedScenario(ctx context.Context, day time.Time) error {
	const id = "wt-over-allocated"
	if err := h.seedPeriod(ctx, id, at(day, 8, 0), at(day, 12, 0), 0); err != nil {
		return err
	}
	if err := h.seedSlot(ctx, id, taskSupport, at(day, 8, 0), 180); err != nil {
		return err
	}
	return h.seedSlot(ctx, id, taskMeetings, at(day, 11, 0), 120)
}

func (h *Handler) loadNothingToAllocateScenario(ctx context.Context, day time.Time) error {
	const id = "wt-nothing-to-allocate"
	if err := h.seedPeriod(ctx, id, at(day, 13, 0), at(day, 13, 30), 0); err != nil {
		return err
	}
	return h.seedSlot(ctx, id, h.placeholderTask(), at(day, 13, 0), 0)
}

func (h *Handler) loadOngoingScenario(ctx context.Context, day time.Time) error {
	const id = "wt-ongoing"
	start := h.Now().In(h.Location).Add(-3 * time.Hour).Truncate(time.Minute)
	if start.Before(day) {
		start = day
	}
	if err := h.Seeder.SavePeriod(ctx, allocation.WorkingPeriod{ID: id, Start: start, BreakMinutes: 15, TypeID: typeOffice}); err != nil {
		return err
	}
	return h.seedSlot(ctx, id, taskReview, start, 60)
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

// seedCatalog saves the tasks and working-time types every scenario uses.
func (h *Handler) seedCatalog(ctx context.Context) error {
	types := []allocation.WorkingTimeType{
		{ID: typeOffice, Name: "Office", Category: allocation.CategoryAttendance},
		{ID: "wtt-remote", Name: "Remote work", Category: allocation.CategoryAttendance},
		{ID: "wtt-vacation", Name: "Vacation", Category: "leave"},
		{ID: "wtt-travel", Name: "Business travel (old)", Category: allocation.CategoryAttendance, Archived: true},
	}
	for _, t := range types {
		if err := h.Seeder.SaveWorkingTimeType(ctx, t); err != nil {
			return fmt.Errorf("save working-time type %s: %w", t.ID, err)
		}
	}
	return h.seedTasks(ctx)
}

func (h *Handler) seedTasks(ctx context.Context) error {
	tasks := []allocation.Task{
		{ID: taskBackend, Name: "Backend development", Breadcrumbs: "ACME > Platform"},
		{ID: taskFrontend, Name: "Frontend development", Breadcrumbs: "ACME > Platform"},
		{ID: taskReview, Name: "Code review", Breadcrumbs: "ACME > Platform"},
		{ID: taskMeetings, Name: "Meetings", Breadcrumbs: "ACME > Internal"},
		{ID: taskSupport, Name: "Customer support", Breadcrumbs: "ACME > Operations"},
		{ID: h.placeholderTask(), Name: "Nothing to allocate", Breadcrumbs: "Internal"},
	}
	for _, t := range tasks {
		if err := h.Seeder.SaveTask(ctx, t); err != nil {
			return fmt.Errorf("save task %s: %w", t.ID, err)
		}
	}
	return nil
}

func (h *Handler) seedPeriod(ctx context.Context, id allocation.PeriodID, start, end time.Time, breakMinutes int) error {
	p := allocation.WorkingPeriod{ID: id, Start: start, End: &end, BreakMinutes: breakMinutes, TypeID: typeOffice}
	if err := h.Seeder.SavePeriod(ctx, p); err != nil {
		return fmt.Errorf("save working time %s: %w", id, err)
	}
	return nil
}

func (h *Handler) seedSlot(ctx context.Context, periodID allocation.PeriodID, taskID allocation.TaskID, start time.Time, minutes int) error {
	slot := allocation.NewTimeSlot(periodID, taskID, start, allocation.AddMinutes(start, minutes))
	if _, err := h.Seeder.SaveSlot(ctx, slot); err != nil {
		return fmt.Errorf("save slot for %s: %w", taskID, err)
	}
	return nil
}

func (h *Handler) placeholderTask() allocation.TaskID {
	if h.PlaceholderTaskID != "" {
		return h.PlaceholderTaskID
	}
	return defaultPlaceholderTask
}

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
