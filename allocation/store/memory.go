// Package store provides an in-memory allocation backend.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohrner-it/task-timr/allocation"
)

// =============================================================================
// MEMORY BACKEND - In-memory implementation (for testing/dev)
// =============================================================================

// Call records one write made against the Memory backend.
type Call struct {
	Kind   allocation.OperationKind
	TaskID allocation.TaskID
	SlotID allocation.SlotID
}

var _ allocation.Backend = (*Memory)(nil)

// Memory implements allocation.Backend in memory.
type Memory struct {
	mu      sync.RWMutex
	periods map[allocation.PeriodID]allocation.WorkingPeriod
	tasks   map[allocation.TaskID]allocation.Task
	slots   map[allocation.SlotID]allocation.TimeSlot
	types   []allocation.WorkingTimeType
	calls   []Call
	fetches int

	// FailWith, when set, is consulted before every write. A non-nil error
	// fails that write without changing state.
	FailWith func(kind allocation.OperationKind, slot allocation.TimeSlot) error

	// BeforeFetch, when set, runs at the start of every FetchSlots without
	// holding the lock. A non-nil error fails the fetch.
	BeforeFetch func(ctx context.Context, periodID allocation.PeriodID) error

	// DefaultTypeID is given to created periods without a type.
	DefaultTypeID string

	// NextID assigns ids to created slots and periods. Defaults to random UUIDs.
	NextID func() string
}

func NewMemory() *Memory {
	return &Memory{
		periods: make(map[allocation.PeriodID]allocation.WorkingPeriod),
		tasks:   make(map[allocation.TaskID]allocation.Task),
		slots:   make(map[allocation.SlotID]allocation.TimeSlot),
		NextID:  uuid.NewString,
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) AddPeriod(p allocation.WorkingPeriod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[p.ID] = p
}

func (m *Memory) AddTask(t allocation.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
}

func (m *Memory) AddWorkingTimeType(t allocation.WorkingTimeType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, t)
}

// PutSlot stores a slot as-is, bypassing FailWith and the call log. A slot
// without an id gets one. Used to seed remote quirks such as duplicates.
func (m *Memory) PutSlot(s allocation.TimeSlot) allocation.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = allocation.SlotID(m.NextID())
	}
	m.slots[s.ID] = s
	return s
}

// Slots returns the period's stored slots ordered by start, then id.
func (m *Memory) Slots(periodID allocation.PeriodID) []allocation.TimeSlot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slotsLocked(periodID)
}

// Calls returns the writes made so far.
func (m *Memory) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Call(nil), m.calls...)
}

// ResetCalls clears the call log and the fetch count.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.fetches = 0
}

// Fetches returns how many times FetchSlots was called.
func (m *Memory) Fetches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetches
}

// Reset drops all periods, tasks, slots and calls.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods = make(map[allocation.PeriodID]allocation.WorkingPeriod)
	m.tasks = make(map[allocation.TaskID]allocation.Task)
	m.slots = make(map[allocation.SlotID]allocation.TimeSlot)
	m.types = nil
	m.calls = nil
	m.fetches = 0
	return nil
}

// SavePeriod, SaveTask, SaveWorkingTimeType and SaveSlot match the sqlite
// store's seeding API.

func (m *Memory) SavePeriod(_ context.Context, p allocation.WorkingPeriod) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.AddPeriod(p)
	return nil
}

func (m *Memory) SaveTask(_ context.Context, t allocation.Task) error {
	m.AddTask(t)
	return nil
}

func (m *Memory) SaveWorkingTimeType(_ context.Context, t allocation.WorkingTimeType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.types {
		if m.types[i].ID == t.ID {
			m.types[i] = t
			return nil
		}
	}
	m.types = append(m.types, t)
	return nil
}

func (m *Memory) SaveSlot(_ context.Context, s allocation.TimeSlot) (allocation.TimeSlot, error) {
	return m.PutSlot(s), nil
}

// =============================================================================
// SLOT REPOSITORY
// =============================================================================

func (m *Memory) FetchSlots(ctx context.Context, periodID allocation.PeriodID) ([]allocation.TimeSlot, error) {
	m.mu.Lock()
	m.fetches++
	hook := m.BeforeFetch
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, periodID); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.periods[periodID]; !ok {
		return nil, &allocation.NotFoundError{Kind: "working_period", ID: string(periodID)}
	}
	return m.slotsLocked(periodID), nil
}

func (m *Memory) CreateSlot(_ context.Context, periodID allocation.PeriodID, taskID allocation.TaskID, start, end time.Time) (allocation.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := allocation.NewTimeSlot(periodID, taskID, start, end)
	if err := m.fail(allocation.OpCreate, slot); err != nil {
		return allocation.TimeSlot{}, err
	}
	if _, ok := m.tasks[taskID]; !ok {
		return allocation.TimeSlot{}, &allocation.NotFoundError{Kind: "task", ID: string(taskID)}
	}

	slot.ID = allocation.SlotID(m.NextID())
	m.slots[slot.ID] = slot
	m.calls = append(m.calls, Call{Kind: allocation.OpCreate, TaskID: taskID, SlotID: slot.ID})
	return m.withTask(slot), nil
}

func (m *Memory) UpdateSlot(_ context.Context, slotID allocation.SlotID, start, end time.Time) (allocation.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[slotID]
	if !ok {
		return allocation.TimeSlot{}, &allocation.NotFoundError{Kind: "slot", ID: string(slotID)}
	}
	moved := slot
	moved.Start, moved.End = start, end
	moved.DurationMinutes = allocation.MinutesBetween(start, end)
	if err := m.fail(allocation.OpUpdate, moved); err != nil {
		return allocation.TimeSlot{}, err
	}

	m.slots[slotID] = moved
	m.calls = append(m.calls, Call{Kind: allocation.OpUpdate, TaskID: slot.TaskID, SlotID: slotID})
	return m.withTask(moved), nil
}

func (m *Memory) DeleteSlot(_ context.Context, slotID allocation.SlotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[slotID]
	if !ok {
		return &allocation.NotFoundError{Kind: "slot", ID: string(slotID)}
	}
	if err := m.fail(allocation.OpDelete, slot); err != nil {
		return err
	}

	delete(m.slots, slotID)
	m.calls = append(m.calls, Call{Kind: allocation.OpDelete, TaskID: slot.TaskID, SlotID: slotID})
	return nil
}

// ListSlots returns the slots of every period starting within [from, to],
// ordered by start.
func (m *Memory) ListSlots(_ context.Context, from, to time.Time) ([]allocation.TimeSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []allocation.TimeSlot
	for _, s := range m.slots {
		if !s.Start.Before(from) && !s.Start.After(to) {
			out = append(out, m.withTask(s))
		}
	}
	sortSlots(out)
	return out, nil
}

// =============================================================================
// PERIOD STORE
// =============================================================================

func (m *Memory) CreateWorkingPeriod(_ context.Context, p allocation.WorkingPeriod) (allocation.WorkingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = allocation.PeriodID(m.NextID())
	if p.TypeID == "" {
		p.TypeID = m.DefaultTypeID
	}
	m.periods[p.ID] = p
	return p, nil
}

func (m *Memory) UpdateWorkingPeriod(_ context.Context, p allocation.WorkingPeriod) (allocation.WorkingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.periods[p.ID]; !ok {
		return allocation.WorkingPeriod{}, &allocation.NotFoundError{Kind: "working_period", ID: string(p.ID)}
	}
	m.periods[p.ID] = p
	return p, nil
}

// DeleteWorkingPeriod removes the period together with its slots.
func (m *Memory) DeleteWorkingPeriod(_ context.Context, id allocation.PeriodID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.periods[id]; !ok {
		return &allocation.NotFoundError{Kind: "working_period", ID: string(id)}
	}
	delete(m.periods, id)
	for slotID, s := range m.slots {
		if s.PeriodID == id {
			delete(m.slots, slotID)
		}
	}
	return nil
}

func (m *Memory) ListWorkingTimeTypes(context.Context) ([]allocation.WorkingTimeType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]allocation.WorkingTimeType(nil), m.types...), nil
}

// =============================================================================
// PERIOD SOURCE / TASK CATALOG
// =============================================================================

func (m *Memory) GetWorkingPeriod(_ context.Context, id allocation.PeriodID) (allocation.WorkingPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.periods[id]
	if !ok {
		return allocation.WorkingPeriod{}, &allocation.NotFoundError{Kind: "working_period", ID: string(id)}
	}
	return p, nil
}

func (m *Memory) ListWorkingPeriods(_ context.Context, from, to time.Time) ([]allocation.WorkingPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []allocation.WorkingPeriod
	for _, p := range m.periods {
		if !p.Start.Before(from) && !p.Start.After(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) GetTask(_ context.Context, id allocation.TaskID) (allocation.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return allocation.Task{}, &allocation.NotFoundError{Kind: "task", ID: string(id)}
	}
	return t, nil
}

func (m *Memory) SearchTasks(_ context.Context, query string) ([]allocation.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	var out []allocation.Task
	for _, t := range m.tasks {
		if len(q) < 3 ||
			strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Breadcrumbs), q) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Memory) slotsLocked(periodID allocation.PeriodID) []allocation.TimeSlot {
	var out []allocation.TimeSlot
	for _, s := range m.slots {
		if s.PeriodID == periodID {
			out = append(out, m.withTask(s))
		}
	}
	sortSlots(out)
	return out
}

func sortSlots(slots []allocation.TimeSlot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].ID < slots[j].ID
	})
}

// withTask fills task metadata the way the remote service embeds it.
func (m *Memory) withTask(s allocation.TimeSlot) allocation.TimeSlot {
	if t, ok := m.tasks[s.TaskID]; ok {
		s.TaskName = t.Name
		s.TaskBreadcrumbs = t.Breadcrumbs
	}
	return s
}

func (m *Memory) fail(kind allocation.OperationKind, slot allocation.TimeSlot) error {
	if m.FailWith == nil {
		return nil
	}
	return m.FailWith(kind, slot)
}
