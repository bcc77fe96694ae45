// Package memory provides an in-memory store.TxRepository for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/store"
)

// =============================================================================
// MEMORY REPOSITORY
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	state
}

type state struct {
	calendars map[string]factory.CalendarDoc
	resources map[string]factory.ResourceDoc
	tasks     map[string]factory.TaskDoc
	days      map[string][]store.DayAssignmentRecord // by task
	queues    map[string][]factory.QueueElementDoc   // by resource
	runs      map[runKey]store.ConsolidationRun
}

type runKey struct {
	TaskID string
	Until  string
}

func New() *Memory {
	return &Memory{state: newState()}
}

func newState() state {
	return state{
		calendars: make(map[string]factory.CalendarDoc),
		resources: make(map[string]factory.ResourceDoc),
		tasks:     make(map[string]factory.TaskDoc),
		days:      make(map[string][]store.DayAssignmentRecord),
		queues:    make(map[string][]factory.QueueElementDoc),
		runs:      make(map[runKey]store.ConsolidationRun),
	}
}

func (m *Memory) SaveCalendar(ctx context.Context, doc factory.CalendarDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveCalendar(ctx, doc)
}

func (m *Memory) ListCalendars(ctx context.Context) ([]factory.CalendarDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListCalendars(ctx)
}

func (m *Memory) SaveResource(ctx context.Context, doc factory.ResourceDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveResource(ctx, doc)
}

func (m *Memory) ListResources(ctx context.Context) ([]factory.ResourceDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListResources(ctx)
}

func (m *Memory) SaveTask(ctx context.Context, doc factory.TaskDoc) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveTask(ctx, doc)
}

func (m *Memory) GetTask(ctx context.Context, id string) (factory.TaskDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetTask(ctx, id)
}

func (m *Memory) ListTasks(ctx context.Context, includeRemoved bool) ([]factory.TaskDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListTasks(ctx, includeRemoved)
}

func (m *Memory) DayAssignments(ctx context.Context, from, to planner.Day) ([]store.DayAssignmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.DayAssignments(ctx, from, to)
}

func (m *Memory) SaveQueue(ctx context.Context, resource string, elements []factory.QueueElementDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveQueue(ctx, resource, elements)
}

func (m *Memory) ListQueueElements(ctx context.Context) ([]factory.QueueElementDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListQueueElements(ctx)
}

func (m *Memory) SaveConsolidationRun(ctx context.Context, run store.ConsolidationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveConsolidationRun(ctx, run)
}

func (m *Memory) ListConsolidationRuns(ctx context.Context, status store.RunStatus) ([]store.ConsolidationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListConsolidationRuns(ctx, status)
}

func (m *Memory) IsConsolidationComplete(ctx context.Context, taskID string, until planner.Day) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsConsolidationComplete(ctx, taskID, until)
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Reset(ctx)
}

// WithTx runs fn against the repository under the write lock. Writes go
// straight to the maps; on error the snapshot taken before fn is restored.
func (m *Memory) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// =============================================================================
// STATE - Unlocked operations, shared by Memory and transactions
// =============================================================================

func (s *state) clone() state {
	c := newState()
	for k, v := range s.calendars {
		c.calendars[k] = v
	}
	for k, v := range s.resources {
		c.resources[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.days {
		c.days[k] = append([]store.DayAssignmentRecord(nil), v...)
	}
	for k, v := range s.queues {
		c.queues[k] = append([]factory.QueueElementDoc(nil), v...)
	}
	for k, v := range s.runs {
		c.runs[k] = v
	}
	return c
}

func (s *state) SaveCalendar(_ context.Context, doc factory.CalendarDoc) error {
	s.calendars[doc.ID] = doc
	return nil
}

func (s *state) ListCalendars(_ context.Context) ([]factory.CalendarDoc, error) {
	result := make([]factory.CalendarDoc, 0, len(s.calendars))
	for _, c := range s.calendars {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) SaveResource(_ context.Context, doc factory.ResourceDoc) error {
	s.resources[doc.ID] = doc
	return nil
}

func (s *state) ListResources(_ context.Context) ([]factory.ResourceDoc, error) {
	result := make([]factory.ResourceDoc, 0, len(s.resources))
	for _, r := range s.resources {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) SaveTask(_ context.Context, doc factory.TaskDoc) (int64, error) {
	if doc.ID == "" {
		return 0, &planner.InvalidArgumentError{Field: "task.id", Reason: "required"}
	}
	if err := store.CheckVersion(doc.ID, s.tasks[doc.ID].Version, doc.Version); err != nil {
		return 0, err
	}
	days, err := store.DayAssignmentsOf(doc)
	if err != nil {
		return 0, err
	}
	doc.Version++
	s.tasks[doc.ID] = doc
	s.days[doc.ID] = days
	return doc.Version, nil
}

func (s *state) GetTask(_ context.Context, id string) (factory.TaskDoc, error) {
	doc, ok := s.tasks[id]
	if !ok {
		return factory.TaskDoc{}, planner.ErrTaskNotFound
	}
	return doc, nil
}

func (s *state) ListTasks(_ context.Context, includeRemoved bool) ([]factory.TaskDoc, error) {
	var result []factory.TaskDoc
	for _, t := range s.tasks {
		if t.RemovedAt != nil && !includeRemoved {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) DayAssignments(_ context.Context, from, to planner.Day) ([]store.DayAssignmentRecord, error) {
	var result []store.DayAssignmentRecord
	for _, records := range s.days {
		for _, r := range records {
			if from.BeforeOrEqual(r.Day) && r.Day.BeforeOrEqual(to) {
				result = append(result, r)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Day.Equal(result[j].Day) {
			return result[i].Day.Before(result[j].Day)
		}
		if result[i].Resource != result[j].Resource {
			return result[i].Resource < result[j].Resource
		}
		return result[i].AllocationID < result[j].AllocationID
	})
	return result, nil
}

func (s *state) SaveQueue(_ context.Context, resource string, elements []factory.QueueElementDoc) error {
	if len(elements) == 0 {
		delete(s.queues, resource)
		return nil
	}
	s.queues[resource] = append([]factory.QueueElementDoc(nil), elements...)
	return nil
}

func (s *state) ListQueueElements(_ context.Context) ([]factory.QueueElementDoc, error) {
	var result []factory.QueueElementDoc
	for _, elements := range s.queues {
		result = append(result, elements...)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Resource != result[j].Resource {
			return result[i].Resource < result[j].Resource
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

func (s *state) SaveConsolidationRun(_ context.Context, run store.ConsolidationRun) error {
	k := runKey{TaskID: run.TaskID, Until: run.Until.String()}
	if existing, ok := s.runs[k]; ok {
		// Upsert keeps the original identity.
		run.ID, run.CreatedAt = existing.ID, existing.CreatedAt
	}
	s.runs[k] = run
	return nil
}

func (s *state) ListConsolidationRuns(_ context.Context, status store.RunStatus) ([]store.ConsolidationRun, error) {
	var result []store.ConsolidationRun
	for _, r := range s.runs {
		if status == "" || r.Status == status {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *state) IsConsolidationComplete(_ context.Context, taskID string, until planner.Day) (bool, error) {
	r, ok := s.runs[runKey{TaskID: taskID, Until: until.String()}]
	return ok && (r.Status == store.RunCompleted || r.Status == store.RunSkipped), nil
}

func (s *state) Reset(_ context.Context) error {
	*s = newState()
	return nil
}
