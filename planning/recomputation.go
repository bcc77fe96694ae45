package planning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/store"
)

// =============================================================================
// RECOMPUTATION - One planning transaction in progress
// =============================================================================

// Recomputation caches what a transaction has loaded and records what it
// changed. It is not safe for concurrent use; it lives for one Run.
type Recomputation struct {
	ctx    context.Context
	svc    *Service
	repo   store.Repository
	logger *slog.Logger

	catalog *factory.Catalog
	tasks   map[planner.TaskID]*planner.Task
	dirty   map[planner.TaskID]bool

	scheduler   *planner.QueueScheduler
	queuesDirty bool

	depth int
}

func newRecomputation(ctx context.Context, svc *Service, repo store.Repository) *Recomputation {
	return &Recomputation{
		ctx:     ctx,
		svc:     svc,
		repo:    repo,
		logger:  svc.logger,
		tasks:   make(map[planner.TaskID]*planner.Task),
		dirty:   make(map[planner.TaskID]bool),
	}
}

// Nested reports whether the current call joined an outer recomputation.
func (rc *Recomputation) Nested() bool { return rc.depth > 0 }

func (rc *Recomputation) Repository() store.Repository { return rc.repo }

// Catalog loads calendars and resources once per recomputation.
func (rc *Recomputation) Catalog() (*factory.Catalog, error) {
	if rc.catalog != nil {
		return rc.catalog, nil
	}
	calendars, err := rc.repo.ListCalendars(rc.ctx)
	if err != nil {
		return nil, err
	}
	resources, err := rc.repo.ListResources(rc.ctx)
	if err != nil {
		return nil, err
	}
	c, err := factory.NewCatalog(calendars, resources)
	if err != nil {
		return nil, fmt.Errorf("stored catalog is inconsistent: %w", err)
	}
	rc.catalog = c
	return c, nil
}

// invalidateCatalog forces the next Catalog call to reload. Tasks already
// loaded keep the calendars and resources they were built with.
func (rc *Recomputation) invalidateCatalog() { rc.catalog = nil }

// Task returns a task, loading it on first use. Removed tasks are not found.
func (rc *Recomputation) Task(id planner.TaskID) (*planner.Task, error) {
	if t, ok := rc.tasks[id]; ok {
		if t.IsRemoved() {
			return nil, planner.ErrTaskNotFound
		}
		return t, nil
	}
	doc, err := rc.repo.GetTask(rc.ctx, string(id))
	if err != nil {
		return nil, err
	}
	t, err := rc.build(doc)
	if err != nil {
		return nil, err
	}
	if t.IsRemoved() {
		return nil, planner.ErrTaskNotFound
	}
	return t, nil
}

func (rc *Recomputation) build(doc factory.TaskDoc) (*planner.Task, error) {
	c, err := rc.Catalog()
	if err != nil {
		return nil, err
	}
	t, err := c.BuildTask(doc)
	if err != nil {
		return nil, fmt.Errorf("stored task %s: %w", doc.ID, err)
	}
	rc.tasks[t.ID] = t
	if rc.scheduler != nil {
		rc.track(t)
	}
	return t, nil
}

// Allocation resolves a task and one of its allocations.
func (rc *Recomputation) Allocation(taskID planner.TaskID, id planner.AllocationID) (*planner.Task, *planner.ResourceAllocation, error) {
	t, err := rc.Task(taskID)
	if err != nil {
		return nil, nil, err
	}
	a, err := t.Allocation(id)
	if err != nil {
		return nil, nil, err
	}
	return t, a, nil
}

// Touch marks t to be saved when the recomputation ends.
func (rc *Recomputation) Touch(t *planner.Task) {
	rc.tasks[t.ID] = t
	rc.dirty[t.ID] = true
}

// Tasks loads every stored task that is not removed.
func (rc *Recomputation) Tasks() ([]*planner.Task, error) {
	docs, err := rc.repo.ListTasks(rc.ctx, false)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if _, ok := rc.tasks[planner.TaskID(doc.ID)]; ok {
			continue
		}
		if _, err := rc.build(doc); err != nil {
			return nil, err
		}
	}
	var result []*planner.Task
	for _, t := range rc.tasks {
		if !t.IsRemoved() {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// QUEUES
// =============================================================================

// Scheduler loads every task and queue on first use. Queue placements move
// other tasks, so they all have to be at hand.
func (rc *Recomputation) Scheduler() (*planner.QueueScheduler, error) {
	if rc.scheduler != nil {
		return rc.scheduler, nil
	}
	rc.scheduler = planner.NewQueueScheduler(rc.svc.cascade)
	rc.scheduler.OnPlace = func(e planner.QueueElement) { rc.touchQueued(e) }
	tasks, err := rc.Tasks()
	if err != nil {
		rc.scheduler = nil
		return nil, err
	}
	for _, t := range tasks {
		rc.track(t)
	}

	c, err := rc.Catalog()
	if err != nil {
		rc.scheduler = nil
		return nil, err
	}
	docs, err := rc.repo.ListQueueElements(rc.ctx)
	if err != nil {
		rc.scheduler = nil
		return nil, err
	}
	for _, doc := range docs {
		e, err := factory.BuildQueueElement(doc)
		if err != nil {
			rc.scheduler = nil
			return nil, err
		}
		r, err := c.Resources.Get(e.Resource)
		if err != nil {
			rc.logger.Warn("dropping queue element of unknown resource", "resource", e.Resource, "element", e.ID)
			rc.queuesDirty = true
			continue
		}
		t, ok := rc.tasks[e.TaskID]
		if !ok || t.IsRemoved() {
			rc.queuesDirty = true
			continue
		}
		e.Consolidated = e.Consolidated || t.HasConsolidations()
		rc.scheduler.Restore(r, e)
	}
	return rc.scheduler, nil
}

func (rc *Recomputation) track(t *planner.Task) {
	for _, a := range t.Allocations() {
		if a.Limiting {
			rc.scheduler.Track(a)
		}
	}
}

// queued reports the queue element holding allocation a, if any.
func (rc *Recomputation) queued(a *planner.ResourceAllocation) (planner.QueueElement, bool, error) {
	if !a.Limiting {
		return planner.QueueElement{}, false, nil
	}
	s, err := rc.Scheduler()
	if err != nil {
		return planner.QueueElement{}, false, err
	}
	for _, q := range s.Queues() {
		if e, ok := q.ElementFor(a.ID); ok {
			return e, true, nil
		}
	}
	return planner.QueueElement{}, false, nil
}

func (rc *Recomputation) queueOf(resource planner.ResourceID) *planner.LimitingQueue {
	for _, q := range rc.scheduler.Queues() {
		if q.Resource.ID == resource {
			return q
		}
	}
	return nil
}

// touchQueued marks the tasks of every placed element as changed.
func (rc *Recomputation) touchQueued(placed ...planner.QueueElement) {
	rc.queuesDirty = true
	for _, e := range placed {
		if t, ok := rc.tasks[e.TaskID]; ok {
			rc.Touch(t)
		}
	}
}

// =============================================================================
// FLUSH
// =============================================================================

func (rc *Recomputation) flush() error {
	if rc.scheduler != nil && rc.queuesDirty {
		if err := rc.scheduler.Validate(); err != nil {
			return fmt.Errorf("refusing to save overlapping queues: %w", err)
		}
	}

	ids := make([]planner.TaskID, 0, len(rc.dirty))
	for id := range rc.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t := rc.tasks[id]
		version, err := rc.repo.SaveTask(rc.ctx, factory.TaskToDoc(t))
		if err != nil {
			return fmt.Errorf("saving task %s: %w", id, err)
		}
		t.Version = version
	}

	if rc.scheduler != nil && rc.queuesDirty {
		if err := rc.saveQueues(); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		rc.logger.Debug("recomputation saved", "tasks", len(ids), "queues", rc.queuesDirty)
	}
	return nil
}

// saveQueues rewrites every known queue, including emptied ones.
func (rc *Recomputation) saveQueues() error {
	seen := make(map[planner.ResourceID]bool)
	for _, q := range rc.scheduler.Queues() {
		var docs []factory.QueueElementDoc
		for _, e := range q.Elements() {
			docs = append(docs, factory.QueueElementToDoc(e))
		}
		seen[q.Resource.ID] = true
		if err := rc.repo.SaveQueue(rc.ctx, string(q.Resource.ID), docs); err != nil {
			return fmt.Errorf("saving queue %s: %w", q.Resource.ID, err)
		}
	}
	// Queues of resources that disappeared from the catalog
	stored, err := rc.repo.ListQueueElements(rc.ctx)
	if err != nil {
		return err
	}
	for _, doc := range stored {
		if !seen[planner.ResourceID(doc.Resource)] {
			seen[planner.ResourceID(doc.Resource)] = true
			if err := rc.repo.SaveQueue(rc.ctx, doc.Resource, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
