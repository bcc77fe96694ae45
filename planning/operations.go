package planning

import (
	"context"
	"fmt"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
)

// =============================================================================
// TASKS
// =============================================================================

// CreateTask builds a new task from doc. Allocations in doc are created
// fresh unless they carry an id.
func (rc *Recomputation) CreateTask(doc factory.TaskDoc) (*planner.Task, error) {
	if doc.Version != 0 {
		return nil, &planner.InvalidArgumentError{Field: "version", Reason: "must be empty for a new task"}
	}
	if doc.ID != "" {
		if _, loaded := rc.tasks[planner.TaskID(doc.ID)]; loaded {
			return nil, &planner.InvalidArgumentError{Field: "id", Reason: "task " + doc.ID + " already exists"}
		}
		if _, err := rc.repo.GetTask(rc.ctx, doc.ID); err == nil {
			return nil, &planner.InvalidArgumentError{Field: "id", Reason: "task " + doc.ID + " already exists"}
		} else if !planner.IsNotFound(err) {
			return nil, err
		}
	}
	c, err := rc.Catalog()
	if err != nil {
		return nil, err
	}
	t, err := c.BuildTask(doc)
	if err != nil {
		return nil, err
	}
	if err := t.ValidateAllocations(); err != nil {
		return nil, err
	}
	rc.Touch(t)
	if rc.scheduler != nil {
		rc.track(t)
	}
	rc.logger.Info("task created", "task", t.ID, "allocations", len(t.Allocations()))
	return t, nil
}

// RemoveTask end-dates a task and takes its allocations off their queues.
func (rc *Recomputation) RemoveTask(id planner.TaskID) error {
	t, err := rc.Task(id)
	if err != nil {
		return err
	}
	for _, a := range t.Allocations() {
		if err := rc.unqueue(a); err != nil {
			return err
		}
	}
	t.MarkRemoved(rc.svc.now())
	rc.Touch(t)
	rc.logger.Info("task removed", "task", id)
	return nil
}

func (rc *Recomputation) AddAllocation(taskID planner.TaskID, doc factory.AllocationDoc) (*planner.ResourceAllocation, error) {
	t, err := rc.Task(taskID)
	if err != nil {
		return nil, err
	}
	c, err := rc.Catalog()
	if err != nil {
		return nil, err
	}
	a, err := c.AddAllocation(t, doc)
	if err != nil {
		return nil, err
	}
	if rc.scheduler != nil && a.Limiting {
		rc.scheduler.Track(a)
	}
	rc.Touch(t)
	return a, nil
}

func (rc *Recomputation) RemoveAllocation(taskID planner.TaskID, id planner.AllocationID) error {
	t, a, err := rc.Allocation(taskID, id)
	if err != nil {
		return err
	}
	if a.HasConsolidatedAssignments() {
		// Let the task refuse it before the queue is touched.
		return t.RemoveAllocation(id)
	}
	if err := rc.unqueue(a); err != nil {
		return err
	}
	if err := t.RemoveAllocation(id); err != nil {
		return err
	}
	rc.Touch(t)
	return nil
}

func (rc *Recomputation) unqueue(a *planner.ResourceAllocation) error {
	_, ok, err := rc.queued(a)
	if err != nil || !ok {
		return err
	}
	if err := rc.scheduler.Unqueue(a.ID); err != nil {
		return err
	}
	rc.queuesDirty = true
	return nil
}

// =============================================================================
// ALLOCATION EDITS
// =============================================================================

// notQueued refuses direct edits of allocations sitting on a limiting
// queue; those only move through the queue.
func (rc *Recomputation) notQueued(allocations ...*planner.ResourceAllocation) error {
	for _, a := range allocations {
		e, ok, err := rc.queued(a)
		if err != nil {
			return err
		}
		if ok {
			return &planner.PolicyViolationError{
				Code:    "queued_allocation",
				Message: fmt.Sprintf("The allocation %s is queued on %s and can only be moved through its queue.", a.Label(), e.Resource),
				Cause:   planner.ErrEditionDisabled,
			}
		}
	}
	return nil
}

func (rc *Recomputation) Allocate(taskID planner.TaskID, id planner.AllocationID, effort planner.EffortDuration) error {
	t, a, err := rc.Allocation(taskID, id)
	if err != nil {
		return err
	}
	if err := rc.notQueued(a); err != nil {
		return err
	}
	if err := a.Allocate(effort); err != nil {
		return err
	}
	rc.Touch(t)
	return nil
}

// AllocateOn edits a sub-interval keeping the allocation's resources.
func (rc *Recomputation) AllocateOn(taskID planner.TaskID, id planner.AllocationID, start, end planner.IntraDayDate, effort planner.EffortDuration) error {
	t, a, err := rc.Allocation(taskID, id)
	if err != nil {
		return err
	}
	if err := rc.notQueued(a); err != nil {
		return err
	}
	restriction, err := t.Restriction()
	if err != nil {
		return err
	}
	if err := restriction.Validate(planner.RangeBetween(start, end)); err != nil {
		return err
	}
	if err := a.AllocateOn(a.WithPreviousAssociatedResources().OnIntervalWithinTask(start, end), effort); err != nil {
		return err
	}
	rc.Touch(t)
	return nil
}

func (rc *Recomputation) SetFunction(taskID planner.TaskID, id planner.AllocationID, fn *planner.AssignmentFunction) error {
	t, a, err := rc.Allocation(taskID, id)
	if err != nil {
		return err
	}
	if err := rc.notQueued(a); err != nil {
		return err
	}
	if err := a.SetAssignmentFunctionAndApplyIfNotFlat(fn); err != nil {
		return err
	}
	rc.Touch(t)
	return nil
}

// EditDetailItem sets the effort of the grid cell of zoom containing day.
func (rc *Recomputation) EditDetailItem(taskID planner.TaskID, id planner.AllocationID, zoom planner.ZoomLevel, day planner.Day, effort planner.EffortDuration) error {
	t, a, err := rc.Allocation(taskID, id)
	if err != nil {
		return err
	}
	items, err := planner.DetailItems(zoom, planner.DateRange{Start: day, End: day})
	if err != nil {
		return err
	}
	restriction, err := t.Restriction()
	if err != nil {
		return err
	}
	if err := planner.EditDetailItem(t, a, items[0], effort, restriction); err != nil {
		return err
	}
	rc.Touch(t)
	return nil
}

// =============================================================================
// TASK POSITION
// =============================================================================

func (rc *Recomputation) Resize(taskID planner.TaskID, end planner.IntraDayDate) error {
	t, err := rc.Task(taskID)
	if err != nil {
		return err
	}
	if err := rc.notQueued(t.Allocations()...); err != nil {
		return err
	}
	if err := t.ResizeTo(end); err != nil {
		return err
	}
	rc.Touch(t)
	return nil
}

func (rc *Recomputation) Move(taskID planner.TaskID, start planner.IntraDayDate) error {
	t, err := rc.Task(taskID)
	if err != nil {
		return err
	}
	if err := rc.notQueued(t.Allocations()...); err != nil {
		return err
	}
	if err := t.MoveTo(start); err != nil {
		return err
	}
	rc.Touch(t)
	return nil
}

// Consolidate locks the task's assignments up to and including until. It
// reports false when the boundary was already there.
func (rc *Recomputation) Consolidate(taskID planner.TaskID, until planner.Day) (bool, error) {
	t, err := rc.Task(taskID)
	if err != nil {
		return false, err
	}
	if !t.Consolidate(until) {
		return false, nil
	}
	rc.Touch(t)
	if rc.scheduler != nil {
		// Elements restored before this call still carry the old flag.
		for _, a := range t.Allocations() {
			e, ok, err := rc.queued(a)
			if err != nil {
				return false, err
			}
			if ok && !e.Consolidated {
				q := rc.queueOf(e.Resource)
				e.Consolidated = true
				if err := q.Remove(e.ID); err != nil {
					return false, err
				}
				q.Restore(e)
				rc.queuesDirty = true
			}
		}
	}
	rc.logger.Info("task consolidated", "task", taskID, "until", until.String())
	return true, nil
}

// =============================================================================
// QUEUES
// =============================================================================

// Enqueue puts a limiting allocation on its queue at or after start.
func (rc *Recomputation) Enqueue(taskID planner.TaskID, id planner.AllocationID, start planner.IntraDayDate, priority int) (planner.QueueElement, error) {
	_, a, err := rc.Allocation(taskID, id)
	if err != nil {
		return planner.QueueElement{}, err
	}
	s, err := rc.Scheduler()
	if err != nil {
		return planner.QueueElement{}, err
	}
	placed, err := s.Enqueue(a, start, priority)
	if err != nil {
		return planner.QueueElement{}, err
	}
	rc.touchQueued(placed)
	rc.logger.Info("allocation queued", "task", taskID, "allocation", id, "resource", placed.Resource, "start", placed.Start.String())
	return placed, nil
}

// MoveQueued re-queues a queued allocation at or after start, or exactly at
// start when fixed.
func (rc *Recomputation) MoveQueued(taskID planner.TaskID, id planner.AllocationID, start planner.IntraDayDate, fixed bool) (planner.QueueElement, error) {
	_, a, err := rc.Allocation(taskID, id)
	if err != nil {
		return planner.QueueElement{}, err
	}
	e, ok, err := rc.queued(a)
	if err != nil {
		return planner.QueueElement{}, err
	}
	if !ok {
		return planner.QueueElement{}, planner.ErrQueueElementNotFound
	}

	var placed planner.QueueElement
	if fixed {
		placed, err = rc.scheduler.MoveToFixed(e.Resource, e.ID, start)
	} else {
		placed, err = rc.scheduler.Move(e.Resource, e.ID, start)
	}
	if err != nil {
		return planner.QueueElement{}, err
	}
	rc.touchQueued(placed)
	return placed, nil
}

// =============================================================================
// SERVICE ENTRY POINTS - One transaction each
// =============================================================================

// editTask runs fn in a fresh recomputation and returns the saved task.
func (s *Service) editTask(ctx context.Context, id string, fn func(rc *Recomputation) error) (factory.TaskDoc, error) {
	var t *planner.Task
	err := s.Run(ctx, nil, func(rc *Recomputation) error {
		if err := fn(rc); err != nil {
			return err
		}
		var err error
		t, err = rc.Task(planner.TaskID(id))
		return err
	})
	if err != nil {
		return factory.TaskDoc{}, err
	}
	return factory.TaskToDoc(t), nil
}

func (s *Service) CreateTask(ctx context.Context, doc factory.TaskDoc) (factory.TaskDoc, error) {
	var t *planner.Task
	err := s.Run(ctx, nil, func(rc *Recomputation) error {
		var err error
		t, err = rc.CreateTask(doc)
		return err
	})
	if err != nil {
		return factory.TaskDoc{}, err
	}
	return factory.TaskToDoc(t), nil
}

func (s *Service) RemoveTask(ctx context.Context, id string) error {
	return s.Run(ctx, nil, func(rc *Recomputation) error {
		return rc.RemoveTask(planner.TaskID(id))
	})
}

func (s *Service) AddAllocation(ctx context.Context, taskID string, doc factory.AllocationDoc) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		_, err := rc.AddAllocation(planner.TaskID(taskID), doc)
		return err
	})
}

func (s *Service) RemoveAllocation(ctx context.Context, taskID, id string) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		return rc.RemoveAllocation(planner.TaskID(taskID), planner.AllocationID(id))
	})
}

func (s *Service) Allocate(ctx context.Context, taskID, id string, effort planner.EffortDuration) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		return rc.Allocate(planner.TaskID(taskID), planner.AllocationID(id), effort)
	})
}

func (s *Service) AllocateOn(ctx context.Context, taskID, id string, start, end planner.IntraDayDate, effort planner.EffortDuration) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		return rc.AllocateOn(planner.TaskID(taskID), planner.AllocationID(id), start, end, effort)
	})
}

func (s *Service) SetFunction(ctx context.Context, taskID, id string, fn *planner.AssignmentFunction) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		return rc.SetFunction(planner.TaskID(taskID), planner.AllocationID(id), fn)
	})
}

func (s *Service) EditDetailItem(ctx context.Context, taskID, id string, zoom planner.ZoomLevel, day planner.Day, effort planner.EffortDuration) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		return rc.EditDetailItem(planner.TaskID(taskID), planner.AllocationID(id), zoom, day, effort)
	})
}

func (s *Service) Resize(ctx context.Context, taskID string, end planner.IntraDayDate) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		return rc.Resize(planner.TaskID(taskID), end)
	})
}

func (s *Service) Move(ctx context.Context, taskID string, start planner.IntraDayDate) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		return rc.Move(planner.TaskID(taskID), start)
	})
}

func (s *Service) Consolidate(ctx context.Context, taskID string, until planner.Day) (factory.TaskDoc, error) {
	return s.editTask(ctx, taskID, func(rc *Recomputation) error {
		_, err := rc.Consolidate(planner.TaskID(taskID), until)
		return err
	})
}

func (s *Service) Enqueue(ctx context.Context, taskID, id string, start planner.IntraDayDate, priority int) (planner.QueueElement, error) {
	var placed planner.QueueElement
	err := s.Run(ctx, nil, func(rc *Recomputation) error {
		var err error
		placed, err = rc.Enqueue(planner.TaskID(taskID), planner.AllocationID(id), start, priority)
		return err
	})
	return placed, err
}

func (s *Service) MoveQueued(ctx context.Context, taskID, id string, start planner.IntraDayDate, fixed bool) (planner.QueueElement, error) {
	var placed planner.QueueElement
	err := s.Run(ctx, nil, func(rc *Recomputation) error {
		var err error
		placed, err = rc.MoveQueued(planner.TaskID(taskID), planner.AllocationID(id), start, fixed)
		return err
	})
	return placed, err
}
