package planning

import (
	"context"
	"fmt"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
)

// =============================================================================
// PLAN REPLAY
// =============================================================================

// StepResult is the outcome of one replayed step.
type StepResult struct {
	Index   int
	Step    factory.StepDoc
	Changed bool
	// Placed is set by queue steps.
	Placed *planner.QueueElement
}

// PlanResult summarises an applied plan.
type PlanResult struct {
	Name  string
	Tasks []factory.TaskDoc
	Steps []StepResult
}

// ApplyPlan loads a plan's catalog and tasks and replays its steps in one
// transaction. A failing step rolls back the whole plan. With reset the
// repository is emptied first.
func (s *Service) ApplyPlan(ctx context.Context, plan *factory.PlanDoc, reset bool) (*PlanResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	result := &PlanResult{Name: plan.Name}
	var created []planner.TaskID
	err := s.Run(ctx, nil, func(rc *Recomputation) error {
		if reset {
			if err := rc.repo.Reset(rc.ctx); err != nil {
				return err
			}
		}
		// Calendars first: resources are validated against them.
		for _, doc := range plan.Calendars {
			if err := rc.SaveCalendar(doc); err != nil {
				return fmt.Errorf("calendar %s: %w", doc.ID, err)
			}
		}
		for _, doc := range plan.Resources {
			if err := rc.SaveResource(doc); err != nil {
				return fmt.Errorf("resource %s: %w", doc.ID, err)
			}
		}
		for _, doc := range plan.Tasks {
			t, err := rc.CreateTask(doc)
			if err != nil {
				return fmt.Errorf("task %s: %w", doc.ID, err)
			}
			created = append(created, t.ID)
		}
		for i, step := range plan.Steps {
			res, err := rc.ApplyStep(step)
			if err != nil {
				return fmt.Errorf("step %d (%s): %w", i, step, err)
			}
			res.Index = i
			result.Steps = append(result.Steps, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range created {
		doc, err := s.repo.GetTask(ctx, string(id))
		if err != nil {
			return nil, err
		}
		result.Tasks = append(result.Tasks, doc)
	}
	s.logger.Info("plan applied", "plan", plan.Name, "tasks", len(result.Tasks), "steps", len(result.Steps))
	return result, nil
}

// ApplyStep runs one plan step against the recomputation.
func (rc *Recomputation) ApplyStep(step factory.StepDoc) (StepResult, error) {
	res := StepResult{Step: step, Changed: true}
	task := planner.TaskID(step.Task)
	alloc := planner.AllocationID(step.Allocation)

	switch step.Op {
	case factory.StepAllocate:
		effort, err := planner.ParseEffort(step.Effort)
		if err != nil {
			return res, err
		}
		return res, rc.Allocate(task, alloc, effort)

	case factory.StepAllocateOn:
		effort, err := planner.ParseEffort(step.Effort)
		if err != nil {
			return res, err
		}
		start, err := planner.ParseIntraDayDate(step.Start)
		if err != nil {
			return res, err
		}
		end, err := planner.ParseIntraDayDate(step.End)
		if err != nil {
			return res, err
		}
		return res, rc.AllocateOn(task, alloc, start, end, effort)

	case factory.StepFunction:
		if step.Function == nil {
			return res, &planner.InvalidArgumentError{Field: "function", Reason: "required"}
		}
		fn, err := factory.BuildFunction(*step.Function)
		if err != nil {
			return res, err
		}
		return res, rc.SetFunction(task, alloc, fn)

	case factory.StepResize:
		end, err := planner.ParseIntraDayDate(step.End)
		if err != nil {
			return res, err
		}
		return res, rc.Resize(task, end)

	case factory.StepMove:
		start, err := planner.ParseIntraDayDate(step.Start)
		if err != nil {
			return res, err
		}
		return res, rc.Move(task, start)

	case factory.StepConsolidate:
		until, err := planner.ParseDay(step.Date)
		if err != nil {
			return res, err
		}
		res.Changed, err = rc.Consolidate(task, until)
		return res, err

	case factory.StepEnqueue:
		start, err := planner.ParseIntraDayDate(step.Start)
		if err != nil {
			return res, err
		}
		placed, err := rc.Enqueue(task, alloc, start, step.Priority)
		if err != nil {
			return res, err
		}
		res.Placed = &placed
		return res, nil

	case factory.StepMoveQueued:
		start, err := planner.ParseIntraDayDate(step.Start)
		if err != nil {
			return res, err
		}
		placed, err := rc.MoveQueued(task, alloc, start, step.Fixed)
		if err != nil {
			return res, err
		}
		res.Placed = &placed
		return res, nil

	case factory.StepEditItem:
		zoom, err := planner.ParseZoomLevel(step.Zoom)
		if err != nil {
			return res, err
		}
		day, err := planner.ParseDay(step.Date)
		if err != nil {
			return res, err
		}
		effort, err := planner.ParseEffort(step.Effort)
		if err != nil {
			return res, err
		}
		return res, rc.EditDetailItem(task, alloc, zoom, day, effort)

	case factory.StepRemoveAllocation:
		return res, rc.RemoveAllocation(task, alloc)
	}
	return res, &planner.InvalidArgumentError{Field: "op", Reason: "unknown op " + string(step.Op)}
}
