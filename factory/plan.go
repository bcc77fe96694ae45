package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/allocation-engine/planner"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// PLAN DOCUMENT - Catalog, tasks and the edits to replay on them
// =============================================================================

// PlanDoc is a self-contained planning file: the calendars, resources and
// tasks to load and the steps to apply afterwards, in order.
type PlanDoc struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Calendars   []CalendarDoc `json:"calendars,omitempty" yaml:"calendars,omitempty"`
	Resources   []ResourceDoc `json:"resources,omitempty" yaml:"resources,omitempty"`
	Tasks       []TaskDoc     `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Steps       []StepDoc     `json:"steps,omitempty" yaml:"steps,omitempty"`
}

type StepOp string

const (
	StepAllocate         StepOp = "allocate"
	StepAllocateOn       StepOp = "allocate_on"
	StepFunction         StepOp = "function"
	StepResize           StepOp = "resize"
	StepMove             StepOp = "move"
	StepConsolidate      StepOp = "consolidate"
	StepEnqueue          StepOp = "enqueue"
	StepMoveQueued       StepOp = "move_queued"
	StepEditItem         StepOp = "edit_item"
	StepRemoveAllocation StepOp = "remove_allocation"
)

var knownSteps = map[StepOp]bool{
	StepAllocate: true, StepAllocateOn: true, StepFunction: true, StepResize: true,
	StepMove: true, StepConsolidate: true, StepEnqueue: true, StepMoveQueued: true,
	StepEditItem: true, StepRemoveAllocation: true,
}

// StepDoc is one edit. Which fields matter depends on Op:
//
//	allocate           task, allocation, effort
//	allocate_on        task, allocation, start, end, effort
//	function           task, allocation, function
//	resize             task, end
//	move               task, start
//	consolidate        task, date
//	enqueue            task, allocation, start, priority
//	move_queued        task, allocation, start, fixed
//	edit_item          task, allocation, zoom, date, effort
//	remove_allocation  task, allocation
type StepDoc struct {
	Op         StepOp       `json:"op" yaml:"op"`
	Task       string       `json:"task" yaml:"task"`
	Allocation string       `json:"allocation,omitempty" yaml:"allocation,omitempty"`
	Effort     string       `json:"effort,omitempty" yaml:"effort,omitempty"`
	Start      string       `json:"start,omitempty" yaml:"start,omitempty"`
	End        string       `json:"end,omitempty" yaml:"end,omitempty"`
	Date       string       `json:"date,omitempty" yaml:"date,omitempty"`
	Zoom       string       `json:"zoom,omitempty" yaml:"zoom,omitempty"`
	Priority   int          `json:"priority,omitempty" yaml:"priority,omitempty"`
	Fixed      bool         `json:"fixed,omitempty" yaml:"fixed,omitempty"`
	Function   *FunctionDoc `json:"function,omitempty" yaml:"function,omitempty"`
}

func (s StepDoc) String() string {
	parts := []string{string(s.Op), s.Task}
	if s.Allocation != "" {
		parts = append(parts, s.Allocation)
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// PARSING
// =============================================================================

func ParsePlanJSON(data []byte) (*PlanDoc, error) {
	var p PlanDoc
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	return &p, p.Validate()
}

func ParsePlanYAML(data []byte) (*PlanDoc, error) {
	var p PlanDoc
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	return &p, p.Validate()
}

// Validate checks references between documents without building anything.
func (p *PlanDoc) Validate() error {
	calendars := make(map[string]bool)
	for _, c := range p.Calendars {
		calendars[c.ID] = true
	}
	resources := make(map[string]bool)
	for _, r := range p.Resources {
		if r.Calendar != "" && !calendars[r.Calendar] {
			return fmt.Errorf("resource %q calendar %q: %w", r.ID, r.Calendar, planner.ErrCalendarNotFound)
		}
		resources[r.ID] = true
	}
	tasks := make(map[string]bool)
	for _, t := range p.Tasks {
		if t.ID == "" {
			return &planner.InvalidArgumentError{Field: "task.id", Reason: "required in plan files"}
		}
		if tasks[t.ID] {
			return &planner.InvalidArgumentError{Field: "task.id", Reason: "duplicate " + t.ID}
		}
		tasks[t.ID] = true
		for _, a := range t.Allocations {
			if a.Resource != "" && !resources[a.Resource] {
				return fmt.Errorf("task %q resource %q: %w", t.ID, a.Resource, planner.ErrResourceNotFound)
			}
		}
	}
	for i, s := range p.Steps {
		if !knownSteps[s.Op] {
			return &planner.InvalidArgumentError{Field: fmt.Sprintf("steps[%d].op", i), Reason: "unknown op " + string(s.Op)}
		}
		if s.Task == "" {
			return &planner.InvalidArgumentError{Field: fmt.Sprintf("steps[%d].task", i), Reason: "required"}
		}
	}
	return nil
}

// Catalog builds the plan's calendars and resources.
func (p *PlanDoc) Catalog() (*Catalog, error) {
	return NewCatalog(p.Calendars, p.Resources)
}
