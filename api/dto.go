/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the planning API. Task, calendar, resource
  and queue documents travel as the factory documents the store persists;
  the types here cover edit requests and the computed views.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Efforts are strings in "H:MM" on output and accept "8h30m" or "8:30" on
  input. Positions are "2024-01-08" or "2024-01-08+4:00" (four hours into
  the day). Percentages are decimal strings with two places.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/documents.go: Document types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/planning"
	"github.com/warp/allocation-engine/store"
)

// =============================================================================
// REQUESTS
// =============================================================================

// AllocateRequest allocates effort over the whole allocation, or only over
// [start, end) when both are set.
type AllocateRequest struct {
	Effort string `json:"effort"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

type EditItemRequest struct {
	Zoom   string `json:"zoom"`
	Date   string `json:"date"`
	Effort string `json:"effort"`
}

type ResizeRequest struct {
	End string `json:"end"`
}

type MoveRequest struct {
	Start string `json:"start"`
}

type ConsolidateRequest struct {
	Until string `json:"until"`
}

type EnqueueRequest struct {
	Start    string `json:"start"`
	Priority int    `json:"priority,omitempty"`
}

type MoveQueuedRequest struct {
	Start string `json:"start"`
	Fixed bool   `json:"fixed,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// TASK VIEW
// =============================================================================

type TaskViewDTO struct {
	Task         factory.TaskDoc     `json:"task"`
	Zoom         string              `json:"zoom"`
	Restriction  RestrictionDTO      `json:"restriction"`
	Total        string              `json:"total"`
	Consolidated string              `json:"consolidated"`
	HoursAdvance decimal.Decimal     `json:"hours_advance"`
	MoneyCost    decimal.Decimal     `json:"money_cost"`
	AdvanceEnd   string              `json:"advance_end"`
	Items        []DetailItemDTO     `json:"items"`
	Allocations  []AllocationViewDTO `json:"allocations"`
}

type RestrictionDTO struct {
	Kind  string `json:"kind"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type DetailItemDTO struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
	Total string `json:"total"`
}

type AllocationViewDTO struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Kind     string    `json:"kind"`
	Function string    `json:"function"`
	Limiting bool      `json:"limiting"`
	QueuedOn string    `json:"queued_on,omitempty"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
	Assigned string    `json:"assigned"`
	Cells    []CellDTO `json:"cells"`
}

type CellDTO struct {
	Effort   string `json:"effort"`
	Editable bool   `json:"editable"`
	Reason   string `json:"reason,omitempty"`
}

func toTaskViewDTO(v planning.TaskView) TaskViewDTO {
	dto := TaskViewDTO{
		Task:         v.Task,
		Zoom:         string(v.Zoom),
		Restriction:  RestrictionDTO{Kind: string(v.Restriction.Kind)},
		Total:        v.Total.String(),
		Consolidated: v.Consolidated.String(),
		HoursAdvance: v.HoursAdvance,
		MoneyCost:    v.MoneyCost,
		AdvanceEnd:   v.AdvanceEnd.String(),
		Items:        make([]DetailItemDTO, 0, len(v.Items)),
		Allocations:  make([]AllocationViewDTO, 0, len(v.Allocations)),
	}
	if v.Restriction.Kind == planner.OnlyOnIntervalRestrict {
		dto.Restriction.Start = v.Restriction.Interval.Start.String()
		dto.Restriction.End = v.Restriction.Interval.End.String()
	}
	for i, item := range v.Items {
		dto.Items = append(dto.Items, DetailItemDTO{
			Label: item.Label,
			Start: item.Start.String(),
			End:   item.End.String(),
			Total: v.ItemTotals[i].String(),
		})
	}
	for _, a := range v.Allocations {
		av := AllocationViewDTO{
			ID:       string(a.ID),
			Label:    a.Label,
			Kind:     string(a.Kind),
			Function: string(a.Function),
			Limiting: a.Limiting,
			QueuedOn: string(a.QueuedOn),
			Start:    a.Start.String(),
			End:      a.End.String(),
			Assigned: a.Assigned.String(),
			Cells:    make([]CellDTO, 0, len(a.Cells)),
		}
		for _, c := range a.Cells {
			av.Cells = append(av.Cells, CellDTO{Effort: c.Effort.String(), Editable: c.Editable, Reason: c.Reason})
		}
		dto.Allocations = append(dto.Allocations, av)
	}
	return dto
}

// =============================================================================
// RESOURCE LOAD
// =============================================================================

// LoadPageDTO is one page of load groups.
type LoadPageDTO struct {
	GroupBy string            `json:"group_by"`
	From    string            `json:"from"`
	To      string            `json:"to"`
	Total   int               `json:"total"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
	Groups  []LoadTimelineDTO `json:"groups"`
}

type LoadTimelineDTO struct {
	Key           string       `json:"key"`
	Resources     []string     `json:"resources"`
	TotalAssigned string       `json:"total_assigned"`
	Overloaded    []string     `json:"overloaded"`
	Days          []LoadDayDTO `json:"days"`
}

type LoadDayDTO struct {
	Day      string `json:"day"`
	Assigned string `json:"assigned"`
	Capacity string `json:"capacity"`
	Level    string `json:"level"`
}

func toLoadTimelineDTO(l planner.LoadTimeline) LoadTimelineDTO {
	dto := LoadTimelineDTO{
		Key:           l.Key,
		Resources:     make([]string, 0, len(l.Resources)),
		TotalAssigned: l.TotalAssigned().String(),
		Overloaded:    []string{},
		Days:          make([]LoadDayDTO, 0, len(l.Days)),
	}
	for _, r := range l.Resources {
		dto.Resources = append(dto.Resources, string(r))
	}
	for _, d := range l.Overloaded() {
		dto.Overloaded = append(dto.Overloaded, d.String())
	}
	for _, d := range l.Days {
		dto.Days = append(dto.Days, LoadDayDTO{
			Day:      d.Day.String(),
			Assigned: d.Assigned.String(),
			Capacity: d.Capacity.String(),
			Level:    string(d.Level),
		})
	}
	return dto
}

// =============================================================================
// QUEUES, RUNS, PLANS
// =============================================================================

type QueueDTO struct {
	Resource string                    `json:"resource"`
	Elements []factory.QueueElementDoc `json:"elements"`
}

func toQueueDTO(q planning.QueueView) QueueDTO {
	dto := QueueDTO{Resource: string(q.Resource), Elements: make([]factory.QueueElementDoc, 0, len(q.Elements))}
	for _, e := range q.Elements {
		dto.Elements = append(dto.Elements, factory.QueueElementToDoc(e))
	}
	return dto
}

type RunDTO struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Until       string `json:"until"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func toRunDTO(run store.ConsolidationRun) RunDTO {
	dto := RunDTO{
		ID:     run.ID,
		TaskID: run.TaskID,
		Until:  run.Until.String(),
		Status: string(run.Status),
		Error:  run.Error,
	}
	if run.StartedAt != nil {
		dto.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

type PlanResultDTO struct {
	Name  string            `json:"name"`
	Tasks []factory.TaskDoc `json:"tasks"`
	Steps []StepResultDTO   `json:"steps"`
}

type StepResultDTO struct {
	Index   int                      `json:"index"`
	Op      string                   `json:"op"`
	Task    string                   `json:"task"`
	Changed bool                     `json:"changed"`
	Placed  *factory.QueueElementDoc `json:"placed,omitempty"`
}

func toPlanResultDTO(r *planning.PlanResult) PlanResultDTO {
	dto := PlanResultDTO{Name: r.Name, Tasks: r.Tasks, Steps: make([]StepResultDTO, 0, len(r.Steps))}
	for _, s := range r.Steps {
		step := StepResultDTO{Index: s.Index, Op: string(s.Step.Op), Task: s.Step.Task, Changed: s.Changed}
		if s.Placed != nil {
			doc := factory.QueueElementToDoc(*s.Placed)
			step.Placed = &doc
		}
		dto.Steps = append(dto.Steps, step)
	}
	return dto
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tasks       int    `json:"tasks"`
	Steps       int    `json:"steps"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}
