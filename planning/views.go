package planning

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/store"
)

// =============================================================================
// CATALOG
// =============================================================================

// SaveCalendar stores a calendar after checking it resolves together with
// the stored ones.
func (s *Service) SaveCalendar(ctx context.Context, doc factory.CalendarDoc) error {
	if doc.ID == "" {
		return &planner.InvalidArgumentError{Field: "id", Reason: "required"}
	}
	return s.Run(ctx, nil, func(rc *Recomputation) error {
		return rc.SaveCalendar(doc)
	})
}

func (rc *Recomputation) SaveCalendar(doc factory.CalendarDoc) error {
	docs, err := rc.repo.ListCalendars(rc.ctx)
	if err != nil {
		return err
	}
	merged := []factory.CalendarDoc{doc}
	for _, d := range docs {
		if d.ID != doc.ID {
			merged = append(merged, d)
		}
	}
	if _, err := factory.BuildCalendars(merged); err != nil {
		return err
	}
	rc.invalidateCatalog()
	return rc.repo.SaveCalendar(rc.ctx, doc)
}

func (s *Service) ListCalendars(ctx context.Context) ([]factory.CalendarDoc, error) {
	return s.repo.ListCalendars(ctx)
}

func (s *Service) SaveResource(ctx context.Context, doc factory.ResourceDoc) error {
	if doc.ID == "" {
		return &planner.InvalidArgumentError{Field: "id", Reason: "required"}
	}
	return s.Run(ctx, nil, func(rc *Recomputation) error {
		return rc.SaveResource(doc)
	})
}

func (rc *Recomputation) SaveResource(doc factory.ResourceDoc) error {
	c, err := rc.Catalog()
	if err != nil {
		return err
	}
	if _, err := c.BuildResource(doc); err != nil {
		return err
	}
	rc.invalidateCatalog()
	return rc.repo.SaveResource(rc.ctx, doc)
}

func (s *Service) ListResources(ctx context.Context) ([]factory.ResourceDoc, error) {
	return s.repo.ListResources(ctx)
}

// =============================================================================
// TASKS
// =============================================================================

func (s *Service) GetTask(ctx context.Context, id string) (factory.TaskDoc, error) {
	doc, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return factory.TaskDoc{}, err
	}
	if doc.RemovedAt != nil {
		return factory.TaskDoc{}, planner.ErrTaskNotFound
	}
	return doc, nil
}

func (s *Service) ListTasks(ctx context.Context, includeRemoved bool) ([]factory.TaskDoc, error) {
	return s.repo.ListTasks(ctx, includeRemoved)
}

// TaskView is a task with its allocation grid at one zoom level.
type TaskView struct {
	Task         factory.TaskDoc
	Zoom         planner.ZoomLevel
	Restriction  planner.Restriction
	Total        planner.EffortDuration
	Consolidated planner.EffortDuration
	HoursAdvance decimal.Decimal
	MoneyCost    decimal.Decimal
	AdvanceEnd   planner.IntraDayDate
	Items        []planner.DetailItem
	// ItemTotals[i] is the effort of every allocation on Items[i].
	ItemTotals  []planner.EffortDuration
	Allocations []AllocationView
}

type AllocationView struct {
	ID       planner.AllocationID
	Label    string
	Kind     planner.AllocationKind
	Function planner.FunctionKind
	Limiting bool
	QueuedOn planner.ResourceID
	Start    planner.IntraDayDate
	End      planner.IntraDayDate
	Assigned planner.EffortDuration
	Cells    []CellView
}

type CellView struct {
	Effort   planner.EffortDuration
	Editable bool
	Reason   string
}

func (s *Service) TaskView(ctx context.Context, id string, zoom planner.ZoomLevel) (TaskView, error) {
	var view TaskView
	err := s.Run(ctx, nil, func(rc *Recomputation) error {
		var err error
		view, err = rc.TaskView(planner.TaskID(id), zoom)
		return err
	})
	return view, err
}

func (rc *Recomputation) TaskView(id planner.TaskID, zoom planner.ZoomLevel) (TaskView, error) {
	t, err := rc.Task(id)
	if err != nil {
		return TaskView{}, err
	}
	restriction, err := t.Restriction()
	if err != nil {
		return TaskView{}, err
	}
	items, err := planner.DetailItems(zoom, t.Range())
	if err != nil {
		return TaskView{}, err
	}

	agg := t.Aggregate()
	advance := t.HoursAdvancePercentage()
	view := TaskView{
		Task:         factory.TaskToDoc(t),
		Zoom:         zoom,
		Restriction:  restriction,
		Total:        agg.TotalEffort(),
		Consolidated: agg.ConsolidatedEffort(),
		HoursAdvance: advance,
		MoneyCost:    t.MoneyCostPercentage(),
		AdvanceEnd:   t.AdvanceEndDate(advance.Div(decimal.NewFromInt(100))),
		Items:        items,
	}
	for _, item := range items {
		view.ItemTotals = append(view.ItemTotals, agg.EffortOnItem(item))
	}
	for _, a := range agg.SortedByStart() {
		av := AllocationView{
			ID:       a.ID,
			Label:    a.Label(),
			Kind:     a.Kind,
			Function: a.FunctionKind(),
			Limiting: a.Limiting,
			QueuedOn: a.QueuedOn,
			Start:    a.Start(),
			End:      a.End(),
			Assigned: a.AssignedEffort(),
		}
		for _, item := range items {
			state := planner.ItemEditableState(t, a, item, restriction)
			av.Cells = append(av.Cells, CellView{Effort: a.EffortOnItem(item), Editable: state.Editable, Reason: state.Reason})
		}
		view.Allocations = append(view.Allocations, av)
	}
	return view, nil
}

// =============================================================================
// RESOURCE LOAD
// =============================================================================

type LoadGrouping string

const (
	ByResource  LoadGrouping = "resource"
	ByCriterion LoadGrouping = "criterion"
)

// ResourceLoad reads the day assignment index rather than loading tasks.
func (s *Service) ResourceLoad(ctx context.Context, rng planner.DateRange, groupBy LoadGrouping) ([]planner.LoadTimeline, error) {
	if !rng.Valid() {
		return nil, planner.ErrInvalidInterval
	}
	calendars, err := s.repo.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	resources, err := s.repo.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	c, err := factory.NewCatalog(calendars, resources)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.DayAssignments(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	totals := store.Totals(records)
	switch groupBy {
	case ByCriterion:
		return planner.LoadByCriterion(c.Resources, totals, rng), nil
	case ByResource, "":
		return planner.LoadByResource(c.Resources, totals, rng), nil
	}
	return nil, &planner.InvalidArgumentError{Field: "group_by", Reason: "unknown grouping " + string(groupBy)}
}

// =============================================================================
// QUEUES AND RUNS
// =============================================================================

type QueueView struct {
	Resource planner.ResourceID
	Elements []planner.QueueElement
}

func (s *Service) Queues(ctx context.Context) ([]QueueView, error) {
	var views []QueueView
	err := s.Run(ctx, nil, func(rc *Recomputation) error {
		var err error
		views, err = rc.Queues()
		return err
	})
	return views, err
}

func (rc *Recomputation) Queues() ([]QueueView, error) {
	sched, err := rc.Scheduler()
	if err != nil {
		return nil, err
	}
	var views []QueueView
	for _, q := range sched.Queues() {
		if q.Len() == 0 {
			continue
		}
		views = append(views, QueueView{Resource: q.Resource.ID, Elements: q.Elements()})
	}
	return views, nil
}

func (s *Service) ConsolidationRuns(ctx context.Context, status store.RunStatus) ([]store.ConsolidationRun, error) {
	return s.repo.ListConsolidationRuns(ctx, status)
}
