/*
task.go - Tasks, their allocations and the consolidation boundary

PURPOSE:
  A Task is the unit the planner schedules: a [Start, End) span on the
  intra-day axis, a position constraint, the quantity it derives
  (CalculatedValue) and the resource allocations that carry its effort.

CONSOLIDATION:
  Progress reported from the field locks the past. The first day not
  consolidated only moves forward. Allocations read it to tell history from
  plan (see allocation.go).

KEY OPERATIONS:
  NewSpecificAllocation / NewGenericAllocation / RemoveAllocation
  ResizeTo(newEnd)     every allocation follows the new end
  MoveTo(newStart)     shift and re-allocate (refused with consolidations)
  Consolidate(until)
  ScheduleFromEffort   derive the free end (forward) or start (backward)
*/
package planner

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultWorkingDay is the capacity assumed when a task has no calendar.
const DefaultWorkingDay = 8 * Hour

type Task struct {
	ID   TaskID
	Name string

	Start IntraDayDate
	End   IntraDayDate

	Constraint      PositionConstraint
	CalculatedValue CalculatedValue
	Calendar        Calendar

	// Estimated work, used when nothing is assigned yet.
	WorkHours EffortDuration
	// Effort reported through timesheets.
	ChargedEffort         EffortDuration
	UpdatedFromTimesheets bool
	AutoConsolidate       bool

	Budget    decimal.Decimal
	MoneyCost decimal.Decimal

	Version   int64
	RemovedAt *time.Time

	firstDayNotConsolidated *Day
	allocations             []*ResourceAllocation
}

// NewTask creates an as-soon-as-possible task deriving its end date.
func NewTask(id TaskID, name string, start, end IntraDayDate) (*Task, error) {
	if end.Before(start) {
		return nil, ErrInvalidInterval
	}
	if id == "" {
		id = TaskID(uuid.NewString())
	}
	return &Task{
		ID:              id,
		Name:            name,
		Start:           start,
		End:             end,
		Constraint:      PositionConstraint{Type: AsSoonAsPossible},
		CalculatedValue: CalculatedEndDate,
	}, nil
}

// Direction is backward for tasks anchored at their end.
func (t *Task) Direction() Direction {
	switch t.Constraint.Type {
	case AsLateAsPossible, FinishNotLaterThan:
		return Backward
	}
	return Forward
}

func (t *Task) Range() DateRange { return RangeBetween(t.Start, t.End) }

func (t *Task) IsRemoved() bool { return t.RemovedAt != nil }

// MarkRemoved end-dates the task.
func (t *Task) MarkRemoved(at time.Time) {
	if t.RemovedAt == nil {
		t.RemovedAt = &at
	}
}

func (t *Task) calendar() Calendar {
	if t.Calendar == nil {
		return FixedCalendar(DefaultWorkingDay)
	}
	return t.Calendar
}

// =============================================================================
// CONSOLIDATION
// =============================================================================

// FirstDayNotConsolidated returns the boundary, false when nothing is
// consolidated.
func (t *Task) FirstDayNotConsolidated() (Day, bool) {
	if t.firstDayNotConsolidated == nil {
		return Day{}, false
	}
	return *t.firstDayNotConsolidated, true
}

func (t *Task) HasConsolidations() bool { return t.firstDayNotConsolidated != nil }

// Consolidate locks every day up to and including until. The boundary never
// moves backward; an earlier until is ignored and reported as false.
func (t *Task) Consolidate(until Day) bool {
	next := until.AddDays(1)
	if t.firstDayNotConsolidated != nil && !next.After(*t.firstDayNotConsolidated) {
		return false
	}
	t.firstDayNotConsolidated = &next
	return true
}

// RestoreConsolidation sets the boundary verbatim. Only loaders should call it.
func (t *Task) RestoreConsolidation(first *Day) {
	if first == nil {
		t.firstDayNotConsolidated = nil
		return
	}
	d := *first
	t.firstDayNotConsolidated = &d
}

func (t *Task) isConsolidated(d Day) bool {
	return t.firstDayNotConsolidated != nil && d.Before(*t.firstDayNotConsolidated)
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

// AcceptsAllocation reports whether an allocation, limiting or not, may join
// the task. A limiting allocation is placed by its queue together with its
// task, so it never shares the task with another allocation.
func (t *Task) AcceptsAllocation(limiting bool) error {
	for _, a := range t.allocations {
		if limiting || a.Limiting {
			return limitingNotAlone()
		}
	}
	return nil
}

// ValidateAllocations checks a freshly built task against AcceptsAllocation.
func (t *Task) ValidateAllocations() error {
	if len(t.allocations) < 2 {
		return nil
	}
	for _, a := range t.allocations {
		if a.Limiting {
			return limitingNotAlone()
		}
	}
	return nil
}

func limitingNotAlone() error {
	return &PolicyViolationError{
		Code:    "limiting_not_alone",
		Message: "A limiting allocation must be the only allocation of its task.",
		Cause:   ErrLimitingNotAlone,
	}
}

func (t *Task) NewSpecificAllocation(r *Resource) (*ResourceAllocation, error) {
	if r == nil {
		return nil, &InvalidArgumentError{Field: "resource", Reason: "required"}
	}
	if err := t.AcceptsAllocation(r.Limiting); err != nil {
		return nil, err
	}
	a := newAllocation(AllocationID(uuid.NewString()), SpecificAllocation, t)
	a.Resource = r
	a.Limiting = r.Limiting
	t.allocations = append(t.allocations, a)
	return a, nil
}

// NewGenericAllocation allocates on the candidates satisfying every
// criterion. It is limiting when all of them are.
func (t *Task) NewGenericAllocation(criteria []Criterion, candidates []*Resource) (*ResourceAllocation, error) {
	if len(criteria) == 0 {
		return nil, &InvalidArgumentError{Field: "criteria", Reason: "at least one criterion is required"}
	}
	var pool []*Resource
	for _, r := range candidates {
		if r != nil && r.Satisfies(criteria) {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		return nil, &InvalidArgumentError{Field: "criteria", Reason: "no resource satisfies them"}
	}
	sortResources(pool)
	limiting := true
	for _, r := range pool {
		limiting = limiting && r.Limiting
	}
	if err := t.AcceptsAllocation(limiting); err != nil {
		return nil, err
	}

	a := newAllocation(AllocationID(uuid.NewString()), GenericAllocation, t)
	a.Criteria = append([]Criterion(nil), criteria...)
	a.Pool = pool
	a.Limiting = limiting
	t.allocations = append(t.allocations, a)
	return a, nil
}

// RestoreAllocation re-creates a persisted allocation over [start, end)
// without computing anything. Only loaders should call it.
func (t *Task) RestoreAllocation(id AllocationID, kind AllocationKind, start, end IntraDayDate) *ResourceAllocation {
	a := newAllocation(id, kind, t)
	a.start, a.end = start, end
	t.allocations = append(t.allocations, a)
	return a
}

func (t *Task) Allocations() []*ResourceAllocation {
	return append([]*ResourceAllocation(nil), t.allocations...)
}

func (t *Task) Allocation(id AllocationID) (*ResourceAllocation, error) {
	for _, a := range t.allocations {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, ErrAllocationNotFound
}

// RemoveAllocation unassigns an allocation. Allocations holding consolidated
// effort stay.
func (t *Task) RemoveAllocation(id AllocationID) error {
	for i, a := range t.allocations {
		if a.ID != id {
			continue
		}
		if a.HasConsolidatedAssignments() {
			return &PolicyViolationError{
				Code:    "remove_consolidated",
				Message: "The allocation has consolidated progress and cannot be removed.",
				Cause:   ErrConsolidatedHistory,
			}
		}
		t.allocations = append(t.allocations[:i], t.allocations[i+1:]...)
		return nil
	}
	return ErrAllocationNotFound
}

func (t *Task) Aggregate() *Aggregate { return NewAggregate(t.allocations...) }

// =============================================================================
// REPOSITIONING
// =============================================================================

// ResizeTo moves the task end. Allocations reaching the old end follow a
// growing task; every allocation is cut by a shrinking one.
func (t *Task) ResizeTo(newEnd IntraDayDate) error {
	if newEnd.Before(t.Start) {
		return ErrInvalidInterval
	}
	if first, ok := t.FirstDayNotConsolidated(); ok && newEnd.Before(StartOfDay(first)) {
		return &PolicyViolationError{
			Code:    "resize_into_consolidated",
			Message: "The new end date falls inside consolidated progress.",
			Cause:   ErrConsolidatedHistory,
		}
	}

	return t.atomically(func() error {
		oldEnd := t.End
		t.End = newEnd
		for _, a := range t.allocations {
			switch {
			case newEnd.Before(a.start):
				if err := a.SetInterval(newEnd, newEnd); err != nil {
					return err
				}
			case newEnd.Before(a.end):
				if err := a.ResizeTo(newEnd); err != nil {
					return err
				}
			case newEnd.After(oldEnd) && a.end.Equal(oldEnd):
				if err := a.ResizeTo(newEnd); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// MoveTo shifts the task by whole days so it starts on newStart's day, and
// re-allocates every allocation's effort over its shifted interval.
func (t *Task) MoveTo(newStart IntraDayDate) error {
	if t.HasConsolidations() {
		return &PolicyViolationError{
			Code:    "move_consolidated",
			Message: "The task has consolidated progress and cannot be moved.",
			Cause:   ErrConsolidatedHistory,
		}
	}
	delta := t.Start.Day.DaysUntil(newStart.Day)
	if delta == 0 && newStart.Effort == t.Start.Effort {
		return nil
	}
	shift := func(p IntraDayDate) IntraDayDate { return IntraDayDate{Day: p.Day.AddDays(delta), Effort: p.Effort} }

	return t.atomically(func() error {
		t.Start = newStart
		t.End = MaxIntraDay(shift(t.End), newStart)
		for _, a := range t.allocations {
			held := a.AssignedEffort()
			if a.IsManual() {
				a.shiftDays(delta)
				a.start, a.end = shift(a.start), shift(a.end)
				continue
			}
			if err := a.SetInterval(MaxIntraDay(shift(a.start), t.Start), MinIntraDay(shift(a.end), t.End)); err != nil {
				return err
			}
			if err := a.Allocate(held); err != nil {
				return err
			}
		}
		return nil
	})
}

// PlaceAt puts the task on [start, end) and re-allocates its allocations
// flat over it. The queue scheduler uses it for limiting tasks, which hold
// their limiting allocation alone.
func (t *Task) PlaceAt(start, end IntraDayDate) error {
	if end.Before(start) {
		return ErrInvalidInterval
	}
	if t.HasConsolidations() && (!start.Equal(t.Start) || !end.Equal(t.End)) {
		return &PolicyViolationError{
			Code:    "move_consolidated",
			Message: "The task has consolidated progress and cannot be moved.",
			Cause:   ErrConsolidatedHistory,
		}
	}
	return t.atomically(func() error {
		t.Start, t.End = start, end
		for _, a := range t.allocations {
			held := a.AssignedEffort()
			if err := a.SetInterval(start, end); err != nil {
				return err
			}
			a.function = nil
			if err := a.Allocate(held); err != nil {
				return err
			}
		}
		return nil
	})
}

// atomically runs fn and puts the task and its allocations back as they were
// when fn fails.
func (t *Task) atomically(fn func() error) error {
	start, end := t.Start, t.End
	saved := make([]allocationState, len(t.allocations))
	for i, a := range t.allocations {
		saved[i] = a.snapshot()
	}
	if err := fn(); err != nil {
		t.Start, t.End = start, end
		for i, a := range t.allocations {
			a.restore(saved[i])
		}
		return err
	}
	return nil
}

// ScheduleFromEffort derives the free side of the task from the effort
// needed: forward tasks compute the end, backward tasks the start.
func (t *Task) ScheduleFromEffort(effort EffortDuration) error {
	cal := t.calendar()
	if t.Direction() == Backward {
		start, err := t.End.SubtractEffort(cal, effort)
		if err != nil {
			return err
		}
		t.Start = start
		return nil
	}
	end, err := t.Start.rollToCapacity(cal).AddEffort(cal, effort)
	if err != nil {
		return err
	}
	t.End = end
	return nil
}

// =============================================================================
// POSITION CONSTRAINTS
// =============================================================================

type BoundKind string

const (
	AtLeast BoundKind = "at_least"
	Exactly BoundKind = "exactly"
	AtMost  BoundKind = "at_most"
)

// DateBound limits a task start or end.
type DateBound struct {
	Kind BoundKind
	Date IntraDayDate
}

// Apply moves p into the bound.
func (b DateBound) Apply(p IntraDayDate) IntraDayDate {
	switch b.Kind {
	case AtLeast:
		return MaxIntraDay(p, b.Date)
	case AtMost:
		return MinIntraDay(p, b.Date)
	}
	return b.Date
}

// StartConstraints lists the bounds on the task start. orderStart may be nil.
func (t *Task) StartConstraints(orderStart *Day) []DateBound {
	c := t.Constraint
	switch c.Type {
	case AsSoonAsPossible:
		if orderStart != nil {
			return []DateBound{{Kind: AtLeast, Date: StartOfDay(*orderStart)}}
		}
	case StartInFixedDate:
		if c.Date != nil {
			return []DateBound{{Kind: Exactly, Date: *c.Date}}
		}
	case StartNotEarlierThan:
		if c.Date != nil {
			return []DateBound{{Kind: AtLeast, Date: *c.Date}}
		}
	}
	return nil
}

// EndConstraints lists the bounds on the task end. deadline may be nil.
func (t *Task) EndConstraints(deadline *Day) []DateBound {
	c := t.Constraint
	switch c.Type {
	case AsLateAsPossible:
		if deadline != nil {
			return []DateBound{{Kind: AtMost, Date: EndOfDay(*deadline)}}
		}
	case FinishNotLaterThan:
		if c.Date != nil {
			return []DateBound{{Kind: AtMost, Date: *c.Date}}
		}
	}
	return nil
}

// =============================================================================
// ADVANCE
// =============================================================================

// HoursAdvancePercentage is charged effort over assigned effort (or over the
// estimated work hours when nothing is assigned), as a percentage.
func (t *Task) HoursAdvancePercentage() decimal.Decimal {
	total := t.Aggregate().TotalEffort()
	if total == 0 {
		total = t.WorkHours
	}
	return Percentage(t.ChargedEffort, total)
}

// MoneyCostPercentage is money cost over budget as a percentage.
func (t *Task) MoneyCostPercentage() decimal.Decimal {
	if !t.Budget.IsPositive() {
		return decimal.Zero
	}
	return t.MoneyCost.Mul(decimal.NewFromInt(100)).DivRound(t.Budget, 2)
}

// AdvanceEndDate is the position reached after proportion (0..1) of the
// task's calendar effort.
func (t *Task) AdvanceEndDate(proportion decimal.Decimal) IntraDayDate {
	if !proportion.IsPositive() {
		return t.Start
	}
	cal := t.calendar()
	total := t.Start.EffortUntil(cal, t.End)
	part := EffortDuration(decimal.NewFromInt(int64(total)).Mul(proportion).Floor().IntPart())
	if part >= total {
		return t.End
	}
	p, err := t.Start.rollToCapacity(cal).AddEffort(cal, part)
	if err != nil {
		return t.End
	}
	return p
}
