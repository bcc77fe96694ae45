/*
allocation.go - Resource allocations and their day-by-day assignments

PURPOSE:
  A ResourceAllocation states that one resource (specific) or a pool of
  criteria-matching resources (generic) works on a task across an interval.
  It owns the per-day assigned effort and recomputes it on every edit.

OPERATIONS:
  Allocate(effort)                      whole interval, active function
  AllocateOn(scope, effort)             sub-interval of the task, fixed resources
  ResizeTo(newEnd)                      grow re-allocates, shrink truncates
  SetAssignmentFunctionAndApplyIfNotFlat(fn)

CONSOLIDATION:
  Days before the task's first day not consolidated are history. Every
  recomputation skips them, subtracts their effort from the target and spreads
  the remainder over the unconsolidated days. Writing a consolidated day from
  inside a recomputation is an invariant violation (see invariants.go).

DISTRIBUTION:
  Flat (no function) drains days in task direction up to their free capacity.
  Any other function weighs the days (function.go) and splits the effort
  proportionally with capacity caps (distribute.go).

SEE ALSO:
  - function.go: assignment function profiles
  - task.go: owner of allocations and of the consolidation boundary
  - aggregate.go: totals across a task's allocations
*/
package planner

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY ASSIGNMENT
// =============================================================================

// DayAssignment is the effort one resource spends on one day for an
// allocation.
type DayAssignment struct {
	Day          Day
	Resource     ResourceID
	Effort       EffortDuration
	Consolidated bool
}

// =============================================================================
// RESOURCE ALLOCATION
// =============================================================================

type ResourceAllocation struct {
	ID   AllocationID
	Kind AllocationKind

	// Specific allocations
	Resource *Resource

	// Generic allocations
	Criteria []Criterion
	Pool     []*Resource

	Limiting bool
	// QueuedOn is the pool member a generic limiting allocation was queued on.
	QueuedOn ResourceID

	task     *Task
	start    IntraDayDate
	end      IntraDayDate
	function *AssignmentFunction
	days     map[Day]map[ResourceID]EffortDuration
}

func newAllocation(id AllocationID, kind AllocationKind, task *Task) *ResourceAllocation {
	return &ResourceAllocation{
		ID:    id,
		Kind:  kind,
		task:  task,
		start: task.Start,
		end:   task.End,
		days:  make(map[Day]map[ResourceID]EffortDuration),
	}
}

// Accessors
func (a *ResourceAllocation) Task() *Task                   { return a.task }
func (a *ResourceAllocation) Start() IntraDayDate           { return a.start }
func (a *ResourceAllocation) End() IntraDayDate             { return a.end }
func (a *ResourceAllocation) Range() DateRange              { return RangeBetween(a.start, a.end) }
func (a *ResourceAllocation) Function() *AssignmentFunction { return a.function }

// FunctionKind returns FunctionFlat when no function is set.
func (a *ResourceAllocation) FunctionKind() FunctionKind {
	if a.function == nil {
		return FunctionFlat
	}
	return a.function.Kind
}

func (a *ResourceAllocation) IsManual() bool { return a.FunctionKind() == FunctionManual }

func (a *ResourceAllocation) Direction() Direction {
	if a.task == nil {
		return Forward
	}
	return a.task.Direction()
}

// Label is a human readable name for listings.
func (a *ResourceAllocation) Label() string {
	if a.Kind == SpecificAllocation && a.Resource != nil {
		return a.Resource.Name
	}
	label := "generic"
	for i, c := range a.Criteria {
		if i == 0 {
			label += ": "
		} else {
			label += ", "
		}
		label += string(c)
	}
	return label
}

// =============================================================================
// QUERIES
// =============================================================================

// Assignments returns every non-zero day assignment ordered by day, then
// resource.
func (a *ResourceAllocation) Assignments() []DayAssignment {
	var result []DayAssignment
	for d, byResource := range a.days {
		for r, e := range byResource {
			result = append(result, DayAssignment{Day: d, Resource: r, Effort: e, Consolidated: a.isConsolidated(d)})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Day.Equal(result[j].Day) {
			return result[i].Day.Before(result[j].Day)
		}
		return result[i].Resource < result[j].Resource
	})
	return result
}

// ConsolidatedAssignments returns the assignments on days that are history.
func (a *ResourceAllocation) ConsolidatedAssignments() []DayAssignment {
	var result []DayAssignment
	for _, da := range a.Assignments() {
		if da.Consolidated {
			result = append(result, da)
		}
	}
	return result
}

func (a *ResourceAllocation) HasConsolidatedAssignments() bool {
	for d := range a.days {
		if a.isConsolidated(d) {
			return true
		}
	}
	return false
}

func (a *ResourceAllocation) EffortOn(day Day) EffortDuration {
	var total EffortDuration
	for _, e := range a.days[day] {
		total += e
	}
	return total
}

func (a *ResourceAllocation) EffortOnFor(day Day, resource ResourceID) EffortDuration {
	return a.days[day][resource]
}

// EffortBetween sums assigned effort on the days of r.
func (a *ResourceAllocation) EffortBetween(r DateRange) EffortDuration {
	var total EffortDuration
	for d := range a.days {
		if r.Contains(d) {
			total += a.EffortOn(d)
		}
	}
	return total
}

func (a *ResourceAllocation) AssignedEffort() EffortDuration {
	var total EffortDuration
	for d := range a.days {
		total += a.EffortOn(d)
	}
	return total
}

func (a *ResourceAllocation) ConsolidatedEffort() EffortDuration {
	var total EffortDuration
	for d := range a.days {
		if a.isConsolidated(d) {
			total += a.EffortOn(d)
		}
	}
	return total
}

// AssociatedResources lists the resources currently holding effort, or the
// allocation's resources when nothing is assigned yet.
func (a *ResourceAllocation) AssociatedResources() []ResourceID {
	seen := make(map[ResourceID]bool)
	for _, byResource := range a.days {
		for r := range byResource {
			seen[r] = true
		}
	}
	if len(seen) == 0 {
		for _, r := range a.candidates() {
			seen[r.ID] = true
		}
	}
	ids := make([]ResourceID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Calendar is the capacity the allocation sees: its resources bounded by the
// task calendar, summed over a generic pool.
func (a *ResourceAllocation) Calendar() Calendar {
	resources := a.candidates()
	return CalendarFunc(func(day Day) EffortDuration { return a.capacityOf(day, resources) })
}

// =============================================================================
// SCOPE - Sub-interval edit with fixed resources
// =============================================================================

// Scope selects the part of a task an allocation edit applies to. Resources,
// when set, restricts a generic allocation to the listed pool members. The
// interval is [Start, End) and is clamped to the task bounds.
type Scope struct {
	Resources []ResourceID
	Start     IntraDayDate
	End       IntraDayDate
}

// WithPreviousAssociatedResources starts a scope that keeps the resources
// currently assigned.
func (a *ResourceAllocation) WithPreviousAssociatedResources() Scope {
	return Scope{Resources: a.AssociatedResources(), Start: a.start, End: a.end}
}

// OnIntervalWithinTask returns a copy of s covering [start, end).
func (s Scope) OnIntervalWithinTask(start, end IntraDayDate) Scope {
	s.Start, s.End = start, end
	return s
}

// OnDays returns a copy of s covering the days of r.
func (s Scope) OnDays(r DateRange) Scope {
	return s.OnIntervalWithinTask(r.StartPosition(), r.EndPosition())
}

// =============================================================================
// ALLOCATE
// =============================================================================

// Allocate distributes effort over the allocation's whole interval.
func (a *ResourceAllocation) Allocate(effort EffortDuration) error {
	if effort < 0 {
		return ErrNegativeEffort
	}
	if !a.start.Before(a.end) {
		return nil
	}
	return a.distribute(a.start, a.end, effort, a.candidates())
}

// AllocateOn distributes effort over the scope's interval, clamped to the
// task. The allocation's interval grows to include the scope when needed.
func (a *ResourceAllocation) AllocateOn(scope Scope, effort EffortDuration) error {
	if effort < 0 {
		return ErrNegativeEffort
	}
	resources, err := a.resourcesFor(scope.Resources)
	if err != nil {
		return err
	}
	start, end := scope.Start, scope.End
	if a.task != nil {
		start = MaxIntraDay(start, a.task.Start)
		end = MinIntraDay(end, a.task.End)
	}
	if !start.Before(end) {
		return nil
	}
	a.start = MinIntraDay(a.start, start)
	a.end = MaxIntraDay(a.end, end)
	return a.distribute(start, end, effort, resources)
}

func (a *ResourceAllocation) distribute(start, end IntraDayDate, effort EffortDuration, resources []*Resource) error {
	days := RangeBetween(start, end).Days()

	var consolidated EffortDuration
	var free []Day
	var caps []EffortDuration
	for _, d := range days {
		if a.isConsolidated(d) {
			consolidated += a.EffortOn(d)
			continue
		}
		free = append(free, d)
		caps = append(caps, windowed(a.capacityOf(d, resources), d, start, end))
	}
	remaining := nonNegative(effort - consolidated)

	var shares []EffortDuration
	if a.function.IsFlat() {
		shares = fillSequentially(remaining, caps, a.Direction() == Backward)
	} else {
		weights, err := a.functionWeights(free, caps)
		if err != nil {
			return err
		}
		shares = distributeProportionally(remaining, weights, caps)
	}

	for i, d := range free {
		a.writeDay(d, shares[i], resources)
	}
	return nil
}

// functionWeights profiles the whole allocation interval under the active
// function and picks the weights of the given days.
func (a *ResourceAllocation) functionWeights(days []Day, caps []EffortDuration) ([]decimal.Decimal, error) {
	if a.function.Kind == FunctionManual {
		return effortWeights(caps), nil
	}
	resources := a.candidates()
	allDays := a.Range().Days()
	allCaps := make([]EffortDuration, len(allDays))
	for i, d := range allDays {
		allCaps[i] = windowed(a.capacityOf(d, resources), d, a.start, a.end)
	}
	profile, err := a.function.profile(allDays, allCaps)
	if err != nil {
		return nil, err
	}
	byDay := make(map[Day]decimal.Decimal, len(allDays))
	for i, d := range allDays {
		byDay[d] = profile[i]
	}
	weights := make([]decimal.Decimal, len(days))
	for i, d := range days {
		weights[i] = byDay[d]
	}
	return weights, nil
}

// =============================================================================
// RESIZE
// =============================================================================

// ResizeTo moves the allocation end. Growing re-allocates the held effort over
// the new interval (manual allocations keep their values); shrinking drops
// the effort beyond the new end without redistributing it.
func (a *ResourceAllocation) ResizeTo(newEnd IntraDayDate) error {
	if a.task != nil {
		newEnd = MinIntraDay(newEnd, a.task.End)
	}
	if newEnd.Before(a.start) {
		return ErrInvalidInterval
	}
	if a.task != nil {
		if first, ok := a.task.FirstDayNotConsolidated(); ok && newEnd.Before(StartOfDay(first)) && a.HasConsolidatedAssignments() {
			return &PolicyViolationError{
				Code:    "resize_into_consolidated",
				Message: "The new end date falls inside consolidated progress.",
				Cause:   ErrConsolidatedHistory,
			}
		}
	}

	switch newEnd.Compare(a.end) {
	case 0:
		return nil
	case -1:
		a.truncate(newEnd)
		return nil
	}

	held := a.AssignedEffort()
	saved := a.snapshot()
	a.end = newEnd
	if a.IsManual() {
		return nil
	}
	if err := a.Allocate(held); err != nil {
		a.restore(saved)
		return err
	}
	return nil
}

func (a *ResourceAllocation) truncate(newEnd IntraDayDate) {
	a.end = newEnd
	cut := newEnd.AsExclusiveEnd()
	for d := range a.days {
		if d.AfterOrEqual(cut) && !a.isConsolidated(d) {
			delete(a.days, d)
		}
	}
	if newEnd.IsStartOfDay() || a.isConsolidated(newEnd.Day) {
		return
	}
	resources := a.candidates()
	limit := windowed(a.capacityOf(newEnd.Day, resources), newEnd.Day, a.start, newEnd)
	if current := a.EffortOn(newEnd.Day); current > limit {
		kept := make([]*Resource, 0, len(resources))
		for _, r := range resources {
			if a.days[newEnd.Day][r.ID] > 0 {
				kept = append(kept, r)
			}
		}
		a.writeDay(newEnd.Day, limit, kept)
	}
}

// =============================================================================
// ASSIGNMENT FUNCTION
// =============================================================================

// SetAssignmentFunctionAndApplyIfNotFlat stores fn and, unless it is flat,
// re-derives the assignments from the currently held effort. A nil or flat
// fn clears the function and keeps the current values. Sigmoid is refused
// while the allocation holds consolidated assignments; a refused or invalid
// function leaves the allocation untouched.
func (a *ResourceAllocation) SetAssignmentFunctionAndApplyIfNotFlat(fn *AssignmentFunction) error {
	if fn.IsFlat() {
		a.function = nil
		return nil
	}
	if err := fn.Validate(a.Range()); err != nil {
		return err
	}
	anchored, err := fn.anchoredTo(a.Range())
	if err != nil {
		return err
	}
	if fn.Kind == FunctionSigmoid && a.HasConsolidatedAssignments() {
		return &PolicyViolationError{
			Code:    "sigmoid_consolidated",
			Message: "Task contains consolidated progress. Cannot apply sigmoid function.",
			Cause:   ErrSigmoidWithConsolidation,
		}
	}

	previous := a.function
	a.function = anchored
	if fn.Kind == FunctionManual {
		return nil
	}
	if err := a.Allocate(a.AssignedEffort()); err != nil {
		a.function = previous
		return err
	}
	return nil
}

// =============================================================================
// INTERVAL
// =============================================================================

// SetInterval changes [start, end) without recomputing. Assignments outside
// the new interval are dropped unless consolidated.
func (a *ResourceAllocation) SetInterval(start, end IntraDayDate) error {
	if end.Before(start) {
		return ErrInvalidInterval
	}
	a.start, a.end = start, end
	r := a.Range()
	for d := range a.days {
		if !r.Contains(d) && !a.isConsolidated(d) {
			delete(a.days, d)
		}
	}
	return nil
}

func (a *ResourceAllocation) shiftDays(delta int) {
	shifted := make(map[Day]map[ResourceID]EffortDuration, len(a.days))
	for d, byResource := range a.days {
		shifted[d.AddDays(delta)] = byResource
	}
	a.days = shifted
}

// RestoreAssignments loads persisted assignments verbatim. Only loaders
// should call it.
func (a *ResourceAllocation) RestoreAssignments(assignments []DayAssignment) {
	for _, da := range assignments {
		if da.Effort <= 0 {
			continue
		}
		if a.days[da.Day] == nil {
			a.days[da.Day] = make(map[ResourceID]EffortDuration)
		}
		a.days[da.Day][da.Resource] += da.Effort
	}
}

// RestoreFunction sets the function without applying it. Only loaders
// should call it.
func (a *ResourceAllocation) RestoreFunction(fn *AssignmentFunction) {
	if fn.IsFlat() {
		a.function = nil
		return
	}
	if anchored, err := fn.anchoredTo(a.Range()); err == nil {
		a.function = anchored
		return
	}
	a.function = fn.clone()
}

// allocationState is what a failed repositioning puts back.
type allocationState struct {
	start, end IntraDayDate
	function   *AssignmentFunction
	days       map[Day]map[ResourceID]EffortDuration
}

func (a *ResourceAllocation) snapshot() allocationState {
	days := make(map[Day]map[ResourceID]EffortDuration, len(a.days))
	for d, byResource := range a.days {
		copied := make(map[ResourceID]EffortDuration, len(byResource))
		for id, e := range byResource {
			copied[id] = e
		}
		days[d] = copied
	}
	return allocationState{start: a.start, end: a.end, function: a.function.clone(), days: days}
}

func (a *ResourceAllocation) restore(s allocationState) {
	a.start, a.end = s.start, s.end
	a.function = s.function
	a.days = s.days
}

// =============================================================================
// INTERNALS
// =============================================================================

func (a *ResourceAllocation) isConsolidated(d Day) bool {
	return a.task != nil && a.task.isConsolidated(d)
}

func (a *ResourceAllocation) candidates() []*Resource {
	if a.Kind == SpecificAllocation {
		if a.Resource == nil {
			return nil
		}
		return []*Resource{a.Resource}
	}
	if a.QueuedOn != "" {
		for _, r := range a.Pool {
			if r.ID == a.QueuedOn {
				return []*Resource{r}
			}
		}
	}
	return a.Pool
}

func (a *ResourceAllocation) resourcesFor(ids []ResourceID) ([]*Resource, error) {
	all := a.candidates()
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[ResourceID]*Resource, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}
	result := make([]*Resource, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, ErrResourceNotFound
		}
		result = append(result, r)
	}
	return result, nil
}

func (a *ResourceAllocation) calendarFor(r *Resource) Calendar {
	if a.task == nil || a.task.Calendar == nil {
		return r.Calendar
	}
	if r.Calendar == nil {
		return a.task.Calendar
	}
	return Intersect(r.Calendar, a.task.Calendar)
}

func (a *ResourceAllocation) capacityOf(d Day, resources []*Resource) EffortDuration {
	var total EffortDuration
	for _, r := range resources {
		total += CapacityOn(a.calendarFor(r), d)
	}
	return total
}

// windowed limits a day's capacity to the part inside [start, end).
func windowed(capacity EffortDuration, d Day, start, end IntraDayDate) EffortDuration {
	from, to := EffortDuration(0), capacity
	if d.Equal(start.Day) {
		from = MinEffort(start.Effort, capacity)
	}
	if d.Equal(end.Day) {
		to = MinEffort(end.Effort, capacity)
	}
	return nonNegative(to - from)
}

// writeDay replaces the day's effort, split over resources by capacity.
func (a *ResourceAllocation) writeDay(d Day, effort EffortDuration, resources []*Resource) {
	if a.isConsolidated(d) {
		invariantViolated("allocation %s: write of %s on consolidated day %s", a.ID, effort, d)
		return
	}
	delete(a.days, d)
	if effort <= 0 || len(resources) == 0 {
		return
	}
	byResource := make(map[ResourceID]EffortDuration, len(resources))
	if len(resources) == 1 {
		byResource[resources[0].ID] = effort
		a.days[d] = byResource
		return
	}

	caps := make([]EffortDuration, len(resources))
	for i, r := range resources {
		caps[i] = CapacityOn(a.calendarFor(r), d)
	}
	split := distributeProportionally(effort, effortWeights(caps), caps)
	// Whatever the pool cannot absorb stays with the first resource.
	split[0] += effort - SumEfforts(split...)
	for i, r := range resources {
		if split[i] > 0 {
			byResource[r.ID] = split[i]
		}
	}
	a.days[d] = byResource
}
