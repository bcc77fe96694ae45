/*
Package planner provides the resource allocation scheduling core.

PURPOSE:
  This package assigns effort for tasks to resources across a calendar-aware
  time axis. A task owns resource allocations; each allocation owns its
  per-day assignments and recomputes them whenever effort, interval or
  assignment function change. Nothing in this package performs I/O: callers
  load object graphs, invoke operations and persist the results.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: TaskID, AllocationID, ResourceID, Criterion
  - Direction: forward (fill from start) or backward (fill from end)
  - ConstraintType: how a task is positioned on the time axis
  - CalculatedValue: which quantity a task derives from the others
  - AllocationKind: specific (one resource) or generic (criteria pool)

DESIGN PRINCIPLES:
  1. Effort is integral: EffortDuration counts seconds, never fractions
  2. Precision: proportional splits use decimal.Decimal and largest remainder
  3. History is immutable: consolidated days are never rewritten
  4. Closed variants: kinds are tagged values dispatched with a switch

USAGE:
  cal := planner.NewWorkweekCalendar("default", "Default", planner.Hours(8))
  res := &planner.Resource{ID: "r-1", Name: "Ada", Calendar: cal}
  task, _ := planner.NewTask("t-1", "Design", planner.StartOfDay(mon), planner.EndOfDay(fri))
  alloc, _ := task.NewSpecificAllocation(res)
  _ = alloc.Allocate(planner.Hours(20))

SEE ALSO:
  - time.go: Day and IntraDayDate
  - allocation.go: ResourceAllocation and its operations
  - function.go: assignment functions
  - queue.go: limiting resource queues
*/
package planner

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TaskID string
type AllocationID string
type ResourceID string

// Criterion is a label a resource satisfies (e.g. "welder", "senior").
type Criterion string

// =============================================================================
// DIRECTION
// =============================================================================

type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// =============================================================================
// POSITION CONSTRAINTS
// =============================================================================

type ConstraintType string

const (
	AsSoonAsPossible    ConstraintType = "as_soon_as_possible"
	StartInFixedDate    ConstraintType = "start_in_fixed_date"
	StartNotEarlierThan ConstraintType = "start_not_earlier_than"
	AsLateAsPossible    ConstraintType = "as_late_as_possible"
	FinishNotLaterThan  ConstraintType = "finish_not_later_than"
)

// Valid reports whether t is one of the known constraint types.
func (t ConstraintType) Valid() bool {
	switch t {
	case AsSoonAsPossible, StartInFixedDate, StartNotEarlierThan, AsLateAsPossible, FinishNotLaterThan:
		return true
	}
	return false
}

// NeedsDate reports whether the constraint is anchored to an explicit date.
func (t ConstraintType) NeedsDate() bool {
	return t == StartInFixedDate || t == StartNotEarlierThan || t == FinishNotLaterThan
}

// PositionConstraint positions a task. Date is nil for the
// as-soon/as-late variants.
type PositionConstraint struct {
	Type ConstraintType
	Date *IntraDayDate
}

// =============================================================================
// CALCULATED VALUE
// =============================================================================

// CalculatedValue names the quantity a task derives from the other two.
type CalculatedValue string

const (
	CalculatedEndDate         CalculatedValue = "end_date"
	CalculatedNumberOfHours   CalculatedValue = "number_of_hours"
	CalculatedResourcesPerDay CalculatedValue = "resources_per_day"
)

// =============================================================================
// ALLOCATION KIND
// =============================================================================

type AllocationKind string

const (
	SpecificAllocation AllocationKind = "specific"
	GenericAllocation  AllocationKind = "generic"
)
