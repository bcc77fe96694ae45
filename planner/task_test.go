package planner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/planner"
)

// =============================================================================
// TASK
// =============================================================================

func TestNewTask_RejectsEndBeforeStart(t *testing.T) {
	_, err := planner.NewTask("t", "Task", at(5, 0), at(1, 0))
	assert.ErrorIs(t, err, planner.ErrInvalidInterval)
}

func TestNewTask_GeneratesID(t *testing.T) {
	task, err := planner.NewTask("", "Task", at(1, 0), at(2, 0))
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, planner.AsSoonAsPossible, task.Constraint.Type)
	assert.Equal(t, planner.CalculatedEndDate, task.CalculatedValue)
}

func TestTask_Direction(t *testing.T) {
	task := newTask(t, 1, 5)
	for ct, want := range map[planner.ConstraintType]planner.Direction{
		planner.AsSoonAsPossible:    planner.Forward,
		planner.StartInFixedDate:    planner.Forward,
		planner.StartNotEarlierThan: planner.Forward,
		planner.AsLateAsPossible:    planner.Backward,
		planner.FinishNotLaterThan:  planner.Backward,
	} {
		task.Constraint.Type = ct
		assert.Equal(t, want, task.Direction(), ct)
	}
}

func TestTask_ConsolidateOnlyMovesForward(t *testing.T) {
	task := newTask(t, 1, 10)

	assert.True(t, task.Consolidate(day(4)))
	assert.False(t, task.Consolidate(day(2)))

	first, ok := task.FirstDayNotConsolidated()
	require.True(t, ok)
	assert.Equal(t, day(5), first)
}

func TestTask_RemoveAllocation(t *testing.T) {
	task := newTask(t, 1, 5)
	kept, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	removed, _ := task.NewSpecificAllocation(newResource("bob", eightHours))
	require.NoError(t, kept.Allocate(planner.Hours(8)))

	require.NoError(t, task.RemoveAllocation(removed.ID))
	assert.Len(t, task.Allocations(), 1)
	assert.ErrorIs(t, task.RemoveAllocation(removed.ID), planner.ErrAllocationNotFound)

	// GIVEN: Consolidated progress on the remaining one
	task.Consolidate(day(1))
	err := task.RemoveAllocation(kept.ID)
	assert.ErrorIs(t, err, planner.ErrConsolidatedHistory)
	assert.Len(t, task.Allocations(), 1)
}

func TestTask_MoveToShiftsAndReallocates(t *testing.T) {
	// GIVEN: Days 1-5 holding 20h
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	// WHEN: Moving to day 8
	require.NoError(t, task.MoveTo(at(8, 0)))

	// THEN: Same shape a week later
	assert.Equal(t, at(8, 0), task.Start)
	assert.Equal(t, planner.EndOfDay(day(12)), task.End)
	assert.Equal(t, hours(0, 0, 0, 0, 0), effortsOn(alloc, 1, 5))
	assert.Equal(t, hours(8, 8, 4, 0, 0), effortsOn(alloc, 8, 12))
}

func TestTask_MoveToKeepsManualShape(t *testing.T) {
	task := newTask(t, 1, 3)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewManualFunction()))
	require.NoError(t, alloc.AllocateOn(alloc.WithPreviousAssociatedResources().OnIntervalWithinTask(at(3, 0), at(4, 0)), planner.Hours(5)))

	require.NoError(t, task.MoveTo(at(4, 0)))

	assert.Equal(t, hours(0, 0, 5), effortsOn(alloc, 4, 6))
}

func TestTask_MoveToRejectedWithConsolidations(t *testing.T) {
	task := newTask(t, 1, 5)
	task.Consolidate(day(1))

	err := task.MoveTo(at(8, 0))

	assert.ErrorIs(t, err, planner.ErrConsolidatedHistory)
	assert.Equal(t, at(1, 0), task.Start)
}

func TestTask_MoveToCarriesStretches(t *testing.T) {
	// GIVEN: Days 1-10 holding 40h, 60% done by the end of day 3
	task := newTask(t, 1, 10)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(40)))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewStretchesFunction(
		planner.Stretch{Date: day(3), AmountWorkPercentage: pct("0.6")},
	)))

	// WHEN: Moving to day 15
	require.NoError(t, task.MoveTo(at(15, 0)))

	// THEN: The stretch follows to the third day of the new interval
	assert.Equal(t, planner.FunctionStretches, alloc.FunctionKind())
	assert.Equal(t, planner.Hours(40), alloc.AssignedEffort())
	assert.Equal(t, hours(8, 8, 8), effortsOn(alloc, 15, 17))
	assert.Equal(t, planner.Hours(16), sumOf(effortsOn(alloc, 18, 24)))
	assert.Equal(t, planner.EffortDuration(0), sumOf(effortsOn(alloc, 1, 10)))
	assert.Equal(t, day(17), alloc.Function().Stretches[0].DayIn(alloc.Range()))
}

func TestTask_MoveToCarriesInterpolation(t *testing.T) {
	task := newTask(t, 1, 10)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(40)))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewInterpolatedFunction(
		planner.Stretch{Date: day(5), AmountWorkPercentage: pct("0.5")},
	)))

	require.NoError(t, task.MoveTo(at(11, 0)))

	assert.Equal(t, planner.FunctionInterpolated, alloc.FunctionKind())
	assert.Equal(t, hours(4, 4, 4, 4, 4, 4, 4, 4, 4, 4), effortsOn(alloc, 11, 20))
}

func TestTask_ShrinkThenGrowKeepsStretches(t *testing.T) {
	// GIVEN: Days 1-10 holding 40h, 60% done by the end of day 8
	task := newTask(t, 1, 10)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(40)))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewStretchesFunction(
		planner.Stretch{Date: day(8), AmountWorkPercentage: pct("0.6")},
	)))
	require.Equal(t, hours(3, 3, 3, 3, 3, 3, 3, 3, 8, 8), effortsOn(alloc, 1, 10))

	// WHEN: Shrinking to day 5
	require.NoError(t, task.ResizeTo(planner.EndOfDay(day(5))))

	// THEN: The days beyond are dropped and the rest stays
	assert.Equal(t, hours(3, 3, 3, 3, 3), effortsOn(alloc, 1, 5))
	assert.Equal(t, planner.FunctionStretches, alloc.FunctionKind())

	// WHEN: Allocating again on the shorter interval
	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	// THEN: The stretch now ends on day 4, at the same 80% of the length
	assert.Equal(t, hours(3, 3, 3, 3, 8), effortsOn(alloc, 1, 5))

	// WHEN: Growing back to day 10
	require.NoError(t, task.ResizeTo(planner.EndOfDay(day(10))))

	// THEN: The 20h are shaped over the whole interval again
	efforts := effortsOn(alloc, 1, 10)
	for _, e := range efforts[:8] {
		assert.Equal(t, planner.Hours(1)+planner.Minutes(30), e)
	}
	assert.Equal(t, hours(4, 4), efforts[8:])
	assert.Equal(t, planner.Hours(20), alloc.AssignedEffort())
}

func TestTask_FailedMoveLeavesTaskInPlace(t *testing.T) {
	// GIVEN: A stored function that cannot be applied (percentages decrease)
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))
	alloc.RestoreFunction(planner.NewStretchesFunction(
		planner.StretchAtLength(pct("0.4"), pct("0.6")),
		planner.StretchAtLength(pct("0.8"), pct("0.4")),
	))

	// WHEN: Moving the task
	err := task.MoveTo(at(8, 0))

	// THEN: Nothing moved and no effort was lost
	assert.ErrorIs(t, err, planner.ErrInvalidStretches)
	assert.Equal(t, at(1, 0), task.Start)
	assert.Equal(t, planner.EndOfDay(day(5)), task.End)
	assert.Equal(t, at(1, 0), alloc.Start())
	assert.Equal(t, hours(8, 8, 4, 0, 0), effortsOn(alloc, 1, 5))
	assert.Equal(t, planner.FunctionStretches, alloc.FunctionKind())

	// Same for a resize that has to re-allocate
	err = task.ResizeTo(planner.EndOfDay(day(8)))
	assert.ErrorIs(t, err, planner.ErrInvalidStretches)
	assert.Equal(t, planner.EndOfDay(day(5)), task.End)
	assert.Equal(t, planner.EndOfDay(day(5)), alloc.End())
	assert.Equal(t, planner.Hours(20), alloc.AssignedEffort())
}

func TestTask_LimitingAllocationStaysAlone(t *testing.T) {
	press := limitingResource("press", "press")
	ada := newResource("ada", eightHours, "dev")

	// A limiting task refuses any sibling
	limited := newTask(t, 1, 5)
	_, err := limited.NewSpecificAllocation(press)
	require.NoError(t, err)
	_, err = limited.NewSpecificAllocation(ada)
	assert.ErrorIs(t, err, planner.ErrLimitingNotAlone)
	assert.True(t, planner.IsPolicyViolation(err))
	assert.Len(t, limited.Allocations(), 1)

	// A task with allocations refuses a limiting one, specific or generic
	shared := newTask(t, 1, 5)
	_, err = shared.NewSpecificAllocation(ada)
	require.NoError(t, err)
	_, err = shared.NewSpecificAllocation(press)
	assert.ErrorIs(t, err, planner.ErrLimitingNotAlone)
	_, err = shared.NewGenericAllocation([]planner.Criterion{"press"}, []*planner.Resource{press})
	assert.ErrorIs(t, err, planner.ErrLimitingNotAlone)
	assert.Len(t, shared.Allocations(), 1)
	assert.NoError(t, shared.ValidateAllocations())

	// Non-limiting allocations still share a task
	_, err = shared.NewSpecificAllocation(newResource("bob", eightHours, "dev"))
	assert.NoError(t, err)
}

func TestTask_ScheduleFromEffort(t *testing.T) {
	// Forward: the end follows the start
	task := newTask(t, 1, 1)
	require.NoError(t, task.ScheduleFromEffort(planner.Hours(20)))
	assert.Equal(t, at(3, 4), task.End)

	// Backward: the start precedes the end
	late := newTask(t, 1, 5)
	late.Constraint = planner.PositionConstraint{Type: planner.AsLateAsPossible}
	require.NoError(t, late.ScheduleFromEffort(planner.Hours(20)))
	assert.Equal(t, at(3, 4), late.Start)
}

func TestTask_StartAndEndConstraints(t *testing.T) {
	task := newTask(t, 3, 5)
	orderStart := day(2)
	deadline := day(20)

	bounds := task.StartConstraints(&orderStart)
	require.Len(t, bounds, 1)
	assert.Equal(t, at(3, 0), bounds[0].Apply(task.Start))
	assert.Equal(t, at(2, 0), bounds[0].Apply(at(1, 0)))
	assert.Empty(t, task.StartConstraints(nil))

	fixed := at(7, 0)
	task.Constraint = planner.PositionConstraint{Type: planner.StartInFixedDate, Date: &fixed}
	bounds = task.StartConstraints(&orderStart)
	require.Len(t, bounds, 1)
	assert.Equal(t, planner.Exactly, bounds[0].Kind)
	assert.Equal(t, fixed, bounds[0].Apply(task.Start))

	task.Constraint = planner.PositionConstraint{Type: planner.AsLateAsPossible}
	ends := task.EndConstraints(&deadline)
	require.Len(t, ends, 1)
	assert.Equal(t, planner.EndOfDay(deadline), ends[0].Apply(planner.EndOfDay(day(25))))

	limit := at(10, 0)
	task.Constraint = planner.PositionConstraint{Type: planner.FinishNotLaterThan, Date: &limit}
	ends = task.EndConstraints(nil)
	require.Len(t, ends, 1)
	assert.Equal(t, planner.AtMost, ends[0].Kind)
}

// =============================================================================
// ADVANCE
// =============================================================================

func TestTask_HoursAdvancePercentage(t *testing.T) {
	task := newTask(t, 1, 5)
	task.WorkHours = planner.Hours(40)
	task.ChargedEffort = planner.Hours(10)

	// Nothing assigned: against the estimate
	assert.Equal(t, "25", task.HoursAdvancePercentage().String())

	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(30)))
	assert.Equal(t, "33.33", task.HoursAdvancePercentage().String())
}

func TestTask_MoneyCostPercentage(t *testing.T) {
	task := newTask(t, 1, 5)
	assert.True(t, task.MoneyCostPercentage().IsZero())

	task.Budget = pct("3000")
	task.MoneyCost = pct("1000")
	assert.Equal(t, "33.33", task.MoneyCostPercentage().String())
}

func TestTask_AdvanceEndDate(t *testing.T) {
	task := newTask(t, 1, 4)

	assert.Equal(t, task.Start, task.AdvanceEndDate(pct("0")))
	assert.Equal(t, at(2, 8), task.AdvanceEndDate(pct("0.5")))
	assert.Equal(t, task.End, task.AdvanceEndDate(pct("1")))
}

func TestTask_MarkRemoved(t *testing.T) {
	task := newTask(t, 1, 4)
	assert.False(t, task.IsRemoved())

	now := time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC)
	task.MarkRemoved(now)
	task.MarkRemoved(now.Add(time.Hour))

	require.True(t, task.IsRemoved())
	assert.Equal(t, now, *task.RemovedAt)
}

// =============================================================================
// AGGREGATE
// =============================================================================

func TestAggregate_TotalsAndOrder(t *testing.T) {
	// GIVEN: Two allocations, the second starting earlier
	task := newTask(t, 1, 10)
	late, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, late.AllocateOn(late.WithPreviousAssociatedResources().OnIntervalWithinTask(at(6, 0), at(11, 0)), planner.Hours(10)))
	require.NoError(t, late.SetInterval(at(6, 0), at(11, 0)))
	early, _ := task.NewSpecificAllocation(newResource("bob", eightHours))
	require.NoError(t, early.Allocate(planner.Hours(12)))

	agg := task.Aggregate()

	sorted := agg.SortedByStart()
	require.Len(t, sorted, 2)
	assert.Equal(t, early.ID, sorted[0].ID)
	assert.Equal(t, late.ID, sorted[1].ID)
	assert.Equal(t, planner.Hours(22), agg.TotalEffort())
	assert.Equal(t, planner.Hours(12), agg.EffortBetween(planner.DateRange{Start: day(1), End: day(5)}))
	assert.Equal(t, planner.Hours(10), agg.EffortBetween(planner.DateRange{Start: day(6), End: day(10)}))

	start, ok := agg.Start()
	require.True(t, ok)
	assert.Equal(t, at(1, 0), start)
	end, ok := agg.End()
	require.True(t, ok)
	assert.Equal(t, at(11, 0), end)
}

func TestAggregate_ResortsAfterMutation(t *testing.T) {
	task := newTask(t, 1, 10)
	a, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	b, _ := task.NewSpecificAllocation(newResource("bob", eightHours))
	require.NoError(t, b.SetInterval(at(3, 0), at(11, 0)))
	agg := task.Aggregate()
	require.Equal(t, a.ID, agg.SortedByStart()[0].ID)

	require.NoError(t, a.SetInterval(at(5, 0), at(11, 0)))

	assert.Equal(t, b.ID, agg.SortedByStart()[0].ID)
}

func TestAggregate_FromSatisfied(t *testing.T) {
	task := newTask(t, 1, 5)
	a, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	_, _ = task.NewSpecificAllocation(newResource("bob", eightHours))
	require.NoError(t, a.Allocate(planner.Hours(4)))

	agg := planner.NewAggregateFromSatisfied(task.Allocations()...)

	assert.Len(t, agg.SortedByStart(), 1)
	assert.True(t, planner.NewAggregate().IsEmpty())
}
