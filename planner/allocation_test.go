package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/planner"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newResource(id string, cal planner.Calendar, criteria ...planner.Criterion) *planner.Resource {
	return &planner.Resource{ID: planner.ResourceID(id), Name: id, Calendar: cal, Criteria: criteria}
}

// newTask spans the whole days first..last.
func newTask(t *testing.T, first, last int) *planner.Task {
	task, err := planner.NewTask("task-1", "Task", planner.StartOfDay(day(first)), planner.EndOfDay(day(last)))
	require.NoError(t, err)
	return task
}

func effortsOn(a *planner.ResourceAllocation, first, last int) []planner.EffortDuration {
	var result []planner.EffortDuration
	for n := first; n <= last; n++ {
		result = append(result, a.EffortOn(day(n)))
	}
	return result
}

func hours(values ...int) []planner.EffortDuration {
	result := make([]planner.EffortDuration, len(values))
	for i, v := range values {
		result[i] = planner.Hours(v)
	}
	return result
}

// =============================================================================
// ALLOCATE
// =============================================================================

func TestAllocate_FlatFillsForward(t *testing.T) {
	// GIVEN: Five days of 8h
	// WHEN: Allocating 20h with the default (flat) function
	// THEN: 8h, 8h, 4h, 0h, 0h

	task := newTask(t, 1, 5)
	alloc, err := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, err)

	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	assert.Equal(t, hours(8, 8, 4, 0, 0), effortsOn(alloc, 1, 5))
	assert.Equal(t, planner.Hours(20), alloc.AssignedEffort())
	assert.Equal(t, planner.FunctionFlat, alloc.FunctionKind())
}

func TestAllocate_FlatFillsBackwardForLateTasks(t *testing.T) {
	task := newTask(t, 1, 5)
	task.Constraint = planner.PositionConstraint{Type: planner.AsLateAsPossible}
	alloc, err := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, err)

	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	assert.Equal(t, hours(0, 0, 4, 8, 8), effortsOn(alloc, 1, 5))
}

func TestAllocate_ClipsToCapacity(t *testing.T) {
	// GIVEN: 40h of capacity
	// WHEN: Allocating 50h
	// THEN: Every day is full and the total is the achievable 40h

	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))

	require.NoError(t, alloc.Allocate(planner.Hours(50)))

	assert.Equal(t, hours(8, 8, 8, 8, 8), effortsOn(alloc, 1, 5))
}

func TestAllocate_SkipsNonWorkingDays(t *testing.T) {
	// GIVEN: Friday 5th to Tuesday 9th on a workweek calendar
	task := newTask(t, 5, 9)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", workweek()))

	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	assert.Equal(t, hours(8, 0, 0, 8, 4), effortsOn(alloc, 5, 9))
}

func TestAllocate_RespectsIntraDayStart(t *testing.T) {
	// GIVEN: A task starting after 4h of day 1
	task, err := planner.NewTask("t", "Task", at(1, 4), planner.EndOfDay(day(3)))
	require.NoError(t, err)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))

	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	assert.Equal(t, hours(4, 8, 8), effortsOn(alloc, 1, 3))
}

func TestAllocate_ProportionalWhenManual(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewManualFunction()))

	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	assert.Equal(t, hours(4, 4, 4, 4, 4), effortsOn(alloc, 1, 5))
}

func TestAllocate_ConservesOddEfforts(t *testing.T) {
	// GIVEN: An effort that does not divide evenly over the days
	// WHEN: Allocating proportionally
	// THEN: The total is exact to the second

	task := newTask(t, 1, 7)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewManualFunction()))

	effort := planner.Hours(10) + planner.Seconds(1)
	require.NoError(t, alloc.Allocate(effort))

	assert.Equal(t, effort, alloc.AssignedEffort())
	for _, e := range effortsOn(alloc, 1, 7) {
		assert.InDelta(t, float64(effort)/7, float64(e), 1)
	}
}

func TestAllocate_RejectsNegativeEffort(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(8)))

	err := alloc.Allocate(-planner.Hour)

	assert.ErrorIs(t, err, planner.ErrNegativeEffort)
	assert.True(t, planner.IsInvalidArgument(err))
	assert.Equal(t, planner.Hours(8), alloc.AssignedEffort())
}

func TestNewSpecificAllocation_RequiresResource(t *testing.T) {
	task := newTask(t, 1, 5)
	_, err := task.NewSpecificAllocation(nil)
	assert.True(t, planner.IsInvalidArgument(err))
}

// =============================================================================
// SCOPED ALLOCATE
// =============================================================================

func TestAllocateOn_OnlyTouchesScope(t *testing.T) {
	// GIVEN: 8h, 8h, 4h, 0h, 0h and a manual function
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewManualFunction()))

	// WHEN: Setting 6h on days 4-5 with the same resource
	scope := alloc.WithPreviousAssociatedResources().OnIntervalWithinTask(at(4, 0), at(6, 0))
	require.NoError(t, alloc.AllocateOn(scope, planner.Hours(6)))

	// THEN: Days 4-5 share the 6h, days 1-3 are untouched
	assert.Equal(t, hours(8, 8, 4, 3, 3), effortsOn(alloc, 1, 5))
}

func TestAllocateOn_ClampsToTask(t *testing.T) {
	// GIVEN: A task over days 3-5
	task := newTask(t, 3, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))

	// WHEN: Allocating 10h on days 1-3
	scope := alloc.WithPreviousAssociatedResources().OnIntervalWithinTask(at(1, 0), at(4, 0))
	require.NoError(t, alloc.AllocateOn(scope, planner.Hours(10)))

	// THEN: Nothing lands before the task, day 3 is capped
	assert.Equal(t, hours(0, 0, 8, 0, 0), effortsOn(alloc, 1, 5))
}

func TestAllocateOn_EmptyIntervalIsNoop(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	scope := alloc.WithPreviousAssociatedResources().OnIntervalWithinTask(at(3, 0), at(3, 0))
	require.NoError(t, alloc.AllocateOn(scope, planner.Hours(6)))

	assert.Equal(t, hours(8, 8, 4, 0, 0), effortsOn(alloc, 1, 5))
}

func TestScope_IsAValue(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))

	base := alloc.WithPreviousAssociatedResources()
	narrowed := base.OnIntervalWithinTask(at(2, 0), at(3, 0))

	assert.Equal(t, at(1, 0), base.Start)
	assert.Equal(t, at(2, 0), narrowed.Start)
	assert.Equal(t, []planner.ResourceID{"ada"}, narrowed.Resources)
}

// =============================================================================
// GENERIC ALLOCATIONS
// =============================================================================

func TestGenericAllocation_SplitsByCapacity(t *testing.T) {
	// GIVEN: Two welders (8h and 4h a day) and a painter
	full := newResource("w-1", eightHours, "welder")
	half := newResource("w-2", planner.FixedCalendar(planner.Hours(4)), "welder")
	painter := newResource("p-1", eightHours, "painter")

	task := newTask(t, 1, 5)
	alloc, err := task.NewGenericAllocation([]planner.Criterion{"welder"}, []*planner.Resource{painter, half, full})
	require.NoError(t, err)

	// WHEN: Allocating 24h
	require.NoError(t, alloc.Allocate(planner.Hours(24)))

	// THEN: Two full days of 12h, split 8h/4h
	assert.Equal(t, hours(12, 12, 0, 0, 0), effortsOn(alloc, 1, 5))
	assert.Equal(t, planner.Hours(8), alloc.EffortOnFor(day(1), "w-1"))
	assert.Equal(t, planner.Hours(4), alloc.EffortOnFor(day(1), "w-2"))
	assert.Equal(t, planner.EffortDuration(0), alloc.EffortOnFor(day(1), "p-1"))
	assert.Len(t, alloc.Pool, 2)
}

func TestGenericAllocation_ScopeKeepsResources(t *testing.T) {
	full := newResource("w-1", eightHours, "welder")
	half := newResource("w-2", planner.FixedCalendar(planner.Hours(4)), "welder")
	task := newTask(t, 1, 5)
	alloc, _ := task.NewGenericAllocation([]planner.Criterion{"welder"}, []*planner.Resource{full, half})

	scope := planner.Scope{Resources: []planner.ResourceID{"w-2"}}.OnIntervalWithinTask(at(3, 0), at(4, 0))
	require.NoError(t, alloc.AllocateOn(scope, planner.Hours(8)))

	assert.Equal(t, planner.Hours(4), alloc.EffortOnFor(day(3), "w-2"))
	assert.Equal(t, planner.EffortDuration(0), alloc.EffortOnFor(day(3), "w-1"))
}

func TestGenericAllocation_UnknownScopeResource(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewGenericAllocation([]planner.Criterion{"welder"}, []*planner.Resource{newResource("w-1", eightHours, "welder")})

	scope := planner.Scope{Resources: []planner.ResourceID{"ghost"}}.OnIntervalWithinTask(at(1, 0), at(2, 0))
	err := alloc.AllocateOn(scope, planner.Hours(1))

	assert.ErrorIs(t, err, planner.ErrResourceNotFound)
}

func TestGenericAllocation_NeedsMatchingResources(t *testing.T) {
	task := newTask(t, 1, 5)
	_, err := task.NewGenericAllocation([]planner.Criterion{"welder"}, []*planner.Resource{newResource("p-1", eightHours, "painter")})
	assert.True(t, planner.IsInvalidArgument(err))
}

// =============================================================================
// RESIZE
// =============================================================================

func TestResize_ShrinkDropsEffort(t *testing.T) {
	// GIVEN: Ten days holding 40h, 4h per day
	task := newTask(t, 1, 10)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewManualFunction()))
	require.NoError(t, alloc.Allocate(planner.Hours(40)))

	// WHEN: Resizing to end with day 5
	require.NoError(t, task.ResizeTo(planner.EndOfDay(day(5))))

	// THEN: Days 6-10 are dropped, not moved into days 1-5
	assert.Equal(t, hours(4, 4, 4, 4, 4, 0, 0, 0, 0, 0), effortsOn(alloc, 1, 10))
	assert.Equal(t, planner.Hours(20), alloc.AssignedEffort())
	assert.Equal(t, planner.DateRange{Start: day(1), End: day(5)}, alloc.Range())
}

func TestResize_ShrinkInsideADayClipsIt(t *testing.T) {
	task := newTask(t, 1, 3)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(24)))

	require.NoError(t, alloc.ResizeTo(at(2, 2)))

	assert.Equal(t, hours(8, 2, 0), effortsOn(alloc, 1, 3))
}

func TestResize_GrowReallocatesHeldEffort(t *testing.T) {
	// GIVEN: 24h spread by capacity over three 8h days
	task := newTask(t, 1, 3)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewStretchesFunction()))
	require.NoError(t, alloc.Allocate(planner.Hours(24)))

	// WHEN: Growing to six days
	require.NoError(t, task.ResizeTo(planner.EndOfDay(day(6))))

	// THEN: The held 24h spreads over the new interval
	assert.Equal(t, hours(4, 4, 4, 4, 4, 4), effortsOn(alloc, 1, 6))
}

func TestResize_RejectsCuttingConsolidatedHistory(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(40)))
	task.Consolidate(day(3))

	err := task.ResizeTo(planner.EndOfDay(day(2)))

	assert.ErrorIs(t, err, planner.ErrConsolidatedHistory)
	assert.True(t, planner.IsPolicyViolation(err))
	assert.Equal(t, planner.Hours(40), alloc.AssignedEffort())
}

// =============================================================================
// CONSOLIDATION
// =============================================================================

func TestConsolidation_HistoryIsImmutable(t *testing.T) {
	// GIVEN: 8h, 8h, 4h with day 1 consolidated
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))
	task.Consolidate(day(1))

	// WHEN: Re-allocating 30h, then a function switch, then a shrink
	require.NoError(t, alloc.Allocate(planner.Hours(30)))

	// THEN: Day 1 keeps its 8h, the remaining 22h go to the open days
	assert.Equal(t, hours(8, 8, 8, 6, 0), effortsOn(alloc, 1, 5))
	assert.Equal(t, planner.Hours(30), alloc.AssignedEffort())

	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewStretchesFunction()))
	assert.Equal(t, planner.Hours(8), alloc.EffortOn(day(1)))
	assert.Equal(t, planner.Hours(30), alloc.AssignedEffort())

	require.NoError(t, alloc.ResizeTo(planner.EndOfDay(day(2))))
	assert.Equal(t, planner.Hours(8), alloc.EffortOn(day(1)))
}

func TestConsolidation_MarksAssignments(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	assert.False(t, alloc.HasConsolidatedAssignments())
	task.Consolidate(day(2))

	consolidated := alloc.ConsolidatedAssignments()
	require.Len(t, consolidated, 2)
	assert.Equal(t, day(1), consolidated[0].Day)
	assert.Equal(t, day(2), consolidated[1].Day)
	assert.Equal(t, planner.Hours(16), alloc.ConsolidatedEffort())
}

// =============================================================================
// ASSIGNMENT FUNCTION SWITCHING
// =============================================================================

func TestSetFunction_SigmoidRejectedWithConsolidation(t *testing.T) {
	// GIVEN: An allocation with consolidated progress
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))
	task.Consolidate(day(1))
	before := alloc.Assignments()

	// WHEN: Applying the sigmoid
	err := alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewSigmoidFunction())

	// THEN: Refused, nothing changed
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrSigmoidWithConsolidation)
	assert.True(t, planner.IsPolicyViolation(err))
	assert.Equal(t, "Task contains consolidated progress. Cannot apply sigmoid function.", planner.UserMessage(err))
	assert.Equal(t, planner.FunctionFlat, alloc.FunctionKind())
	assert.Equal(t, before, alloc.Assignments())
}

func TestSetFunction_FlatKeepsValues(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewManualFunction()))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(nil))

	assert.Nil(t, alloc.Function())
	assert.Equal(t, hours(4, 4, 4, 4, 4), effortsOn(alloc, 1, 5))
}

func TestSetFunction_ManualDoesNotRecompute(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	require.NoError(t, alloc.SetAssignmentFunctionAndApplyIfNotFlat(planner.NewManualFunction()))

	assert.True(t, alloc.IsManual())
	assert.Equal(t, hours(8, 8, 4, 0, 0), effortsOn(alloc, 1, 5))
}

func TestSetFunction_InvalidStretchesLeaveStateUnchanged(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	fn := planner.NewStretchesFunction(
		planner.Stretch{Date: day(2), AmountWorkPercentage: pct("0.6")},
		planner.Stretch{Date: day(3), AmountWorkPercentage: pct("0.4")},
	)
	err := alloc.SetAssignmentFunctionAndApplyIfNotFlat(fn)

	assert.ErrorIs(t, err, planner.ErrInvalidStretches)
	assert.Equal(t, planner.FunctionFlat, alloc.FunctionKind())
	assert.Equal(t, hours(8, 8, 4, 0, 0), effortsOn(alloc, 1, 5))
}

// =============================================================================
// ASSIGNMENTS LISTING
// =============================================================================

func TestAssignments_OrderedByDay(t *testing.T) {
	task := newTask(t, 1, 5)
	alloc, _ := task.NewSpecificAllocation(newResource("ada", eightHours))
	require.NoError(t, alloc.Allocate(planner.Hours(20)))

	list := alloc.Assignments()

	require.Len(t, list, 3)
	for i, n := range []int{1, 2, 3} {
		assert.Equal(t, day(n), list[i].Day)
		assert.Equal(t, planner.ResourceID("ada"), list[i].Resource)
	}
	assert.Equal(t, planner.Hours(12), alloc.EffortBetween(planner.DateRange{Start: day(2), End: day(5)}))
}
