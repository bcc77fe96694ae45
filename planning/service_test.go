package planning_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/planning"
	"github.com/warp/allocation-engine/store/memory"
)

func day(n int) planner.Day { return planner.NewDay(2024, time.January, n) }

func at(n int) planner.IntraDayDate { return planner.StartOfDay(day(n)) }

var (
	workweek = factory.CalendarDoc{ID: "default", Name: "Default", Weekdays: map[string]string{
		"monday": "8h", "tuesday": "8h", "wednesday": "8h", "thursday": "8h", "friday": "8h",
		"saturday": "0h", "sunday": "0h",
	}}
	ada   = factory.ResourceDoc{ID: "ada", Name: "Ada", Calendar: "default", Criteria: []string{"dev"}}
	press = factory.ResourceDoc{ID: "press-1", Name: "Press 1", Criteria: []string{"press"}, Limiting: true}
)

func newService(t *testing.T) (*planning.Service, *memory.Memory) {
	t.Helper()
	repo := memory.New()
	svc := planning.NewService(repo, planning.WithClock(func() time.Time {
		return time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	}))
	ctx := context.Background()
	require.NoError(t, svc.SaveCalendar(ctx, workweek))
	require.NoError(t, svc.SaveResource(ctx, ada))
	require.NoError(t, svc.SaveResource(ctx, press))
	return svc, repo
}

// designTask runs Monday 8 to Friday 12 on ada.
func designTask(t *testing.T, svc *planning.Service) (factory.TaskDoc, string) {
	t.Helper()
	doc, err := svc.CreateTask(context.Background(), factory.TaskDoc{
		ID: "design", Name: "Design", Start: "2024-01-08", End: "2024-01-13",
		Allocations: []factory.AllocationDoc{{Resource: "ada"}},
	})
	require.NoError(t, err)
	require.Len(t, doc.Allocations, 1)
	return doc, doc.Allocations[0].ID
}

func pressTask(t *testing.T, svc *planning.Service, id string, work string) (factory.TaskDoc, string) {
	t.Helper()
	doc, err := svc.CreateTask(context.Background(), factory.TaskDoc{
		ID: id, Name: id, Start: "2024-01-01", End: "2024-01-02", WorkHours: work,
		Allocations: []factory.AllocationDoc{{Resource: "press-1"}},
	})
	require.NoError(t, err)
	return doc, doc.Allocations[0].ID
}

func efforts(doc factory.AllocationDoc) map[string]string {
	result := make(map[string]string)
	for _, a := range doc.Assignments {
		result[a.Day] = a.Effort
	}
	return result
}

// =============================================================================
// CATALOG
// =============================================================================

func TestService_SaveResourceNeedsKnownCalendar(t *testing.T) {
	svc, _ := newService(t)

	err := svc.SaveResource(context.Background(), factory.ResourceDoc{ID: "bob", Calendar: "nowhere"})

	assert.ErrorIs(t, err, planner.ErrCalendarNotFound)
	resources, err := svc.ListResources(context.Background())
	require.NoError(t, err)
	assert.Len(t, resources, 2)
}

func TestService_SaveCalendarRejectsCycles(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.SaveCalendar(ctx, factory.CalendarDoc{ID: "spain", Parent: "default"}))

	err := svc.SaveCalendar(ctx, factory.CalendarDoc{ID: "default", Parent: "spain"})

	assert.True(t, planner.IsInvalidArgument(err))
}

// =============================================================================
// TASK EDITS
// =============================================================================

func TestService_AllocateSavesNewVersion(t *testing.T) {
	// GIVEN: A week-long task on ada
	svc, _ := newService(t)
	created, alloc := designTask(t, svc)
	assert.Equal(t, int64(1), created.Version)

	// WHEN: Allocating 40h
	doc, err := svc.Allocate(context.Background(), "design", alloc, planner.Hours(40))

	// THEN: Every working day gets 8h and the version moves on
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
	got := efforts(doc.Allocations[0])
	assert.Len(t, got, 5)
	assert.Equal(t, "8:00", got["2024-01-08"])
	assert.Equal(t, "8:00", got["2024-01-12"])
}

func TestService_CreateTaskRejectsDuplicatesAndVersions(t *testing.T) {
	svc, _ := newService(t)
	designTask(t, svc)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, factory.TaskDoc{ID: "design", Name: "Again", Start: "2024-01-08", End: "2024-01-09"})
	assert.True(t, planner.IsInvalidArgument(err))

	_, err = svc.CreateTask(ctx, factory.TaskDoc{ID: "other", Name: "Other", Start: "2024-01-08", End: "2024-01-09", Version: 3})
	assert.True(t, planner.IsInvalidArgument(err))
}

func TestService_FailedRunLeavesNothingBehind(t *testing.T) {
	// GIVEN: An allocated task
	svc, _ := newService(t)
	_, alloc := designTask(t, svc)
	ctx := context.Background()
	_, err := svc.Allocate(ctx, "design", alloc, planner.Hours(40))
	require.NoError(t, err)

	// WHEN: A recomputation edits it and then fails
	boom := errors.New("boom")
	err = svc.Run(ctx, nil, func(rc *planning.Recomputation) error {
		if err := rc.Allocate("design", planner.AllocationID(alloc), planner.Hours(10)); err != nil {
			return err
		}
		return boom
	})

	// THEN: The stored task is unchanged
	assert.ErrorIs(t, err, boom)
	doc, err := svc.GetTask(ctx, "design")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
	assert.Equal(t, "8:00", efforts(doc.Allocations[0])["2024-01-08"])
}

func TestService_NestedRunSavesOnce(t *testing.T) {
	// GIVEN: A task at version 1
	svc, _ := newService(t)
	_, alloc := designTask(t, svc)
	ctx := context.Background()

	// WHEN: An outer run allocates and a nested run consolidates
	var nested bool
	err := svc.Run(ctx, nil, func(rc *planning.Recomputation) error {
		if err := rc.Allocate("design", planner.AllocationID(alloc), planner.Hours(40)); err != nil {
			return err
		}
		return svc.Run(ctx, rc, func(inner *planning.Recomputation) error {
			nested = inner.Nested()
			_, err := inner.Consolidate("design", day(9))
			return err
		})
	})

	// THEN: Both edits land in a single save
	require.NoError(t, err)
	assert.True(t, nested)
	doc, err := svc.GetTask(ctx, "design")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
	assert.Equal(t, "2024-01-10", doc.FirstDayNotConsolidated)
}

func TestService_ConsolidateOnlyMovesForward(t *testing.T) {
	svc, _ := newService(t)
	_, alloc := designTask(t, svc)
	ctx := context.Background()
	_, err := svc.Allocate(ctx, "design", alloc, planner.Hours(40))
	require.NoError(t, err)
	_, err = svc.Consolidate(ctx, "design", day(10))
	require.NoError(t, err)

	var moved bool
	err = svc.Run(ctx, nil, func(rc *planning.Recomputation) error {
		moved, err = rc.Consolidate("design", day(9))
		return err
	})

	require.NoError(t, err)
	assert.False(t, moved)
	doc, err := svc.GetTask(ctx, "design")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-11", doc.FirstDayNotConsolidated)
}

func TestService_RemovedTasksAreNotFound(t *testing.T) {
	svc, _ := newService(t)
	designTask(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.RemoveTask(ctx, "design"))

	_, err := svc.GetTask(ctx, "design")
	assert.ErrorIs(t, err, planner.ErrTaskNotFound)
	_, err = svc.Resize(ctx, "design", at(20))
	assert.True(t, planner.IsNotFound(err))
	all, err := svc.ListTasks(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].RemovedAt)
	assert.Equal(t, 2024, all[0].RemovedAt.Year())
}

// =============================================================================
// VIEWS
// =============================================================================

func TestService_TaskViewByWeek(t *testing.T) {
	// GIVEN: 40h on ada with Monday and Tuesday consolidated
	svc, _ := newService(t)
	_, alloc := designTask(t, svc)
	ctx := context.Background()
	_, err := svc.Allocate(ctx, "design", alloc, planner.Hours(40))
	require.NoError(t, err)
	_, err = svc.Consolidate(ctx, "design", day(9))
	require.NoError(t, err)

	// WHEN: Viewing it by week
	view, err := svc.TaskView(ctx, "design", planner.ZoomWeek)

	// THEN: One whole week with the task totals
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, planner.Hours(40), view.Total)
	assert.Equal(t, planner.Hours(16), view.Consolidated)
	assert.Equal(t, []planner.EffortDuration{planner.Hours(40)}, view.ItemTotals)
	require.Len(t, view.Allocations, 1)
	assert.Equal(t, planner.Hours(40), view.Allocations[0].Cells[0].Effort)
	assert.True(t, view.Allocations[0].Cells[0].Editable)

	// Consolidated days are locked in the daily grid
	daily, err := svc.TaskView(ctx, "design", planner.ZoomDay)
	require.NoError(t, err)
	require.Len(t, daily.Items, 5)
	cells := daily.Allocations[0].Cells
	assert.False(t, cells[1].Editable)
	assert.Equal(t, "consolidated", cells[1].Reason)
	assert.True(t, cells[2].Editable)
}

func TestService_ResourceLoadReadsDayIndex(t *testing.T) {
	// GIVEN: Two tasks booking ada on the same Monday
	svc, _ := newService(t)
	_, alloc := designTask(t, svc)
	ctx := context.Background()
	_, err := svc.Allocate(ctx, "design", alloc, planner.Hours(40))
	require.NoError(t, err)
	review, err := svc.CreateTask(ctx, factory.TaskDoc{
		ID: "review", Name: "Review", Start: "2024-01-08", End: "2024-01-09",
		Allocations: []factory.AllocationDoc{{Resource: "ada"}},
	})
	require.NoError(t, err)
	_, err = svc.Allocate(ctx, "review", review.Allocations[0].ID, planner.Hours(4))
	require.NoError(t, err)

	// WHEN: Loading the week
	rng, err := planner.NewDateRange(day(8), day(12))
	require.NoError(t, err)
	byResource, err := svc.ResourceLoad(ctx, rng, planning.ByResource)
	require.NoError(t, err)
	byCriterion, err := svc.ResourceLoad(ctx, rng, planning.ByCriterion)
	require.NoError(t, err)

	// THEN: Monday is overloaded, the rest is full
	var adaLoad planner.LoadTimeline
	for _, l := range byResource {
		if l.Key == "ada" {
			adaLoad = l
		}
	}
	require.Len(t, adaLoad.Days, 5)
	assert.Equal(t, planner.Hours(12), adaLoad.Days[0].Assigned)
	assert.Equal(t, planner.LoadOverload, adaLoad.Days[0].Level)
	assert.Equal(t, planner.LoadFull, adaLoad.Days[1].Level)
	assert.Equal(t, []planner.Day{day(8)}, adaLoad.Overloaded())

	var dev planner.LoadTimeline
	for _, l := range byCriterion {
		if l.Key == "dev" {
			dev = l
		}
	}
	assert.Equal(t, planner.Hours(44), dev.TotalAssigned())

	_, err = svc.ResourceLoad(ctx, rng, "team")
	assert.True(t, planner.IsInvalidArgument(err))
}

// =============================================================================
// QUEUES
// =============================================================================

func TestService_EnqueueCascadesAndPersists(t *testing.T) {
	// GIVEN: Two 16h tasks on the limiting press
	svc, repo := newService(t)
	_, first := pressTask(t, svc, "first", "16h")
	_, second := pressTask(t, svc, "second", "16h")
	ctx := context.Background()

	// WHEN: Queueing both on January 1st
	placed, err := svc.Enqueue(ctx, "first", first, at(1), 0)
	require.NoError(t, err)
	assert.Equal(t, at(1), placed.Start)
	placed, err = svc.Enqueue(ctx, "second", second, at(1), 0)
	require.NoError(t, err)

	// THEN: The second waits for the first and both tasks follow the queue
	assert.Equal(t, at(3), placed.Start)
	assert.Equal(t, at(5), placed.End)
	doc, err := svc.GetTask(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", doc.Start)
	assert.Equal(t, "8:00", efforts(doc.Allocations[0])["2024-01-04"])

	// A fresh service sees the same queue
	reopened := planning.NewService(repo)
	queues, err := reopened.Queues(ctx)
	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.Equal(t, planner.ResourceID("press-1"), queues[0].Resource)
	require.Len(t, queues[0].Elements, 2)
	assert.Equal(t, planner.TaskID("first"), queues[0].Elements[0].TaskID)
}

func TestService_QueuedAllocationsOnlyMoveThroughTheQueue(t *testing.T) {
	svc, _ := newService(t)
	_, alloc := pressTask(t, svc, "first", "16h")
	ctx := context.Background()
	_, err := svc.Enqueue(ctx, "first", alloc, at(1), 0)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, "first", alloc, planner.Hours(8))
	assert.True(t, planner.IsPolicyViolation(err))

	placed, err := svc.MoveQueued(ctx, "first", alloc, at(10), false)
	require.NoError(t, err)
	assert.Equal(t, at(10), placed.Start)
	doc, err := svc.GetTask(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10", doc.Start)
}

func TestService_LimitingTasksTakeNoSiblings(t *testing.T) {
	// GIVEN: A queued 16h job on the press
	svc, _ := newService(t)
	_, alloc := pressTask(t, svc, "first", "16h")
	ctx := context.Background()
	_, err := svc.Enqueue(ctx, "first", alloc, at(1), 0)
	require.NoError(t, err)

	// WHEN: Adding ada next to it
	_, err = svc.AddAllocation(ctx, "first", factory.AllocationDoc{Resource: "ada"})

	// THEN: It is refused and the job keeps its single placed allocation
	assert.ErrorIs(t, err, planner.ErrLimitingNotAlone)
	doc, err := svc.GetTask(ctx, "first")
	require.NoError(t, err)
	require.Len(t, doc.Allocations, 1)
	got := efforts(doc.Allocations[0])
	assert.Equal(t, "8:00", got["2024-01-01"])
	assert.Equal(t, "8:00", got["2024-01-02"])

	// A new task cannot mix them either
	_, err = svc.CreateTask(ctx, factory.TaskDoc{
		ID: "mixed", Name: "Mixed", Start: "2024-01-08", End: "2024-01-13",
		Allocations: []factory.AllocationDoc{
			{ID: "m-press", Kind: "specific", Resource: "press-1"},
			{ID: "m-ada", Kind: "specific", Resource: "ada"},
		},
	})
	assert.ErrorIs(t, err, planner.ErrLimitingNotAlone)
	_, err = svc.GetTask(ctx, "mixed")
	assert.True(t, planner.IsNotFound(err))
}

func TestService_MoveAndResizeKeepStretches(t *testing.T) {
	// GIVEN: 20h on Design, 40% done by the end of the second day
	svc, _ := newService(t)
	_, alloc := designTask(t, svc)
	ctx := context.Background()
	_, err := svc.Allocate(ctx, "design", alloc, planner.Hours(20))
	require.NoError(t, err)
	_, err = svc.SetFunction(ctx, "design", alloc, planner.NewStretchesFunction(
		planner.StretchAtLength(decimal.RequireFromString("0.4"), decimal.RequireFromString("0.4")),
	))
	require.NoError(t, err)

	// WHEN: Moving to the next week
	doc, err := svc.Move(ctx, "design", at(15))

	// THEN: Same shape, same function, a week later
	require.NoError(t, err)
	a := doc.Allocations[0]
	require.NotNil(t, a.Function)
	assert.Equal(t, "stretches", a.Function.Kind)
	assert.Equal(t, "0.4", a.Function.Stretches[0].Length)
	got := efforts(a)
	assert.Len(t, got, 5)
	for _, d := range []string{"2024-01-15", "2024-01-16", "2024-01-17", "2024-01-18", "2024-01-19"} {
		assert.Equal(t, "4:00", got[d], d)
	}

	// WHEN: Shrinking to three days, then allocating again
	_, err = svc.Resize(ctx, "design", at(18))
	require.NoError(t, err)
	doc, err = svc.Allocate(ctx, "design", alloc, planner.Hours(10))

	// THEN: The stretch lands on the second of the three days
	require.NoError(t, err)
	got = efforts(doc.Allocations[0])
	assert.Equal(t, "2:00", got["2024-01-15"])
	assert.Equal(t, "2:00", got["2024-01-16"])
	assert.Equal(t, "6:00", got["2024-01-17"])
}

func TestService_RemoveTaskLeavesItsQueue(t *testing.T) {
	svc, _ := newService(t)
	_, first := pressTask(t, svc, "first", "16h")
	_, second := pressTask(t, svc, "second", "16h")
	ctx := context.Background()
	_, err := svc.Enqueue(ctx, "first", first, at(1), 0)
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, "second", second, at(1), 0)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveTask(ctx, "first"))

	queues, err := svc.Queues(ctx)
	require.NoError(t, err)
	require.Len(t, queues, 1)
	require.Len(t, queues[0].Elements, 1)
	assert.Equal(t, planner.TaskID("second"), queues[0].Elements[0].TaskID)
}

func TestService_ConsolidatedQueueElementsStayPut(t *testing.T) {
	svc, _ := newService(t)
	_, alloc := pressTask(t, svc, "first", "16h")
	ctx := context.Background()
	_, err := svc.Enqueue(ctx, "first", alloc, at(1), 0)
	require.NoError(t, err)
	_, err = svc.Consolidate(ctx, "first", day(1))
	require.NoError(t, err)

	_, err = svc.MoveQueued(ctx, "first", alloc, at(10), false)

	assert.True(t, planner.IsPolicyViolation(err))
	queues, err := svc.Queues(ctx)
	require.NoError(t, err)
	assert.True(t, queues[0].Elements[0].Consolidated)
}

// =============================================================================
// PLANS
// =============================================================================

const weekPlan = `
name: week
calendars:
  - id: default
    name: Default
    weekdays: {monday: 8h, tuesday: 8h, wednesday: 8h, thursday: 8h, friday: 8h, saturday: 0h, sunday: 0h}
resources:
  - id: ada
    name: Ada
    calendar: default
    criteria: [dev]
tasks:
  - id: design
    name: Design
    start: "2024-01-08"
    end: "2024-01-13"
    allocations:
      - id: a1
        kind: specific
        resource: ada
steps:
  - {op: allocate, task: design, allocation: a1, effort: 40h}
  - {op: edit_item, task: design, allocation: a1, zoom: day, date: "2024-01-12", effort: "2:00"}
  - {op: consolidate, task: design, date: "2024-01-09"}
`

func TestService_ApplyPlan(t *testing.T) {
	// GIVEN: A plan file
	plan, err := factory.ParsePlanYAML([]byte(weekPlan))
	require.NoError(t, err)
	svc := planning.NewService(memory.New())

	// WHEN: Applying it
	result, err := svc.ApplyPlan(context.Background(), plan, false)

	// THEN: Every step ran and the task reflects them
	require.NoError(t, err)
	require.Len(t, result.Steps, 3)
	assert.True(t, result.Steps[2].Changed)
	require.Len(t, result.Tasks, 1)
	doc := result.Tasks[0]
	assert.Equal(t, "2024-01-10", doc.FirstDayNotConsolidated)
	assert.Equal(t, "manual", doc.Allocations[0].Function.Kind)
	assert.Equal(t, "2:00", efforts(doc.Allocations[0])["2024-01-12"])
}

func TestService_ApplyPlanRollsBackOnFailure(t *testing.T) {
	// GIVEN: A plan whose last step names a missing allocation
	plan, err := factory.ParsePlanYAML([]byte(weekPlan + "  - {op: allocate, task: design, allocation: nope, effort: 1h}\n"))
	require.NoError(t, err)
	svc := planning.NewService(memory.New())
	ctx := context.Background()

	// WHEN: Applying it
	_, err = svc.ApplyPlan(ctx, plan, false)

	// THEN: Nothing was stored
	assert.ErrorIs(t, err, planner.ErrAllocationNotFound)
	tasks, err := svc.ListTasks(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	calendars, err := svc.ListCalendars(ctx)
	require.NoError(t, err)
	assert.Empty(t, calendars)
}

func TestService_ApplyPlanWithReset(t *testing.T) {
	plan, err := factory.ParsePlanYAML([]byte(weekPlan))
	require.NoError(t, err)
	svc := planning.NewService(memory.New())
	ctx := context.Background()
	_, err = svc.ApplyPlan(ctx, plan, false)
	require.NoError(t, err)

	_, err = svc.ApplyPlan(ctx, plan, false)
	assert.True(t, planner.IsInvalidArgument(err))

	_, err = svc.ApplyPlan(ctx, plan, true)
	require.NoError(t, err)
	tasks, err := svc.ListTasks(ctx, true)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}
