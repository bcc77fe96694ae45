// Package storetest holds the behaviour every store.TxRepository must share.
// Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/store"
)

func day(n int) planner.Day { return planner.NewDay(2024, time.January, n) }

func sampleTask(id string) factory.TaskDoc {
	return factory.TaskDoc{
		ID: id, Name: "Task " + id, Start: "2024-01-08", End: "2024-01-10",
		Allocations: []factory.AllocationDoc{{
			ID: "a-" + id, Kind: "specific", Resource: "ada",
			Start: "2024-01-08", End: "2024-01-10",
			Assignments: []factory.AssignmentDoc{
				{Day: "2024-01-08", Resource: "ada", Effort: "8:00", Consolidated: true},
				{Day: "2024-01-09", Resource: "ada", Effort: "4:00"},
			},
		}},
	}
}

// Run exercises repo built by newRepo. Each subtest gets a fresh repository.
func Run(t *testing.T, newRepo func(t *testing.T) store.TxRepository) {
	ctx := context.Background()

	t.Run("CatalogDocuments", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.SaveCalendar(ctx, factory.CalendarDoc{ID: "b", Name: "B", Parent: "a"}))
		require.NoError(t, repo.SaveCalendar(ctx, factory.CalendarDoc{ID: "a", Name: "A", Weekdays: map[string]string{"monday": "8h"}}))
		require.NoError(t, repo.SaveResource(ctx, factory.ResourceDoc{ID: "ada", Name: "Ada", Calendar: "a", Criteria: []string{"dev"}}))
		// Saving again replaces
		require.NoError(t, repo.SaveResource(ctx, factory.ResourceDoc{ID: "ada", Name: "Ada L.", Calendar: "a", Criteria: []string{"dev"}, Limiting: true}))

		cals, err := repo.ListCalendars(ctx)
		require.NoError(t, err)
		require.Len(t, cals, 2)
		assert.Equal(t, "a", cals[0].ID)
		assert.Equal(t, "8h", cals[0].Weekdays["monday"])
		assert.Equal(t, "a", cals[1].Parent)

		res, err := repo.ListResources(ctx)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "Ada L.", res[0].Name)
		assert.True(t, res[0].Limiting)
	})

	t.Run("TaskVersions", func(t *testing.T) {
		// GIVEN: A stored task
		repo := newRepo(t)
		v, err := repo.SaveTask(ctx, sampleTask("t1"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		// WHEN: Two writers read version 1 and both save
		first, err := repo.GetTask(ctx, "t1")
		require.NoError(t, err)
		second := first
		first.Name = "renamed"
		v, err = repo.SaveTask(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
		_, err = repo.SaveTask(ctx, second)

		// THEN: The second write is refused and the first one kept
		assert.ErrorIs(t, err, planner.ErrConcurrentModification)
		assert.True(t, planner.IsRetryable(err))
		got, err := repo.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("NewTaskMustStartAtVersionZero", func(t *testing.T) {
		repo := newRepo(t)
		doc := sampleTask("t1")
		doc.Version = 3
		_, err := repo.SaveTask(ctx, doc)
		assert.ErrorIs(t, err, planner.ErrConcurrentModification)

		_, err = repo.GetTask(ctx, "t1")
		assert.ErrorIs(t, err, planner.ErrTaskNotFound)
	})

	t.Run("RemovedTasksAndDayIndex", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.SaveTask(ctx, sampleTask("t1"))
		require.NoError(t, err)
		_, err = repo.SaveTask(ctx, sampleTask("t2"))
		require.NoError(t, err)

		days, err := repo.DayAssignments(ctx, day(8), day(8))
		require.NoError(t, err)
		require.Len(t, days, 2)
		assert.True(t, days[0].Consolidated)
		assert.Equal(t, planner.Hours(8), days[0].Effort)
		totals := store.Totals(days)
		assert.Equal(t, planner.Hours(16), totals.AssignedOn(day(8), "ada"))

		// Removing t2 hides it and drops its rows
		doc, err := repo.GetTask(ctx, "t2")
		require.NoError(t, err)
		removed := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		doc.RemovedAt = &removed
		_, err = repo.SaveTask(ctx, doc)
		require.NoError(t, err)

		visible, err := repo.ListTasks(ctx, false)
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, "t1", visible[0].ID)
		all, err := repo.ListTasks(ctx, true)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		days, err = repo.DayAssignments(ctx, day(1), day(31))
		require.NoError(t, err)
		assert.Len(t, days, 2)
		for _, d := range days {
			assert.Equal(t, "t1", d.TaskID)
		}
	})

	t.Run("Queues", func(t *testing.T) {
		repo := newRepo(t)
		el := func(id string, seq uint64) factory.QueueElementDoc {
			return factory.QueueElementDoc{ID: id, Allocation: "a-" + id, Task: "t", Resource: "press", Start: "2024-01-08", End: "2024-01-09+4:00", Effort: "12:00", Seq: seq}
		}
		require.NoError(t, repo.SaveQueue(ctx, "press", []factory.QueueElementDoc{el("q2", 2), el("q1", 1)}))
		require.NoError(t, repo.SaveQueue(ctx, "press", []factory.QueueElementDoc{el("q1", 1), el("q3", 3)}))

		got, err := repo.ListQueueElements(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "q1", got[0].ID)
		assert.Equal(t, "q3", got[1].ID)
		assert.Equal(t, "2024-01-09+4:00", got[0].End)

		require.NoError(t, repo.SaveQueue(ctx, "press", nil))
		got, err = repo.ListQueueElements(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ConsolidationRuns", func(t *testing.T) {
		repo := newRepo(t)
		created := time.Date(2024, 1, 9, 2, 0, 0, 0, time.UTC)
		run := store.ConsolidationRun{ID: "r1", TaskID: "t1", Until: day(8), Status: store.RunPending, CreatedAt: created}
		require.NoError(t, repo.SaveConsolidationRun(ctx, run))

		done, err := repo.IsConsolidationComplete(ctx, "t1", day(8))
		require.NoError(t, err)
		assert.False(t, done)

		// Same task and day upserts
		completed := created.Add(time.Minute)
		run.ID, run.Status, run.CompletedAt = "r2", store.RunCompleted, &completed
		require.NoError(t, repo.SaveConsolidationRun(ctx, run))

		done, err = repo.IsConsolidationComplete(ctx, "t1", day(8))
		require.NoError(t, err)
		assert.True(t, done)

		runs, err := repo.ListConsolidationRuns(ctx, "")
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "r1", runs[0].ID)
		assert.Equal(t, day(8), runs[0].Until)
		require.NotNil(t, runs[0].CompletedAt)
		assert.True(t, completed.Equal(*runs[0].CompletedAt))

		pending, err := repo.ListConsolidationRuns(ctx, store.RunPending)
		require.NoError(t, err)
		assert.Empty(t, pending)

		// A run with nothing to do also counts as done
		skipped := store.ConsolidationRun{ID: "r3", TaskID: "t2", Until: day(8), Status: store.RunSkipped, CreatedAt: created}
		require.NoError(t, repo.SaveConsolidationRun(ctx, skipped))
		done, err = repo.IsConsolidationComplete(ctx, "t2", day(8))
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("WithTxRollsBack", func(t *testing.T) {
		// GIVEN: A stored task
		repo := newRepo(t)
		_, err := repo.SaveTask(ctx, sampleTask("t1"))
		require.NoError(t, err)
		boom := errors.New("boom")

		// WHEN: A transaction writes and then fails
		err = repo.WithTx(ctx, func(tx store.Repository) error {
			doc, err := tx.GetTask(ctx, "t1")
			if err != nil {
				return err
			}
			doc.Name = "changed"
			if _, err := tx.SaveTask(ctx, doc); err != nil {
				return err
			}
			if _, err := tx.SaveTask(ctx, sampleTask("t2")); err != nil {
				return err
			}
			return boom
		})

		// THEN: Nothing it wrote is visible
		assert.ErrorIs(t, err, boom)
		got, err := repo.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "Task t1", got.Name)
		assert.Equal(t, int64(1), got.Version)
		_, err = repo.GetTask(ctx, "t2")
		assert.ErrorIs(t, err, planner.ErrTaskNotFound)
	})

	t.Run("WithTxCommits", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.WithTx(ctx, func(tx store.Repository) error {
			if _, err := tx.SaveTask(ctx, sampleTask("t1")); err != nil {
				return err
			}
			// Reads inside the transaction see its writes
			doc, err := tx.GetTask(ctx, "t1")
			if err != nil {
				return err
			}
			_, err = tx.SaveTask(ctx, doc)
			return err
		})
		require.NoError(t, err)

		got, err := repo.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("Reset", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.SaveTask(ctx, sampleTask("t1"))
		require.NoError(t, err)
		require.NoError(t, repo.SaveResource(ctx, factory.ResourceDoc{ID: "ada"}))

		require.NoError(t, repo.Reset(ctx))

		tasks, err := repo.ListTasks(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, tasks)
		res, err := repo.ListResources(ctx)
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}
