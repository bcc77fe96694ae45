package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/planning"
	"github.com/warp/allocation-engine/store"
	"github.com/warp/allocation-engine/store/memory"
)

// brokenTx refuses every transaction but still reads and records runs.
type brokenTx struct {
	store.TxRepository
}

func (brokenTx) WithTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return errors.New("disk full")
}

func createAutoTask(t *testing.T, svc *planning.Service, id string, auto bool) {
	t.Helper()
	_, err := svc.CreateTask(context.Background(), factory.TaskDoc{
		ID: id, Name: id, Start: "2024-01-08", End: "2024-01-20", AutoConsolidate: auto,
		Allocations: []factory.AllocationDoc{{Resource: "ada"}},
	})
	require.NoError(t, err)
}

func TestScheduler_RunNowConsolidatesOnce(t *testing.T) {
	// GIVEN: One auto-consolidated task and one manual task
	svc := newTestService(t, memory.New())
	createAutoTask(t, svc, "auto", true)
	createAutoTask(t, svc, "manual", false)
	cs := NewConsolidationScheduler(svc, time.Hour, nil)
	ctx := context.Background()

	// WHEN: Running a pass twice
	first, err := cs.RunNow(ctx)
	require.NoError(t, err)
	second, err := cs.RunNow(ctx)
	require.NoError(t, err)

	// THEN: Only the flagged task moves, and only on the first pass
	assert.Equal(t, ConsolidationSummary{Until: "2024-01-14", Processed: 1}, first)
	assert.Equal(t, ConsolidationSummary{Until: "2024-01-14", Skipped: 1}, second)

	auto, err := svc.GetTask(ctx, "auto")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", auto.FirstDayNotConsolidated)
	manual, err := svc.GetTask(ctx, "manual")
	require.NoError(t, err)
	assert.Empty(t, manual.FirstDayNotConsolidated)

	runs, err := svc.ConsolidationRuns(ctx, store.RunCompleted)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, planner.NewDay(2024, time.January, 14), runs[0].Until)
}

func TestScheduler_AlreadyConsolidatedIsSkipped(t *testing.T) {
	svc := newTestService(t, memory.New())
	createAutoTask(t, svc, "auto", true)
	ctx := context.Background()
	_, err := svc.Consolidate(ctx, "auto", planner.NewDay(2024, time.January, 16))
	require.NoError(t, err)

	summary, err := NewConsolidationScheduler(svc, time.Hour, nil).RunNow(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	runs, err := svc.ConsolidationRuns(ctx, store.RunSkipped)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestScheduler_FailedRunIsRecorded(t *testing.T) {
	// GIVEN: An auto task in a repository whose transactions fail
	repo := memory.New()
	createAutoTask(t, newTestService(t, repo), "auto", true)
	svc := planning.NewService(brokenTx{repo}, planning.WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	// WHEN: Running a pass
	summary, err := NewConsolidationScheduler(svc, time.Hour, nil).RunNow(ctx)

	// THEN: The failure is counted and kept for inspection
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	runs, err := svc.ConsolidationRuns(ctx, store.RunFailed)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "disk full", runs[0].Error)

	done, err := repo.IsConsolidationComplete(ctx, "auto", planner.NewDay(2024, time.January, 14))
	require.NoError(t, err)
	assert.False(t, done)
}

func TestScheduler_StartStop(t *testing.T) {
	svc := newTestService(t, memory.New())
	createAutoTask(t, svc, "auto", true)
	cs := NewConsolidationScheduler(svc, time.Hour, nil)

	cs.Start()
	// Start runs a pass right away; Stop waits for it.
	require.Eventually(t, func() bool {
		doc, err := svc.GetTask(context.Background(), "auto")
		return err == nil && doc.FirstDayNotConsolidated != ""
	}, time.Second, 10*time.Millisecond)
	cs.Stop()
	cs.Stop()

	disabled := NewConsolidationScheduler(svc, time.Hour, nil)
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
}
