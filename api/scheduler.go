/*
scheduler.go - Automated consolidation scheduler

PURPOSE:
  Periodically consolidates the past of tasks flagged auto_consolidate:
  every day before today becomes executed work that later edits, queue
  moves and assignment functions must keep.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Consolidates each flagged task up to yesterday, one transaction per task
  - Skips (task, day) pairs that already have a completed run
  - Records a run per task for audit and UI display, failed ones included

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewConsolidationScheduler(svc, time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ProcessConsolidation endpoint (manual trigger)
  - planning/operations.go: Recomputation.Consolidate
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/planning"
	"github.com/warp/allocation-engine/store"
)

// ConsolidationScheduler handles automated consolidation.
type ConsolidationScheduler struct {
	Service  *planning.Service
	Interval time.Duration
	Enabled  bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	// pass serialises RunNow with the ticker.
	pass sync.Mutex
}

// ConsolidationSummary counts what one pass did.
type ConsolidationSummary struct {
	Until     string `json:"until"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

func NewConsolidationScheduler(svc *planning.Service, interval time.Duration, logger *slog.Logger) *ConsolidationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsolidationScheduler{
		Service:  svc,
		Interval: interval,
		Enabled:  true,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (cs *ConsolidationScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.logger.Info("disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.Interval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)
	go cs.run(cs.ticker, cs.stop)

	cs.logger.Info("started", "interval", cs.Interval)
}

// Stop stops the scheduler and waits for a pass in progress.
func (cs *ConsolidationScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.ticker = nil
		cs.logger.Info("stopped")
	}
}

func (cs *ConsolidationScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer cs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	cs.checkAndProcess(ctx)

	for {
		select {
		case <-ticker.C:
			cs.checkAndProcess(ctx)
		case <-stop:
			return
		}
	}
}

func (cs *ConsolidationScheduler) checkAndProcess(ctx context.Context) {
	summary, err := cs.RunNow(ctx)
	if err != nil {
		cs.logger.Error("consolidation pass failed", "error", err)
		return
	}
	if summary.Processed > 0 || summary.Failed > 0 {
		cs.logger.Info("consolidation pass completed",
			"until", summary.Until, "processed", summary.Processed,
			"skipped", summary.Skipped, "failed", summary.Failed)
	}
}

// RunNow consolidates every auto_consolidate task up to yesterday.
func (cs *ConsolidationScheduler) RunNow(ctx context.Context) (ConsolidationSummary, error) {
	cs.pass.Lock()
	defer cs.pass.Unlock()

	until := cs.Service.Today().AddDays(-1)
	summary := ConsolidationSummary{Until: until.String()}

	tasks, err := cs.Service.ListTasks(ctx, false)
	if err != nil {
		return summary, err
	}
	repo := cs.Service.Repository()
	for _, doc := range tasks {
		if !doc.AutoConsolidate {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		done, err := repo.IsConsolidationComplete(ctx, doc.ID, until)
		if err != nil {
			return summary, err
		}
		if done {
			summary.Skipped++
			continue
		}

		status, err := cs.consolidate(ctx, doc.ID, until)
		switch {
		case err != nil:
			summary.Failed++
			cs.logger.Warn("consolidation failed", "task", doc.ID, "until", until.String(), "error", err)
		case status == store.RunSkipped:
			summary.Skipped++
		default:
			summary.Processed++
		}
	}
	return summary, nil
}

// consolidate runs one task and records the outcome. The run record is
// written outside the task's transaction so failures stay visible.
func (cs *ConsolidationScheduler) consolidate(ctx context.Context, taskID string, until planner.Day) (store.RunStatus, error) {
	repo := cs.Service.Repository()
	started := time.Now().UTC()
	run := store.ConsolidationRun{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Until:     until,
		Status:    store.RunPending,
		StartedAt: &started,
		CreatedAt: started,
	}
	if err := repo.SaveConsolidationRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to save run record: %w", err)
	}

	var moved bool
	err := cs.Service.Run(ctx, nil, func(rc *planning.Recomputation) error {
		var err error
		moved, err = rc.Consolidate(planner.TaskID(taskID), until)
		return err
	})

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	switch {
	case err != nil:
		run.Status = store.RunFailed
		run.Error = err.Error()
	case moved:
		run.Status = store.RunCompleted
	default:
		run.Status = store.RunSkipped
	}
	if saveErr := repo.SaveConsolidationRun(ctx, run); saveErr != nil {
		return "", fmt.Errorf("failed to update run record: %w", saveErr)
	}
	return run.Status, err
}

// NextRunTime returns when the next scheduled check will occur.
func (cs *ConsolidationScheduler) NextRunTime() time.Time {
	return time.Now().Add(cs.Interval)
}
