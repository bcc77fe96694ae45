/*
Package store defines how plans are persisted.

PURPOSE:
  The planning service loads calendars, resources, tasks and queues as
  factory documents, edits them through the planner, and writes them back.
  The Repository interface is the boundary; store/memory and store/sqlite
  implement it.

KEY INTERFACES:
  Repository:   documents, derived day assignments, queues, consolidation runs
  TxRepository: Repository plus WithTx for all-or-nothing edits

OPTIMISTIC VERSIONS:
  Every task document carries the version it was read at. SaveTask only
  writes when that version is still the stored one, then increments it.
  A stale write fails with planner.ErrConcurrentModification and changes
  nothing, so two sessions editing the same task cannot silently overwrite
  each other.

DAY ASSIGNMENTS:
  Saving a task also rewrites its rows in the day assignment index. Load
  reports read that index instead of loading every task. Removed tasks keep
  their document but drop their rows.

SEE ALSO:
  - factory/documents.go: document shapes
  - store/memory/memory.go, store/sqlite/sqlite.go: implementations
*/
package store

import (
	"context"
	"time"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
)

// =============================================================================
// REPOSITORY
// =============================================================================

type Repository interface {
	SaveCalendar(ctx context.Context, doc factory.CalendarDoc) error
	ListCalendars(ctx context.Context) ([]factory.CalendarDoc, error)

	SaveResource(ctx context.Context, doc factory.ResourceDoc) error
	ListResources(ctx context.Context) ([]factory.ResourceDoc, error)

	// SaveTask writes doc when doc.Version matches the stored version (zero
	// for a new task) and returns the new version.
	SaveTask(ctx context.Context, doc factory.TaskDoc) (int64, error)
	GetTask(ctx context.Context, id string) (factory.TaskDoc, error)
	ListTasks(ctx context.Context, includeRemoved bool) ([]factory.TaskDoc, error)

	// DayAssignments returns indexed assignments with from <= day <= to.
	DayAssignments(ctx context.Context, from, to planner.Day) ([]DayAssignmentRecord, error)

	// SaveQueue replaces every element queued on resource.
	SaveQueue(ctx context.Context, resource string, elements []factory.QueueElementDoc) error
	ListQueueElements(ctx context.Context) ([]factory.QueueElementDoc, error)

	SaveConsolidationRun(ctx context.Context, run ConsolidationRun) error
	ListConsolidationRuns(ctx context.Context, status RunStatus) ([]ConsolidationRun, error)
	// IsConsolidationComplete is true once a run for the pair completed or
	// found nothing to do.
	IsConsolidationComplete(ctx context.Context, taskID string, until planner.Day) (bool, error)

	// Reset drops everything. Used when loading demo scenarios.
	Reset(ctx context.Context) error
}

// TxRepository adds transactions. If fn returns an error nothing it wrote
// is kept.
type TxRepository interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// =============================================================================
// RECORDS
// =============================================================================

type DayAssignmentRecord struct {
	TaskID       string
	AllocationID string
	Resource     string
	Day          planner.Day
	Effort       planner.EffortDuration
	Consolidated bool
}

// DayAssignmentsOf flattens the assignments of a task document. Removed
// tasks have none.
func DayAssignmentsOf(doc factory.TaskDoc) ([]DayAssignmentRecord, error) {
	if doc.RemovedAt != nil {
		return nil, nil
	}
	var records []DayAssignmentRecord
	for _, a := range doc.Allocations {
		for _, da := range a.Assignments {
			d, err := planner.ParseDay(da.Day)
			if err != nil {
				return nil, err
			}
			effort, err := planner.ParseEffort(da.Effort)
			if err != nil {
				return nil, err
			}
			records = append(records, DayAssignmentRecord{
				TaskID:       doc.ID,
				AllocationID: a.ID,
				Resource:     da.Resource,
				Day:          d,
				Effort:       effort,
				Consolidated: da.Consolidated,
			})
		}
	}
	return records, nil
}

// Totals sums records per resource and day.
func Totals(records []DayAssignmentRecord) planner.DayTotals {
	totals := planner.DayTotals{}
	for _, r := range records {
		totals.Add(r.Day, planner.ResourceID(r.Resource), r.Effort)
	}
	return totals
}

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunSkipped   RunStatus = "skipped"
	RunFailed    RunStatus = "failed"
)

// ConsolidationRun records one automatic consolidation of a task up to a
// day. (TaskID, Until) is unique; saving the same pair again updates it.
type ConsolidationRun struct {
	ID          string
	TaskID      string
	Until       planner.Day
	Status      RunStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// CheckVersion compares the version a writer read with the stored one.
func CheckVersion(id string, stored, read int64) error {
	if stored != read {
		return &VersionConflictError{TaskID: id, Stored: stored, Read: read}
	}
	return nil
}

type VersionConflictError struct {
	TaskID string
	Stored int64
	Read   int64
}

func (e *VersionConflictError) Error() string {
	return "task " + e.TaskID + " was modified concurrently"
}

func (e *VersionConflictError) Unwrap() error { return planner.ErrConcurrentModification }
