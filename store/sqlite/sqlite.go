/*
Package sqlite provides a SQLite-backed store.TxRepository.

PURPOSE:
  Persists calendars, resources, tasks, limiting queues and consolidation
  runs. Documents are kept as JSON next to the columns queries filter on.

KEY TABLES:
  calendars, resources:  catalog documents
  tasks:                 task documents with version and removed_at
  day_assignments:       one row per (allocation, resource, day), rewritten
                         whenever the owning task is saved; feeds load reports
  queue_elements:        limiting queues, one row per queued allocation
  consolidation_runs:    automatic consolidation history, unique per
                         (task_id, until)

CONCURRENCY:
  A RWMutex serialises writers inside the process. SQLite is opened in WAL
  mode with a busy timeout, and writes are retried with backoff when SQLite
  still reports the database as busy or locked (see retry.go).

OPTIMISTIC VERSIONS:
  SaveTask reads the stored version and writes inside one SQL transaction.
  A mismatch returns store.VersionConflictError.

USAGE:
  repo, err := sqlite.New("./data/planner.db")
  if err != nil {
      return err
  }
  defer repo.Close()

MIGRATION:
  Schema is created on New(). Use ":memory:" for throwaway databases.

SEE ALSO:
  - store/store.go: Repository contract
  - store/storetest: behaviour shared with the in-memory repository
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/store"
)

// Store implements store.TxRepository using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	retry retryConfig
}

// New opens (or creates) the database at dbPath and migrates it.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database otherwise.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, retry: defaultRetryConfig}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calendars (
		id TEXT PRIMARY KEY,
		doc_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		doc_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		doc_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		removed_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_removed
		ON tasks(removed_at);

	CREATE TABLE IF NOT EXISTS day_assignments (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		allocation_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		day TEXT NOT NULL,
		effort_seconds INTEGER NOT NULL,
		consolidated BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (allocation_id, resource_id, day)
	);

	-- Load reports scan by day range (hot path)
	CREATE INDEX IF NOT EXISTS idx_day_assignments_day_resource
		ON day_assignments(day, resource_id);
	CREATE INDEX IF NOT EXISTS idx_day_assignments_task
		ON day_assignments(task_id);

	CREATE TABLE IF NOT EXISTS queue_elements (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL,
		allocation_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		doc_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_elements_resource
		ON queue_elements(resource_id, seq);

	CREATE TABLE IF NOT EXISTS consolidation_runs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		until TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_consolidation_runs_unique
		ON consolidation_runs(task_id, until);
	CREATE INDEX IF NOT EXISTS idx_consolidation_runs_status
		ON consolidation_runs(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE - Locking and retries around queries
// =============================================================================

func (s *Store) read() queries { return queries{db: s.db} }

// write runs fn under the write lock, retrying transient SQLite errors.
func (s *Store) write(fn func(q queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retryOp(s.retry, func() error { return fn(queries{db: s.db}) })
}

func (s *Store) SaveCalendar(ctx context.Context, doc factory.CalendarDoc) error {
	return s.write(func(q queries) error { return q.SaveCalendar(ctx, doc) })
}

func (s *Store) ListCalendars(ctx context.Context) ([]factory.CalendarDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListCalendars(ctx)
}

func (s *Store) SaveResource(ctx context.Context, doc factory.ResourceDoc) error {
	return s.write(func(q queries) error { return q.SaveResource(ctx, doc) })
}

func (s *Store) ListResources(ctx context.Context) ([]factory.ResourceDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListResources(ctx)
}

// SaveTask checks the version and rewrites the day index in one transaction.
func (s *Store) SaveTask(ctx context.Context, doc factory.TaskDoc) (int64, error) {
	var version int64
	err := s.WithTx(ctx, func(r store.Repository) error {
		var err error
		version, err = r.SaveTask(ctx, doc)
		return err
	})
	return version, err
}

func (s *Store) GetTask(ctx context.Context, id string) (factory.TaskDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetTask(ctx, id)
}

func (s *Store) ListTasks(ctx context.Context, includeRemoved bool) ([]factory.TaskDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListTasks(ctx, includeRemoved)
}

func (s *Store) DayAssignments(ctx context.Context, from, to planner.Day) ([]store.DayAssignmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().DayAssignments(ctx, from, to)
}

func (s *Store) SaveQueue(ctx context.Context, resource string, elements []factory.QueueElementDoc) error {
	return s.WithTx(ctx, func(r store.Repository) error { return r.SaveQueue(ctx, resource, elements) })
}

func (s *Store) ListQueueElements(ctx context.Context) ([]factory.QueueElementDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListQueueElements(ctx)
}

func (s *Store) SaveConsolidationRun(ctx context.Context, run store.ConsolidationRun) error {
	return s.write(func(q queries) error { return q.SaveConsolidationRun(ctx, run) })
}

func (s *Store) ListConsolidationRuns(ctx context.Context, status store.RunStatus) ([]store.ConsolidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListConsolidationRuns(ctx, status)
}

func (s *Store) IsConsolidationComplete(ctx context.Context, taskID string, until planner.Day) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().IsConsolidationComplete(ctx, taskID, until)
}

func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(r store.Repository) error { return r.Reset(ctx) })
}

// WithTx executes fn within a database transaction. The whole transaction
// is retried when SQLite reports a transient lock, so fn must not keep
// state across attempts.
func (s *Store) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return retryOp(s.retry, func() error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer sqlTx.Rollback()

		if err := fn(queries{db: sqlTx}); err != nil {
			return err
		}
		return sqlTx.Commit()
	})
}

// =============================================================================
// QUERIES - store.Repository over a connection or a transaction
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func (q queries) SaveCalendar(ctx context.Context, doc factory.CalendarDoc) error {
	return q.saveDocument(ctx, "calendars", doc.ID, doc)
}

func (q queries) ListCalendars(ctx context.Context) ([]factory.CalendarDoc, error) {
	var docs []factory.CalendarDoc
	err := q.listDocuments(ctx, "SELECT doc_json FROM calendars ORDER BY id", func(data []byte) error {
		var d factory.CalendarDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	return docs, err
}

func (q queries) SaveResource(ctx context.Context, doc factory.ResourceDoc) error {
	return q.saveDocument(ctx, "resources", doc.ID, doc)
}

func (q queries) ListResources(ctx context.Context) ([]factory.ResourceDoc, error) {
	var docs []factory.ResourceDoc
	err := q.listDocuments(ctx, "SELECT doc_json FROM resources ORDER BY id", func(data []byte) error {
		var d factory.ResourceDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	return docs, err
}

// table is one of our own constants, never user input.
func (q queries) saveDocument(ctx context.Context, table, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", table, err)
	}
	query := `INSERT INTO ` + table + ` (id, doc_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc_json = excluded.doc_json, updated_at = excluded.updated_at`
	if _, err := q.db.ExecContext(ctx, query, id, string(data), now()); err != nil {
		return fmt.Errorf("failed to save %s document: %w", table, err)
	}
	return nil
}

func (q queries) listDocuments(ctx context.Context, query string, decode func([]byte) error, args ...any) error {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		if err := decode([]byte(data)); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
	}
	return rows.Err()
}

// =============================================================================
// TASKS
// =============================================================================

func (q queries) SaveTask(ctx context.Context, doc factory.TaskDoc) (int64, error) {
	if doc.ID == "" {
		return 0, &planner.InvalidArgumentError{Field: "task.id", Reason: "required"}
	}

	var stored int64
	err := q.db.QueryRowContext(ctx, "SELECT version FROM tasks WHERE id = ?", doc.ID).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read task version: %w", err)
	}
	if err := store.CheckVersion(doc.ID, stored, doc.Version); err != nil {
		return 0, err
	}
	days, err := store.DayAssignmentsOf(doc)
	if err != nil {
		return 0, err
	}

	doc.Version++
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("failed to encode task: %w", err)
	}
	var removedAt *string
	if doc.RemovedAt != nil {
		r := doc.RemovedAt.UTC().Format(time.RFC3339)
		removedAt = &r
	}

	query := `
		INSERT INTO tasks (id, name, doc_json, version, removed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			doc_json = excluded.doc_json,
			version = excluded.version,
			removed_at = excluded.removed_at,
			updated_at = excluded.updated_at
	`
	if _, err := q.db.ExecContext(ctx, query, doc.ID, doc.Name, string(data), doc.Version, removedAt, now()); err != nil {
		return 0, fmt.Errorf("failed to save task: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, "DELETE FROM day_assignments WHERE task_id = ?", doc.ID); err != nil {
		return 0, fmt.Errorf("failed to clear day assignments: %w", err)
	}
	for _, d := range days {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO day_assignments (task_id, allocation_id, resource_id, day, effort_seconds, consolidated)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.TaskID, d.AllocationID, d.Resource, d.Day.String(), d.Effort.Seconds(), d.Consolidated,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return 0, &planner.InvalidArgumentError{Field: "assignments", Reason: fmt.Sprintf("duplicate day %s for %s", d.Day, d.Resource)}
			}
			return 0, fmt.Errorf("failed to save day assignment: %w", err)
		}
	}
	return doc.Version, nil
}

func (q queries) GetTask(ctx context.Context, id string) (factory.TaskDoc, error) {
	var data string
	var version int64
	err := q.db.QueryRowContext(ctx, "SELECT doc_json, version FROM tasks WHERE id = ?", id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return factory.TaskDoc{}, planner.ErrTaskNotFound
	}
	if err != nil {
		return factory.TaskDoc{}, fmt.Errorf("failed to get task: %w", err)
	}
	var doc factory.TaskDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return factory.TaskDoc{}, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	doc.Version = version
	return doc, nil
}

func (q queries) ListTasks(ctx context.Context, includeRemoved bool) ([]factory.TaskDoc, error) {
	query := "SELECT doc_json FROM tasks WHERE removed_at IS NULL ORDER BY id"
	if includeRemoved {
		query = "SELECT doc_json FROM tasks ORDER BY id"
	}
	var docs []factory.TaskDoc
	err := q.listDocuments(ctx, query, func(data []byte) error {
		var d factory.TaskDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	return docs, err
}

func (q queries) DayAssignments(ctx context.Context, from, to planner.Day) ([]store.DayAssignmentRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT task_id, allocation_id, resource_id, day, effort_seconds, consolidated
		FROM day_assignments
		WHERE day >= ? AND day <= ?
		ORDER BY day, resource_id, allocation_id`,
		from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query day assignments: %w", err)
	}
	defer rows.Close()

	var records []store.DayAssignmentRecord
	for rows.Next() {
		var (
			r       store.DayAssignmentRecord
			day     string
			seconds int64
		)
		if err := rows.Scan(&r.TaskID, &r.AllocationID, &r.Resource, &day, &seconds, &r.Consolidated); err != nil {
			return nil, fmt.Errorf("failed to scan day assignment: %w", err)
		}
		if r.Day, err = planner.ParseDay(day); err != nil {
			return nil, err
		}
		r.Effort = planner.Seconds(seconds)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// QUEUES
// =============================================================================

func (q queries) SaveQueue(ctx context.Context, resource string, elements []factory.QueueElementDoc) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM queue_elements WHERE resource_id = ?", resource); err != nil {
		return fmt.Errorf("failed to clear queue %s: %w", resource, err)
	}
	for _, e := range elements {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode queue element: %w", err)
		}
		_, err = q.db.ExecContext(ctx, `
			INSERT INTO queue_elements (id, resource_id, allocation_id, task_id, seq, doc_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, resource, e.Allocation, e.Task, int64(e.Seq), string(data),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &planner.InvalidArgumentError{Field: "queue", Reason: "element " + e.ID + " is queued twice"}
			}
			return fmt.Errorf("failed to save queue element: %w", err)
		}
	}
	return nil
}

func (q queries) ListQueueElements(ctx context.Context) ([]factory.QueueElementDoc, error) {
	var docs []factory.QueueElementDoc
	err := q.listDocuments(ctx, "SELECT doc_json FROM queue_elements ORDER BY resource_id, seq", func(data []byte) error {
		var d factory.QueueElementDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	return docs, err
}

// =============================================================================
// CONSOLIDATION RUNS
// =============================================================================

func (q queries) SaveConsolidationRun(ctx context.Context, r store.ConsolidationRun) error {
	query := `
		INSERT INTO consolidation_runs (id, task_id, until, status, error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id, until) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`
	_, err := q.db.ExecContext(ctx, query,
		r.ID, r.TaskID, r.Until.String(), string(r.Status), r.Error,
		formatTime(r.StartedAt), formatTime(r.CompletedAt), r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save consolidation run: %w", err)
	}
	return nil
}

func (q queries) ListConsolidationRuns(ctx context.Context, status store.RunStatus) ([]store.ConsolidationRun, error) {
	query := `
		SELECT id, task_id, until, status, error, started_at, completed_at, created_at
		FROM consolidation_runs
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query consolidation runs: %w", err)
	}
	defer rows.Close()

	var runs []store.ConsolidationRun
	for rows.Next() {
		var (
			r                      store.ConsolidationRun
			until, st, createdAt   string
			startedAt, completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &until, &st, &r.Error, &startedAt, &completedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan consolidation run: %w", err)
		}
		if r.Until, err = planner.ParseDay(until); err != nil {
			return nil, err
		}
		r.Status = store.RunStatus(st)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.StartedAt = parseTime(startedAt)
		r.CompletedAt = parseTime(completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (q queries) IsConsolidationComplete(ctx context.Context, taskID string, until planner.Day) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM consolidation_runs
		WHERE task_id = ? AND until = ? AND status IN (?, ?)`,
		taskID, until.String(), string(store.RunCompleted), string(store.RunSkipped),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q queries) Reset(ctx context.Context) error {
	for _, table := range []string{"day_assignments", "queue_elements", "consolidation_runs", "tasks", "resources", "calendars"} {
		if _, err := q.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
