/*
Package planning runs planner operations against a repository.

PURPOSE:
  The planner package works on in-memory object graphs and never touches
  storage. The Service loads the graphs a request needs, runs the edit, and
  writes back what changed, all inside one repository transaction.

RECOMPUTATION:
  A *Recomputation is one transaction in progress: the repository view,
  the catalog, the tasks loaded so far, which of them changed, and the
  queue scheduler once a queue operation needed it.

  Service methods open their own Recomputation. Callers that are already
  inside one (plan replay, the consolidation job) pass it to Run and call
  the Recomputation methods directly, so a nested edit reuses the loaded
  tasks and never opens a second transaction:

    err := svc.Run(ctx, nil, func(rc *planning.Recomputation) error {
        if err := rc.Allocate("t-1", "a-1", planner.Hours(40)); err != nil {
            return err
        }
        return svc.Run(ctx, rc, func(rc *planning.Recomputation) error {
            _, err := rc.Consolidate("t-1", yesterday)
            return err
        })
    })

  Nothing is written until the outermost Run returns without error.

SEE ALSO:
  - operations.go: edits on a Recomputation
  - views.go: read models for the API and the CLI
  - plan.go: replaying plan files
*/
package planning

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/store"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	repo    store.TxRepository
	cascade planner.CascadePolicy
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithCascadePolicy(p planner.CascadePolicy) Option {
	return func(s *Service) { s.cascade = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now, for removal timestamps and "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo store.TxRepository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		cascade: planner.CascadeGap,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "planning")
	return s
}

func (s *Service) Repository() store.TxRepository { return s.repo }

func (s *Service) Today() planner.Day { return planner.DayOf(s.now()) }

// Run executes fn inside a recomputation. With a nil rc it opens a
// transaction, runs fn and saves every changed task and queue before
// committing. With a non-nil rc fn joins that recomputation; saving is left
// to whoever opened it.
func (s *Service) Run(ctx context.Context, rc *Recomputation, fn func(rc *Recomputation) error) error {
	if rc != nil {
		rc.depth++
		defer func() { rc.depth-- }()
		return fn(rc)
	}

	return s.repo.WithTx(ctx, func(tx store.Repository) error {
		rc := newRecomputation(ctx, s, tx)
		if err := fn(rc); err != nil {
			return err
		}
		return rc.flush()
	})
}
