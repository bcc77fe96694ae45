package planner

import (
	"sort"
)

// =============================================================================
// QUEUE SCHEDULER - One queue per limiting resource
// =============================================================================

// QueueScheduler places limiting allocations on the queues of their
// resources and keeps each queued allocation's assignments in line with its
// occupied interval.
type QueueScheduler struct {
	Policy CascadePolicy

	// OnPlace, when set, sees every element a placement re-allocated.
	OnPlace func(QueueElement)

	queues      map[ResourceID]*LimitingQueue
	allocations map[AllocationID]*ResourceAllocation
}

func NewQueueScheduler(policy CascadePolicy) *QueueScheduler {
	return &QueueScheduler{
		Policy:      policy,
		queues:      make(map[ResourceID]*LimitingQueue),
		allocations: make(map[AllocationID]*ResourceAllocation),
	}
}

// Queue returns the queue of r, creating it on first use.
func (s *QueueScheduler) Queue(r *Resource) *LimitingQueue {
	q, ok := s.queues[r.ID]
	if !ok {
		q = NewLimitingQueue(r, s.Policy)
		s.queues[r.ID] = q
	}
	return q
}

// Queues returns every queue ordered by resource id.
func (s *QueueScheduler) Queues() []*LimitingQueue {
	result := make([]*LimitingQueue, 0, len(s.queues))
	for _, q := range s.queues {
		result = append(result, q)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].resourceID() < result[j].resourceID() })
	return result
}

// Track makes an allocation known so that placements can re-allocate it.
func (s *QueueScheduler) Track(a *ResourceAllocation) {
	s.allocations[a.ID] = a
}

// Restore puts a persisted element back on r's queue.
func (s *QueueScheduler) Restore(r *Resource, e QueueElement) {
	if a, ok := s.allocations[e.AllocationID]; ok && e.Calendar == nil {
		e.Calendar = a.calendarFor(r)
	}
	s.Queue(r).Restore(e)
}

// Enqueue queues a limiting allocation at or after proposed. A generic
// allocation goes to the pool member offering the earliest start, ties
// broken by resource id. Allocations already queued are moved instead.
func (s *QueueScheduler) Enqueue(a *ResourceAllocation, proposed IntraDayDate, priority int) (QueueElement, error) {
	if !a.Limiting {
		return QueueElement{}, ErrNotLimiting
	}
	s.Track(a)
	if q, e, ok := s.find(a.ID); ok {
		return s.Move(q.resourceID(), e.ID, proposed)
	}

	effort := a.AssignedEffort()
	if effort == 0 && a.task != nil {
		effort = a.task.WorkHours
	}

	var (
		best      *Resource
		bestStart IntraDayDate
		firstErr  error
	)
	for _, r := range s.candidates(a) {
		start, err := s.Queue(r).EarliestStart(s.elementFor(a, r, effort, priority), proposed)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if best == nil || start.Before(bestStart) {
			best, bestStart = r, start
		}
	}
	if best == nil {
		if firstErr != nil {
			return QueueElement{}, firstErr
		}
		return QueueElement{}, ErrCapacityExhausted
	}

	placed, moved, err := s.Queue(best).Insert(s.elementFor(a, best, effort, priority), proposed)
	if err != nil {
		return QueueElement{}, err
	}
	if err := s.apply(append([]QueueElement{placed}, moved...)); err != nil {
		return QueueElement{}, err
	}
	return placed, nil
}

// Move re-queues an element of resource at or after proposed.
func (s *QueueScheduler) Move(resource ResourceID, elementID string, proposed IntraDayDate) (QueueElement, error) {
	q, ok := s.queues[resource]
	if !ok {
		return QueueElement{}, ErrResourceNotFound
	}
	placed, moved, err := q.Move(elementID, proposed)
	if err != nil {
		return QueueElement{}, err
	}
	if err := s.apply(append([]QueueElement{placed}, moved...)); err != nil {
		return QueueElement{}, err
	}
	return placed, nil
}

// MoveToFixed places an element exactly at start.
func (s *QueueScheduler) MoveToFixed(resource ResourceID, elementID string, start IntraDayDate) (QueueElement, error) {
	q, ok := s.queues[resource]
	if !ok {
		return QueueElement{}, ErrResourceNotFound
	}
	placed, moved, err := q.MoveToFixed(elementID, start)
	if err != nil {
		return QueueElement{}, err
	}
	if err := s.apply(append([]QueueElement{placed}, moved...)); err != nil {
		return QueueElement{}, err
	}
	return placed, nil
}

// Unqueue removes the allocation from whichever queue holds it.
func (s *QueueScheduler) Unqueue(id AllocationID) error {
	q, e, ok := s.find(id)
	if !ok {
		return ErrQueueElementNotFound
	}
	if e.Consolidated {
		return consolidatedMoveError(e)
	}
	return q.Remove(e.ID)
}

// Validate checks every queue for overlaps.
func (s *QueueScheduler) Validate() error {
	for _, q := range s.Queues() {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *QueueScheduler) find(id AllocationID) (*LimitingQueue, QueueElement, bool) {
	for _, q := range s.queues {
		if e, ok := q.ElementFor(id); ok {
			return q, e, true
		}
	}
	return nil, QueueElement{}, false
}

func (s *QueueScheduler) candidates(a *ResourceAllocation) []*Resource {
	if a.Kind == SpecificAllocation {
		if a.Resource == nil {
			return nil
		}
		return []*Resource{a.Resource}
	}
	var result []*Resource
	for _, r := range a.Pool {
		if r.Limiting {
			result = append(result, r)
		}
	}
	sortResources(result)
	return result
}

func (s *QueueScheduler) elementFor(a *ResourceAllocation, r *Resource, effort EffortDuration, priority int) QueueElement {
	e := QueueElement{
		AllocationID: a.ID,
		Resource:     r.ID,
		Effort:       effort,
		Priority:     priority,
		Calendar:     a.calendarFor(r),
	}
	if a.task != nil {
		e.TaskID = a.task.ID
		e.Consolidated = a.task.HasConsolidations()
	}
	return e
}

// apply re-allocates each placed allocation flat over its occupied interval.
// Consolidated elements never move and keep their assignments.
func (s *QueueScheduler) apply(placed []QueueElement) error {
	for _, e := range placed {
		a, ok := s.allocations[e.AllocationID]
		if !ok || a.task == nil || e.Consolidated {
			continue
		}
		if a.Kind == GenericAllocation {
			a.QueuedOn = e.Resource
		}
		if err := a.task.PlaceAt(e.Start, e.End); err != nil {
			return err
		}
		if a.AssignedEffort() != e.Effort {
			if err := a.Allocate(e.Effort); err != nil {
				return err
			}
		}
		if s.OnPlace != nil {
			s.OnPlace(e)
		}
	}
	return nil
}
