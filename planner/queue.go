/*
queue.go - Limiting resource queues

PURPOSE:
  A limiting resource works on one thing at a time. Its queue holds the
  allocations placed on it, ordered by start, then priority, then arrival,
  and keeps their occupied intervals [Start, End) disjoint.

CASCADE POLICIES:
  gap    (default) an inserted element takes the earliest gap at or after its
         proposed start that fits its effort. Nobody else moves; insertion
         never fails.
  shift  an inserted element starts at the earliest point not overlapping
         its predecessors; later elements it overlaps are pushed right, in
         order. Pushing a consolidated element is refused.

FIXED MOVES:
  MoveToFixed places an element exactly. Overlapping a consolidated element is
  refused with a QueueOverlapError; overlapped non-consolidated elements are
  re-queued after it.

  Every operation computes the new order on a copy and commits only when the
  whole plan is legal.

SEE ALSO:
  - scheduler.go: QueueScheduler, which owns one queue per resource and
    re-allocates the queued allocations after every placement
*/
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type CascadePolicy string

const (
	CascadeGap   CascadePolicy = "gap"
	CascadeShift CascadePolicy = "shift"
)

func ParseCascadePolicy(s string) (CascadePolicy, error) {
	switch p := CascadePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CascadeGap, CascadeShift:
		return p, nil
	case "":
		return CascadeGap, nil
	}
	return "", &InvalidArgumentError{Field: "cascade", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// =============================================================================
// QUEUE ELEMENT
// =============================================================================

type QueueElement struct {
	ID           string
	AllocationID AllocationID
	TaskID       TaskID
	Resource     ResourceID
	Start        IntraDayDate
	End          IntraDayDate
	Effort       EffortDuration
	Priority     int
	Consolidated bool

	// Capacity the element consumes on the resource. Nil means the
	// resource calendar.
	Calendar Calendar

	Seq uint64
}

func (e QueueElement) overlaps(start, end IntraDayDate) bool {
	return e.Start.Before(end) && start.Before(e.End)
}

// before orders elements by start, then priority, then arrival.
func (e QueueElement) before(o QueueElement) bool {
	if c := e.Start.Compare(o.Start); c != 0 {
		return c < 0
	}
	if e.Priority != o.Priority {
		return e.Priority < o.Priority
	}
	return e.Seq < o.Seq
}

// =============================================================================
// LIMITING QUEUE
// =============================================================================

type LimitingQueue struct {
	Resource *Resource
	Policy   CascadePolicy

	elements []QueueElement
	nextSeq  uint64
}

func NewLimitingQueue(r *Resource, policy CascadePolicy) *LimitingQueue {
	if policy == "" {
		policy = CascadeGap
	}
	return &LimitingQueue{Resource: r, Policy: policy, nextSeq: 1}
}

// Elements returns the queue in order.
func (q *LimitingQueue) Elements() []QueueElement {
	return append([]QueueElement(nil), q.elements...)
}

func (q *LimitingQueue) Len() int { return len(q.elements) }

func (q *LimitingQueue) Element(id string) (QueueElement, error) {
	if i := q.indexOf(id); i >= 0 {
		return q.elements[i], nil
	}
	return QueueElement{}, ErrQueueElementNotFound
}

func (q *LimitingQueue) ElementFor(allocation AllocationID) (QueueElement, bool) {
	for _, e := range q.elements {
		if e.AllocationID == allocation {
			return e, true
		}
	}
	return QueueElement{}, false
}

// Restore appends a persisted element as is. Only loaders should call it.
func (q *LimitingQueue) Restore(e QueueElement) {
	if e.Seq >= q.nextSeq {
		q.nextSeq = e.Seq + 1
	}
	q.elements = append(q.elements, e)
	q.sort(q.elements)
}

func (q *LimitingQueue) Remove(id string) error {
	i := q.indexOf(id)
	if i < 0 {
		return ErrQueueElementNotFound
	}
	q.elements = append(q.elements[:i], q.elements[i+1:]...)
	return nil
}

// Insert queues e at or after proposed. It returns the placed element and
// the other elements that moved.
func (q *LimitingQueue) Insert(e QueueElement, proposed IntraDayDate) (QueueElement, []QueueElement, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if q.indexOf(e.ID) >= 0 {
		return QueueElement{}, nil, &InvalidArgumentError{Field: "element", Reason: "already queued"}
	}
	if e.Seq == 0 {
		e.Seq = q.nextSeq
	}
	others := q.Elements()
	placed, next, moved, err := q.place(others, e, proposed)
	if err != nil {
		return QueueElement{}, nil, err
	}
	q.commit(next, e.Seq)
	return placed, moved, nil
}

// EarliestStart answers where Insert would place e, without changing the
// queue.
func (q *LimitingQueue) EarliestStart(e QueueElement, proposed IntraDayDate) (IntraDayDate, error) {
	e.Seq = q.nextSeq
	placed, _, _, err := q.place(q.Elements(), e, proposed)
	return placed.Start, err
}

// Move re-queues an element at or after proposed. Moving before everything
// makes it the head; moving past the tail appends it.
func (q *LimitingQueue) Move(id string, proposed IntraDayDate) (QueueElement, []QueueElement, error) {
	i := q.indexOf(id)
	if i < 0 {
		return QueueElement{}, nil, ErrQueueElementNotFound
	}
	e := q.elements[i]
	if e.Consolidated {
		return QueueElement{}, nil, consolidatedMoveError(e)
	}
	others := q.without(i)
	placed, next, moved, err := q.place(others, e, proposed)
	if err != nil {
		return QueueElement{}, nil, err
	}
	q.commit(next, 0)
	return placed, moved, nil
}

// MoveToFixed places an element exactly at start.
func (q *LimitingQueue) MoveToFixed(id string, start IntraDayDate) (QueueElement, []QueueElement, error) {
	i := q.indexOf(id)
	if i < 0 {
		return QueueElement{}, nil, ErrQueueElementNotFound
	}
	e := q.elements[i]
	if e.Consolidated && !start.Equal(e.Start) {
		return QueueElement{}, nil, consolidatedMoveError(e)
	}
	fixed, err := q.occupy(e, start, false)
	if err != nil {
		return QueueElement{}, nil, err
	}

	var kept, displaced []QueueElement
	for _, o := range q.without(i) {
		if !o.overlaps(fixed.Start, fixed.End) {
			kept = append(kept, o)
			continue
		}
		if o.Consolidated {
			return QueueElement{}, nil, &QueueOverlapError{
				Resource:    q.resourceID(),
				Conflicting: o.AllocationID,
				Start:       fixed.Start,
				End:         fixed.End,
			}
		}
		displaced = append(displaced, o)
	}

	next := append(kept, fixed)
	q.sort(next)
	var moved []QueueElement
	for _, o := range displaced {
		var placed QueueElement
		placed, next, err = q.gap(next, o, fixed.End)
		if err != nil {
			return QueueElement{}, nil, err
		}
		moved = append(moved, placed)
	}
	q.commit(next, 0)
	return fixed, moved, nil
}

// Validate reports the first pair of overlapping elements.
func (q *LimitingQueue) Validate() error {
	for i := 1; i < len(q.elements); i++ {
		prev, cur := q.elements[i-1], q.elements[i]
		if cur.Start.Before(prev.End) && prev.Start.Before(prev.End) && cur.Start.Before(cur.End) {
			return fmt.Errorf("queue of %s: %s [%s, %s) overlaps %s [%s, %s)",
				q.resourceID(), prev.AllocationID, prev.Start, prev.End, cur.AllocationID, cur.Start, cur.End)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Placement
// -----------------------------------------------------------------------------

func (q *LimitingQueue) place(others []QueueElement, e QueueElement, proposed IntraDayDate) (QueueElement, []QueueElement, []QueueElement, error) {
	if q.Policy == CascadeShift {
		return q.shift(others, e, proposed)
	}
	placed, next, err := q.gap(others, e, proposed)
	return placed, next, nil, err
}

// gap finds the earliest free window at or after proposed.
func (q *LimitingQueue) gap(others []QueueElement, e QueueElement, proposed IntraDayDate) (QueueElement, []QueueElement, error) {
	placed, err := q.occupy(e, proposed, true)
	if err != nil {
		return QueueElement{}, nil, err
	}
	for _, o := range others {
		if !o.overlaps(placed.Start, placed.End) {
			continue
		}
		if placed, err = q.occupy(e, MaxIntraDay(placed.Start, o.End), true); err != nil {
			return QueueElement{}, nil, err
		}
	}
	next := append(append([]QueueElement(nil), others...), placed)
	q.sort(next)
	return placed, next, nil
}

// shift places after the predecessors and pushes the followers.
func (q *LimitingQueue) shift(others []QueueElement, e QueueElement, proposed IntraDayDate) (QueueElement, []QueueElement, []QueueElement, error) {
	placed, err := q.occupy(e, proposed, true)
	if err != nil {
		return QueueElement{}, nil, nil, err
	}

	// Predecessors are decided against the proposed position, not the bumped one.
	anchor := placed
	var next, followers []QueueElement
	for _, o := range others {
		precedes := o.before(anchor)
		if !precedes {
			followers = append(followers, o)
			continue
		}
		if o.End.After(placed.Start) {
			if placed, err = q.occupy(e, o.End, true); err != nil {
				return QueueElement{}, nil, nil, err
			}
		}
		next = append(next, o)
	}
	next = append(next, placed)

	var moved []QueueElement
	cursor := placed.End
	for _, o := range followers {
		if !o.Start.Before(cursor) {
			next = append(next, o)
			cursor = MaxIntraDay(cursor, o.End)
			continue
		}
		if o.Consolidated {
			return QueueElement{}, nil, nil, &QueueOverlapError{
				Resource:    q.resourceID(),
				Conflicting: o.AllocationID,
				Start:       placed.Start,
				End:         placed.End,
			}
		}
		pushed, err := q.occupy(o, cursor, true)
		if err != nil {
			return QueueElement{}, nil, nil, err
		}
		moved = append(moved, pushed)
		next = append(next, pushed)
		cursor = pushed.End
	}
	q.sort(next)
	return placed, next, moved, nil
}

// occupy computes e's interval when it starts at start. A rolling start skips
// days without free capacity.
func (q *LimitingQueue) occupy(e QueueElement, start IntraDayDate, roll bool) (QueueElement, error) {
	cal := q.calendarOf(e)
	if roll {
		start = start.rollToCapacity(cal)
	}
	end, err := start.AddEffort(cal, e.Effort)
	if err != nil {
		return QueueElement{}, err
	}
	e.Start, e.End = start, end
	return e, nil
}

func (q *LimitingQueue) calendarOf(e QueueElement) Calendar {
	if e.Calendar != nil {
		return e.Calendar
	}
	if q.Resource != nil {
		return q.Resource.Calendar
	}
	return nil
}

func (q *LimitingQueue) commit(next []QueueElement, usedSeq uint64) {
	q.elements = next
	if usedSeq >= q.nextSeq {
		q.nextSeq = usedSeq + 1
	}
}

func (q *LimitingQueue) sort(elements []QueueElement) {
	sort.SliceStable(elements, func(i, j int) bool { return elements[i].before(elements[j]) })
}

func (q *LimitingQueue) without(i int) []QueueElement {
	others := make([]QueueElement, 0, len(q.elements)-1)
	others = append(others, q.elements[:i]...)
	return append(others, q.elements[i+1:]...)
}

func (q *LimitingQueue) indexOf(id string) int {
	for i, e := range q.elements {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (q *LimitingQueue) resourceID() ResourceID {
	if q.Resource == nil {
		return ""
	}
	return q.Resource.ID
}

func consolidatedMoveError(e QueueElement) error {
	return &PolicyViolationError{
		Code:    "queue_consolidated",
		Message: "The queued allocation has consolidated progress and cannot be moved.",
		Cause:   ErrConsolidatedHistory,
	}
}
