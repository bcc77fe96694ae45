package planner

import "sort"

// =============================================================================
// AGGREGATE - Read view over a task's allocations
// =============================================================================

// Aggregate sums a task's allocations. It never owns allocation state and
// re-sorts on every call, so reading it right after a mutation is safe.
type Aggregate struct {
	allocations []*ResourceAllocation
}

func NewAggregate(allocations ...*ResourceAllocation) *Aggregate {
	return &Aggregate{allocations: allocations}
}

// NewAggregateFromSatisfied keeps the allocations that hold effort.
func NewAggregateFromSatisfied(allocations ...*ResourceAllocation) *Aggregate {
	var kept []*ResourceAllocation
	for _, a := range allocations {
		if a.AssignedEffort() > 0 {
			kept = append(kept, a)
		}
	}
	return &Aggregate{allocations: kept}
}

func (g *Aggregate) IsEmpty() bool { return len(g.allocations) == 0 }

// SortedByStart orders by start position, ties by id.
func (g *Aggregate) SortedByStart() []*ResourceAllocation {
	sorted := append([]*ResourceAllocation(nil), g.allocations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].start.Compare(sorted[j].start); c != 0 {
			return c < 0
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func (g *Aggregate) TotalEffort() EffortDuration {
	var total EffortDuration
	for _, a := range g.allocations {
		total += a.AssignedEffort()
	}
	return total
}

func (g *Aggregate) ConsolidatedEffort() EffortDuration {
	var total EffortDuration
	for _, a := range g.allocations {
		total += a.ConsolidatedEffort()
	}
	return total
}

// EffortBetween sums effort on the days of r across allocations.
func (g *Aggregate) EffortBetween(r DateRange) EffortDuration {
	var total EffortDuration
	for _, a := range g.allocations {
		total += a.EffortBetween(r)
	}
	return total
}

func (g *Aggregate) EffortOn(day Day) EffortDuration {
	var total EffortDuration
	for _, a := range g.allocations {
		total += a.EffortOn(day)
	}
	return total
}

// Start is the earliest allocation start, false when empty.
func (g *Aggregate) Start() (IntraDayDate, bool) {
	sorted := g.SortedByStart()
	if len(sorted) == 0 {
		return IntraDayDate{}, false
	}
	return sorted[0].start, true
}

// End is the latest allocation end, false when empty.
func (g *Aggregate) End() (IntraDayDate, bool) {
	if len(g.allocations) == 0 {
		return IntraDayDate{}, false
	}
	end := g.allocations[0].end
	for _, a := range g.allocations[1:] {
		end = MaxIntraDay(end, a.end)
	}
	return end, true
}
