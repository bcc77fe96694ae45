package planner

import "sort"

// =============================================================================
// RESOURCE LOAD
// =============================================================================

type LoadLevel string

const (
	LoadFree     LoadLevel = "free"
	LoadPartial  LoadLevel = "partial"
	LoadFull     LoadLevel = "full"
	LoadOverload LoadLevel = "overload"
)

func loadLevel(assigned, capacity EffortDuration) LoadLevel {
	switch {
	case assigned == 0:
		return LoadFree
	case assigned < capacity:
		return LoadPartial
	case assigned == capacity:
		return LoadFull
	}
	return LoadOverload
}

type LoadDay struct {
	Day      Day
	Assigned EffortDuration
	Capacity EffortDuration
	Level    LoadLevel
}

// LoadTimeline is the day-by-day load of one resource, or of every resource
// satisfying a criterion.
type LoadTimeline struct {
	Key       string
	Resources []ResourceID
	Days      []LoadDay
}

func (l LoadTimeline) TotalAssigned() EffortDuration {
	var total EffortDuration
	for _, d := range l.Days {
		total += d.Assigned
	}
	return total
}

func (l LoadTimeline) Overloaded() []Day {
	var days []Day
	for _, d := range l.Days {
		if d.Level == LoadOverload {
			days = append(days, d.Day)
		}
	}
	return days
}

// Assigned reports how much effort a resource carries on a day.
type Assigned interface {
	AssignedOn(day Day, resource ResourceID) EffortDuration
}

// Allocations reads assigned effort straight from loaded allocations.
type Allocations []*ResourceAllocation

func (as Allocations) AssignedOn(day Day, resource ResourceID) EffortDuration {
	var total EffortDuration
	for _, a := range as {
		total += a.EffortOnFor(day, resource)
	}
	return total
}

// DayTotals holds pre-summed effort per resource and day, as read from
// storage without loading whole tasks.
type DayTotals map[ResourceID]map[Day]EffortDuration

func (t DayTotals) Add(day Day, resource ResourceID, effort EffortDuration) {
	days, ok := t[resource]
	if !ok {
		days = make(map[Day]EffortDuration)
		t[resource] = days
	}
	days[day] += effort
}

func (t DayTotals) AssignedOn(day Day, resource ResourceID) EffortDuration {
	return t[resource][day]
}

// ResourceLoad sums what is assigned to r on each day of rng.
func ResourceLoad(r *Resource, assigned Assigned, rng DateRange) LoadTimeline {
	return loadOf(string(r.ID), []*Resource{r}, assigned, rng)
}

// LoadByResource returns one timeline per resource, ordered by id.
func LoadByResource(resources ResourceSet, assigned Assigned, rng DateRange) []LoadTimeline {
	var result []LoadTimeline
	for _, r := range resources.Sorted() {
		result = append(result, ResourceLoad(r, assigned, rng))
	}
	return result
}

// LoadByCriterion groups resources by each criterion they carry.
func LoadByCriterion(resources ResourceSet, assigned Assigned, rng DateRange) []LoadTimeline {
	groups := make(map[Criterion][]*Resource)
	for _, r := range resources.Sorted() {
		for _, c := range r.Criteria {
			groups[c] = append(groups[c], r)
		}
	}
	keys := make([]Criterion, 0, len(groups))
	for c := range groups {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	result := make([]LoadTimeline, 0, len(keys))
	for _, c := range keys {
		result = append(result, loadOf(string(c), groups[c], assigned, rng))
	}
	return result
}

func loadOf(key string, resources []*Resource, assigned Assigned, rng DateRange) LoadTimeline {
	timeline := LoadTimeline{Key: key}
	for _, r := range resources {
		timeline.Resources = append(timeline.Resources, r.ID)
	}
	for _, d := range rng.Days() {
		var total, capacity EffortDuration
		for _, r := range resources {
			capacity += r.CapacityOn(d)
			total += assigned.AssignedOn(d, r.ID)
		}
		timeline.Days = append(timeline.Days, LoadDay{Day: d, Assigned: total, Capacity: capacity, Level: loadLevel(total, capacity)})
	}
	return timeline
}
