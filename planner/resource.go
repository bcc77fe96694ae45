package planner

import "sort"

// =============================================================================
// RESOURCE
// =============================================================================

// Resource is a worker or machine that can absorb effort. Limiting resources
// behave as a serial queue: no two queued allocations may overlap on them.
type Resource struct {
	ID       ResourceID
	Name     string
	Calendar Calendar
	Criteria []Criterion
	Limiting bool
}

// Satisfies returns true when the resource carries every given criterion.
func (r *Resource) Satisfies(criteria []Criterion) bool {
	for _, c := range criteria {
		found := false
		for _, own := range r.Criteria {
			if own == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *Resource) CapacityOn(day Day) EffortDuration { return CapacityOn(r.Calendar, day) }

// =============================================================================
// RESOURCE SET - Lookup by id
// =============================================================================

// ResourceSet indexes resources by id. Planning sessions build one from the
// resources they load.
type ResourceSet map[ResourceID]*Resource

func NewResourceSet(resources ...*Resource) ResourceSet {
	s := make(ResourceSet, len(resources))
	for _, r := range resources {
		s[r.ID] = r
	}
	return s
}

func (s ResourceSet) Get(id ResourceID) (*Resource, error) {
	r, ok := s[id]
	if !ok {
		return nil, ErrResourceNotFound
	}
	return r, nil
}

// Matching returns resources satisfying all criteria, ordered by id.
func (s ResourceSet) Matching(criteria []Criterion) []*Resource {
	var result []*Resource
	for _, r := range s {
		if r.Satisfies(criteria) {
			result = append(result, r)
		}
	}
	sortResources(result)
	return result
}

// Sorted returns every resource ordered by id.
func (s ResourceSet) Sorted() []*Resource {
	result := make([]*Resource, 0, len(s))
	for _, r := range s {
		result = append(result, r)
	}
	sortResources(result)
	return result
}

func sortResources(rs []*Resource) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
