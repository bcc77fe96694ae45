package planner

import "fmt"

// =============================================================================
// RESTRICTION - Which dates may be edited
// =============================================================================

type RestrictionKind string

const (
	NoRestriction          RestrictionKind = "none"
	OnlyOnIntervalRestrict RestrictionKind = "only_on_interval"
)

// Restriction bounds edits of a task's allocations. It is rebuilt from the
// task for every validation pass and holds no state beyond its interval.
type Restriction struct {
	Kind RestrictionKind
	// Allowed days, inclusive. Only set for OnlyOnIntervalRestrict.
	Interval DateRange
}

// BuildRestriction derives the restriction from what the task calculates.
// Tasks deriving their number of hours keep edits inside their interval.
func BuildRestriction(calculated CalculatedValue, start, end IntraDayDate) (Restriction, error) {
	switch calculated {
	case CalculatedEndDate, CalculatedResourcesPerDay:
		return Restriction{Kind: NoRestriction}, nil
	case CalculatedNumberOfHours:
		return OnlyOnInterval(start.Day, end.LastCoveredDay()), nil
	}
	return Restriction{}, fmt.Errorf("%w: %q", ErrUnknownCalculatedValue, calculated)
}

// Restriction returns the task's current restriction.
func (t *Task) Restriction() (Restriction, error) {
	return BuildRestriction(t.CalculatedValue, t.Start, t.End)
}

func OnlyOnInterval(start, end Day) Restriction {
	return Restriction{Kind: OnlyOnIntervalRestrict, Interval: DateRange{Start: start, End: MaxDay(start, end)}}
}

func (r Restriction) LimitStartDate(d Day) Day {
	if r.Kind != OnlyOnIntervalRestrict {
		return d
	}
	return clampDay(d, r.Interval)
}

func (r Restriction) LimitEndDate(d Day) Day {
	if r.Kind != OnlyOnIntervalRestrict {
		return d
	}
	return clampDay(d, r.Interval)
}

// IsDisabledEditionOn is true when the item shares no day with the allowed
// interval.
func (r Restriction) IsDisabledEditionOn(item DetailItem) bool {
	if r.Kind != OnlyOnIntervalRestrict {
		return false
	}
	return !r.Interval.Overlaps(item.Range())
}

// IsInvalidTotalEffort never refuses a total for the existing kinds.
func (r Restriction) IsInvalidTotalEffort(EffortDuration) bool { return false }

// Validate refuses an edit interval sharing no day with the allowed one.
func (r Restriction) Validate(edit DateRange) error {
	if r.Kind != OnlyOnIntervalRestrict || r.Interval.Overlaps(edit) {
		return nil
	}
	return &PolicyViolationError{
		Code:    "outside_restriction",
		Message: fmt.Sprintf("The edited dates %s are outside the allowed interval %s.", edit, r.Interval),
		Cause:   ErrOutsideRestriction,
	}
}

func clampDay(d Day, r DateRange) Day {
	return MinDay(MaxDay(d, r.Start), r.End)
}
