package planner

// =============================================================================
// DATE RANGE - Inclusive span of days
// =============================================================================

// DateRange is the inclusive span [Start, End]. Queries on the aggregate,
// restrictions and detail items are all expressed with it.
type DateRange struct {
	Start Day
	End   Day
}

func NewDateRange(start, end Day) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	if !r.Valid() {
		return r, &InvalidArgumentError{Field: "range", Reason: "end " + end.String() + " before start " + start.String()}
	}
	return r, nil
}

// RangeBetween converts an [start, end) pair of positions into the days it
// touches. An empty pair yields an invalid range.
func RangeBetween(start, end IntraDayDate) DateRange {
	return DateRange{Start: start.Day, End: end.LastCoveredDay()}
}

func (r DateRange) Valid() bool { return !r.End.Before(r.Start) }

// Contains returns true if d is within [Start, End].
func (r DateRange) Contains(d Day) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

func (r DateRange) Overlaps(o DateRange) bool {
	return r.Valid() && o.Valid() && !r.End.Before(o.Start) && !o.End.Before(r.Start)
}

// Intersect returns the common days, false when there are none.
func (r DateRange) Intersect(o DateRange) (DateRange, bool) {
	if !r.Overlaps(o) {
		return DateRange{}, false
	}
	return DateRange{Start: MaxDay(r.Start, o.Start), End: MinDay(r.End, o.End)}, true
}

// Len is the number of days, zero for an invalid range.
func (r DateRange) Len() int {
	if !r.Valid() {
		return 0
	}
	return r.Start.DaysUntil(r.End) + 1
}

// Days returns all days in the range.
func (r DateRange) Days() []Day {
	days := make([]Day, 0, r.Len())
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// StartPosition and EndPosition convert back to the [start, end) axis.
func (r DateRange) StartPosition() IntraDayDate { return StartOfDay(r.Start) }
func (r DateRange) EndPosition() IntraDayDate   { return EndOfDay(r.End) }

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
