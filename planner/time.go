package planner

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DAY - Calendar day (UTC midnight)
// =============================================================================

type Day struct {
	Time time.Time
}

const dayLayout = "2006-01-02"

// searchHorizonDays bounds every forward/backward walk over the calendar.
const searchHorizonDays = 5 * 366

func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates t to its calendar day.
func DayOf(t time.Time) Day { return NewDay(t.Year(), t.Month(), t.Day()) }

func Today() Day { return DayOf(time.Now()) }

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, &InvalidArgumentError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
	}
	return DayOf(t), nil
}

// Comparison
func (d Day) Before(o Day) bool        { return d.Time.Before(o.Time) }
func (d Day) After(o Day) bool         { return d.Time.After(o.Time) }
func (d Day) Equal(o Day) bool         { return d.Time.Equal(o.Time) }
func (d Day) BeforeOrEqual(o Day) bool { return !d.After(o) }
func (d Day) AfterOrEqual(o Day) bool  { return !d.Before(o) }

func (d Day) Compare(o Day) int {
	switch {
	case d.Before(o):
		return -1
	case d.After(o):
		return 1
	}
	return 0
}

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{Time: d.Time.AddDate(0, 0, n)} }

// DaysUntil returns the number of days from d to o (negative when o is earlier).
func (d Day) DaysUntil(o Day) int { return int(o.Time.Sub(d.Time).Hours() / 24) }

// Properties
func (d Day) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Day) IsZero() bool          { return d.Time.IsZero() }
func (d Day) String() string        { return d.Time.Format(dayLayout) }

func MinDay(a, b Day) Day {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDay(a, b Day) Day {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// INTRA DAY DATE - Day plus effort already consumed on that day
// =============================================================================

// IntraDayDate is a position on the effort axis: a day plus the effort
// offset into that day. (d, 0) is the start of d. As an end position it is
// exclusive: (d, 0) ends before d, (d, 4h) ends after the first 4h of d.
type IntraDayDate struct {
	Day    Day
	Effort EffortDuration
}

func StartOfDay(d Day) IntraDayDate { return IntraDayDate{Day: d} }

// EndOfDay is the exclusive end covering all of d.
func EndOfDay(d Day) IntraDayDate { return StartOfDay(d.AddDays(1)) }

// NewIntraDayDate builds a position; negative offsets are clamped to zero.
func NewIntraDayDate(d Day, effort EffortDuration) IntraDayDate {
	return IntraDayDate{Day: d, Effort: nonNegative(effort)}
}

func (a IntraDayDate) Compare(b IntraDayDate) int {
	if c := a.Day.Compare(b.Day); c != 0 {
		return c
	}
	switch {
	case a.Effort < b.Effort:
		return -1
	case a.Effort > b.Effort:
		return 1
	}
	return 0
}

func (a IntraDayDate) Before(b IntraDayDate) bool        { return a.Compare(b) < 0 }
func (a IntraDayDate) After(b IntraDayDate) bool         { return a.Compare(b) > 0 }
func (a IntraDayDate) Equal(b IntraDayDate) bool         { return a.Compare(b) == 0 }
func (a IntraDayDate) BeforeOrEqual(b IntraDayDate) bool { return a.Compare(b) <= 0 }
func (a IntraDayDate) AfterOrEqual(b IntraDayDate) bool  { return a.Compare(b) >= 0 }
func (a IntraDayDate) IsStartOfDay() bool                { return a.Effort == 0 }
func (a IntraDayDate) IsZero() bool                      { return a.Day.IsZero() && a.Effort == 0 }

// AsExclusiveEnd returns the first day not covered when a is used as an end.
// Any consumed effort on a.Day means the day is covered.
func (a IntraDayDate) AsExclusiveEnd() Day {
	if a.IsStartOfDay() {
		return a.Day
	}
	return a.Day.AddDays(1)
}

// LastCoveredDay is the inclusive counterpart of AsExclusiveEnd.
func (a IntraDayDate) LastCoveredDay() Day { return a.AsExclusiveEnd().AddDays(-1) }

func (a IntraDayDate) String() string {
	if a.IsStartOfDay() {
		return a.Day.String()
	}
	return a.Day.String() + "+" + a.Effort.String()
}

// ParseIntraDayDate reads the String form: "2024-01-08" or "2024-01-08+4:00".
func ParseIntraDayDate(s string) (IntraDayDate, error) {
	dayPart, effortPart, hasEffort := strings.Cut(strings.TrimSpace(s), "+")
	d, err := ParseDay(dayPart)
	if err != nil {
		return IntraDayDate{}, err
	}
	if !hasEffort {
		return StartOfDay(d), nil
	}
	e, err := ParseEffort(effortPart)
	if err != nil {
		return IntraDayDate{}, err
	}
	return NewIntraDayDate(d, e), nil
}

func MinIntraDay(a, b IntraDayDate) IntraDayDate {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxIntraDay(a, b IntraDayDate) IntraDayDate {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// EFFORT ARITHMETIC
// =============================================================================

// AddEffort advances by effort, rolling into later days once a day's
// capacity is exhausted. Zero-capacity days are skipped. When the effort
// exactly fills a day the result stays on that day at full capacity.
func (a IntraDayDate) AddEffort(cal Calendar, effort EffortDuration) (IntraDayDate, error) {
	if effort < 0 {
		return a, ErrNegativeEffort
	}
	if effort == 0 {
		return a, nil
	}
	day, offset, remaining := a.Day, a.Effort, effort
	for i := 0; i < searchHorizonDays; i++ {
		free := CapacityOn(cal, day) - offset
		if free > 0 {
			if remaining <= free {
				return IntraDayDate{Day: day, Effort: offset + remaining}, nil
			}
			remaining -= free
		}
		day, offset = day.AddDays(1), 0
	}
	return a, fmt.Errorf("adding %s from %s: %w", effort, a, ErrCapacityExhausted)
}

// SubtractEffort moves backward by effort, skipping zero-capacity days.
func (a IntraDayDate) SubtractEffort(cal Calendar, effort EffortDuration) (IntraDayDate, error) {
	if effort < 0 {
		return a, ErrNegativeEffort
	}
	if effort == 0 {
		return a, nil
	}
	day := a.Day
	offset := MinEffort(a.Effort, CapacityOn(cal, day))
	remaining := effort
	for i := 0; i < searchHorizonDays; i++ {
		if offset > 0 {
			if remaining <= offset {
				return IntraDayDate{Day: day, Effort: offset - remaining}, nil
			}
			remaining -= offset
		}
		day = day.AddDays(-1)
		offset = CapacityOn(cal, day)
	}
	return a, fmt.Errorf("subtracting %s from %s: %w", effort, a, ErrCapacityExhausted)
}

// EffortUntil integrates calendar capacity between a and b. It returns zero
// when b is not after a.
func (a IntraDayDate) EffortUntil(cal Calendar, b IntraDayDate) EffortDuration {
	if !a.Before(b) {
		return 0
	}
	first := CapacityOn(cal, a.Day)
	if a.Day.Equal(b.Day) {
		return nonNegative(MinEffort(b.Effort, first) - MinEffort(a.Effort, first))
	}
	total := nonNegative(first - a.Effort)
	for d := a.Day.AddDays(1); d.Before(b.Day); d = d.AddDays(1) {
		total += CapacityOn(cal, d)
	}
	return total + MinEffort(b.Effort, CapacityOn(cal, b.Day))
}

// rollToCapacity moves a start position forward while its day has no free
// capacity left, so (d, 8h) on an 8h day becomes (d+1, 0).
func (a IntraDayDate) rollToCapacity(cal Calendar) IntraDayDate {
	day, offset := a.Day, a.Effort
	for i := 0; i < searchHorizonDays; i++ {
		if CapacityOn(cal, day) > offset {
			return IntraDayDate{Day: day, Effort: offset}
		}
		day, offset = day.AddDays(1), 0
	}
	return a
}
