package planner

import (
	"sort"
	"time"
)

// =============================================================================
// CAPACITY PROVIDER
// =============================================================================

// Calendar answers how much effort fits on a day. Zero means a non-working
// day. Every component reads capacity through this interface.
type Calendar interface {
	CapacityOn(day Day) EffortDuration
}

// CalendarFunc adapts a function to Calendar.
type CalendarFunc func(day Day) EffortDuration

func (f CalendarFunc) CapacityOn(day Day) EffortDuration { return f(day) }

// CapacityOn reads cal defensively: a nil calendar has no capacity and
// negative answers count as zero.
func CapacityOn(cal Calendar, day Day) EffortDuration {
	if cal == nil {
		return 0
	}
	return nonNegative(cal.CapacityOn(day))
}

// FixedCalendar offers the same capacity every day of the week.
func FixedCalendar(perDay EffortDuration) Calendar {
	return CalendarFunc(func(Day) EffortDuration { return perDay })
}

// Intersect bounds one calendar by another (e.g. a resource calendar by the
// task calendar). A nil side leaves the other unchanged.
func Intersect(a, b Calendar) Calendar {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return CalendarFunc(func(day Day) EffortDuration {
		return MinEffort(CapacityOn(a, day), CapacityOn(b, day))
	})
}

// =============================================================================
// BASE CALENDAR - Weekly pattern with exceptions
// =============================================================================

// CalendarException overrides the weekly pattern for one day. Holidays are
// exceptions with zero capacity.
type CalendarException struct {
	Day      Day
	Capacity EffortDuration
	Name     string
}

// BaseCalendar resolves a day in order: exception, weekly pattern, parent.
// A day unknown to the whole chain has no capacity.
type BaseCalendar struct {
	ID     string
	Name   string
	Parent *BaseCalendar

	weekly     map[time.Weekday]EffortDuration
	exceptions map[Day]CalendarException
}

func NewBaseCalendar(id, name string) *BaseCalendar {
	return &BaseCalendar{
		ID:         id,
		Name:       name,
		weekly:     make(map[time.Weekday]EffortDuration),
		exceptions: make(map[Day]CalendarException),
	}
}

// NewWorkweekCalendar returns a Monday-Friday calendar with perDay capacity
// and empty weekends.
func NewWorkweekCalendar(id, name string, perDay EffortDuration) *BaseCalendar {
	c := NewBaseCalendar(id, name)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if wd == time.Saturday || wd == time.Sunday {
			c.SetWeekday(wd, 0)
			continue
		}
		c.SetWeekday(wd, perDay)
	}
	return c
}

// Derive creates a child calendar inheriting everything it does not override.
func (c *BaseCalendar) Derive(id, name string) *BaseCalendar {
	child := NewBaseCalendar(id, name)
	child.Parent = c
	return child
}

func (c *BaseCalendar) SetWeekday(wd time.Weekday, capacity EffortDuration) *BaseCalendar {
	c.weekly[wd] = nonNegative(capacity)
	return c
}

// WeekdayCapacity reports the calendar's own weekly value, ignoring parents.
func (c *BaseCalendar) WeekdayCapacity(wd time.Weekday) (EffortDuration, bool) {
	v, ok := c.weekly[wd]
	return v, ok
}

func (c *BaseCalendar) AddException(day Day, capacity EffortDuration, name string) {
	c.exceptions[day] = CalendarException{Day: day, Capacity: nonNegative(capacity), Name: name}
}

func (c *BaseCalendar) AddHoliday(day Day, name string) {
	c.AddException(day, 0, name)
}

func (c *BaseCalendar) RemoveException(day Day) {
	delete(c.exceptions, day)
}

// Exceptions returns the calendar's own exceptions ordered by day.
func (c *BaseCalendar) Exceptions() []CalendarException {
	result := make([]CalendarException, 0, len(c.exceptions))
	for _, e := range c.exceptions {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day) })
	return result
}

func (c *BaseCalendar) CapacityOn(day Day) EffortDuration {
	if e, ok := c.exceptions[day]; ok {
		return e.Capacity
	}
	if v, ok := c.weekly[day.Weekday()]; ok {
		return v
	}
	if c.Parent != nil {
		return c.Parent.CapacityOn(day)
	}
	return 0
}
