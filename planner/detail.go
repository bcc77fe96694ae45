package planner

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DETAIL ITEMS - Editable buckets of the allocation grid
// =============================================================================

type ZoomLevel string

const (
	ZoomYear    ZoomLevel = "year"
	ZoomQuarter ZoomLevel = "quarter"
	ZoomMonth   ZoomLevel = "month"
	ZoomWeek    ZoomLevel = "week"
	ZoomDay     ZoomLevel = "day"
)

func ParseZoomLevel(s string) (ZoomLevel, error) {
	switch z := ZoomLevel(strings.ToLower(strings.TrimSpace(s))); z {
	case ZoomYear, ZoomQuarter, ZoomMonth, ZoomWeek, ZoomDay:
		return z, nil
	case "":
		return ZoomDay, nil
	}
	return "", &InvalidArgumentError{Field: "zoom", Reason: fmt.Sprintf("unknown level %q", s)}
}

// DetailItem is one whole bucket (a week, a month...) of the grid.
type DetailItem struct {
	Start Day
	End   Day
	Label string
}

func (i DetailItem) Range() DateRange { return DateRange{Start: i.Start, End: i.End} }

// DetailItems cuts r into the buckets of level. The first and last buckets
// are whole and may reach outside r.
func DetailItems(level ZoomLevel, r DateRange) ([]DetailItem, error) {
	if !r.Valid() {
		return nil, ErrInvalidInterval
	}
	var items []DetailItem
	for start := bucketStart(level, r.Start); !start.After(r.End); {
		next := nextBucket(level, start)
		items = append(items, DetailItem{Start: start, End: next.AddDays(-1), Label: bucketLabel(level, start)})
		start = next
	}
	return items, nil
}

func bucketStart(level ZoomLevel, d Day) Day {
	switch level {
	case ZoomYear:
		return NewDay(d.Time.Year(), time.January, 1)
	case ZoomQuarter:
		m := time.Month((int(d.Time.Month())-1)/3*3 + 1)
		return NewDay(d.Time.Year(), m, 1)
	case ZoomMonth:
		return NewDay(d.Time.Year(), d.Time.Month(), 1)
	case ZoomWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDays(-offset)
	}
	return d
}

func nextBucket(level ZoomLevel, start Day) Day {
	switch level {
	case ZoomYear:
		return Day{Time: start.Time.AddDate(1, 0, 0)}
	case ZoomQuarter:
		return Day{Time: start.Time.AddDate(0, 3, 0)}
	case ZoomMonth:
		return Day{Time: start.Time.AddDate(0, 1, 0)}
	case ZoomWeek:
		return start.AddDays(7)
	}
	return start.AddDays(1)
}

func bucketLabel(level ZoomLevel, start Day) string {
	switch level {
	case ZoomYear:
		return start.Time.Format("2006")
	case ZoomQuarter:
		return fmt.Sprintf("%d-Q%d", start.Time.Year(), (int(start.Time.Month())-1)/3+1)
	case ZoomMonth:
		return start.Time.Format("2006-01")
	case ZoomWeek:
		year, week := start.Time.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return start.String()
}

// =============================================================================
// EDITING
// =============================================================================

// EditableState tells whether a grid cell accepts input and, if not, why.
type EditableState struct {
	Editable bool
	Reason   string
}

func ItemEditableState(t *Task, a *ResourceAllocation, item DetailItem, restriction Restriction) EditableState {
	switch {
	case !t.Range().Overlaps(item.Range()):
		return EditableState{Reason: "outside_task"}
	case t.isConsolidated(item.End):
		return EditableState{Reason: "consolidated"}
	case t.UpdatedFromTimesheets:
		return EditableState{Reason: "updated_from_timesheets"}
	case a.Limiting:
		return EditableState{Reason: "limiting"}
	case restriction.IsDisabledEditionOn(item):
		return EditableState{Reason: "restricted"}
	}
	return EditableState{Editable: true}
}

// EditDetailItem sets the effort of one grid cell. The allocation becomes
// manual and only the cell's days (within the task and the restriction)
// change.
func EditDetailItem(t *Task, a *ResourceAllocation, item DetailItem, effort EffortDuration, restriction Restriction) error {
	if effort < 0 {
		return ErrNegativeEffort
	}
	if state := ItemEditableState(t, a, item, restriction); !state.Editable {
		return &PolicyViolationError{
			Code:    "edition_disabled",
			Message: fmt.Sprintf("The period %s cannot be edited (%s).", item.Label, state.Reason),
			Cause:   ErrEditionDisabled,
		}
	}
	if restriction.IsInvalidTotalEffort(a.AssignedEffort() - a.EffortBetween(item.Range()) + effort) {
		return &PolicyViolationError{Code: "invalid_total", Message: UserMessage(ErrInvalidTotalEffort), Cause: ErrInvalidTotalEffort}
	}

	days := DateRange{Start: restriction.LimitStartDate(item.Start), End: restriction.LimitEndDate(item.End)}
	if err := restriction.Validate(days); err != nil {
		return err
	}
	saved := a.snapshot()
	if !a.IsManual() {
		if err := a.SetAssignmentFunctionAndApplyIfNotFlat(NewManualFunction()); err != nil {
			return err
		}
	}
	if err := a.AllocateOn(a.WithPreviousAssociatedResources().OnDays(days), effort); err != nil {
		a.restore(saved)
		return err
	}
	return nil
}

// EffortOnItem reads a grid cell.
func (a *ResourceAllocation) EffortOnItem(item DetailItem) EffortDuration {
	return a.EffortBetween(item.Range())
}

func (g *Aggregate) EffortOnItem(item DetailItem) EffortDuration {
	return g.EffortBetween(item.Range())
}
