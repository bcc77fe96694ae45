/*
Package factory converts between planner objects and their JSON/YAML documents.

PURPOSE:
  Calendars, resources and tasks are stored and exchanged as documents. The
  factory turns documents into planner objects (restoring allocations, their
  day assignments and the consolidation boundary verbatim) and back.

DOCUMENT SHAPE:
  {
    "id": "t-design",
    "name": "Design",
    "start": "2024-01-08",
    "end": "2024-01-13",
    "constraint": {"type": "as_soon_as_possible"},
    "calculated_value": "end_date",
    "calendar": "default",
    "work_hours": "40:00",
    "allocations": [
      {
        "id": "a-ada",
        "kind": "specific",
        "resource": "ada",
        "start": "2024-01-08",
        "end": "2024-01-13",
        "function": {"kind": "stretches", "stretches": [{"date": "2024-01-10", "work": "0.6"}]},
        "assignments": [{"day": "2024-01-08", "resource": "ada", "effort": "8:00"}]
      }
    ]
  }

  Positions use the IntraDayDate string form ("2024-01-08" or
  "2024-01-08+4:00"), efforts the H:MM form or Go durations ("8h30m"),
  percentages and money decimal strings.

SEE ALSO:
  - plan.go: whole plans with steps, JSON and YAML parsing
  - planner/task.go: RestoreAllocation, RestoreConsolidation
*/
package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/planner"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

type CalendarDoc struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
	// Weekly capacities keyed by lower-case weekday name ("monday": "8h").
	Weekdays   map[string]string `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
	Exceptions []ExceptionDoc    `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
}

type ExceptionDoc struct {
	Day    string `json:"day" yaml:"day"`
	Effort string `json:"effort,omitempty" yaml:"effort,omitempty"` // empty means holiday
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
}

type ResourceDoc struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Calendar string   `json:"calendar,omitempty" yaml:"calendar,omitempty"`
	Criteria []string `json:"criteria,omitempty" yaml:"criteria,omitempty"`
	Limiting bool     `json:"limiting,omitempty" yaml:"limiting,omitempty"`
}

type ConstraintDoc struct {
	Type string `json:"type" yaml:"type"`
	Date string `json:"date,omitempty" yaml:"date,omitempty"`
}

type TaskDoc struct {
	ID                      string          `json:"id" yaml:"id"`
	Name                    string          `json:"name" yaml:"name"`
	Start                   string          `json:"start" yaml:"start"`
	End                     string          `json:"end" yaml:"end"`
	Constraint              ConstraintDoc   `json:"constraint" yaml:"constraint"`
	CalculatedValue         string          `json:"calculated_value,omitempty" yaml:"calculated_value,omitempty"`
	Calendar                string          `json:"calendar,omitempty" yaml:"calendar,omitempty"`
	WorkHours               string          `json:"work_hours,omitempty" yaml:"work_hours,omitempty"`
	ChargedEffort           string          `json:"charged_effort,omitempty" yaml:"charged_effort,omitempty"`
	UpdatedFromTimesheets   bool            `json:"updated_from_timesheets,omitempty" yaml:"updated_from_timesheets,omitempty"`
	AutoConsolidate         bool            `json:"auto_consolidate,omitempty" yaml:"auto_consolidate,omitempty"`
	Budget                  string          `json:"budget,omitempty" yaml:"budget,omitempty"`
	MoneyCost               string          `json:"money_cost,omitempty" yaml:"money_cost,omitempty"`
	FirstDayNotConsolidated string          `json:"first_day_not_consolidated,omitempty" yaml:"first_day_not_consolidated,omitempty"`
	Version                 int64           `json:"version" yaml:"version,omitempty"`
	RemovedAt               *time.Time      `json:"removed_at,omitempty" yaml:"removed_at,omitempty"`
	Allocations             []AllocationDoc `json:"allocations,omitempty" yaml:"allocations,omitempty"`
}

type AllocationDoc struct {
	ID          string          `json:"id,omitempty" yaml:"id,omitempty"`
	Kind        string          `json:"kind" yaml:"kind"`
	Resource    string          `json:"resource,omitempty" yaml:"resource,omitempty"`
	Criteria    []string        `json:"criteria,omitempty" yaml:"criteria,omitempty"`
	QueuedOn    string          `json:"queued_on,omitempty" yaml:"queued_on,omitempty"`
	Start       string          `json:"start,omitempty" yaml:"start,omitempty"`
	End         string          `json:"end,omitempty" yaml:"end,omitempty"`
	Function    *FunctionDoc    `json:"function,omitempty" yaml:"function,omitempty"`
	Assignments []AssignmentDoc `json:"assignments,omitempty" yaml:"assignments,omitempty"`
}

type FunctionDoc struct {
	Kind      string       `json:"kind" yaml:"kind"`
	Stretches []StretchDoc `json:"stretches,omitempty" yaml:"stretches,omitempty"`
}

// StretchDoc positions a stretch by length ("0.4" of the allocation
// interval) or pins it to a date that becomes a length once applied.
type StretchDoc struct {
	Length string `json:"length,omitempty" yaml:"length,omitempty"`
	Date   string `json:"date,omitempty" yaml:"date,omitempty"`
	Work   string `json:"work" yaml:"work"`
}

type AssignmentDoc struct {
	Day          string `json:"day" yaml:"day"`
	Resource     string `json:"resource" yaml:"resource"`
	Effort       string `json:"effort" yaml:"effort"`
	Consolidated bool   `json:"consolidated,omitempty" yaml:"consolidated,omitempty"`
}

type QueueElementDoc struct {
	ID           string `json:"id" yaml:"id"`
	Allocation   string `json:"allocation" yaml:"allocation"`
	Task         string `json:"task" yaml:"task"`
	Resource     string `json:"resource" yaml:"resource"`
	Start        string `json:"start" yaml:"start"`
	End          string `json:"end" yaml:"end"`
	Effort       string `json:"effort" yaml:"effort"`
	Priority     int    `json:"priority,omitempty" yaml:"priority,omitempty"`
	Consolidated bool   `json:"consolidated,omitempty" yaml:"consolidated,omitempty"`
	Seq          uint64 `json:"seq" yaml:"seq"`
}

// =============================================================================
// CATALOG - Calendars and resources tasks refer to
// =============================================================================

// Catalog resolves the calendar and resource ids found in task documents.
type Catalog struct {
	Calendars map[string]*planner.BaseCalendar
	Resources planner.ResourceSet
}

// NewCatalog builds calendars (parents first, in any document order) and
// then resources.
func NewCatalog(calendars []CalendarDoc, resources []ResourceDoc) (*Catalog, error) {
	cals, err := BuildCalendars(calendars)
	if err != nil {
		return nil, err
	}
	c := &Catalog{Calendars: cals, Resources: planner.NewResourceSet()}
	for _, doc := range resources {
		r, err := c.BuildResource(doc)
		if err != nil {
			return nil, err
		}
		c.Resources[r.ID] = r
	}
	return c, nil
}

// Calendar looks up a calendar id. The empty id is a nil calendar.
func (c *Catalog) Calendar(id string) (planner.Calendar, error) {
	if id == "" {
		return nil, nil
	}
	cal, ok := c.Calendars[id]
	if !ok {
		return nil, fmt.Errorf("calendar %q: %w", id, planner.ErrCalendarNotFound)
	}
	return cal, nil
}

// =============================================================================
// CALENDARS
// =============================================================================

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func BuildCalendars(docs []CalendarDoc) (map[string]*planner.BaseCalendar, error) {
	byID := make(map[string]CalendarDoc, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return nil, &planner.InvalidArgumentError{Field: "calendar.id", Reason: "required"}
		}
		byID[d.ID] = d
	}

	built := make(map[string]*planner.BaseCalendar, len(docs))
	visiting := make(map[string]bool)
	var build func(id string) (*planner.BaseCalendar, error)
	build = func(id string) (*planner.BaseCalendar, error) {
		if c, ok := built[id]; ok {
			return c, nil
		}
		d, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("calendar %q: %w", id, planner.ErrCalendarNotFound)
		}
		if visiting[id] {
			return nil, &planner.InvalidArgumentError{Field: "calendar.parent", Reason: "cycle through " + id}
		}
		visiting[id] = true
		defer delete(visiting, id)

		var c *planner.BaseCalendar
		if d.Parent != "" {
			parent, err := build(d.Parent)
			if err != nil {
				return nil, err
			}
			c = parent.Derive(d.ID, d.Name)
		} else {
			c = planner.NewBaseCalendar(d.ID, d.Name)
		}
		if err := applyCalendarDoc(c, d); err != nil {
			return nil, fmt.Errorf("calendar %q: %w", id, err)
		}
		built[id] = c
		return c, nil
	}

	for _, d := range docs {
		if _, err := build(d.ID); err != nil {
			return nil, err
		}
	}
	return built, nil
}

func applyCalendarDoc(c *planner.BaseCalendar, d CalendarDoc) error {
	for name, value := range d.Weekdays {
		wd, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return &planner.InvalidArgumentError{Field: "weekdays", Reason: "unknown weekday " + name}
		}
		e, err := parseEffort(value)
		if err != nil {
			return err
		}
		c.SetWeekday(wd, e)
	}
	for _, x := range d.Exceptions {
		day, err := planner.ParseDay(x.Day)
		if err != nil {
			return err
		}
		e, err := parseEffort(x.Effort)
		if err != nil {
			return err
		}
		c.AddException(day, e, x.Name)
	}
	return nil
}

func CalendarToDoc(c *planner.BaseCalendar) CalendarDoc {
	doc := CalendarDoc{ID: c.ID, Name: c.Name}
	if c.Parent != nil {
		doc.Parent = c.Parent.ID
	}
	for name, wd := range weekdayNames {
		if v, ok := c.WeekdayCapacity(wd); ok {
			if doc.Weekdays == nil {
				doc.Weekdays = make(map[string]string)
			}
			doc.Weekdays[name] = v.String()
		}
	}
	for _, x := range c.Exceptions() {
		doc.Exceptions = append(doc.Exceptions, ExceptionDoc{Day: x.Day.String(), Effort: x.Capacity.String(), Name: x.Name})
	}
	return doc
}

// =============================================================================
// RESOURCES
// =============================================================================

// BuildResource resolves the resource calendar. A resource without calendar
// works the default working day every day.
func (c *Catalog) BuildResource(doc ResourceDoc) (*planner.Resource, error) {
	if doc.ID == "" {
		return nil, &planner.InvalidArgumentError{Field: "resource.id", Reason: "required"}
	}
	cal, err := c.Calendar(doc.Calendar)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		cal = planner.FixedCalendar(planner.DefaultWorkingDay)
	}
	r := &planner.Resource{
		ID:       planner.ResourceID(doc.ID),
		Name:     doc.Name,
		Calendar: cal,
		Limiting: doc.Limiting,
	}
	for _, cr := range doc.Criteria {
		r.Criteria = append(r.Criteria, planner.Criterion(cr))
	}
	return r, nil
}

func ResourceToDoc(r *planner.Resource) ResourceDoc {
	doc := ResourceDoc{ID: string(r.ID), Name: r.Name, Calendar: calendarID(r.Calendar), Limiting: r.Limiting}
	for _, cr := range r.Criteria {
		doc.Criteria = append(doc.Criteria, string(cr))
	}
	return doc
}

func calendarID(cal planner.Calendar) string {
	if bc, ok := cal.(*planner.BaseCalendar); ok {
		return bc.ID
	}
	return ""
}

// =============================================================================
// TASKS
// =============================================================================

// BuildTask restores a task document. Allocations with an id are restored
// verbatim; allocations without one are created fresh on the catalog's
// resources.
func (c *Catalog) BuildTask(doc TaskDoc) (*planner.Task, error) {
	start, err := planner.ParseIntraDayDate(doc.Start)
	if err != nil {
		return nil, fmt.Errorf("task %q start: %w", doc.ID, err)
	}
	end, err := planner.ParseIntraDayDate(doc.End)
	if err != nil {
		return nil, fmt.Errorf("task %q end: %w", doc.ID, err)
	}
	t, err := planner.NewTask(planner.TaskID(doc.ID), doc.Name, start, end)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", doc.ID, err)
	}

	if t.Constraint, err = parseConstraint(doc.Constraint); err != nil {
		return nil, err
	}
	if doc.CalculatedValue != "" {
		t.CalculatedValue = planner.CalculatedValue(doc.CalculatedValue)
		if _, err := planner.BuildRestriction(t.CalculatedValue, start, end); err != nil {
			return nil, err
		}
	}
	if t.Calendar, err = c.Calendar(doc.Calendar); err != nil {
		return nil, err
	}
	if t.WorkHours, err = parseEffort(doc.WorkHours); err != nil {
		return nil, err
	}
	if t.ChargedEffort, err = parseEffort(doc.ChargedEffort); err != nil {
		return nil, err
	}
	if t.Budget, err = parseDecimal("budget", doc.Budget); err != nil {
		return nil, err
	}
	if t.MoneyCost, err = parseDecimal("money_cost", doc.MoneyCost); err != nil {
		return nil, err
	}
	t.UpdatedFromTimesheets = doc.UpdatedFromTimesheets
	t.AutoConsolidate = doc.AutoConsolidate
	t.Version = doc.Version
	t.RemovedAt = doc.RemovedAt

	if doc.FirstDayNotConsolidated != "" {
		first, err := planner.ParseDay(doc.FirstDayNotConsolidated)
		if err != nil {
			return nil, err
		}
		t.RestoreConsolidation(&first)
	}

	for i, ad := range doc.Allocations {
		if err := c.buildAllocation(t, ad, false); err != nil {
			return nil, fmt.Errorf("task %q allocation %d: %w", doc.ID, i, err)
		}
	}
	return t, nil
}

// AddAllocation builds doc onto t and returns the new allocation. A limiting
// allocation is refused next to others, and others next to a limiting one.
func (c *Catalog) AddAllocation(t *planner.Task, doc AllocationDoc) (*planner.ResourceAllocation, error) {
	if err := c.buildAllocation(t, doc, true); err != nil {
		return nil, err
	}
	all := t.Allocations()
	return all[len(all)-1], nil
}

// buildAllocation adds doc to t. Stored tasks load as they were saved, so
// only added allocations check the limiting rule on the restore path.
func (c *Catalog) buildAllocation(t *planner.Task, doc AllocationDoc, added bool) error {
	kind := planner.AllocationKind(doc.Kind)
	if kind == "" {
		kind = planner.SpecificAllocation
		if doc.Resource == "" {
			kind = planner.GenericAllocation
		}
	}

	var criteria []planner.Criterion
	for _, cr := range doc.Criteria {
		criteria = append(criteria, planner.Criterion(cr))
	}

	var a *planner.ResourceAllocation
	switch kind {
	case planner.SpecificAllocation:
		r, err := c.Resources.Get(planner.ResourceID(doc.Resource))
		if err != nil {
			return fmt.Errorf("resource %q: %w", doc.Resource, err)
		}
		if doc.ID == "" {
			a, err = t.NewSpecificAllocation(r)
			if err != nil {
				return err
			}
			break
		}
		if added {
			if err := t.AcceptsAllocation(r.Limiting); err != nil {
				return err
			}
		}
		a, err = c.restoreAllocation(t, doc, kind)
		if err != nil {
			return err
		}
		a.Resource = r
		a.Limiting = r.Limiting
	case planner.GenericAllocation:
		if doc.ID == "" {
			var err error
			a, err = t.NewGenericAllocation(criteria, c.Resources.Sorted())
			if err != nil {
				return err
			}
			break
		}
		pool := c.Resources.Matching(criteria)
		limiting := len(pool) > 0
		for _, r := range pool {
			limiting = limiting && r.Limiting
		}
		if added {
			if err := t.AcceptsAllocation(limiting); err != nil {
				return err
			}
		}
		var err error
		if a, err = c.restoreAllocation(t, doc, kind); err != nil {
			return err
		}
		a.Criteria = criteria
		a.Pool = pool
		a.Limiting = limiting
		a.QueuedOn = planner.ResourceID(doc.QueuedOn)
	default:
		return &planner.InvalidArgumentError{Field: "allocation.kind", Reason: "unknown kind " + doc.Kind}
	}

	if doc.Function != nil {
		fn, err := BuildFunction(*doc.Function)
		if err != nil {
			return err
		}
		a.RestoreFunction(fn)
	}
	return nil
}

func (c *Catalog) restoreAllocation(t *planner.Task, doc AllocationDoc, kind planner.AllocationKind) (*planner.ResourceAllocation, error) {
	start, end := t.Start, t.End
	var err error
	if doc.Start != "" {
		if start, err = planner.ParseIntraDayDate(doc.Start); err != nil {
			return nil, err
		}
	}
	if doc.End != "" {
		if end, err = planner.ParseIntraDayDate(doc.End); err != nil {
			return nil, err
		}
	}
	if end.Before(start) {
		return nil, planner.ErrInvalidInterval
	}

	assignments := make([]planner.DayAssignment, 0, len(doc.Assignments))
	for _, ad := range doc.Assignments {
		day, err := planner.ParseDay(ad.Day)
		if err != nil {
			return nil, err
		}
		e, err := parseEffort(ad.Effort)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, planner.DayAssignment{
			Day:      day,
			Resource: planner.ResourceID(ad.Resource),
			Effort:   e,
		})
	}
	a := t.RestoreAllocation(planner.AllocationID(doc.ID), kind, start, end)
	a.RestoreAssignments(assignments)
	return a, nil
}

// BuildFunction converts a function document. The empty kind is flat.
func BuildFunction(doc FunctionDoc) (*planner.AssignmentFunction, error) {
	kind, err := planner.ParseFunctionKind(doc.Kind)
	if err != nil {
		return nil, err
	}
	fn := &planner.AssignmentFunction{Kind: kind}
	for _, s := range doc.Stretches {
		work, err := parseDecimal("stretch.work", s.Work)
		if err != nil {
			return nil, err
		}
		switch {
		case s.Length != "":
			length, err := parseDecimal("stretch.length", s.Length)
			if err != nil {
				return nil, err
			}
			fn.Stretches = append(fn.Stretches, planner.StretchAtLength(length, work))
		case s.Date != "":
			day, err := planner.ParseDay(s.Date)
			if err != nil {
				return nil, err
			}
			fn.Stretches = append(fn.Stretches, planner.StretchOn(day, work))
		default:
			return nil, &planner.InvalidArgumentError{Field: "stretch.length", Reason: "a length or a date is required"}
		}
	}
	return fn, nil
}

func FunctionToDoc(fn *planner.AssignmentFunction) *FunctionDoc {
	if fn.IsFlat() {
		return nil
	}
	doc := &FunctionDoc{Kind: string(fn.Kind)}
	for _, s := range fn.Stretches {
		if !s.Date.IsZero() {
			doc.Stretches = append(doc.Stretches, StretchDoc{Date: s.Date.String(), Work: s.AmountWorkPercentage.String()})
			continue
		}
		doc.Stretches = append(doc.Stretches, StretchDoc{Length: s.LengthPercentage.String(), Work: s.AmountWorkPercentage.String()})
	}
	return doc
}

// TaskToDoc snapshots a task with every allocation and day assignment.
func TaskToDoc(t *planner.Task) TaskDoc {
	doc := TaskDoc{
		ID:                    string(t.ID),
		Name:                  t.Name,
		Start:                 t.Start.String(),
		End:                   t.End.String(),
		Constraint:            ConstraintDoc{Type: string(t.Constraint.Type)},
		CalculatedValue:       string(t.CalculatedValue),
		Calendar:              calendarID(t.Calendar),
		UpdatedFromTimesheets: t.UpdatedFromTimesheets,
		AutoConsolidate:       t.AutoConsolidate,
		Version:               t.Version,
		RemovedAt:             t.RemovedAt,
	}
	if t.Constraint.Date != nil {
		doc.Constraint.Date = t.Constraint.Date.String()
	}
	if t.WorkHours != 0 {
		doc.WorkHours = t.WorkHours.String()
	}
	if t.ChargedEffort != 0 {
		doc.ChargedEffort = t.ChargedEffort.String()
	}
	if !t.Budget.IsZero() {
		doc.Budget = t.Budget.String()
	}
	if !t.MoneyCost.IsZero() {
		doc.MoneyCost = t.MoneyCost.String()
	}
	if first, ok := t.FirstDayNotConsolidated(); ok {
		doc.FirstDayNotConsolidated = first.String()
	}
	for _, a := range t.Allocations() {
		doc.Allocations = append(doc.Allocations, AllocationToDoc(a))
	}
	return doc
}

func AllocationToDoc(a *planner.ResourceAllocation) AllocationDoc {
	doc := AllocationDoc{
		ID:       string(a.ID),
		Kind:     string(a.Kind),
		QueuedOn: string(a.QueuedOn),
		Start:    a.Start().String(),
		End:      a.End().String(),
		Function: FunctionToDoc(a.Function()),
	}
	if a.Resource != nil {
		doc.Resource = string(a.Resource.ID)
	}
	for _, c := range a.Criteria {
		doc.Criteria = append(doc.Criteria, string(c))
	}
	for _, da := range a.Assignments() {
		doc.Assignments = append(doc.Assignments, AssignmentDoc{
			Day:          da.Day.String(),
			Resource:     string(da.Resource),
			Effort:       da.Effort.String(),
			Consolidated: da.Consolidated,
		})
	}
	return doc
}

// =============================================================================
// QUEUE ELEMENTS
// =============================================================================

func QueueElementToDoc(e planner.QueueElement) QueueElementDoc {
	return QueueElementDoc{
		ID:           e.ID,
		Allocation:   string(e.AllocationID),
		Task:         string(e.TaskID),
		Resource:     string(e.Resource),
		Start:        e.Start.String(),
		End:          e.End.String(),
		Effort:       e.Effort.String(),
		Priority:     e.Priority,
		Consolidated: e.Consolidated,
		Seq:          e.Seq,
	}
}

func BuildQueueElement(doc QueueElementDoc) (planner.QueueElement, error) {
	start, err := planner.ParseIntraDayDate(doc.Start)
	if err != nil {
		return planner.QueueElement{}, err
	}
	end, err := planner.ParseIntraDayDate(doc.End)
	if err != nil {
		return planner.QueueElement{}, err
	}
	effort, err := parseEffort(doc.Effort)
	if err != nil {
		return planner.QueueElement{}, err
	}
	return planner.QueueElement{
		ID:           doc.ID,
		AllocationID: planner.AllocationID(doc.Allocation),
		TaskID:       planner.TaskID(doc.Task),
		Resource:     planner.ResourceID(doc.Resource),
		Start:        start,
		End:          end,
		Effort:       effort,
		Priority:     doc.Priority,
		Consolidated: doc.Consolidated,
		Seq:          doc.Seq,
	}, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseConstraint(doc ConstraintDoc) (planner.PositionConstraint, error) {
	ct := planner.ConstraintType(doc.Type)
	if ct == "" {
		ct = planner.AsSoonAsPossible
	}
	if !ct.Valid() {
		return planner.PositionConstraint{}, &planner.InvalidArgumentError{Field: "constraint.type", Reason: "unknown type " + doc.Type}
	}
	pc := planner.PositionConstraint{Type: ct}
	if doc.Date != "" {
		d, err := planner.ParseIntraDayDate(doc.Date)
		if err != nil {
			return pc, err
		}
		pc.Date = &d
	}
	if ct.NeedsDate() && pc.Date == nil {
		return pc, &planner.InvalidArgumentError{Field: "constraint.date", Reason: "required for " + doc.Type}
	}
	return pc, nil
}

// parseEffort reads an optional effort; empty is zero.
func parseEffort(s string) (planner.EffortDuration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return planner.ParseEffort(s)
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &planner.InvalidArgumentError{Field: field, Reason: fmt.Sprintf("%q is not a decimal", s)}
	}
	return d, nil
}
