package planner

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ASSIGNMENT FUNCTIONS
// =============================================================================
//
// An assignment function shapes how an allocation's effort is spread over its
// interval. The set of kinds is closed:
//
//   flat          front-loaded in task direction, values editable freely
//   manual        values set by the user, never redistributed
//   stretches     piecewise: each stretch holds a share of the total
//   interpolation piecewise-linear cumulative curve through the stretches
//   sigmoid       logistic curve on the capacity-weighted time axis
//
// A profile is the fraction of the total each day of the interval receives.
// Profiles are decimal; only the sigmoid evaluates exp in float64.

type FunctionKind string

const (
	FunctionFlat         FunctionKind = "flat"
	FunctionManual       FunctionKind = "manual"
	FunctionStretches    FunctionKind = "stretches"
	FunctionInterpolated FunctionKind = "interpolation"
	FunctionSigmoid      FunctionKind = "sigmoid"
)

func ParseFunctionKind(s string) (FunctionKind, error) {
	switch k := FunctionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case FunctionFlat, FunctionManual, FunctionStretches, FunctionInterpolated, FunctionSigmoid:
		return k, nil
	case "":
		return FunctionFlat, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFunction, s)
}

// Stretch marks that by the end of the day found at LengthPercentage of the
// allocation interval, the allocation has done AmountWorkPercentage of its
// total. Both run from 0 to 1. Positions are relative, so moving or resizing
// the allocation carries the stretches along.
//
// Date pins a stretch to a calendar day instead. Applying the function
// converts it into a length on the interval it is applied to.
type Stretch struct {
	LengthPercentage     decimal.Decimal
	AmountWorkPercentage decimal.Decimal
	Date                 Day
}

// StretchAtLength places a stretch at a fraction of the allocation length.
func StretchAtLength(lengthPercentage, workPercentage decimal.Decimal) Stretch {
	return Stretch{LengthPercentage: lengthPercentage, AmountWorkPercentage: workPercentage}
}

// StretchOn pins a stretch to d.
func StretchOn(d Day, workPercentage decimal.Decimal) Stretch {
	return Stretch{Date: d, AmountWorkPercentage: workPercentage}
}

// DayIn is the day of r the stretch ends on. A length of 0.5 on a ten day
// range lands on the fifth day.
func (s Stretch) DayIn(r DateRange) Day {
	if !s.Date.IsZero() {
		return s.Date
	}
	n := decimal.NewFromInt(int64(r.Len()))
	// Lengths derived from a day are rounded; drop the noise before ceiling.
	offset := int(n.Mul(s.LengthPercentage).Round(stretchPositionScale).Ceil().IntPart()) - 1
	if offset < 0 {
		offset = 0
	}
	if last := r.Len() - 1; offset > last {
		offset = last
	}
	return r.Start.AddDays(offset)
}

const stretchPositionScale = fractionScale - 4

type AssignmentFunction struct {
	Kind      FunctionKind
	Stretches []Stretch
}

func NewManualFunction() *AssignmentFunction { return &AssignmentFunction{Kind: FunctionManual} }

func NewSigmoidFunction() *AssignmentFunction { return &AssignmentFunction{Kind: FunctionSigmoid} }

func NewStretchesFunction(stretches ...Stretch) *AssignmentFunction {
	return &AssignmentFunction{Kind: FunctionStretches, Stretches: stretches}
}

func NewInterpolatedFunction(stretches ...Stretch) *AssignmentFunction {
	return &AssignmentFunction{Kind: FunctionInterpolated, Stretches: stretches}
}

// IsFlat is true for a nil function too.
func (f *AssignmentFunction) IsFlat() bool { return f == nil || f.Kind == FunctionFlat }

func (f *AssignmentFunction) clone() *AssignmentFunction {
	if f == nil {
		return nil
	}
	c := &AssignmentFunction{Kind: f.Kind}
	if len(f.Stretches) > 0 {
		c.Stretches = append([]Stretch(nil), f.Stretches...)
	}
	return c
}

// anchoredTo returns a copy whose dated stretches are converted into lengths
// on r. A dated stretch outside r is refused.
func (f *AssignmentFunction) anchoredTo(r DateRange) (*AssignmentFunction, error) {
	c := f.clone()
	if c == nil {
		return nil, nil
	}
	n := decimal.NewFromInt(int64(r.Len()))
	for i, s := range c.Stretches {
		if s.Date.IsZero() {
			continue
		}
		if !r.Contains(s.Date) {
			return nil, fmt.Errorf("%w: stretch %d on %s is outside %s", ErrInvalidStretches, i, s.Date, r)
		}
		c.Stretches[i] = Stretch{
			LengthPercentage:     decimal.NewFromInt(int64(r.Start.DaysUntil(s.Date) + 1)).DivRound(n, fractionScale),
			AmountWorkPercentage: s.AmountWorkPercentage,
		}
	}
	return c, nil
}

// Validate checks the function against the interval it will shape.
func (f *AssignmentFunction) Validate(r DateRange) error {
	if f.IsFlat() {
		return nil
	}
	switch f.Kind {
	case FunctionManual, FunctionSigmoid:
		return nil
	case FunctionStretches, FunctionInterpolated:
		anchored, err := f.anchoredTo(r)
		if err != nil {
			return err
		}
		return validateStretches(anchored.Stretches)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFunction, f.Kind)
}

func validateStretches(stretches []Stretch) error {
	one := decimal.NewFromInt(1)
	previousPct := decimal.Zero
	for i, s := range stretches {
		if s.LengthPercentage.IsNegative() || s.LengthPercentage.GreaterThan(one) {
			return fmt.Errorf("%w: stretch %d length %s outside [0, 1]", ErrInvalidStretches, i, s.LengthPercentage)
		}
		if i > 0 && !s.LengthPercentage.GreaterThan(stretches[i-1].LengthPercentage) {
			return fmt.Errorf("%w: stretch lengths must increase (%s)", ErrInvalidStretches, s.LengthPercentage)
		}
		if s.AmountWorkPercentage.IsNegative() || s.AmountWorkPercentage.GreaterThan(one) {
			return fmt.Errorf("%w: percentage %s outside [0, 1]", ErrInvalidStretches, s.AmountWorkPercentage)
		}
		if s.AmountWorkPercentage.LessThan(previousPct) {
			return fmt.Errorf("%w: percentages must not decrease (%s)", ErrInvalidStretches, s.AmountWorkPercentage)
		}
		previousPct = s.AmountWorkPercentage
	}
	if n := len(stretches); n > 0 && stretches[n-1].LengthPercentage.Equal(one) && !stretches[n-1].AmountWorkPercentage.Equal(one) {
		return fmt.Errorf("%w: the stretch ending the interval must reach 100%%", ErrInvalidStretches)
	}
	return nil
}

// withFinalStretch appends the implicit 100% stretch at full length.
func withFinalStretch(stretches []Stretch) []Stretch {
	one := decimal.NewFromInt(1)
	result := append([]Stretch(nil), stretches...)
	if n := len(result); n == 0 || result[n-1].LengthPercentage.LessThan(one) {
		result = append(result, StretchAtLength(one, one))
	}
	return result
}

// profile returns the fraction of the total each day receives. days is the
// full interval in order, caps their capacities.
func (f *AssignmentFunction) profile(days []Day, caps []EffortDuration) ([]decimal.Decimal, error) {
	if len(days) == 0 {
		return nil, nil
	}
	r := DateRange{Start: days[0], End: days[len(days)-1]}
	if err := f.Validate(r); err != nil {
		return nil, err
	}
	switch f.Kind {
	case FunctionStretches, FunctionInterpolated:
		anchored, err := f.anchoredTo(r)
		if err != nil {
			return nil, err
		}
		stretches := withFinalStretch(anchored.Stretches)
		if f.Kind == FunctionStretches {
			return stretchesProfile(stretches, days, caps), nil
		}
		return interpolatedProfile(stretches, days, caps), nil
	case FunctionSigmoid:
		return sigmoidProfile(caps), nil
	}
	return effortWeights(caps), nil
}

// -----------------------------------------------------------------------------
// Stretches
// -----------------------------------------------------------------------------

// stretchesProfile gives each segment its share of the total, split inside
// the segment by capacity. A segment without capacity hands its share to the
// next one; a share left at the end is spread over the whole interval.
func stretchesProfile(stretches []Stretch, days []Day, caps []EffortDuration) []decimal.Decimal {
	weights := make([]decimal.Decimal, len(days))
	for i := range weights {
		weights[i] = decimal.Zero
	}

	r := DateRange{Start: days[0], End: days[len(days)-1]}
	carried := decimal.Zero
	previousPct := decimal.Zero
	i := 0
	for _, s := range stretches {
		share := s.AmountWorkPercentage.Sub(previousPct).Add(carried)
		previousPct = s.AmountWorkPercentage

		from := i
		last := s.DayIn(r)
		var segCap EffortDuration
		for i < len(days) && !days[i].After(last) {
			segCap += caps[i]
			i++
		}
		if segCap == 0 {
			carried = share
			continue
		}
		carried = decimal.Zero
		total := decimal.NewFromInt(int64(segCap))
		for k := from; k < i; k++ {
			weights[k] = share.Mul(decimal.NewFromInt(int64(caps[k]))).DivRound(total, fractionScale)
		}
	}

	if carried.IsPositive() {
		all := SumEfforts(caps...)
		if all > 0 {
			total := decimal.NewFromInt(int64(all))
			for k := range weights {
				weights[k] = weights[k].Add(carried.Mul(decimal.NewFromInt(int64(caps[k]))).DivRound(total, fractionScale))
			}
		}
	}
	return weights
}

// -----------------------------------------------------------------------------
// Interpolation
// -----------------------------------------------------------------------------

// interpolatedProfile draws the cumulative curve through (0, 0) and one point
// per stretch at its length, then takes each day's increment. Days are
// positioned on the calendar axis; the increment of a day without capacity
// moves to the next working day (or the previous one at the tail).
func interpolatedProfile(stretches []Stretch, days []Day, caps []EffortDuration) []decimal.Decimal {
	n := len(days)
	nDec := decimal.NewFromInt(int64(n))

	type point struct{ x, y decimal.Decimal }
	points := []point{{decimal.Zero, decimal.Zero}}
	for _, s := range stretches {
		points = append(points, point{s.LengthPercentage, s.AmountWorkPercentage})
	}

	cumulative := func(x decimal.Decimal) decimal.Decimal {
		for k := 1; k < len(points); k++ {
			a, b := points[k-1], points[k]
			if x.GreaterThan(b.x) {
				continue
			}
			span := b.x.Sub(a.x)
			if span.IsZero() {
				return b.y
			}
			return a.y.Add(b.y.Sub(a.y).Mul(x.Sub(a.x)).DivRound(span, fractionScale))
		}
		return points[len(points)-1].y
	}

	weights := make([]decimal.Decimal, n)
	previous := decimal.Zero
	for k := 0; k < n; k++ {
		current := cumulative(decimal.NewFromInt(int64(k + 1)).DivRound(nDec, fractionScale))
		weights[k] = current.Sub(previous)
		previous = current
	}
	return carryToWorkingDays(weights, caps)
}

func carryToWorkingDays(weights []decimal.Decimal, caps []EffortDuration) []decimal.Decimal {
	carried := decimal.Zero
	lastWorking := -1
	for k := range weights {
		if caps[k] == 0 {
			carried = carried.Add(weights[k])
			weights[k] = decimal.Zero
			continue
		}
		weights[k] = weights[k].Add(carried)
		carried = decimal.Zero
		lastWorking = k
	}
	if carried.IsPositive() && lastWorking >= 0 {
		weights[lastWorking] = weights[lastWorking].Add(carried)
	}
	return weights
}

// -----------------------------------------------------------------------------
// Sigmoid
// -----------------------------------------------------------------------------

const sigmoidSteepness = 12.0

// sigmoidProfile evaluates the logistic 1/(1+e^(-k(t-0.5))) on the
// capacity-weighted axis, normalized so the curve runs from 0 to 1.
func sigmoidProfile(caps []EffortDuration) []decimal.Decimal {
	weights := make([]decimal.Decimal, len(caps))
	total := SumEfforts(caps...)
	if total == 0 {
		for i := range weights {
			weights[i] = decimal.Zero
		}
		return weights
	}

	logistic := func(t float64) float64 { return 1 / (1 + math.Exp(-sigmoidSteepness*(t-0.5))) }
	low, high := logistic(0), logistic(1)
	curve := func(t float64) decimal.Decimal {
		return decimal.NewFromFloat((logistic(t) - low) / (high - low)).Round(fractionScale)
	}

	var elapsed EffortDuration
	previous := decimal.Zero
	for i, c := range caps {
		elapsed += c
		current := curve(float64(elapsed) / float64(total))
		if i == len(caps)-1 {
			current = decimal.NewFromInt(1)
		}
		weights[i] = current.Sub(previous)
		previous = current
	}
	return weights
}
