package planner

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DISTRIBUTION PRIMITIVES
// =============================================================================
//
// Two ways to spread effort over a run of days, each day bounded by its free
// capacity:
//
//   fillSequentially:         drain days in order (front-to-back or
//                             back-to-front) until the effort is exhausted.
//   distributeProportionally: split by weight with exact decimal shares,
//                             rounded to whole seconds by largest remainder;
//                             a day that cannot take its share is capped and
//                             the excess is split again among the others.
//
// Both return shares summing to min(total, sum(caps)).

// fractionScale is the number of decimal places kept for a single share
// before it is floored to whole seconds.
const fractionScale = 12

func fillSequentially(total EffortDuration, caps []EffortDuration, backward bool) []EffortDuration {
	result := make([]EffortDuration, len(caps))
	remaining := total
	for k := range caps {
		if remaining <= 0 {
			break
		}
		i := k
		if backward {
			i = len(caps) - 1 - k
		}
		take := MinEffort(remaining, caps[i])
		result[i] = take
		remaining -= take
	}
	return result
}

func distributeProportionally(total EffortDuration, weights []decimal.Decimal, caps []EffortDuration) []EffortDuration {
	n := len(caps)
	result := make([]EffortDuration, n)
	if total <= 0 || n == 0 {
		return result
	}
	if capTotal := SumEfforts(caps...); total >= capTotal {
		copy(result, caps)
		return result
	}

	open := make([]bool, n)
	for i := range caps {
		open[i] = caps[i] > 0
	}

	remaining := total
	for iteration := 0; remaining > 0 && iteration <= n; iteration++ {
		w := make([]decimal.Decimal, n)
		sumW := decimal.Zero
		for i := range w {
			if open[i] && i < len(weights) && weights[i].IsPositive() {
				w[i] = weights[i]
				sumW = sumW.Add(w[i])
			}
		}
		if sumW.IsZero() {
			// No weight left on days with room: fall back to spare capacity.
			for i := range w {
				if open[i] {
					w[i] = decimal.NewFromInt(int64(caps[i] - result[i]))
					sumW = sumW.Add(w[i])
				}
			}
			if !sumW.IsPositive() {
				break
			}
		}

		shares := largestRemainder(remaining, w, sumW)
		overflow := false
		for i, s := range shares {
			if spare := caps[i] - result[i]; s > spare {
				overflow = true
				result[i] = caps[i]
				remaining -= spare
				open[i] = false
			}
		}
		if overflow {
			continue
		}
		for i, s := range shares {
			result[i] += s
			if result[i] >= caps[i] {
				open[i] = false
			}
		}
		remaining = 0
	}
	return result
}

// largestRemainder splits total in proportion to w so that the integral
// shares sum exactly to total. Ties go to the earlier slot.
func largestRemainder(total EffortDuration, w []decimal.Decimal, sumW decimal.Decimal) []EffortDuration {
	result := make([]EffortDuration, len(w))
	if total <= 0 || !sumW.IsPositive() {
		return result
	}

	type remainder struct {
		index int
		frac  decimal.Decimal
	}
	var rems []remainder

	t := decimal.NewFromInt(int64(total))
	assigned := EffortDuration(0)
	for i, wi := range w {
		if !wi.IsPositive() {
			continue
		}
		exact := t.Mul(wi).DivRound(sumW, fractionScale)
		floor := exact.Floor()
		result[i] = EffortDuration(floor.IntPart())
		assigned += result[i]
		rems = append(rems, remainder{index: i, frac: exact.Sub(floor)})
	}
	if len(rems) == 0 {
		return result
	}

	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac.GreaterThan(rems[b].frac) })
	left := total - assigned
	for k := 0; left > 0; k++ {
		result[rems[k%len(rems)].index]++
		left--
	}
	// Rounding the exact shares up can overshoot by a few seconds.
	for k := len(rems) - 1; left < 0; k-- {
		if k < 0 {
			k = len(rems) - 1
		}
		if i := rems[k].index; result[i] > 0 {
			result[i]--
			left++
		}
	}
	return result
}

func effortWeights(values []EffortDuration) []decimal.Decimal {
	w := make([]decimal.Decimal, len(values))
	for i, v := range values {
		w[i] = decimal.NewFromInt(int64(v))
	}
	return w
}
