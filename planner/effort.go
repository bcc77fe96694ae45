package planner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EFFORT DURATION - Work quantity in seconds
// =============================================================================

// EffortDuration is an amount of work measured in whole seconds. It is not a
// calendar duration: 16h of effort may span two working days or one day of
// two resources.
type EffortDuration int64

const (
	Second EffortDuration = 1
	Minute                = 60 * Second
	Hour                  = 60 * Minute
)

var secondsPerHour = decimal.NewFromInt(int64(Hour))

func Hours(n int) EffortDuration         { return EffortDuration(n) * Hour }
func Minutes(n int) EffortDuration       { return EffortDuration(n) * Minute }
func Seconds(n int64) EffortDuration     { return EffortDuration(n) }
func (e EffortDuration) Seconds() int64  { return int64(e) }
func (e EffortDuration) IsZero() bool    { return e == 0 }
func (e EffortDuration) IsNegative() bool { return e < 0 }

// DecimalHours returns the effort in hours rounded to two places.
func (e EffortDuration) DecimalHours() decimal.Decimal {
	return decimal.NewFromInt(int64(e)).DivRound(secondsPerHour, 2)
}

// String formats as H:MM, or H:MM:SS when seconds are present.
func (e EffortDuration) String() string {
	sign := ""
	if e < 0 {
		sign = "-"
		e = -e
	}
	h := e / Hour
	m := (e % Hour) / Minute
	s := e % Minute
	if s != 0 {
		return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%s%d:%02d", sign, h, m)
}

// ParseEffort accepts Go durations ("8h30m") and clock notation ("8:30").
func ParseEffort(s string) (EffortDuration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &InvalidArgumentError{Field: "effort", Reason: "empty value"}
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, &InvalidArgumentError{Field: "effort", Reason: "malformed clock value " + s}
		}
		var total EffortDuration
		units := []EffortDuration{Hour, Minute, Second}
		for i, p := range parts {
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil || n < 0 {
				return 0, &InvalidArgumentError{Field: "effort", Reason: "malformed clock value " + s}
			}
			total += EffortDuration(n) * units[i]
		}
		return total, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &InvalidArgumentError{Field: "effort", Reason: err.Error()}
	}
	if d < 0 {
		return 0, ErrNegativeEffort
	}
	return EffortDuration(d / time.Second), nil
}

func MinEffort(a, b EffortDuration) EffortDuration {
	if a < b {
		return a
	}
	return b
}

func MaxEffort(a, b EffortDuration) EffortDuration {
	if a > b {
		return a
	}
	return b
}

func SumEfforts(values ...EffortDuration) EffortDuration {
	var total EffortDuration
	for _, v := range values {
		total += v
	}
	return total
}

func nonNegative(e EffortDuration) EffortDuration {
	if e < 0 {
		return 0
	}
	return e
}

// =============================================================================
// RATIOS
// =============================================================================

// Proportion returns part/total rounded half-up to two places. A zero total
// yields zero.
func Proportion(part, total EffortDuration) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).DivRound(decimal.NewFromInt(int64(total)), 2)
}

// Percentage returns part/total*100 rounded half-up to two places.
func Percentage(part, total EffortDuration) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2)
}

// FractionOfWorkingDay returns min(effort/workingDay, 1). Used to place an
// intra-day offset on a uniform axis.
func FractionOfWorkingDay(effort, workingDay EffortDuration) decimal.Decimal {
	if workingDay <= 0 || effort <= 0 {
		return decimal.Zero
	}
	f := decimal.NewFromInt(int64(effort)).DivRound(decimal.NewFromInt(int64(workingDay)), fractionScale)
	return decimal.Min(f, decimal.NewFromInt(1))
}
