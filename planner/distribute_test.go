package planner

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func weights(values ...int64) []decimal.Decimal {
	w := make([]decimal.Decimal, len(values))
	for i, v := range values {
		w[i] = decimal.NewFromInt(v)
	}
	return w
}

func efforts(values ...int64) []EffortDuration {
	e := make([]EffortDuration, len(values))
	for i, v := range values {
		e[i] = EffortDuration(v)
	}
	return e
}

func TestFillSequentially(t *testing.T) {
	caps := efforts(8, 0, 8, 8)

	assert.Equal(t, efforts(8, 0, 8, 4), fillSequentially(20, caps, false))
	assert.Equal(t, efforts(4, 0, 8, 8), fillSequentially(20, caps, true))
	assert.Equal(t, efforts(8, 0, 8, 8), fillSequentially(100, caps, false))
	assert.Equal(t, efforts(0, 0, 0, 0), fillSequentially(0, caps, false))
}

func TestDistributeProportionally_RemainderGoesToEarliest(t *testing.T) {
	got := distributeProportionally(10, weights(1, 1, 1), efforts(8, 8, 8))

	assert.Equal(t, efforts(4, 3, 3), got)
}

func TestDistributeProportionally_CappedDayOverflowsToOthers(t *testing.T) {
	// GIVEN: Equal weights, the first day only has 2 free
	// THEN: It takes 2 and the others split the rest
	got := distributeProportionally(12, weights(1, 1, 1), efforts(2, 8, 8))

	assert.Equal(t, efforts(2, 5, 5), got)
}

func TestDistributeProportionally_MoreThanCapacity(t *testing.T) {
	got := distributeProportionally(100, weights(1, 2, 3), efforts(2, 8, 8))

	assert.Equal(t, efforts(2, 8, 8), got)
}

func TestDistributeProportionally_NoWeightFallsBackToSpareCapacity(t *testing.T) {
	got := distributeProportionally(3, weights(0, 0), efforts(4, 2))

	assert.Equal(t, efforts(2, 1), got)
}

func TestDistributeProportionally_ExactSumOnUglyWeights(t *testing.T) {
	// Thirds and sevenths never divide evenly; the total must still be exact.
	w := []decimal.Decimal{
		decimal.NewFromInt(1).Div(decimal.NewFromInt(3)),
		decimal.NewFromInt(1).Div(decimal.NewFromInt(7)),
		decimal.NewFromInt(2).Div(decimal.NewFromInt(3)),
		decimal.NewFromInt(5).Div(decimal.NewFromInt(7)),
	}
	caps := efforts(Hours(8).Seconds(), Hours(8).Seconds(), Hours(8).Seconds(), Hours(8).Seconds())
	total := Hours(13) + 17

	got := distributeProportionally(total, w, caps)

	assert.Equal(t, total, SumEfforts(got...))
	for i := range got {
		assert.LessOrEqual(t, got[i], caps[i])
	}
}

func TestLargestRemainder_SkipsNonPositiveWeights(t *testing.T) {
	got := largestRemainder(9, weights(0, 1, 2), decimal.NewFromInt(3))

	assert.Equal(t, efforts(0, 3, 6), got)
}
