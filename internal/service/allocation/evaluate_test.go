package allocation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-core/internal/model"
)

var base = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func at(h int) *time.Time {
	t := base.Add(time.Duration(h) * time.Hour)
	return &t
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// 三层: 200M / 100M / 50M, 高层先开先关
func tiers() []model.TierWindow {
	return []model.TierWindow{
		{ID: 3, MinStake: d("50000000"), AllocationCount: 2, OpensAt: at(-1), ClosesAt: at(10)},
		{ID: 1, MinStake: d("200000000"), AllocationCount: 10, OpensAt: at(-5), ClosesAt: at(-3)},
		{ID: 2, MinStake: d("100000000"), AllocationCount: 5, OpensAt: at(2), ClosesAt: at(10)},
	}
}

func TestEvaluateExactThresholdQualifies(t *testing.T) {
	windows := []model.TierWindow{{ID: 1, MinStake: d("50000000"), AllocationCount: 3}}

	got := Evaluate(d("50000000"), windows, base)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.AllocationCount)
	assert.Nil(t, Evaluate(d("49999999.99"), windows, base))
}

func TestEvaluateTopTierFallsThroughKeepingCount(t *testing.T) {
	got := Evaluate(d("200000000"), tiers(), base)
	require.NotNil(t, got)
	assert.Equal(t, uint64(3), got.Window.ID)
	assert.Equal(t, 10, got.AllocationCount, "keeps the tier-1 allocation count")
}

func TestEvaluateLowTier(t *testing.T) {
	got := Evaluate(d("60000000"), tiers(), base)
	require.NotNil(t, got)
	assert.Equal(t, uint64(3), got.Window.ID)
	assert.Equal(t, 2, got.AllocationCount)
}

func TestEvaluatePrefersHighestOpenWindow(t *testing.T) {
	later := base.Add(3 * time.Hour)
	got := Evaluate(d("150000000"), tiers(), later)
	require.NotNil(t, got)
	assert.Equal(t, uint64(2), got.Window.ID)
	assert.Equal(t, 5, got.AllocationCount)
}

func TestEvaluateBelowMinimum(t *testing.T) {
	assert.Nil(t, Evaluate(d("1"), tiers(), base))
	_, ok := MaxAllocation(d("1"), tiers())
	assert.False(t, ok)
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	w := model.TierWindow{MinStake: d("1"), AllocationCount: 1, OpensAt: at(0), ClosesAt: at(1)}
	assert.True(t, w.IsOpen(*at(0)))
	assert.True(t, w.IsOpen(*at(1)))
	assert.False(t, w.IsOpen(at(1).Add(time.Nanosecond)))
	assert.False(t, w.IsOpen(at(0).Add(-time.Nanosecond)))
}

func TestNextOpening(t *testing.T) {
	windows := []model.TierWindow{
		{ID: 1, MinStake: d("200000000"), AllocationCount: 10, OpensAt: at(5)},
		{ID: 2, MinStake: d("50000000"), AllocationCount: 2, OpensAt: at(8)},
	}
	assert.Nil(t, Evaluate(d("200000000"), windows, base))
	assert.Equal(t, at(5), NextOpening(d("200000000"), windows, base))
	assert.Equal(t, at(8), NextOpening(d("60000000"), windows, base))
	assert.Nil(t, NextOpening(d("1"), windows, base))
}
