// Package allocation 质押分层的限时认领窗口
package allocation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"settlement-core/internal/model"
)

// Entitlement 可认领数量取自满足门槛的最高层, 窗口可以是更低层里仍开放的那个
type Entitlement struct {
	AllocationCount int
	Window          model.TierWindow
}

// byThresholdDesc 门槛从高到低, 不修改调用方的切片
func byThresholdDesc(windows []model.TierWindow) []model.TierWindow {
	sorted := make([]model.TierWindow, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinStake.GreaterThan(sorted[j].MinStake)
	})
	return sorted
}

// MaxAllocation 满足门槛的最高层的数量, 一层都不满足时 ok 为 false
func MaxAllocation(stake decimal.Decimal, windows []model.TierWindow) (int, bool) {
	for _, w := range byThresholdDesc(windows) {
		if stake.GreaterThanOrEqual(w.MinStake) {
			return w.AllocationCount, true
		}
	}
	return 0, false
}

// Evaluate 返回 nil 表示当前没有可用窗口 (低于门槛或窗口都未开放/已关闭)
func Evaluate(stake decimal.Decimal, windows []model.TierWindow, now time.Time) *Entitlement {
	count, ok := MaxAllocation(stake, windows)
	if !ok {
		return nil
	}
	for _, w := range byThresholdDesc(windows) {
		if stake.LessThan(w.MinStake) {
			continue
		}
		if w.IsOpen(now) {
			return &Entitlement{AllocationCount: count, Window: w}
		}
	}
	return nil
}

// NextOpening 满足门槛但尚未开放的窗口中最早的开放时间
func NextOpening(stake decimal.Decimal, windows []model.TierWindow, now time.Time) *time.Time {
	var next *time.Time
	for _, w := range windows {
		if stake.LessThan(w.MinStake) || w.OpensAt == nil || !now.Before(*w.OpensAt) {
			continue
		}
		if next == nil || w.OpensAt.Before(*next) {
			t := *w.OpensAt
			next = &t
		}
	}
	return next
}
