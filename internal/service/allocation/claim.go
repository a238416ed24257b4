package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement-core/internal/model"
	"settlement-core/internal/service/directory"
	"settlement-core/pkg/errno"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/monitor"
)

// 认领失败原因
const (
	ReasonBelowMinimum       = "below_minimum"
	ReasonNotOpenYet         = "not_open_yet"
	ReasonWindowClosed       = "window_closed"
	ReasonAllocationExceeded = "allocation_exceeded"
	ReasonUnitTaken          = "unit_taken"
	ReasonUnitOutOfRange     = "unit_out_of_range"
)

// StakeMeter 即 directory.Directory
type StakeMeter interface {
	MeasureStake(ctx context.Context, fid int64, ordering directory.StakeOrdering) (decimal.Decimal, error)
}

type ClaimService struct {
	db        *gorm.DB
	meter     StakeMeter
	orderings map[string]directory.StakeOrdering // 按社区, key "default" 兜底
	now       func() time.Time
}

func NewClaimService(db *gorm.DB, meter StakeMeter, orderings map[string]directory.StakeOrdering) *ClaimService {
	return &ClaimService{
		db:        db,
		meter:     meter,
		orderings: orderings,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type ClaimResult struct {
	AllocationCount int    `json:"allocation_count"`
	ClaimedUnits    []int  `json:"claimed_units"`
	TotalClaimed    int    `json:"total_claimed"`
	WindowID        uint64 `json:"window_id"`
}

// Status 用户在某个池子的认领资格
type Status struct {
	Stake           decimal.Decimal `json:"stake"`
	AllocationCount int             `json:"allocation_count"`
	Claimed         int             `json:"claimed"`
	Remaining       int             `json:"remaining"`
	WindowID        uint64          `json:"window_id,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	OpensAt         *time.Time      `json:"opens_at,omitempty"`
}

// Eligibility 只读查询, 不产生副作用
func (s *ClaimService) Eligibility(ctx context.Context, poolID string, fid int64) (*Status, error) {
	pool, windows, err := s.loadPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	stake, err := s.measure(ctx, pool, fid)
	if err != nil {
		return nil, err
	}
	claimed, err := s.claimedCount(ctx, s.db.WithContext(ctx), poolID, fid)
	if err != nil {
		return nil, err
	}

	st := &Status{Stake: stake, Claimed: claimed}
	now := s.now()
	ent := Evaluate(stake, windows, now)
	if ent == nil {
		st.Reason, st.OpensAt = ineligibleReason(stake, windows, now)
		return st, nil
	}
	st.AllocationCount = ent.AllocationCount
	st.WindowID = ent.Window.ID
	if st.Remaining = ent.AllocationCount - claimed; st.Remaining < 0 {
		st.Remaining = 0
	}
	return st, nil
}

// ClaimUnits 认领若干格子
// 1. 计数器条件更新保证累计数量不超过上限
// 2. (pool_id, unit) 唯一约束保证同一格子不会被认领两次
func (s *ClaimService) ClaimUnits(ctx context.Context, poolID string, fid int64, units []int) (*ClaimResult, error) {
	if len(units) == 0 {
		return nil, errno.New(errno.ErrValidation, "no units requested")
	}
	pool, windows, err := s.loadPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(units))
	for _, u := range units {
		if u < 1 || u > pool.Size {
			return nil, errno.New(errno.ErrValidation, fmt.Sprintf("unit %d is outside 1..%d", u, pool.Size)).
				WithReason(ReasonUnitOutOfRange).WithField("unit", u)
		}
		if seen[u] {
			return nil, errno.New(errno.ErrValidation, fmt.Sprintf("unit %d requested more than once", u)).WithField("unit", u)
		}
		seen[u] = true
	}

	stake, err := s.measure(ctx, pool, fid)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ent := Evaluate(stake, windows, now)
	if ent == nil {
		reason, opensAt := ineligibleReason(stake, windows, now)
		monitor.ObserveAllocationClaim(reason)
		d := errno.New(errno.ErrIneligible, ineligibleMessage(reason)).ForFID(fid).WithReason(reason)
		if opensAt != nil {
			d.WithOpensAt(*opensAt)
		}
		return nil, d
	}

	n := len(units)
	var total int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alloc := model.PoolAllocation{PoolID: poolID, FID: fid}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&alloc).Error; err != nil {
			return err
		}

		res := tx.Model(&model.PoolAllocation{}).
			Where("pool_id = ? AND fid = ? AND claimed + ? <= ?", poolID, fid, n, ent.AllocationCount).
			Updates(map[string]interface{}{
				"claimed":    gorm.Expr("claimed + ?", n),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			claimed, err := s.claimedCount(ctx, tx, poolID, fid)
			if err != nil {
				return err
			}
			return errno.New(errno.ErrIneligible,
				fmt.Sprintf("requested %d units but only %d of %d remain", n, max(ent.AllocationCount-claimed, 0), ent.AllocationCount)).
				ForFID(fid).WithReason(ReasonAllocationExceeded).
				WithField("allocation_count", ent.AllocationCount).WithField("claimed", claimed)
		}

		for _, u := range units {
			claim := model.PoolClaim{PoolID: poolID, Unit: u, FID: fid, WindowID: ent.Window.ID}
			if err := tx.Create(&claim).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errno.New(errno.ErrConflict, fmt.Sprintf("unit %d is already taken", u)).
						ForFID(fid).WithReason(ReasonUnitTaken).WithField("unit", u)
				}
				return err
			}
		}

		var err error
		total, err = s.claimedCount(ctx, tx, poolID, fid)
		return err
	})
	if err != nil {
		var d *errno.Detail
		if errors.As(err, &d) {
			monitor.ObserveAllocationClaim(d.Reason)
			return nil, err
		}
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}

	monitor.ObserveAllocationClaim("success")
	logger.Info("units claimed",
		zap.String("pool_id", poolID), zap.Int64("fid", fid), zap.Ints("units", units), zap.Uint64("window_id", ent.Window.ID))

	claimed := append([]int(nil), units...)
	sort.Ints(claimed)
	return &ClaimResult{
		AllocationCount: ent.AllocationCount,
		ClaimedUnits:    claimed,
		TotalClaimed:    total,
		WindowID:        ent.Window.ID,
	}, nil
}

// Claims 池子的认领情况, 按格子排序
func (s *ClaimService) Claims(ctx context.Context, poolID string) ([]model.PoolClaim, error) {
	var out []model.PoolClaim
	if err := s.db.WithContext(ctx).Where("pool_id = ?", poolID).Order("unit ASC").Find(&out).Error; err != nil {
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	return out, nil
}

func (s *ClaimService) loadPool(ctx context.Context, poolID string) (*model.Pool, []model.TierWindow, error) {
	var pool model.Pool
	if err := s.db.WithContext(ctx).First(&pool, "id = ?", poolID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errno.New(errno.ErrNotFound, fmt.Sprintf("pool %s not found", poolID))
		}
		return nil, nil, errno.Wrap(errno.ErrDatabase, "", err)
	}

	var game model.Game
	if err := s.db.WithContext(ctx).Select("status").First(&game, "id = ?", poolID).Error; err == nil &&
		game.Status != model.GameStatusOpen {
		return nil, nil, errno.New(errno.ErrValidation, fmt.Sprintf("pool %s is no longer accepting claims", poolID)).
			WithReason("pool_closed")
	}

	var windows []model.TierWindow
	if err := s.db.WithContext(ctx).Where("pool_id = ?", poolID).Find(&windows).Error; err != nil {
		return nil, nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	return &pool, windows, nil
}

func (s *ClaimService) measure(ctx context.Context, pool *model.Pool, fid int64) (decimal.Decimal, error) {
	ordering, ok := s.orderings[pool.Community]
	if !ok {
		ordering = s.orderings["default"]
	}
	stake, err := s.meter.MeasureStake(ctx, fid, ordering)
	if err != nil {
		return decimal.Zero, errno.Wrap(errno.ErrUpstream, "could not measure stake", err).ForFID(fid)
	}
	return stake, nil
}

func (s *ClaimService) claimedCount(ctx context.Context, db *gorm.DB, poolID string, fid int64) (int, error) {
	var alloc model.PoolAllocation
	err := db.WithContext(ctx).Where("pool_id = ? AND fid = ?", poolID, fid).Limit(1).Find(&alloc).Error
	if err != nil {
		return 0, err
	}
	return alloc.Claimed, nil
}

// ineligibleReason 区分 "低于门槛" "尚未开放" 与 "已关闭"
func ineligibleReason(stake decimal.Decimal, windows []model.TierWindow, now time.Time) (string, *time.Time) {
	if _, ok := MaxAllocation(stake, windows); !ok {
		return ReasonBelowMinimum, nil
	}
	if next := NextOpening(stake, windows, now); next != nil {
		return ReasonNotOpenYet, next
	}
	return ReasonWindowClosed, nil
}

func ineligibleMessage(reason string) string {
	switch reason {
	case ReasonBelowMinimum:
		return "stake is below the minimum for every tier"
	case ReasonNotOpenYet:
		return "no window is open yet for your tier"
	default:
		return "every window you qualify for has closed"
	}
}
