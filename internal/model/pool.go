package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool 格子池 (squares), ID 与游戏 ID 相同
type Pool struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Size      int       `gorm:"not null" json:"size"`
	Community string    `gorm:"type:varchar(64);not null;default:'default'" json:"community"`
	CreatedAt time.Time `json:"created_at"`
}

func (Pool) TableName() string {
	return "pools"
}

// TierWindow 按质押门槛分层、按时间开放的认领窗口
type TierWindow struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PoolID          string          `gorm:"type:varchar(64);not null;index" json:"pool_id"`
	MinStake        decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"min_stake"`
	AllocationCount int             `gorm:"not null" json:"allocation_count"`
	OpensAt         *time.Time      `json:"opens_at,omitempty"`
	ClosesAt        *time.Time      `json:"closes_at,omitempty"`
}

func (TierWindow) TableName() string {
	return "tier_windows"
}

// IsOpen 判断窗口在 now 时刻是否开放 (两端都是闭区间)
func (w TierWindow) IsOpen(now time.Time) bool {
	if w.OpensAt != nil && now.Before(*w.OpensAt) {
		return false
	}
	if w.ClosesAt != nil && now.After(*w.ClosesAt) {
		return false
	}
	return true
}

// PoolAllocation 每个用户在某个池子里已领取的格子数 (累计, 跨窗口)
type PoolAllocation struct {
	PoolID    string    `gorm:"type:varchar(64);primaryKey" json:"pool_id"`
	FID       int64     `gorm:"column:fid;primaryKey" json:"fid"`
	Claimed   int       `gorm:"not null;default:0" json:"claimed"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PoolAllocation) TableName() string {
	return "pool_allocations"
}

// PoolClaim 单个格子的归属, (pool_id, unit) 唯一防止重复认领
type PoolClaim struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PoolID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_pool_unit" json:"pool_id"`
	Unit      int       `gorm:"not null;uniqueIndex:idx_pool_unit" json:"unit"`
	FID       int64     `gorm:"column:fid;not null;index" json:"fid"`
	WindowID  uint64    `gorm:"not null" json:"window_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (PoolClaim) TableName() string {
	return "pool_claims"
}
