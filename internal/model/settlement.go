package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 结算记录状态
// pending: 交易已广播但在超时前未确认, 该名次被锁定, 需要人工确认或作废后才能重新支付
const (
	SettlementStatusConfirmed = "confirmed"
	SettlementStatusPending   = "pending"
	SettlementStatusDropped   = "dropped"
)

// SettlementRecord 结算记录表
// 核心约束: (game_id, position_key) 唯一, 同一名次永远只会被支付一次
// 记录只追加不删除
type SettlementRecord struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	GameID       string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_game_position" json:"game_id"`
	PositionKey  string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_game_position" json:"position_key"`
	Position     int             `gorm:"not null" json:"position"`
	FID          int64           `gorm:"column:fid;not null;index" json:"fid"`
	Address      string          `gorm:"type:varchar(42);not null" json:"address"`
	Amount       decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	TokenAddress string          `gorm:"type:varchar(42);not null;default:''" json:"token_address"`
	TxHash       *string         `gorm:"type:varchar(66);uniqueIndex" json:"tx_hash"` // advantage-only 结算没有链上交易
	SettledByFID int64           `gorm:"column:settled_by_fid;not null" json:"settled_by_fid"`
	SettledAt    time.Time       `gorm:"not null" json:"settled_at"`
	Status       string          `gorm:"type:varchar(16);not null;default:'confirmed'" json:"status"`
	Notes        string          `gorm:"type:text;not null;default:''" json:"notes"`
}

func (r SettlementRecord) IsConfirmed() bool {
	return r.Status == "" || r.Status == SettlementStatusConfirmed
}

func (SettlementRecord) TableName() string {
	return "settlement_records"
}
