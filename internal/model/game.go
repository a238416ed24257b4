package model

import (
	"fmt"
	"time"
)

// 游戏类型
const (
	GameKindTurn        = "turn_game"
	GameKindPrediction  = "prediction_pool"
	GameKindSquares     = "squares_pool"
	GameKindElimination = "elimination"
)

// 游戏状态
const (
	GameStatusOpen      = "open"
	GameStatusClosed    = "closed"
	GameStatusSettled   = "settled"
	GameStatusCancelled = "cancelled"
)

// Game 游戏表 (结算只关心状态、代币与需要结算的名次数)
type Game struct {
	ID                string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	Kind              string     `gorm:"type:varchar(32);not null;index" json:"kind"`
	Title             string     `gorm:"type:varchar(255);not null;default:''" json:"title"`
	Community         string     `gorm:"type:varchar(64);not null;default:'default'" json:"community"`
	TokenAddress      string     `gorm:"type:varchar(42);not null;default:''" json:"token_address"` // 空表示使用社区默认代币
	Status            string     `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	RequiredPositions int        `gorm:"not null;default:1" json:"required_positions"`
	CreatedByFID      int64      `gorm:"column:created_by_fid;not null;default:0" json:"created_by_fid"`
	SettlingToken     *string    `gorm:"type:varchar(64)" json:"-"` // 结算租约: 谁正在结算
	SettlingUntil     *time.Time `json:"-"`
	SettledAt         *time.Time `json:"settled_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Game) TableName() string {
	return "games"
}

// PositionKey 计算名次键
// squares 按节次 (q1..q4), 无名次的 (position = 0) 按用户, 其余按名次
func PositionKey(kind string, position int, fid int64) string {
	if position == 0 {
		return fmt.Sprintf("fid:%d", fid)
	}
	if kind == GameKindSquares {
		return fmt.Sprintf("q%d", position)
	}
	return fmt.Sprintf("p%d", position)
}

// RequiredKeys 游戏结束前必须全部结算的名次键
func (g *Game) RequiredKeys() []string {
	keys := make([]string, 0, g.RequiredPositions)
	for i := 1; i <= g.RequiredPositions; i++ {
		keys = append(keys, PositionKey(g.Kind, i, 0))
	}
	return keys
}

// GameParticipant 参赛者, 结算前用于校验赢家确实参与了该游戏
type GameParticipant struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	GameID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_game_fid" json:"game_id"`
	FID       int64     `gorm:"column:fid;not null;uniqueIndex:idx_game_fid" json:"fid"`
	CreatedAt time.Time `json:"created_at"`
}

func (GameParticipant) TableName() string {
	return "game_participants"
}
