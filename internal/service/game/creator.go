// Package game 审批通过后创建游戏 (squares 同时创建格子池与认领窗口)
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"settlement-core/internal/model"
	"settlement-core/internal/service/approval"
	"settlement-core/pkg/errno"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/validator"
)

type WindowSpec struct {
	MinStake        decimal.Decimal `json:"min_stake" validate:"gte=0"`
	AllocationCount int             `json:"allocation_count" validate:"gte=1"`
	OpensAt         *time.Time      `json:"opens_at,omitempty"`
	ClosesAt        *time.Time      `json:"closes_at,omitempty"`
}

// Payload game_request 的请求体
type Payload struct {
	Kind              string       `json:"kind" validate:"required,oneof=turn_game prediction_pool squares_pool elimination"`
	Title             string       `json:"title" validate:"required,max=255"`
	Community         string       `json:"community" validate:"omitempty,max=64"`
	TokenAddress      string       `json:"token_address" validate:"omitempty,eth_addr"`
	RequiredPositions int          `json:"required_positions" validate:"gte=0,lte=100"`
	PoolSize          int          `json:"pool_size" validate:"gte=0,lte=10000"`
	Windows           []WindowSpec `json:"windows" validate:"dive"`
}

type Creator struct {
	db *gorm.DB
}

func NewCreator(db *gorm.DB) *Creator {
	return &Creator{db: db}
}

// Action 注册到审批协调器
func (c *Creator) Action() approval.Action {
	return approval.Action{
		Validate: func(payload []byte) error {
			_, err := Decode(payload)
			return err
		},
		Execute: c.Create,
	}
}

// Decode 解析并校验 payload, 同时补全默认值
func Decode(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errno.New(errno.ErrValidation, "game request payload is not valid JSON")
	}
	if err := validator.Struct(p); err != nil {
		return nil, errno.New(errno.ErrValidation, validator.GetErrorMsg(err))
	}

	if p.Community == "" {
		p.Community = "default"
	}
	p.Community = strings.ToLower(p.Community)

	if p.Kind == model.GameKindSquares {
		if p.PoolSize == 0 {
			return nil, errno.New(errno.ErrValidation, "pool_size is required for squares_pool")
		}
		if len(p.Windows) == 0 {
			return nil, errno.New(errno.ErrValidation, "squares_pool needs at least one tier window")
		}
		if p.RequiredPositions == 0 {
			p.RequiredPositions = 4
		}
	} else {
		if len(p.Windows) > 0 || p.PoolSize > 0 {
			return nil, errno.New(errno.ErrValidation, "tier windows are only supported for squares_pool")
		}
		if p.RequiredPositions == 0 {
			p.RequiredPositions = 1
		}
	}

	for i, w := range p.Windows {
		if w.OpensAt != nil && w.ClosesAt != nil && w.ClosesAt.Before(*w.OpensAt) {
			return nil, errno.New(errno.ErrValidation, fmt.Sprintf("window %d closes before it opens", i+1))
		}
		if w.AllocationCount > p.PoolSize {
			return nil, errno.New(errno.ErrValidation, fmt.Sprintf("window %d allocates more units than the pool has", i+1))
		}
	}
	return &p, nil
}

// Create 在一个事务中创建游戏及其格子池, 返回游戏 ID
func (c *Creator) Create(ctx context.Context, req *model.ApprovalRequest) (string, error) {
	p, err := Decode(req.Payload)
	if err != nil {
		return "", err
	}

	gameID := uuid.NewString()
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		game := model.Game{
			ID:                gameID,
			Kind:              p.Kind,
			Title:             p.Title,
			Community:         p.Community,
			TokenAddress:      p.TokenAddress,
			Status:            model.GameStatusOpen,
			RequiredPositions: p.RequiredPositions,
			CreatedByFID:      req.RequesterFID,
		}
		if err := tx.Create(&game).Error; err != nil {
			return err
		}
		if p.Kind != model.GameKindSquares {
			return nil
		}

		pool := model.Pool{ID: gameID, Size: p.PoolSize, Community: p.Community}
		if err := tx.Create(&pool).Error; err != nil {
			return err
		}
		windows := make([]model.TierWindow, 0, len(p.Windows))
		for _, w := range p.Windows {
			windows = append(windows, model.TierWindow{
				PoolID:          gameID,
				MinStake:        w.MinStake,
				AllocationCount: w.AllocationCount,
				OpensAt:         w.OpensAt,
				ClosesAt:        w.ClosesAt,
			})
		}
		return tx.Create(&windows).Error
	})
	if err != nil {
		return "", errno.Wrap(errno.ErrDatabase, "", err)
	}

	logger.Info("game created from request",
		zap.Uint64("request_id", req.ID), zap.String("game_id", gameID), zap.String("kind", p.Kind))
	return gameID, nil
}

// Get 查询游戏
func (c *Creator) Get(ctx context.Context, gameID string) (*model.Game, error) {
	var g model.Game
	if err := c.db.WithContext(ctx).First(&g, "id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.New(errno.ErrNotFound, fmt.Sprintf("game %s not found", gameID))
		}
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	return &g, nil
}
