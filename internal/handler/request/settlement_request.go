package request

import "github.com/shopspring/decimal"

type WinnerRequest struct {
	FID      int64           `json:"fid" binding:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount" binding:"gte=0"`
	Position int             `json:"position" binding:"gte=0"`
}

// SettleGameRequest confirm 必须显式为 true
type SettleGameRequest struct {
	Winners       []WinnerRequest `json:"winners" binding:"required,min=1,max=100,dive"`
	Confirm       bool            `json:"confirm"`
	AdvantageOnly bool            `json:"advantage_only"`
	Notes         string          `json:"notes" binding:"max=1000"`
}

// ResolvePendingRequest mined: 交易已上链; dropped: 交易已作废, 名次重新开放
type ResolvePendingRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=mined dropped"`
}
