package event

import "time"

// Topics
const (
	TopicSettlement = "settlement_events"
	TopicApproval   = "approval_events"
)

// 事件类型
const (
	TypeSettlementCompleted = "settlement.completed"
	TypeGameSettled         = "game.settled"
	TypeRequestApproved     = "request.approved"
)

// Envelope 所有事件共用的外层结构, 消费方先按 Type 分发
type Envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// SettlementCompletedEvent 一次结算成功落库
// Topic: settlement_events
type SettlementCompletedEvent struct {
	GameID    string         `json:"game_id"`
	GameKind  string         `json:"game_kind"`
	SettledBy int64          `json:"settled_by"`
	Token     string         `json:"token"`
	Payouts   []PayoutRecord `json:"payouts"`
}

type PayoutRecord struct {
	FID         int64  `json:"fid"`
	Position    int    `json:"position"`
	PositionKey string `json:"position_key"`
	Amount      string `json:"amount"` // Decimal string
	TxHash      string `json:"tx_hash,omitempty"`
}

// GameSettledEvent 游戏所有名次结算完毕
type GameSettledEvent struct {
	GameID string `json:"game_id"`
}

// RequestApprovedEvent 审批完成并创建了资源
// Topic: approval_events
type RequestApprovedEvent struct {
	RequestID    uint64 `json:"request_id"`
	Kind         string `json:"kind"`
	RequesterFID int64  `json:"requester_fid"`
	ApprovedBy   int64  `json:"approved_by"`
	ResourceID   string `json:"resource_id"`
}
