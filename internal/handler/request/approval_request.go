package request

import "encoding/json"

// SubmitRequest 玩家提交待审批请求
type SubmitRequest struct {
	Kind    string          `json:"kind" binding:"required,max=32"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}
