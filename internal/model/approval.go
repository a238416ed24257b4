package model

import (
	"time"

	"gorm.io/datatypes"
)

// 审批请求状态
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// 审批请求类型
const (
	RequestKindGame = "game_request"
)

// ApprovalRequest 待管理员审批的请求
// CreatedResourceID 是区分 "已抢到但未完成" 与 "已完成" 的唯一标志
type ApprovalRequest struct {
	ID                uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind              string         `gorm:"type:varchar(32);not null;index" json:"kind"`
	RequesterFID      int64          `gorm:"column:requester_fid;not null;index" json:"requester_fid"`
	Payload           datatypes.JSON `json:"payload"`
	Status            string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ApprovalClaimID   *string        `gorm:"type:varchar(64)" json:"approval_claim_id,omitempty"`
	ApprovedByFID     *int64         `gorm:"column:approved_by_fid" json:"approved_by_fid,omitempty"`
	CreatedResourceID *string        `gorm:"type:varchar(64)" json:"created_resource_id,omitempty"`
	RejectedByFID     *int64         `gorm:"column:rejected_by_fid" json:"rejected_by_fid,omitempty"`
	RejectReason      string         `gorm:"type:text;not null;default:''" json:"reject_reason,omitempty"`
	ApprovedAt        *time.Time     `json:"approved_at,omitempty"`
	RejectedAt        *time.Time     `json:"rejected_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}
