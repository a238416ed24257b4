// Package approval 管理员审批: 一个请求只能被一个管理员认领并执行一次副作用
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"settlement-core/internal/event"
	"settlement-core/internal/model"
	"settlement-core/pkg/errno"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/monitor"
)

// Action 某一类请求被批准后要执行的副作用
// Execute 返回创建出的资源 ID; 资源已创建但后续步骤失败时应同时返回资源 ID 与错误
type Action struct {
	Validate func(payload []byte) error
	Execute  func(ctx context.Context, req *model.ApprovalRequest) (string, error)
}

type ClaimResult struct {
	Claimed bool
	Current *model.ApprovalRequest
}

type Coordinator struct {
	db      *gorm.DB
	actions map[string]Action
	now     func() time.Time
}

func NewCoordinator(db *gorm.DB) *Coordinator {
	return &Coordinator{
		db:      db,
		actions: make(map[string]Action),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register 启动时注册, 不支持并发调用
func (c *Coordinator) Register(kind string, action Action) {
	c.actions[kind] = action
}

// Submit 玩家提交请求, 初始状态 pending
func (c *Coordinator) Submit(ctx context.Context, kind string, requesterFID int64, payload []byte) (*model.ApprovalRequest, error) {
	action, ok := c.actions[kind]
	if !ok {
		return nil, errno.New(errno.ErrValidation, fmt.Sprintf("unsupported request kind %q", kind)).WithReason("unsupported_kind")
	}
	if action.Validate != nil {
		if err := action.Validate(payload); err != nil {
			return nil, err
		}
	}

	req := &model.ApprovalRequest{
		Kind:         kind,
		RequesterFID: requesterFID,
		Payload:      payload,
		Status:       model.RequestStatusPending,
	}
	if err := c.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	logger.Info("approval request submitted",
		zap.Uint64("request_id", req.ID), zap.String("kind", kind), zap.Int64("requester", requesterFID))
	return req, nil
}

func (c *Coordinator) Get(ctx context.Context, requestID uint64) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := c.db.WithContext(ctx).First(&req, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.New(errno.ErrNotFound, fmt.Sprintf("request %d not found", requestID))
		}
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	return &req, nil
}

// List 按状态列出请求, status 为空时返回全部
func (c *Coordinator) List(ctx context.Context, status string, limit int) ([]model.ApprovalRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := c.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []model.ApprovalRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	return out, nil
}

// Claim 单条条件更新: 只有 pending 的请求能被认领, RowsAffected 决定谁赢
func (c *Coordinator) Claim(ctx context.Context, requestID uint64, actorFID int64, claimToken string) (*ClaimResult, error) {
	now := c.now()
	res := c.db.WithContext(ctx).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", requestID, model.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":            model.RequestStatusApproved,
			"approved_by_fid":   actorFID,
			"approval_claim_id": claimToken,
			"approved_at":       now,
		})
	if res.Error != nil {
		return nil, errno.Wrap(errno.ErrDatabase, "", res.Error)
	}

	current, err := c.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	claimed := res.RowsAffected == 1
	if claimed {
		monitor.ObserveApprovalClaim("claimed")
	} else {
		monitor.ObserveApprovalClaim("lost")
	}
	return &ClaimResult{Claimed: claimed, Current: current}, nil
}

// Approve 认领 -> 执行副作用 -> 记账
// 同一管理员对已完成请求的重试返回原资源 ID
func (c *Coordinator) Approve(ctx context.Context, requestID uint64, actorFID int64) (string, error) {
	token := uuid.NewString()

	// 1. 认领
	claim, err := c.Claim(ctx, requestID, actorFID, token)
	if err != nil {
		return "", err
	}
	if !claim.Claimed {
		return c.settleLostClaim(claim.Current, actorFID)
	}
	req := claim.Current

	// 2. 执行副作用
	action, ok := c.actions[req.Kind]
	if !ok {
		c.rollback(ctx, req.ID, token)
		return "", errno.New(errno.ErrValidation, fmt.Sprintf("unsupported request kind %q", req.Kind)).WithReason("unsupported_kind")
	}
	resourceID, actionErr := action.Execute(ctx, req)
	if actionErr != nil && resourceID == "" {
		// 资源没有创建出来: 回到 pending, 让其他管理员可以重新处理
		c.rollback(ctx, req.ID, token)
		logger.Warn("approval action failed, request returned to pending",
			zap.Uint64("request_id", req.ID), zap.Int64("actor", actorFID), zap.Error(actionErr))
		return "", actionFailure(actionErr)
	}

	// 3. 记录资源 ID. 从这里开始请求永远不会再回到 pending
	if err := c.attach(ctx, req, actorFID, token, resourceID); err != nil {
		logger.Error("resource created but request bookkeeping failed",
			zap.Uint64("request_id", req.ID), zap.String("resource_id", resourceID), zap.Error(err))
		return "", errno.Wrap(errno.ErrDatabase, "resource was created but the request could not be updated", err).
			WithField("resource_id", resourceID)
	}
	if actionErr != nil {
		logger.Error("approval action partially failed, request left approved",
			zap.Uint64("request_id", req.ID), zap.String("resource_id", resourceID), zap.Error(actionErr))
		return "", actionFailure(actionErr)
	}

	logger.Info("approval request approved",
		zap.Uint64("request_id", req.ID), zap.Int64("actor", actorFID), zap.String("resource_id", resourceID))
	return resourceID, nil
}

// Reject 只能从 pending 驳回; 同一管理员重复驳回视为成功
func (c *Coordinator) Reject(ctx context.Context, requestID uint64, actorFID int64, reason string) error {
	res := c.db.WithContext(ctx).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", requestID, model.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":          model.RequestStatusRejected,
			"rejected_by_fid": actorFID,
			"reject_reason":   reason,
			"rejected_at":     c.now(),
		})
	if res.Error != nil {
		return errno.Wrap(errno.ErrDatabase, "", res.Error)
	}
	if res.RowsAffected == 1 {
		logger.Info("approval request rejected", zap.Uint64("request_id", requestID), zap.Int64("actor", actorFID))
		return nil
	}

	current, err := c.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if current.Status == model.RequestStatusRejected && current.RejectedByFID != nil && *current.RejectedByFID == actorFID {
		return nil
	}
	return errno.New(errno.ErrConflict, fmt.Sprintf("request %d is already %s", requestID, current.Status)).
		WithReason("already_" + current.Status)
}

// settleLostClaim 条件更新没有命中时的分支
func (c *Coordinator) settleLostClaim(current *model.ApprovalRequest, actorFID int64) (string, error) {
	sameActor := current.ApprovedByFID != nil && *current.ApprovedByFID == actorFID
	switch {
	case current.Status == model.RequestStatusApproved && sameActor && current.CreatedResourceID != nil:
		monitor.ObserveApprovalClaim("retry")
		return *current.CreatedResourceID, nil
	case current.Status == model.RequestStatusApproved && current.CreatedResourceID == nil:
		return "", errno.New(errno.ErrConflict, fmt.Sprintf("request %d is being processed", current.ID)).
			WithReason("approval_in_progress")
	default:
		return "", errno.New(errno.ErrConflict, fmt.Sprintf("request %d is already %s", current.ID, current.Status)).
			WithReason("already_" + current.Status)
	}
}

// attach 只有持有认领令牌的一方能写入资源 ID, 写入后同一事务发出事件
func (c *Coordinator) attach(ctx context.Context, req *model.ApprovalRequest, actorFID int64, token, resourceID string) error {
	return c.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ApprovalRequest{}).
			Where("id = ? AND approval_claim_id = ? AND created_resource_id IS NULL", req.ID, token).
			Update("created_resource_id", resourceID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("claim token no longer owns request %d", req.ID)
		}
		return model.CreateOutboxMessage(tx, event.TopicApproval, fmt.Sprintf("request-%d", req.ID), event.Envelope{
			Type:       event.TypeRequestApproved,
			OccurredAt: c.now(),
			Data: event.RequestApprovedEvent{
				RequestID:    req.ID,
				Kind:         req.Kind,
				RequesterFID: req.RequesterFID,
				ApprovedBy:   actorFID,
				ResourceID:   resourceID,
			},
		})
	})
}

// rollback 回到 pending, 前提是资源 ID 仍为空且认领令牌仍是自己的
func (c *Coordinator) rollback(ctx context.Context, requestID uint64, token string) {
	res := c.db.WithContext(context.WithoutCancel(ctx)).Model(&model.ApprovalRequest{}).
		Where("id = ? AND approval_claim_id = ? AND created_resource_id IS NULL", requestID, token).
		Updates(map[string]interface{}{
			"status":            model.RequestStatusPending,
			"approved_by_fid":   nil,
			"approval_claim_id": nil,
			"approved_at":       nil,
		})
	if res.Error != nil {
		logger.Error("approval rollback failed", zap.Uint64("request_id", requestID), zap.Error(res.Error))
		return
	}
	monitor.ObserveApprovalClaim("rolled_back")
}

func actionFailure(err error) error {
	var d *errno.Detail
	if errors.As(err, &d) {
		return err
	}
	return errno.Wrap(errno.InternalServerError, "approval action failed", err)
}
