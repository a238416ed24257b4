package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"settlement-core/internal/model"
	"settlement-core/internal/service/mq"
	"settlement-core/pkg/logger"
)

// RelayService 负责将本地消息表的消息搬运到 MQ
// 结算与审批只写 outbox, 通知是否送达不影响它们的结果
type RelayService struct {
	db        *gorm.DB
	producer  mq.Producer
	interval  time.Duration
	batchSize int
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:        db,
		producer:  producer,
		interval:  500 * time.Millisecond, // 500ms 轮询一次
		batchSize: 50,
	}
}

func (s *RelayService) Start(ctx context.Context) {
	logger.Info("outbox relay started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 处理一批待发送消息, 返回成功投递的条数
// 只有发送成功了才更新状态 => At-least-once, 消费方需做好幂等
func (s *RelayService) ProcessPending(ctx context.Context) int {
	// 1. 按写入顺序取一批 Pending 消息
	var messages []model.OutboxMessage
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(s.batchSize).
		Find(&messages).Error; err != nil {
		logger.Warn("outbox query failed", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		// 2. 发送 MQ
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("outbox publish failed", zap.Uint64("id", msg.ID), zap.String("topic", msg.Topic), zap.Error(err))
			s.db.WithContext(ctx).Model(&model.OutboxMessage{}).
				Where("id = ?", msg.ID).
				Update("attempts", gorm.Expr("attempts + 1"))
			// 同一个 key 的后续消息必须等这条发出去
			return sent
		}

		// 3. 更新状态为 SENT
		if err := s.db.WithContext(ctx).Model(&model.OutboxMessage{}).
			Where("id = ? AND status = ?", msg.ID, model.OutboxStatusPending).
			Update("status", model.OutboxStatusSent).Error; err != nil {
			logger.Warn("outbox mark sent failed", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
		logger.Debug("outbox message relayed", zap.Uint64("id", msg.ID), zap.String("topic", msg.Topic))
	}
	return sent
}

// PendingCount 积压数量, 用于监控
func (s *RelayService) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("status = ?", model.OutboxStatusPending).
		Count(&n).Error
	return n, err
}
