package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"settlement-core/internal/model"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/monitor"
	"settlement-core/pkg/utils/lock"
)

// CronService 周期性巡检
// 1. 已批准但迟迟没有资源 ID 的请求 (副作用执行到一半进程退出), 需要人工处理
// 2. outbox 积压
type CronService struct {
	cron       *cron.Cron
	db         *gorm.DB
	locker     lock.DistributedLock
	relay      *RelayService
	staleAfter time.Duration
}

func NewCronService(db *gorm.DB, locker lock.DistributedLock, relay *RelayService, staleAfter time.Duration) *CronService {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &CronService{
		cron:       cron.New(),
		db:         db,
		locker:     locker,
		relay:      relay,
		staleAfter: staleAfter,
	}
}

func (s *CronService) Start() {
	// 注册任务
	_, _ = s.cron.AddFunc("@every 1m", s.locked("sweep_stale_approvals", s.SweepStaleApprovals))
	_, _ = s.cron.AddFunc("@every 30s", s.ReportOutboxBacklog)

	s.cron.Start()
	logger.Info("Cron Service started")
}

func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Cron Service stopped")
}

// locked 多实例部署时同一任务只在一个节点执行
func (s *CronService) locked(name string, job func(ctx context.Context) (int64, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if s.locker != nil {
			locked, err := s.locker.Acquire(ctx, "cron:"+name, 50*time.Second)
			if err != nil || !locked {
				logger.Debug("cron job skipped, lock held elsewhere", zap.String("job", name), zap.Error(err))
				return
			}
			defer func() { _ = s.locker.Release(context.WithoutCancel(ctx), "cron:"+name) }()
		}

		if _, err := job(ctx); err != nil {
			logger.Warn("cron job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

// SweepStaleApprovals 统计并记录卡在 "已认领未完成" 的请求
func (s *CronService) SweepStaleApprovals(ctx context.Context) (int64, error) {
	var stale []model.ApprovalRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_resource_id IS NULL AND approved_at < ?",
			model.RequestStatusApproved, time.Now().UTC().Add(-s.staleAfter)).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	monitor.SetStaleApprovals(int64(len(stale)))
	for _, req := range stale {
		var approver int64
		if req.ApprovedByFID != nil {
			approver = *req.ApprovedByFID
		}
		logger.Error("approved request has no created resource, manual review required",
			zap.Uint64("request_id", req.ID),
			zap.String("kind", req.Kind),
			zap.Int64("approved_by", approver),
			zap.Timep("approved_at", req.ApprovedAt))
	}
	return int64(len(stale)), nil
}

// ReportOutboxBacklog 每个实例都上报, 不需要加锁
func (s *CronService) ReportOutboxBacklog() {
	if s.relay == nil {
		return
	}
	n, err := s.relay.PendingCount(context.Background())
	if err != nil {
		logger.Warn("count outbox backlog failed", zap.Error(err))
		return
	}
	monitor.SetOutboxPending(n)
}
