package worker

import (
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"settlement-core/internal/service/mq"
	"settlement-core/internal/worker/tasks"
	"settlement-core/pkg/config"
	"settlement-core/pkg/logger"
)

// Enqueuer 即 *asynq.Client, 测试中可以替换
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RedisOpt 任务队列与 MQ 共用同一个 Redis
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewQueue webhook 投递任务的生产端, 调用方负责 Close
func NewQueue(cfg config.RedisConfig) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// Forwarder 把 MQ 上的领域事件转成 webhook 投递任务
type Forwarder struct {
	queue Enqueuer
}

func NewForwarder(queue Enqueuer) *Forwarder {
	return &Forwarder{queue: queue}
}

// Handle 作为 mq.Consumer 的 handler 使用
// 1. 无法解析的消息直接确认, 不阻塞后续消息
// 2. 重复投递的消息 TaskID 相同, asynq 返回 ErrTaskIDConflict, 视为成功
func (f *Forwarder) Handle(msg *mq.Message) error {
	task, err := tasks.NewWebhookDeliveryTask(msg.Topic+":"+msg.ID, msg.Payload)
	if err != nil {
		logger.Error("dropping malformed event", zap.String("topic", msg.Topic), zap.String("id", msg.ID), zap.Error(err))
		return nil
	}

	info, err := f.queue.Enqueue(task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			logger.Debug("notification already enqueued", zap.String("id", msg.ID))
			return nil
		}
		return err
	}
	logger.Info("notification enqueued", zap.String("topic", msg.Topic), zap.String("task_id", info.ID))
	return nil
}
