package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"settlement-core/internal/bootstrap"
	"settlement-core/internal/event"
	"settlement-core/internal/service/mq"
	"settlement-core/internal/worker"
	"settlement-core/internal/worker/tasks"
	"settlement-core/pkg/config"
	"settlement-core/pkg/database"
	"settlement-core/pkg/logger"
)

// notifier-worker 消费结算/审批事件并投递到 webhook
// 1. MQ Consumer -> asynq 队列 (TaskID 去重)
// 2. asynq Worker -> HTTP POST, 失败按退避重试
func main() {
	// 1. 初始化配置与日志
	config.Init()
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	cfg := config.Global
	logger.Info("启动通知服务 (Notifier Worker)...", zap.String("env", cfg.App.Env), zap.String("mq", cfg.Redis.MQType))

	rdb, err := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}
	defer rdb.Close()

	// 2. asynq Client / Server
	queue := worker.NewQueue(cfg.Redis)
	defer queue.Close()

	notifier := tasks.NewWebhookNotifier(cfg.Notify.WebhookURL, &http.Client{Timeout: cfg.Directory.Timeout})
	srv := worker.NewServer(cfg.Redis, cfg.Notify.Concurrency, notifier)
	srv.Start()

	// 3. 每个 topic 一个消费者
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	forwarder := worker.NewForwarder(queue)
	var wg sync.WaitGroup
	var consumers []mq.Consumer
	for _, topic := range []string{event.TopicSettlement, event.TopicApproval} {
		consumer := bootstrap.NewConsumer(cfg, rdb, "notifier-group", "notifier-"+topic)
		consumers = append(consumers, consumer)

		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			logger.Info("开始监听事件", zap.String("topic", topic))
			if err := consumer.Subscribe(ctx, topic, forwarder.Handle); err != nil {
				logger.Error("订阅失败", zap.String("topic", topic), zap.Error(err))
			}
		}(topic)
	}

	// 4. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在停止通知服务...")
	cancel()
	wg.Wait()
	for _, c := range consumers {
		_ = c.Close()
	}
	srv.Stop()
	logger.Info("通知服务已停止")
}
