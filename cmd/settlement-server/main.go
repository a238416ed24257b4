package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"settlement-core/internal/auth"
	"settlement-core/internal/bootstrap"
	"settlement-core/internal/handler"
	"settlement-core/internal/server"
	"settlement-core/internal/service"
	"settlement-core/pkg/config"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/utils/lock"

	_ "settlement-core/docs/swagger"
)

// @title Settlement Core API
// @version 1.0
// @description Game settlement, approval and pool allocation API
// @host localhost:8080
// @BasePath /
func main() {
	// 0. 初始化 Config 与 Logger
	config.Init()
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 连接数据库 / Redis / 链 RPC
	infra, err := bootstrap.Connect(config.Global)
	if err != nil {
		logger.Fatal("基础设施初始化失败", zap.Error(err))
	}
	defer infra.Close()

	// 2. 业务服务
	svcs, err := bootstrap.NewServices(ctx, config.Global, infra)
	if err != nil {
		logger.Fatal("业务服务初始化失败", zap.Error(err))
	}

	// 3. Outbox 中继
	producer := bootstrap.NewProducer(config.Global, infra)
	defer producer.Close()
	relay := service.NewRelayService(infra.DB, producer)
	go relay.Start(ctx)

	// 4. 定时巡检 (多实例时通过 Redis 锁互斥)
	cronSvc := service.NewCronService(infra.DB, lock.NewRedisLock(infra.Redis), relay, config.Global.Settlement.StaleApprovalAfter)
	cronSvc.Start()

	// 5. HTTP Router
	r := server.NewHTTPRouter(server.Handlers{
		Settlement: handler.NewSettlementHandler(svcs.Settlement),
		Approval:   handler.NewApprovalHandler(svcs.Approvals),
		Pool:       handler.NewPoolHandler(svcs.Claims, svcs.Games, svcs.Participants),
	}, auth.NewAllowlist(config.Global.Admin.FIDs))

	// 6. gRPC (health + reflection)
	grpcServer, healthServer := server.NewGRPCServer()
	go server.WatchDatabase(ctx, healthServer, infra.DB, 15*time.Second)

	app, err := server.New(server.Config{
		HttpPort: config.Global.App.HttpPort,
		GrpcPort: config.Global.App.GrpcPort,
	}, r, grpcServer)
	if err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}

	// 运行 (阻塞)
	app.Run(func() {
		cancel()
		cronSvc.Stop()
	})
	logger.Info("系统已退出")
}
