package server

import (
	"settlement-core/internal/auth"
	"settlement-core/internal/handler"
	"settlement-core/internal/handler/response"
	"settlement-core/internal/server/routes"

	"settlement-core/pkg/monitor"
	"settlement-core/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Settlement *handler.SettlementHandler
	Approval   *handler.ApprovalHandler
	Pool       *handler.PoolHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers, authz auth.Authorizer) *gin.Engine {
	// 0. 初始化监控指标与校验器
	monitor.Init()
	validator.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/ping", func(c *gin.Context) {
			response.Success(c, gin.H{"pong": true})
		})

		routes.RegisterAdminRoutes(api, authz, h.Settlement, h.Approval)
		routes.RegisterPlayerRoutes(api, h.Approval, h.Pool)
	}

	return r
}
