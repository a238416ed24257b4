package routes

import (
	"github.com/gin-gonic/gin"

	"settlement-core/internal/auth"
	"settlement-core/internal/handler"
)

// RegisterPlayerRoutes 玩家侧接口
func RegisterPlayerRoutes(rg *gin.RouterGroup, approvals *handler.ApprovalHandler, pools *handler.PoolHandler) {
	rg.GET("/games/:id", pools.GetGame)
	rg.GET("/pools/:id/claims", pools.Board)

	player := rg.Group("", auth.RequireActor())
	{
		player.POST("/requests", approvals.Submit)
		player.POST("/games/:id/join", pools.Join)
		player.POST("/pools/:id/claims", pools.Claim)
		player.GET("/pools/:id/eligibility", pools.Eligibility)
	}
}
