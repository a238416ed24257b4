package routes

import (
	"github.com/gin-gonic/gin"

	"settlement-core/internal/auth"
	"settlement-core/internal/handler"
)

// RegisterAdminRoutes 结算与审批接口, 全部需要管理员权限
func RegisterAdminRoutes(rg *gin.RouterGroup, authz auth.Authorizer, settle *handler.SettlementHandler, approvals *handler.ApprovalHandler) {
	adminGroup := rg.Group("/admin", auth.RequireActor(), auth.RequireAdmin(authz))
	{
		adminGroup.POST("/games/:id/settle", settle.Settle)
		adminGroup.POST("/games/:id/finalize", settle.Finalize)
		adminGroup.GET("/games/:id/settlements", settle.Records)
		adminGroup.POST("/games/:id/pending/:key", settle.ResolvePending)

		adminGroup.GET("/requests", approvals.List)
		adminGroup.POST("/requests/:id/approve", approvals.Approve)
		adminGroup.POST("/requests/:id/reject", approvals.Reject)
	}
}
