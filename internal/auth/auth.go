// Package auth 管理员判定由外部注入, 核心逻辑不关心身份策略
package auth

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"settlement-core/internal/handler/response"
	"settlement-core/pkg/errno"
	"settlement-core/pkg/logger"
)

// ActorHeader 网关完成身份认证后写入的 fid
const ActorHeader = "X-Actor-FID"

const actorKey = "actor_fid"

// Authorizer 判断 fid 是否有管理员权限
type Authorizer interface {
	IsAdmin(ctx context.Context, fid int64) bool
}

// Allowlist 基于配置的固定名单
type Allowlist map[int64]struct{}

func NewAllowlist(fids []int64) Allowlist {
	a := make(Allowlist, len(fids))
	for _, fid := range fids {
		a[fid] = struct{}{}
	}
	return a
}

func (a Allowlist) IsAdmin(ctx context.Context, fid int64) bool {
	_, ok := a[fid]
	return ok
}

// AuthorizerFunc 允许直接用函数做判定
type AuthorizerFunc func(ctx context.Context, fid int64) bool

func (f AuthorizerFunc) IsAdmin(ctx context.Context, fid int64) bool {
	return f(ctx, fid)
}

// RequireActor 解析调用者 fid, 缺失或非法时返回 401
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		fid, err := strconv.ParseInt(c.GetHeader(ActorHeader), 10, 64)
		if err != nil || fid <= 0 {
			response.Abort(c, http.StatusUnauthorized, errno.ErrTokenInvalid.WithMessage("missing or invalid "+ActorHeader))
			return
		}
		c.Set(actorKey, fid)
		c.Next()
	}
}

// RequireAdmin 必须挂在 RequireActor 之后
func RequireAdmin(authz Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		fid := ActorFID(c)
		if fid == 0 || !authz.IsAdmin(c.Request.Context(), fid) {
			logger.Warn("admin permission denied", zap.Int64("fid", fid), zap.String("path", c.FullPath()))
			response.Abort(c, http.StatusForbidden, errno.ErrForbidden)
			return
		}
		c.Next()
	}
}

// ActorFID 返回 RequireActor 写入的 fid, 未设置时为 0
func ActorFID(c *gin.Context) int64 {
	return c.GetInt64(actorKey)
}
