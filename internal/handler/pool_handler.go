package handler

import (
	"github.com/gin-gonic/gin"

	"settlement-core/internal/auth"
	"settlement-core/internal/handler/request"
	"settlement-core/internal/handler/response"
	"settlement-core/internal/service/allocation"
	"settlement-core/internal/service/game"
	"settlement-core/internal/service/settlement"
)

// PoolHandler 玩家侧接口: 参赛与认领格子
type PoolHandler struct {
	claims       *allocation.ClaimService
	games        *game.Creator
	participants *settlement.ParticipantEligibility
}

func NewPoolHandler(claims *allocation.ClaimService, games *game.Creator, participants *settlement.ParticipantEligibility) *PoolHandler {
	return &PoolHandler{claims: claims, games: games, participants: participants}
}

// GetGame 查询游戏
// @Summary 游戏详情
// @Tags Games
// @Produce json
// @Param id path string true "Game ID"
// @Success 200 {object} response.Response{data=model.Game}
// @Router /api/v1/games/{id} [get]
func (h *PoolHandler) GetGame(c *gin.Context) {
	g, err := h.games.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, g)
}

// Join 参加游戏
// @Summary 参加游戏
// @Tags Games
// @Produce json
// @Param X-Actor-FID header int true "Player FID"
// @Param id path string true "Game ID"
// @Success 200 {object} response.Response
// @Router /api/v1/games/{id}/join [post]
func (h *PoolHandler) Join(c *gin.Context) {
	gameID := c.Param("id")
	if err := h.participants.Join(c.Request.Context(), gameID, auth.ActorFID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"game_id": gameID, "fid": auth.ActorFID(c)})
}

// Claim 认领格子
// @Summary 认领格子
// @Description 数量上限取自满足门槛的最高层; 失败时 data.reason 给出原因, 未开放时附带 opens_at
// @Tags Pools
// @Accept json
// @Produce json
// @Param X-Actor-FID header int true "Player FID"
// @Param id path string true "Pool ID"
// @Param request body request.ClaimUnitsRequest true "Units"
// @Success 200 {object} response.Response{data=allocation.ClaimResult}
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/pools/{id}/claims [post]
func (h *PoolHandler) Claim(c *gin.Context) {
	var req request.ClaimUnitsRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.claims.ClaimUnits(c.Request.Context(), c.Param("id"), auth.ActorFID(c), req.Units)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Eligibility 查询认领资格
// @Summary 认领资格
// @Tags Pools
// @Produce json
// @Param X-Actor-FID header int true "Player FID"
// @Param id path string true "Pool ID"
// @Success 200 {object} response.Response{data=allocation.Status}
// @Router /api/v1/pools/{id}/eligibility [get]
func (h *PoolHandler) Eligibility(c *gin.Context) {
	st, err := h.claims.Eligibility(c.Request.Context(), c.Param("id"), auth.ActorFID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// Board 池子当前的认领情况
// @Summary 认领情况
// @Tags Pools
// @Produce json
// @Param id path string true "Pool ID"
// @Success 200 {object} response.Response{data=[]model.PoolClaim}
// @Router /api/v1/pools/{id}/claims [get]
func (h *PoolHandler) Board(c *gin.Context) {
	claims, err := h.claims.Claims(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, claims)
}
