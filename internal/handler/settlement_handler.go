package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"settlement-core/internal/auth"
	"settlement-core/internal/handler/request"
	"settlement-core/internal/handler/response"
	"settlement-core/internal/service/payout"
	"settlement-core/internal/service/settlement"
	"settlement-core/pkg/errno"
)

type SettlementHandler struct {
	svc *settlement.Service
}

func NewSettlementHandler(svc *settlement.Service) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

// Settle 结算游戏
// @Summary 结算游戏
// @Description 校验赢家、逐笔转账并写入结算记录; 已结算的名次会被跳过
// @Tags Settlement
// @Accept json
// @Produce json
// @Param X-Actor-FID header int true "Admin FID"
// @Param id path string true "Game ID"
// @Param request body request.SettleGameRequest true "Winners"
// @Success 200 {object} response.Response{data=settlement.Result}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/admin/games/{id}/settle [post]
func (h *SettlementHandler) Settle(c *gin.Context) {
	// 1. 绑定参数
	var req request.SettleGameRequest
	if !bindJSON(c, &req) {
		return
	}

	// 2. 组装赢家
	winners := make([]payout.WinnerEntry, len(req.Winners))
	for i, w := range req.Winners {
		winners[i] = payout.WinnerEntry{FID: w.FID, Amount: w.Amount, Position: w.Position}
	}

	// 3. 调用 Service
	result, err := h.svc.Settle(c.Request.Context(), settlement.Request{
		GameID:        strings.TrimSpace(c.Param("id")),
		ActorFID:      auth.ActorFID(c),
		Winners:       winners,
		Confirm:       req.Confirm,
		AdvantageOnly: req.AdvantageOnly,
		Notes:         req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Finalize 所有名次结算完成后关闭游戏
// @Summary 游戏收尾
// @Tags Settlement
// @Produce json
// @Param X-Actor-FID header int true "Admin FID"
// @Param id path string true "Game ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/admin/games/{id}/finalize [post]
func (h *SettlementHandler) Finalize(c *gin.Context) {
	gameID := c.Param("id")
	if err := h.svc.Ledger().Finalize(c.Request.Context(), gameID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"game_id": gameID, "status": "settled"})
}

// ResolvePending 人工处理超时未确认的转账
// @Summary 处理未确认转账
// @Description 转账超时后该名次被锁定, 确认交易上链或作废后才能继续结算
// @Tags Settlement
// @Accept json
// @Produce json
// @Param X-Actor-FID header int true "Admin FID"
// @Param id path string true "Game ID"
// @Param key path string true "Position key"
// @Param request body request.ResolvePendingRequest true "Outcome"
// @Success 200 {object} response.Response{data=model.SettlementRecord}
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/games/{id}/pending/{key} [post]
func (h *SettlementHandler) ResolvePending(c *gin.Context) {
	var req request.ResolvePendingRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.Ledger().ResolvePending(c.Request.Context(), c.Param("id"), c.Param("key"), req.Outcome == "mined")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}

// Records 查询结算记录
// @Summary 结算记录
// @Tags Settlement
// @Produce json
// @Param X-Actor-FID header int true "Admin FID"
// @Param id path string true "Game ID"
// @Success 200 {object} response.Response{data=[]model.SettlementRecord}
// @Router /api/v1/admin/games/{id}/settlements [get]
func (h *SettlementHandler) Records(c *gin.Context) {
	records, err := h.svc.Ledger().Records(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, errno.Wrap(errno.ErrDatabase, "", err))
		return
	}
	response.Success(c, records)
}
