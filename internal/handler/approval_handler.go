package handler

import (
	"github.com/gin-gonic/gin"

	"settlement-core/internal/auth"
	"settlement-core/internal/handler/request"
	"settlement-core/internal/handler/response"
	"settlement-core/internal/service/approval"
)

type ApprovalHandler struct {
	coord *approval.Coordinator
}

func NewApprovalHandler(coord *approval.Coordinator) *ApprovalHandler {
	return &ApprovalHandler{coord: coord}
}

// Submit 提交请求
// @Summary 提交待审批请求
// @Tags Requests
// @Accept json
// @Produce json
// @Param X-Actor-FID header int true "Requester FID"
// @Param request body request.SubmitRequest true "Request"
// @Success 200 {object} response.Response{data=model.ApprovalRequest}
// @Router /api/v1/requests [post]
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req request.SubmitRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.coord.Submit(c.Request.Context(), req.Kind, auth.ActorFID(c), req.Payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, created)
}

// List 按状态列出请求
// @Summary 审批请求列表
// @Tags Admin
// @Produce json
// @Param X-Actor-FID header int true "Admin FID"
// @Param status query string false "pending | approved | rejected"
// @Success 200 {object} response.Response{data=[]model.ApprovalRequest}
// @Router /api/v1/admin/requests [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	list, err := h.coord.List(c.Request.Context(), c.Query("status"), 50)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Approve 审批通过并创建资源
// @Summary 审批通过
// @Description 同一管理员对已完成请求的重试返回原资源 ID
// @Tags Admin
// @Produce json
// @Param X-Actor-FID header int true "Admin FID"
// @Param id path int true "Request ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/admin/requests/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	resourceID, err := h.coord.Approve(c.Request.Context(), id, auth.ActorFID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"resource_id": resourceID})
}

// Reject 驳回请求
// @Summary 驳回
// @Tags Admin
// @Accept json
// @Produce json
// @Param X-Actor-FID header int true "Admin FID"
// @Param id path int true "Request ID"
// @Param request body request.RejectRequest false "Reason"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/admin/requests/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req request.RejectRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if err := h.coord.Reject(c.Request.Context(), id, auth.ActorFID(c), req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"request_id": id, "status": "rejected"})
}
