package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"settlement-core/internal/handler/response"
	"settlement-core/pkg/errno"
	"settlement-core/pkg/validator"
)

// bindJSON 绑定失败时直接写响应, 返回 false
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, errno.New(errno.ErrBind, validator.GetErrorMsg(err)))
		return false
	}
	return true
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, errno.New(errno.ErrValidation, "invalid "+name))
		return 0, false
	}
	return id, true
}
