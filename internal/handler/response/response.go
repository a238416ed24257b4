package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement-core/pkg/errno"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error 业务错误: HTTP 状态码取自错误码, data 中带上失败的名次/用户/原因
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)
	c.JSON(errno.Status(err), Response{
		Code:    code,
		Message: msg,
		Data:    errno.DataOf(err),
	})
}

// Abort 中间件使用, 终止后续 handler
func Abort(c *gin.Context, status int, err error) {
	code, msg := errno.Decode(err)
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: msg,
		Data:    gin.H{},
	})
}
