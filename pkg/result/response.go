package result

import (
	"net/http"

	"ChatHub/consts"
	"ChatHub/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构体。
// 业务错误一律 HTTP 200 + 非 0 code，只有鉴权/限流等网关语义才使用 4xx。
type Response struct {
	Code    int32       `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	TraceId string      `json:"trace_id"`
}

// Result 返回响应
func Result(c *gin.Context, data interface{}, message string, code int32) {
	if message == "" {
		message = consts.GetMessage(code)
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
		TraceId: ctxmeta.TraceIDFromGin(c),
	})
}

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	Result(c, data, "", consts.CodeSuccess)
}

// Fail 返回失败响应
func Fail(c *gin.Context, data interface{}, code int32) {
	Result(c, data, "", code)
}

// FailWithMessage 返回失败响应并自定义消息
func FailWithMessage(c *gin.Context, data interface{}, message string, code int32) {
	Result(c, data, message, code)
}

// Abort 以指定 HTTP 状态码终止请求（鉴权失败、限流等）。
func Abort(c *gin.Context, httpStatus int, code int32) {
	c.AbortWithStatusJSON(httpStatus, Response{
		Code:    code,
		Message: consts.GetMessage(code),
		TraceId: ctxmeta.TraceIDFromGin(c),
	})
}
