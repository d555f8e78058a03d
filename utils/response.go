package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 协议响应状态
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrorBody 协议错误体：{status:"error", reason, details}
type ErrorBody struct {
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse 成功响应（扁平字段，自动补 status=ok）
func SuccessResponse(c *gin.Context, fields gin.H) {
	body := gin.H{"status": StatusOK}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// DataResponse 成功响应（带列表/对象数据）
func DataResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"status": StatusOK, "data": data})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, httpStatus int, reason, details string) {
	c.JSON(httpStatus, ErrorBody{
		Status:  StatusError,
		Reason:  reason,
		Details: details,
	})
}

// 常用错误响应快捷方法

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, reason, details string) {
	ErrorResponse(c, http.StatusBadRequest, reason, details)
}

// Unauthorized 401 未授权
func Unauthorized(c *gin.Context, details string) {
	ErrorResponse(c, http.StatusUnauthorized, "unauthorized", details)
}

// Forbidden 403 禁止访问
func Forbidden(c *gin.Context, reason, details string) {
	ErrorResponse(c, http.StatusForbidden, reason, details)
}

// NotFound 404 资源不存在
func NotFound(c *gin.Context, reason, details string) {
	ErrorResponse(c, http.StatusNotFound, reason, details)
}

// Conflict 409 冲突
func Conflict(c *gin.Context, reason, details string) {
	ErrorResponse(c, http.StatusConflict, reason, details)
}

// BadGateway 502 对端调用失败
func BadGateway(c *gin.Context, reason, details string) {
	ErrorResponse(c, http.StatusBadGateway, reason, details)
}

// InternalServerError 500 服务器错误
func InternalServerError(c *gin.Context, details string) {
	ErrorResponse(c, http.StatusInternalServerError, "internal error", details)
}
