// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/middleware"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/pkg/log"
)

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// statusFor 把业务错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidArgument), errors.Is(err, model.ErrNoDocuments):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrProviderTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrGeneration), errors.Is(err, model.ErrEmbeddingProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail 写出 {code, message, data} 错误响应。5xx 错误只返回固定文案，细节写入日志。
func fail(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[%s] %s: %v", c.FullPath(), message, err)
	} else {
		message = err.Error()
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// requireUser 取出当前用户 id；未认证时写出 401 并返回 false。
func requireUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "未认证", "data": nil})
	}
	return userID, ok
}
