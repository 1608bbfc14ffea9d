package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/middleware"
	"smart-notebook-go/pkg/token"
)

// UserHandler 返回当前登录用户的信息。账号本身由外部认证服务管理。
type UserHandler struct{}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Me 从 token 的声明中取出用户信息。
func (h *UserHandler) Me(c *gin.Context) {
	claims, ok := c.Get(middleware.ContextClaims)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "未认证", "data": nil})
		return
	}
	cc := claims.(*token.CustomClaims)
	success(c, gin.H{"id": cc.UserID, "username": cc.Username, "role": cc.Role})
}
