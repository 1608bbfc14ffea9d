package handler

import (
	"github.com/gin-gonic/gin"

	"smart-notebook-go/internal/service"
)

// ConversationHandler 负责处理与对话历史相关的 API 请求。
type ConversationHandler struct {
	conversationService service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(conversationService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// GetConversations 返回笔记本的完整对话历史（按时间正序）。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	history, err := h.conversationService.GetConversationHistory(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		fail(c, err, "获取对话历史失败")
		return
	}
	success(c, history)
}
