// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/repository"
)

// ConversationService 定义了对话历史读取的接口。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, notebookID string, userID uint) ([]model.ChatMessage, error)
}

type conversationService struct {
	notebookRepo repository.NotebookRepository
	chatRepo     repository.ChatRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(notebookRepo repository.NotebookRepository, chatRepo repository.ChatRepository) ConversationService {
	return &conversationService{notebookRepo: notebookRepo, chatRepo: chatRepo}
}

// GetConversationHistory 按创建时间顺序返回用户在笔记本中的全部消息。
func (s *conversationService) GetConversationHistory(ctx context.Context, notebookID string, userID uint) ([]model.ChatMessage, error) {
	if _, err := findOwnedNotebook(ctx, s.notebookRepo, notebookID, userID); err != nil {
		return nil, err
	}
	return s.chatRepo.List(ctx, notebookID, userID)
}
