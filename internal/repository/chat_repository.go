package repository

import (
	"context"

	"gorm.io/gorm"

	"smart-notebook-go/internal/model"
)

// ChatRepository 定义了聊天记录的操作接口。消息按 (notebook, user) 归属，按创建时间排序。
type ChatRepository interface {
	Create(ctx context.Context, msg *model.ChatMessage) error
	// Recent 返回最近 limit 条消息，按时间正序排列。
	Recent(ctx context.Context, notebookID string, userID uint, limit int) ([]model.ChatMessage, error)
	List(ctx context.Context, notebookID string, userID uint) ([]model.ChatMessage, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(ctx context.Context, msg *model.ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) Recent(ctx context.Context, notebookID string, userID uint, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if limit <= 0 {
		return messages, nil
	}
	err := r.db.WithContext(ctx).
		Where("notebook_id = ? AND user_id = ?", notebookID, userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// 倒序取出后翻转为时间正序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *chatRepository) List(ctx context.Context, notebookID string, userID uint) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("notebook_id = ? AND user_id = ?", notebookID, userID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}
