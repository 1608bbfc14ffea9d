package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Citation 指向支撑回答的具体分块，随 ChatMessage 一起持久化。
type Citation struct {
	ChunkID    string `json:"chunkId"`
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	Excerpt    string `json:"excerpt"`
}

// ChatMessage 是笔记本内某个用户的一条对话消息，创建后不可变。
type ChatMessage struct {
	ID         string                        `gorm:"type:varchar(36);primaryKey" json:"id"`
	NotebookID string                        `gorm:"type:varchar(36);not null;index:idx_chat_notebook_user,priority:1" json:"notebookId"`
	UserID     uint                          `gorm:"not null;index:idx_chat_notebook_user,priority:2" json:"userId"`
	Role       string                        `gorm:"type:varchar(16);not null" json:"role"`
	Content    string                        `gorm:"type:text;not null" json:"content"`
	Citations  datatypes.JSONSlice[Citation] `json:"citations"`
	Failed     bool                          `gorm:"not null;default:false" json:"failed"`
	CreatedAt  time.Time                     `gorm:"index" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatMessage) TableName() string {
	return "chat_messages"
}
