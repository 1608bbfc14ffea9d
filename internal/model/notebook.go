// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Notebook 是文档、对话与学习产物的分组单位。
type Notebook struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Notebook) TableName() string {
	return "notebooks"
}

// DocumentSummary 是笔记本概览中单个文档的摘要。
type DocumentSummary struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	Summary    string `json:"summary"`
}

// NotebookSummary 在读取时由各文档的摘要与标签聚合而成，不单独持久化。
type NotebookSummary struct {
	Title       string            `json:"title"`
	Summaries   []DocumentSummary `json:"summaries"`
	Tags        []string          `json:"tags"`
	SourceCount int               `json:"sourceCount"`
}
