package model

import (
	"time"

	"gorm.io/datatypes"
)

// Chunk 是文档提取文本中的一段连续切片，创建后不可变。
type Chunk struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID string    `gorm:"type:varchar(36);not null;index:idx_chunk_doc_ordinal,priority:1" json:"documentId"`
	Ordinal    int       `gorm:"not null;index:idx_chunk_doc_ordinal,priority:2" json:"ordinal"`
	Content    string    `gorm:"type:text" json:"content"`
	CharLength int       `gorm:"not null" json:"charLength"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chunk) TableName() string {
	return "chunks"
}

// EmbeddingRecord 将一个 Chunk 与其向量关联。
// Summary / Tags 是所属文档摘要的冗余副本，每次（重新）索引时刷新。
type EmbeddingRecord struct {
	ID         string                      `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID string                      `gorm:"type:varchar(36);not null;index" json:"documentId"`
	ChunkID    string                      `gorm:"type:varchar(36);not null;index" json:"chunkId"`
	Ordinal    int                         `gorm:"not null" json:"ordinal"`
	ChunkText  string                      `gorm:"type:text" json:"chunkText"`
	Vector     []float32                   `gorm:"type:text;serializer:json" json:"-"`
	Model      string                      `gorm:"type:varchar(100)" json:"model"`
	Summary    string                      `gorm:"type:text" json:"summary,omitempty"`
	Tags       datatypes.JSONSlice[string] `json:"tags,omitempty"`
	CreatedAt  time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (EmbeddingRecord) TableName() string {
	return "embeddings"
}
