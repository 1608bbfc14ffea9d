package vectorstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChunkVector 是 pgvector 后端的存储行。
type ChunkVector struct {
	ChunkID    string          `gorm:"type:varchar(36);primaryKey"`
	DocumentID string          `gorm:"type:varchar(36);not null;index"`
	Ordinal    int             `gorm:"not null"`
	Text       string          `gorm:"type:text"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChunkVector) TableName() string {
	return "chunk_vectors"
}

// PGVector 把向量索引托管在 PostgreSQL 的 vector 列上，由数据库完成余弦排序与过滤。
type PGVector struct {
	db *gorm.DB
}

// NewPGVector 启用 vector 扩展并迁移 chunk_vectors 表。
func NewPGVector(db *gorm.DB) (*PGVector, error) {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	if err := db.AutoMigrate(&ChunkVector{}); err != nil {
		return nil, fmt.Errorf("migrate chunk_vectors: %w", err)
	}
	return &PGVector{db: db}, nil
}

func (s *PGVector) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]ChunkVector, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, ChunkVector{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Ordinal:    e.Ordinal,
			Text:       e.Text,
			Embedding:  pgvector.NewVector(e.Vector),
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(rows, 100).Error
}

func (s *PGVector) Search(ctx context.Context, q Query) ([]Match, error) {
	if len(q.DocumentIDs) == 0 || len(q.Vector) == 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(q.Vector)
	count := q.Count
	if count <= 0 {
		count = 8
	}
	var candidates []Match
	err := s.db.WithContext(ctx).Raw(`
		SELECT chunk_id, document_id, ordinal, text, 1 - (embedding <=> ?) AS score
		FROM chunk_vectors
		WHERE document_id IN ? AND 1 - (embedding <=> ?) >= ?
		ORDER BY score DESC, ordinal ASC
		LIMIT ?`, vec, q.DocumentIDs, vec, q.Threshold, count).
		Scan(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	return Finalize(candidates, q), nil
}

// DeleteByDocumentIDs 单条 DELETE 语句在事务内完成，并发检索看到的是删除前或删除后的快照。
func (s *PGVector) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("document_id IN ?", documentIDs).Delete(&ChunkVector{}).Error
}
