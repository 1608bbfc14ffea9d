package repository

import (
	"context"

	"gorm.io/gorm"

	"smart-notebook-go/internal/model"
)

// ChunkRepository 定义了对 chunks 表的数据操作接口。
type ChunkRepository interface {
	BatchCreate(ctx context.Context, chunks []model.Chunk) error
	FindByDocumentID(ctx context.Context, documentID string) ([]model.Chunk, error)
	DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error
	// OrphanDocumentIDs 返回分块所引用、但文档已不存在的 document_id。
	OrphanDocumentIDs(ctx context.Context) ([]string, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量创建分块记录。
func (r *chunkRepository) BatchCreate(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// FindByDocumentID 按序号返回文档的全部分块。
func (r *chunkRepository) FindByDocumentID(ctx context.Context, documentID string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("ordinal ASC").Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("document_id IN ?", documentIDs).Delete(&model.Chunk{}).Error
}

func (r *chunkRepository) OrphanDocumentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Distinct("document_id").
		Where("document_id NOT IN (?)", r.db.Model(&model.Document{}).Select("id")).
		Pluck("document_id", &ids).Error
	return ids, err
}
