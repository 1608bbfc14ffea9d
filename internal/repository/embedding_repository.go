package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"smart-notebook-go/internal/model"
)

// EmbeddingRepository 定义了对 embeddings 表的数据操作接口。
type EmbeddingRepository interface {
	BatchCreate(ctx context.Context, records []model.EmbeddingRecord) error
	// FindByDocumentIDs 按文档、序号顺序返回向量行；limit <= 0 表示不限制。
	FindByDocumentIDs(ctx context.Context, documentIDs []string, limit int) ([]model.EmbeddingRecord, error)
	// CountByDocumentIDs 统计给定文档的向量行数。
	CountByDocumentIDs(ctx context.Context, documentIDs []string) (int64, error)
	// RefreshSummary 把文档的摘要与标签同步到它的所有向量行上。
	RefreshSummary(ctx context.Context, documentID, summary string, tags []string) error
	DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error
	// Each 分批遍历全部向量行，用于启动时预热内存索引。
	Each(ctx context.Context, batchSize int, fn func([]model.EmbeddingRecord) error) error
	OrphanDocumentIDs(ctx context.Context) ([]string, error)
}

type embeddingRepository struct {
	db *gorm.DB
}

// NewEmbeddingRepository 创建一个新的 EmbeddingRepository 实例。
func NewEmbeddingRepository(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

// BatchCreate 批量创建向量记录。
func (r *embeddingRepository) BatchCreate(ctx context.Context, records []model.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(records, 100).Error
}

func (r *embeddingRepository) FindByDocumentIDs(ctx context.Context, documentIDs []string, limit int) ([]model.EmbeddingRecord, error) {
	var records []model.EmbeddingRecord
	if len(documentIDs) == 0 {
		return records, nil
	}
	q := r.db.WithContext(ctx).Where("document_id IN ?", documentIDs).Order("document_id ASC").Order("ordinal ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&records).Error
	return records, err
}

func (r *embeddingRepository) CountByDocumentIDs(ctx context.Context, documentIDs []string) (int64, error) {
	var n int64
	if len(documentIDs) == 0 {
		return 0, nil
	}
	err := r.db.WithContext(ctx).Model(&model.EmbeddingRecord{}).Where("document_id IN ?", documentIDs).Count(&n).Error
	return n, err
}

func (r *embeddingRepository) RefreshSummary(ctx context.Context, documentID, summary string, tags []string) error {
	return r.db.WithContext(ctx).Model(&model.EmbeddingRecord{}).Where("document_id = ?", documentID).Updates(map[string]interface{}{
		"summary": summary,
		"tags":    datatypes.NewJSONSlice(tags),
	}).Error
}

func (r *embeddingRepository) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("document_id IN ?", documentIDs).Delete(&model.EmbeddingRecord{}).Error
}

func (r *embeddingRepository) Each(ctx context.Context, batchSize int, fn func([]model.EmbeddingRecord) error) error {
	var batch []model.EmbeddingRecord
	return r.db.WithContext(ctx).Order("id ASC").FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	}).Error
}

func (r *embeddingRepository) OrphanDocumentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.EmbeddingRecord{}).
		Distinct("document_id").
		Where("document_id NOT IN (?)", r.db.Model(&model.Document{}).Select("id")).
		Pluck("document_id", &ids).Error
	return ids, err
}
