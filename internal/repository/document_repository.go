package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"smart-notebook-go/internal/model"
)

// DocumentRepository 定义了文档记录的数据持久化操作。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id string) (*model.Document, error)
	FindByNotebookID(ctx context.Context, notebookID string) ([]model.Document, error)
	FindIDsByNotebookID(ctx context.Context, notebookID string) ([]string, error)
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, errorMessage string) error
	// MarkIndexed 记录索引的最终结果。
	MarkIndexed(ctx context.Context, id string, status model.DocumentStatus, chunkCount, failedChunks int, errorMessage string) error
	UpdateSummary(ctx context.Context, id, summary string, tags []string) error
	// DeleteCascade 在一个事务内删除文档及其分块和向量行。
	DeleteCascade(ctx context.Context, id string) error
	// ExistingIDs 返回给定 id 中仍然存在的文档 id。
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByNotebookID(ctx context.Context, notebookID string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("notebook_id = ?", notebookID).Order("created_at ASC").Order("id ASC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) FindIDsByNotebookID(ctx context.Context, notebookID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Document{}).Where("notebook_id = ?", notebookID).Order("created_at ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, errorMessage string) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"error_message": truncateMessage(errorMessage),
	}).Error
}

func (r *documentRepository) MarkIndexed(ctx context.Context, id string, status model.DocumentStatus, chunkCount, failedChunks int, errorMessage string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"chunk_count":   chunkCount,
		"failed_chunks": failedChunks,
		"error_message": truncateMessage(errorMessage),
		"processed_at":  &now,
	}).Error
}

func (r *documentRepository) UpdateSummary(ctx context.Context, id, summary string, tags []string) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"summary": summary,
		"tags":    datatypes.NewJSONSlice(tags),
	}).Error
}

func (r *documentRepository) DeleteCascade(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.EmbeddingRecord{}).Error; err != nil {
			return fmt.Errorf("delete embeddings: %w", err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		return tx.Where("id = ?", id).Delete(&model.Document{}).Error
	})
}

func (r *documentRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	var existing []string
	if len(ids) == 0 {
		return existing, nil
	}
	err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id IN ?", ids).Pluck("id", &existing).Error
	return existing, err
}

// maxErrorMessage 与 documents.error_message 列宽一致。
const maxErrorMessage = 512

func truncateMessage(msg string) string {
	if len(msg) <= maxErrorMessage {
		return msg
	}
	// 按 rune 边界截断，避免写入半个 UTF-8 字符
	cut := maxErrorMessage
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
