// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"smart-notebook-go/internal/model"
)

// NotebookRepository 定义了笔记本的数据持久化操作。
type NotebookRepository interface {
	Create(ctx context.Context, notebook *model.Notebook) error
	FindByID(ctx context.Context, id string) (*model.Notebook, error)
	FindByUserID(ctx context.Context, userID uint) ([]model.Notebook, error)
	// DeleteCascade 在一个事务内删除笔记本及其所有关系数据（分块、向量行、文档、聊天记录）。
	// 向量索引与对象存储中的数据需由调用方先行删除。
	DeleteCascade(ctx context.Context, id string) error
}

type notebookRepository struct {
	db *gorm.DB
}

// NewNotebookRepository 创建一个新的 NotebookRepository 实例。
func NewNotebookRepository(db *gorm.DB) NotebookRepository {
	return &notebookRepository{db: db}
}

func (r *notebookRepository) Create(ctx context.Context, notebook *model.Notebook) error {
	return r.db.WithContext(ctx).Create(notebook).Error
}

func (r *notebookRepository) FindByID(ctx context.Context, id string) (*model.Notebook, error) {
	var notebook model.Notebook
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&notebook).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("notebook %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &notebook, nil
}

func (r *notebookRepository) FindByUserID(ctx context.Context, userID uint) ([]model.Notebook, error) {
	var notebooks []model.Notebook
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&notebooks).Error
	return notebooks, err
}

func (r *notebookRepository) DeleteCascade(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docIDs := tx.Model(&model.Document{}).Select("id").Where("notebook_id = ?", id)
		if err := tx.Where("document_id IN (?)", docIDs).Delete(&model.EmbeddingRecord{}).Error; err != nil {
			return fmt.Errorf("delete embeddings: %w", err)
		}
		if err := tx.Where("document_id IN (?)", docIDs).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if err := tx.Where("notebook_id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("delete documents: %w", err)
		}
		if err := tx.Where("notebook_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("delete chat messages: %w", err)
		}
		return tx.Where("id = ?", id).Delete(&model.Notebook{}).Error
	})
}
