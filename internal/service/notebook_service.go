// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/log"
)

// summaryTagLimit 是笔记本概览中标签的最大数量。
const summaryTagLimit = 8

// BlobDeleter 删除对象存储中的文件。
type BlobDeleter interface {
	Delete(ctx context.Context, paths []string) error
}

// NotebookService 定义了笔记本管理的业务操作。
type NotebookService interface {
	Create(ctx context.Context, userID uint, name, description string) (*model.Notebook, error)
	List(ctx context.Context, userID uint) ([]model.Notebook, error)
	Summary(ctx context.Context, notebookID string, userID uint) (*model.NotebookSummary, error)
	Delete(ctx context.Context, notebookID string, userID uint) error
}

type notebookService struct {
	notebookRepo repository.NotebookRepository
	docRepo      repository.DocumentRepository
	store        vectorstore.Store
	blobs        BlobDeleter
}

// NewNotebookService 创建一个新的 NotebookService 实例。
func NewNotebookService(notebookRepo repository.NotebookRepository, docRepo repository.DocumentRepository, store vectorstore.Store, blobs BlobDeleter) NotebookService {
	return &notebookService{
		notebookRepo: notebookRepo,
		docRepo:      docRepo,
		store:        store,
		blobs:        blobs,
	}
}

func (s *notebookService) Create(ctx context.Context, userID uint, name, description string) (*model.Notebook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("notebook name is required: %w", model.ErrInvalidArgument)
	}
	nb := &model.Notebook{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
	}
	if err := s.notebookRepo.Create(ctx, nb); err != nil {
		return nil, err
	}
	log.Infof("[NotebookService] 创建笔记本成功, ID: %s, 用户ID: %d", nb.ID, userID)
	return nb, nil
}

func (s *notebookService) List(ctx context.Context, userID uint) ([]model.Notebook, error) {
	return s.notebookRepo.FindByUserID(ctx, userID)
}

// Summary 在读取时聚合各文档的摘要与标签。
func (s *notebookService) Summary(ctx context.Context, notebookID string, userID uint) (*model.NotebookSummary, error) {
	nb, err := findOwnedNotebook(ctx, s.notebookRepo, notebookID, userID)
	if err != nil {
		return nil, err
	}
	docs, err := s.docRepo.FindByNotebookID(ctx, notebookID)
	if err != nil {
		return nil, err
	}

	summary := &model.NotebookSummary{
		Title:       nb.Name,
		Summaries:   []model.DocumentSummary{},
		SourceCount: len(docs),
	}
	var tags []string
	for _, d := range docs {
		if d.Summary != "" {
			summary.Summaries = append(summary.Summaries, model.DocumentSummary{
				DocumentID: d.ID,
				FileName:   d.FileName,
				Summary:    d.Summary,
			})
		}
		tags = append(tags, d.Tags...)
	}
	summary.Tags = uniqueTags(tags, summaryTagLimit)
	return summary, nil
}

// Delete 按顺序删除：向量索引 → 对象存储 → 关系数据。
// 中途失败时已删除的向量不会指向不存在的文档，残留数据由 sweep 清理。
func (s *notebookService) Delete(ctx context.Context, notebookID string, userID uint) error {
	if _, err := findOwnedNotebook(ctx, s.notebookRepo, notebookID, userID); err != nil {
		return err
	}
	docs, err := s.docRepo.FindByNotebookID(ctx, notebookID)
	if err != nil {
		return err
	}
	log.Infof("[NotebookService] 开始删除笔记本, ID: %s, 文档数: %d", notebookID, len(docs))

	ids := make([]string, 0, len(docs))
	var paths []string
	for i := range docs {
		ids = append(ids, docs[i].ID)
		paths = append(paths, docs[i].BlobPaths()...)
	}

	// 1. 向量索引
	if err := s.store.DeleteByDocumentIDs(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	// 2. 对象存储
	if len(paths) > 0 {
		if err := s.blobs.Delete(ctx, paths); err != nil {
			return fmt.Errorf("failed to delete blobs: %w", err)
		}
	}
	// 3. 关系数据
	if err := s.notebookRepo.DeleteCascade(ctx, notebookID); err != nil {
		return fmt.Errorf("failed to delete notebook rows: %w", err)
	}
	log.Infof("[NotebookService] 笔记本删除完成, ID: %s", notebookID)
	return nil
}

// findOwnedNotebook 读取笔记本并校验归属；不属于该用户时同样返回 ErrNotFound。
func findOwnedNotebook(ctx context.Context, repo repository.NotebookRepository, notebookID string, userID uint) (*model.Notebook, error) {
	nb, err := repo.FindByID(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if nb.UserID != userID {
		return nil, fmt.Errorf("notebook %s: %w", notebookID, model.ErrNotFound)
	}
	return nb, nil
}

// findOwnedDocument 读取文档并校验归属。
func findOwnedDocument(ctx context.Context, repo repository.DocumentRepository, documentID string, userID uint) (*model.Document, error) {
	doc, err := repo.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("document %s: %w", documentID, model.ErrNotFound)
	}
	return doc, nil
}

// uniqueTags 保持首次出现顺序去重，最多返回 limit 个。
func uniqueTags(tags []string, limit int) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
