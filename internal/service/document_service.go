// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"time"

	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/tasks"
)

// downloadURLExpiry 是预签名下载链接的有效期。
const downloadURLExpiry = time.Hour

// DocumentBlobs 是文档服务需要的对象存储能力。
type DocumentBlobs interface {
	Delete(ctx context.Context, paths []string) error
	PresignedURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	List(ctx context.Context, notebookID string, userID uint) ([]model.Document, error)
	Delete(ctx context.Context, documentID string, userID uint) error
	Reindex(ctx context.Context, documentID string, userID uint) (*model.Document, error)
	GenerateDownloadURL(ctx context.Context, documentID string, userID uint) (*DownloadInfoDTO, error)
}

type documentService struct {
	notebookRepo repository.NotebookRepository
	docRepo      repository.DocumentRepository
	store        vectorstore.Store
	blobs        DocumentBlobs
	producer     IndexTaskProducer
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(notebookRepo repository.NotebookRepository, docRepo repository.DocumentRepository, store vectorstore.Store, blobs DocumentBlobs, producer IndexTaskProducer) DocumentService {
	return &documentService{
		notebookRepo: notebookRepo,
		docRepo:      docRepo,
		store:        store,
		blobs:        blobs,
		producer:     producer,
	}
}

// List 返回笔记本中的全部文档。
func (s *documentService) List(ctx context.Context, notebookID string, userID uint) ([]model.Document, error) {
	if _, err := findOwnedNotebook(ctx, s.notebookRepo, notebookID, userID); err != nil {
		return nil, err
	}
	return s.docRepo.FindByNotebookID(ctx, notebookID)
}

// Delete 删除一个文档，顺序与笔记本删除一致：向量索引 → 对象存储 → 关系数据。
func (s *documentService) Delete(ctx context.Context, documentID string, userID uint) error {
	doc, err := findOwnedDocument(ctx, s.docRepo, documentID, userID)
	if err != nil {
		return err
	}
	log.Infof("[DocumentService] 开始删除文档, ID: %s, 文件: %s", doc.ID, doc.FileName)

	if err := s.store.DeleteByDocumentIDs(ctx, []string{doc.ID}); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if err := s.blobs.Delete(ctx, doc.BlobPaths()); err != nil {
		return fmt.Errorf("failed to delete blobs: %w", err)
	}
	if err := s.docRepo.DeleteCascade(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document rows: %w", err)
	}
	log.Infof("[DocumentService] 文档删除完成, ID: %s", doc.ID)
	return nil
}

// Reindex 把文档重置为 unprocessed 并重新投递索引任务。旧的分块与向量由索引流程替换。
// 正在处理的文档只有在超过 ProcessingStaleAfter 未更新时才允许重新索引。
func (s *documentService) Reindex(ctx context.Context, documentID string, userID uint) (*model.Document, error) {
	doc, err := findOwnedDocument(ctx, s.docRepo, documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc.Status == model.DocumentStatusProcessing && time.Since(doc.UpdatedAt) < model.ProcessingStaleAfter {
		return nil, fmt.Errorf("document %s is being indexed: %w", doc.ID, model.ErrInvalidArgument)
	}
	if err := s.docRepo.UpdateStatus(ctx, doc.ID, model.DocumentStatusUnprocessed, ""); err != nil {
		return nil, err
	}
	task := tasks.DocumentIndexTask{DocumentID: doc.ID, NotebookID: doc.NotebookID, UserID: doc.UserID}
	if err := s.producer.ProduceIndexTask(ctx, task); err != nil {
		log.Errorf("[DocumentService] 重新投递索引任务失败, DocumentID: %s, error: %v", doc.ID, err)
		return nil, err
	}
	log.Infof("[DocumentService] 已重新投递索引任务, DocumentID: %s", doc.ID)
	doc.Status = model.DocumentStatusUnprocessed
	doc.ErrorMessage = ""
	return doc, nil
}

// GenerateDownloadURL 生成文件的临时下载链接。
func (s *documentService) GenerateDownloadURL(ctx context.Context, documentID string, userID uint) (*DownloadInfoDTO, error) {
	doc, err := findOwnedDocument(ctx, s.docRepo, documentID, userID)
	if err != nil {
		return nil, err
	}
	url, err := s.blobs.PresignedURL(ctx, doc.StoragePath, downloadURLExpiry)
	if err != nil {
		return nil, err
	}
	return &DownloadInfoDTO{
		FileName:    doc.FileName,
		DownloadURL: url,
		FileSize:    doc.Size,
	}, nil
}
