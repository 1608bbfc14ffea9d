// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/storage"
	"smart-notebook-go/pkg/tasks"
)

// supportedTypes 是可以被提取并向量化的文件类型。
var supportedTypes = map[string]string{
	".pdf":      "PDF文档",
	".doc":      "Word文档",
	".docx":     "Word文档",
	".xls":      "Excel表格",
	".xlsx":     "Excel表格",
	".ppt":      "PowerPoint演示文稿",
	".pptx":     "PowerPoint演示文稿",
	".txt":      "文本文件",
	".md":       "Markdown文档",
	".markdown": "Markdown文档",
	".csv":      "CSV表格",
	".json":     "JSON文件",
	".html":     "网页",
	".rtf":      "RTF文档",
}

// IndexTaskProducer 投递文档索引任务。
type IndexTaskProducer interface {
	ProduceIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error
}

// UploadRequest 是一次文件上传。ExtractedText 为客户端已提取的文本，可为空。
type UploadRequest struct {
	NotebookID    string
	UserID        uint
	FileName      string
	ContentType   string
	Data          []byte
	ExtractedText string
}

// UploadService 接口定义了文件上传相关的业务操作。
type UploadService interface {
	Upload(ctx context.Context, req UploadRequest) (*model.Document, error)
	GetSupportedFileTypes() map[string]interface{}
}

type uploadService struct {
	notebookRepo repository.NotebookRepository
	docRepo      repository.DocumentRepository
	blobs        storage.Storage
	producer     IndexTaskProducer
	maxBytes     int64
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(notebookRepo repository.NotebookRepository, docRepo repository.DocumentRepository, blobs storage.Storage, producer IndexTaskProducer, maxBytes int64) UploadService {
	return &uploadService{
		notebookRepo: notebookRepo,
		docRepo:      docRepo,
		blobs:        blobs,
		producer:     producer,
		maxBytes:     maxBytes,
	}
}

// Upload 保存原始文件，创建 unprocessed 状态的文档记录，并投递索引任务。
func (s *uploadService) Upload(ctx context.Context, req UploadRequest) (*model.Document, error) {
	log.Infof("[Upload] 开始上传文件, 笔记本: %s, 文件: %s, 大小: %d, 用户ID: %d", req.NotebookID, req.FileName, len(req.Data), req.UserID)
	if _, err := findOwnedNotebook(ctx, s.notebookRepo, req.NotebookID, req.UserID); err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		log.Warnf("[Upload] 拒绝上传: %v", err)
		return nil, err
	}

	doc := &model.Document{
		ID:         uuid.NewString(),
		NotebookID: req.NotebookID,
		UserID:     req.UserID,
		FileName:   filepath.Base(req.FileName),
		MediaType:  req.ContentType,
		Size:       int64(len(req.Data)),
		Status:     model.DocumentStatusUnprocessed,
	}
	doc.StoragePath = fmt.Sprintf("%d/%s/%s/%s", req.UserID, req.NotebookID, doc.ID, doc.FileName)

	// 1. 原始文件写入对象存储
	if err := s.blobs.Put(ctx, doc.StoragePath, req.Data, req.ContentType); err != nil {
		log.Errorf("[Upload] 上传文件到对象存储失败, path: %s, error: %v", doc.StoragePath, err)
		return nil, err
	}

	// 2. 客户端提取的文本单独保存，重新索引时仍可复用
	if strings.TrimSpace(req.ExtractedText) != "" {
		doc.TextPath = doc.StoragePath + ".txt"
		if err := s.blobs.Put(ctx, doc.TextPath, []byte(req.ExtractedText), "text/plain; charset=utf-8"); err != nil {
			log.Errorf("[Upload] 保存提取文本失败, path: %s, error: %v", doc.TextPath, err)
			s.cleanup(ctx, doc.StoragePath)
			return nil, err
		}
	}

	// 3. 创建文档记录
	if err := s.docRepo.Create(ctx, doc); err != nil {
		log.Errorf("[Upload] 创建文档记录失败, error: %v", err)
		s.cleanup(ctx, doc.BlobPaths()...)
		return nil, err
	}

	// 4. 投递索引任务
	task := tasks.DocumentIndexTask{DocumentID: doc.ID, NotebookID: doc.NotebookID, UserID: doc.UserID}
	if err := s.producer.ProduceIndexTask(ctx, task); err != nil {
		log.Errorf("[Upload] 发送索引任务到Kafka失败, DocumentID: %s, error: %v", doc.ID, err)
		msg := "failed to enqueue indexing task"
		if uerr := s.docRepo.UpdateStatus(context.WithoutCancel(ctx), doc.ID, model.DocumentStatusFailed, msg); uerr != nil {
			log.Errorf("[Upload] 更新文档状态失败: %v", uerr)
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	log.Infof("[Upload] 文件上传完成, 索引任务已投递, DocumentID: %s", doc.ID)
	return doc, nil
}

func (s *uploadService) validate(req UploadRequest) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("file %q is empty: %w", req.FileName, model.ErrInvalidArgument)
	}
	if s.maxBytes > 0 && int64(len(req.Data)) > s.maxBytes {
		return fmt.Errorf("file %q exceeds %d bytes: %w", req.FileName, s.maxBytes, model.ErrInvalidArgument)
	}
	if _, ok := supportedTypes[strings.ToLower(filepath.Ext(req.FileName))]; !ok {
		return fmt.Errorf("unsupported file type for %s: %w", req.FileName, model.ErrInvalidArgument)
	}
	return nil
}

func (s *uploadService) cleanup(ctx context.Context, paths ...string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), paths); err != nil {
		log.Warnf("[Upload] 清理对象存储失败, paths: %v, error: %v", paths, err)
	}
}

// GetSupportedFileTypes 返回系统支持的文件类型。
func (s *uploadService) GetSupportedFileTypes() map[string]interface{} {
	extensions := make([]string, 0, len(supportedTypes))
	uniqueTypes := make(map[string]struct{})
	types := make([]string, 0, len(supportedTypes))
	for ext, t := range supportedTypes {
		extensions = append(extensions, ext)
		if _, exists := uniqueTypes[t]; !exists {
			uniqueTypes[t] = struct{}{}
			types = append(types, t)
		}
	}
	sort.Strings(extensions)
	sort.Strings(types)

	return map[string]interface{}{
		"supportedExtensions": extensions,
		"supportedTypes":      types,
		"description":         "系统支持的文档类型文件，这些文件可以被解析并进行向量化处理",
		"maxBytes":            s.maxBytes,
	}
}
