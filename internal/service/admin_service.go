// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"sort"

	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/log"
)

// warmBatchSize 是预热内存索引时每批读取的向量行数。
const warmBatchSize = 500

// SweepReport 是一次孤儿数据清理的结果。
type SweepReport struct {
	OrphanDocumentIDs []string `json:"orphanDocumentIds"`
	Count             int      `json:"count"`
}

// AdminService 接口定义了运维相关的操作。
type AdminService interface {
	// Sweep 删除文档已不存在的向量索引条目、向量行和分块。
	Sweep(ctx context.Context) (*SweepReport, error)
	// WarmIndex 把持久化的向量行重新写入向量索引，返回写入条数。
	WarmIndex(ctx context.Context) (int, error)
}

type adminService struct {
	chunkRepo repository.ChunkRepository
	embRepo   repository.EmbeddingRepository
	store     vectorstore.Store
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(chunkRepo repository.ChunkRepository, embRepo repository.EmbeddingRepository, store vectorstore.Store) AdminService {
	return &adminService{chunkRepo: chunkRepo, embRepo: embRepo, store: store}
}

func (s *adminService) Sweep(ctx context.Context) (*SweepReport, error) {
	log.Info("[Sweep] 开始清理孤儿数据")
	fromEmbeddings, err := s.embRepo.OrphanDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find orphan embeddings: %w", err)
	}
	fromChunks, err := s.chunkRepo.OrphanDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find orphan chunks: %w", err)
	}

	seen := make(map[string]struct{})
	ids := []string{}
	for _, id := range append(fromEmbeddings, fromChunks...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		log.Info("[Sweep] 没有发现孤儿数据")
		return &SweepReport{OrphanDocumentIDs: ids}, nil
	}

	// 与删除流程相同的顺序：先向量索引，再关系数据
	if err := s.store.DeleteByDocumentIDs(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete orphan vectors: %w", err)
	}
	if err := s.embRepo.DeleteByDocumentIDs(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete orphan embeddings: %w", err)
	}
	if err := s.chunkRepo.DeleteByDocumentIDs(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete orphan chunks: %w", err)
	}
	log.Infow("[Sweep] 孤儿数据清理完成", "documents", len(ids))
	return &SweepReport{OrphanDocumentIDs: ids, Count: len(ids)}, nil
}

func (s *adminService) WarmIndex(ctx context.Context) (int, error) {
	total := 0
	err := s.embRepo.Each(ctx, warmBatchSize, func(records []model.EmbeddingRecord) error {
		entries := make([]vectorstore.Entry, 0, len(records))
		for _, r := range records {
			if len(r.Vector) == 0 {
				continue
			}
			entries = append(entries, vectorstore.Entry{
				ChunkID:    r.ChunkID,
				DocumentID: r.DocumentID,
				Ordinal:    r.Ordinal,
				Text:       r.ChunkText,
				Vector:     r.Vector,
			})
		}
		if err := s.store.Upsert(ctx, entries); err != nil {
			return err
		}
		total += len(entries)
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("failed to warm vector index: %w", err)
	}
	log.Infof("[WarmIndex] 向量索引预热完成, 条目数: %d", total)
	return total, nil
}
