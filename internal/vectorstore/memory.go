package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory 是进程内的暴力余弦检索实现，启动时由 embeddings 表预热。
// 写操作持有写锁，因此检索永远看不到删除了一半的文档。
type Memory struct {
	mu         sync.RWMutex
	dimension  int
	entries    map[string]Entry
	byDocument map[string]map[string]struct{}
}

// NewMemory 创建一个空的内存索引。
func NewMemory() *Memory {
	return &Memory{
		entries:    make(map[string]Entry),
		byDocument: make(map[string]map[string]struct{}),
	}
}

// Upsert 写入或覆盖分块向量。整个索引的向量维度必须一致。
func (s *Memory) Upsert(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("chunk %s: empty vector", e.ChunkID)
		}
		if s.dimension == 0 {
			s.dimension = len(e.Vector)
		}
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("chunk %s: vector dimension mismatch: got %d, want %d", e.ChunkID, len(e.Vector), s.dimension)
		}
	}
	for _, e := range entries {
		s.entries[e.ChunkID] = e
		ids, ok := s.byDocument[e.DocumentID]
		if !ok {
			ids = make(map[string]struct{})
			s.byDocument[e.DocumentID] = ids
		}
		ids[e.ChunkID] = struct{}{}
	}
	return nil
}

// Search 只遍历过滤集合内文档的分块。
func (s *Memory) Search(_ context.Context, q Query) ([]Match, error) {
	if len(q.DocumentIDs) == 0 || len(q.Vector) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension != 0 && len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: got %d, want %d", len(q.Vector), s.dimension)
	}

	var candidates []Match
	for _, docID := range q.DocumentIDs {
		for chunkID := range s.byDocument[docID] {
			e := s.entries[chunkID]
			candidates = append(candidates, Match{
				ChunkID:    e.ChunkID,
				DocumentID: e.DocumentID,
				Ordinal:    e.Ordinal,
				Text:       e.Text,
				Score:      Cosine(q.Vector, e.Vector),
			})
		}
	}
	return Finalize(candidates, q), nil
}

// DeleteByDocumentIDs 删除给定文档的全部向量。
func (s *Memory) DeleteByDocumentIDs(_ context.Context, documentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, docID := range documentIDs {
		for chunkID := range s.byDocument[docID] {
			delete(s.entries, chunkID)
		}
		delete(s.byDocument, docID)
	}
	return nil
}

// Len 返回索引中的向量条数。
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
