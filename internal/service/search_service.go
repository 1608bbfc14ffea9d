// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/embedding"
	"smart-notebook-go/pkg/log"
)

// RetrievedContext 是一次检索的结果：拼装好的提示词上下文与对应的引用列表。
// Citations[i] 对应上下文中的 [Source i+1]。
type RetrievedContext struct {
	PromptContext string
	Citations     []model.Citation
	Matches       []vectorstore.Match
}

// SearchService 负责查询向量化、相似度检索以及上下文拼装。
type SearchService interface {
	Search(ctx context.Context, query string, documentIDs []string) ([]vectorstore.Match, error)
	BuildContext(ctx context.Context, query string, documents []model.Document) (*RetrievedContext, error)
}

type searchService struct {
	embeddingClient embedding.Client
	store           vectorstore.Store
	threshold       float64
	topK            int
	excerptChars    int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, store vectorstore.Store, vsCfg config.VectorStoreConfig, chatCfg config.ChatConfig) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		store:           store,
		threshold:       vsCfg.Threshold,
		topK:            vsCfg.TopK,
		excerptChars:    chatCfg.ExcerptChars,
	}
}

// Search 对查询做向量化并在给定文档范围内检索。documentIDs 为空时直接返回空结果。
func (s *searchService) Search(ctx context.Context, query string, documentIDs []string) ([]vectorstore.Match, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	log.Infof("[SearchService] 开始检索, query: '%s', 文档数: %d, threshold: %.2f, topK: %d", query, len(documentIDs), s.threshold, s.topK)

	// 1. 向量化查询
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// 2. 相似度检索
	matches, err := s.store.Search(ctx, vectorstore.Query{
		Vector:      queryVector,
		Threshold:   s.threshold,
		Count:       s.topK,
		DocumentIDs: documentIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	matches = dedupeMatches(matches)
	log.Infof("[SearchService] 检索完成, 命中 %d 个分块", len(matches))
	return matches, nil
}

// BuildContext 检索并按排名顺序拼装 [Source i: filename] 上下文块及引用列表。
func (s *searchService) BuildContext(ctx context.Context, query string, documents []model.Document) (*RetrievedContext, error) {
	rc := &RetrievedContext{Citations: []model.Citation{}}
	if len(documents) == 0 {
		return rc, nil
	}

	fileNames := make(map[string]string, len(documents))
	ids := make([]string, 0, len(documents))
	for _, d := range documents {
		fileNames[d.ID] = d.FileName
		ids = append(ids, d.ID)
	}

	matches, err := s.Search(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	rc.Matches = matches

	var sb strings.Builder
	for i, m := range matches {
		fileName, ok := fileNames[m.DocumentID]
		if !ok {
			fileName = "Unknown"
		}
		fmt.Fprintf(&sb, "\n[Source %d: %s]\n%s\n", i+1, fileName, m.Text)
		rc.Citations = append(rc.Citations, model.Citation{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			FileName:   fileName,
			Excerpt:    Excerpt(m.Text, s.excerptChars),
		})
	}
	rc.PromptContext = sb.String()
	return rc, nil
}

// Excerpt 截取文本前 n 个字符，发生截断时追加省略号。
func Excerpt(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// dedupeMatches 按 ChunkID 去重，保留第一次出现（即排名最高）的结果。
func dedupeMatches(matches []vectorstore.Match) []vectorstore.Match {
	seen := make(map[string]struct{}, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if _, ok := seen[m.ChunkID]; ok {
			continue
		}
		seen[m.ChunkID] = struct{}{}
		out = append(out, m)
	}
	return out
}
