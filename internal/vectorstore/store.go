// Package vectorstore 定义了向量索引的统一契约以及内存、pgvector 两种实现。
// Elasticsearch 实现位于 pkg/es。
package vectorstore

import (
	"context"
	"math"
	"sort"
)

// Entry 是写入索引的一条分块向量。
type Entry struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Text       string
	Vector     []float32
}

// Match 是一条检索结果，Score 为余弦相似度。
type Match struct {
	ChunkID    string  `json:"chunkId"`
	DocumentID string  `json:"documentId"`
	Ordinal    int     `json:"ordinal"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Query 描述一次相似度检索。DocumentIDs 是硬过滤条件，为空时不返回任何结果。
type Query struct {
	Vector      []float32
	Threshold   float64
	Count       int
	DocumentIDs []string
}

// Store 是向量索引的后端契约。
// Search 的结果按分数降序、同分按 Ordinal 升序，不含重复的 ChunkID，且全部属于 DocumentIDs。
// DeleteByDocumentIDs 完成后，并发的 Search 不会观察到被删除文档的部分数据。
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, q Query) ([]Match, error)
	DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error
}

// Finalize 对后端返回的候选结果做统一的后处理：
// 过滤低于阈值和不在文档集合中的结果，按 ChunkID 去重（保留最高分），排序并截断到 Count。
func Finalize(matches []Match, q Query) []Match {
	allowed := make(map[string]struct{}, len(q.DocumentIDs))
	for _, id := range q.DocumentIDs {
		allowed[id] = struct{}{}
	}

	best := make(map[string]int, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if _, ok := allowed[m.DocumentID]; !ok {
			continue
		}
		if m.Score < q.Threshold || math.IsNaN(m.Score) {
			continue
		}
		if i, seen := best[m.ChunkID]; seen {
			if m.Score > out[i].Score {
				out[i] = m
			}
			continue
		}
		best[m.ChunkID] = len(out)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if q.Count > 0 && len(out) > q.Count {
		out = out[:q.Count]
	}
	return out
}

// Cosine 计算两个向量的余弦相似度；维度不一致或零向量返回 0。
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
