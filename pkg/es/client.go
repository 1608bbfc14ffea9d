// Package es 提供了基于 Elasticsearch dense_vector 的向量索引实现。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/log"
)

// chunkDocument 是写入 ES 的文档结构。
type chunkDocument struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text_content"`
	Vector     []float32 `json:"vector"`
}

// Store 是 vectorstore.Store 的 Elasticsearch 实现。
// 进程内的读写锁让检索不会与同进程的删除交错；删除本身带 refresh，完成后立即对检索可见。
type Store struct {
	client *elasticsearch.Client
	index  string
	mu     sync.RWMutex
}

// NewClient 根据配置创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// NewStore 创建 Store，并在索引不存在时按给定维度创建它。
func NewStore(client *elasticsearch.Client, indexName string, dims int) (*Store, error) {
	s := &Store{client: client, index: indexName}
	if err := s.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (s *Store) createIndexIfNotExists(dims int) error {
	res, err := s.client.Indices.Exists([]string{s.index})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}
	if dims <= 0 {
		return errors.New("elasticsearch index requires embedding.dimensions")
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"ordinal": { "type": "integer" },
				"text_content": { "type": "text", "index": false },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	created, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", s.index, err)
		return err
	}
	defer created.Body.Close()
	if created.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.index, created.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", s.index)
	return nil
}

// Upsert 通过一次 bulk 请求写入分块向量，以 chunk id 作为文档 id，重复写入即覆盖。
func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": s.index, "_id": e.ChunkID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(chunkDocument{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Ordinal:    e.Ordinal,
			Text:       e.Text,
			Vector:     e.Vector,
		}); err != nil {
			return err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	res, err := s.client.Bulk(&buf,
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk returned an error: %s", res.String())
	}
	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		return errors.New("elasticsearch bulk reported item errors")
	}
	return nil
}

// Search 使用带 document_id 过滤的 kNN 查询。ES 的 cosine 得分为 (1+cos)/2，这里换算回余弦值。
func (s *Store) Search(ctx context.Context, q vectorstore.Query) ([]vectorstore.Match, error) {
	if len(q.DocumentIDs) == 0 || len(q.Vector) == 0 {
		return nil, nil
	}
	count := q.Count
	if count <= 0 {
		count = 8
	}
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   q.Vector,
			"k":              count,
			"num_candidates": count * 10,
			"filter": map[string]interface{}{
				"terms": map[string]interface{}{"document_id": q.DocumentIDs},
			},
		},
		"size":    count,
		"_source": []string{"chunk_id", "document_id", "ordinal", "text_content"},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[ES] 检索返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source chunkDocument `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	matches := make([]vectorstore.Match, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		matches = append(matches, vectorstore.Match{
			ChunkID:    hit.Source.ChunkID,
			DocumentID: hit.Source.DocumentID,
			Ordinal:    hit.Source.Ordinal,
			Text:       hit.Source.Text,
			Score:      2*hit.Score - 1,
		})
	}
	return vectorstore.Finalize(matches, q), nil
}

// DeleteByDocumentIDs 使用 delete_by_query 删除文档的全部向量，并立即 refresh。
func (s *Store) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"terms": map[string]interface{}{"document_id": documentIDs},
		},
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.client.DeleteByQuery(
		[]string{s.index},
		bytes.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete_by_query failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch delete_by_query returned an error: %s", res.String())
	}
	return nil
}
