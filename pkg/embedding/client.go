// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/provider"
)

// Client defines the interface for an embedding client.
// Every error satisfies errors.Is(err, model.ErrEmbeddingProvider).
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleClient struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	limits     provider.Limits
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig, limits provider.Limits) Client {
	return &openAICompatibleClient{
		client:     provider.NewOpenAIClient(cfg.APIKey, cfg.BaseURL),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		limits:     limits,
	}
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty embedding input: %w", model.ErrEmbeddingProvider)
	}
	log.Debugf("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.model, len(text))

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          c.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	resp, err := provider.Call(ctx, c.limits, "embedding", string(c.model), model.ErrEmbeddingProvider,
		func(ctx context.Context) (openai.EmbeddingResponse, error) {
			return c.client.CreateEmbeddings(ctx, req)
		})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, fmt.Errorf("received empty embedding from api: %w", model.ErrEmbeddingProvider)
	}
	if c.dimensions > 0 && len(resp.Data[0].Embedding) != c.dimensions {
		return nil, fmt.Errorf("embedding dimension %d, want %d: %w", len(resp.Data[0].Embedding), c.dimensions, model.ErrEmbeddingProvider)
	}

	log.Debugf("[EmbeddingClient] 成功从 Embedding API 获取向量, 维度: %d", len(resp.Data[0].Embedding))
	return resp.Data[0].Embedding, nil
}
