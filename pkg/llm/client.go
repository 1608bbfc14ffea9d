// Package llm provides a client for interacting with Large Language Models.
package llm

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

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Client defines the interface for an LLM client.
// Every error satisfies errors.Is(err, model.ErrGeneration).
type Client interface {
	// Generate 以 role-based 消息调用聊天接口，返回完整回复文本。gen 为 nil 时使用配置中的生成参数。
	Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *openai.Client
	limits provider.Limits
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig, limits provider.Limits) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: provider.NewOpenAIClient(cfg.APIKey, cfg.BaseURL),
		limits: limits,
	}
}

func (c *openAICompatibleClient) Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	// 传参优先，其次使用全局配置中的非零值
	if gen == nil {
		gen = c.defaultParams()
	}
	if gen.Temperature != nil {
		req.Temperature = float32(*gen.Temperature)
	}
	if gen.TopP != nil {
		req.TopP = float32(*gen.TopP)
	}
	if gen.MaxTokens != nil {
		req.MaxTokens = *gen.MaxTokens
	}

	resp, err := provider.Call(ctx, c.limits, "llm", c.cfg.Model, model.ErrGeneration,
		func(ctx context.Context) (openai.ChatCompletionResponse, error) {
			return c.client.CreateChatCompletion(ctx, req)
		})
	if err != nil {
		log.Errorf("[LLMClient] 调用聊天接口失败, model: %s, error: %v", c.cfg.Model, err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices: %w", model.ErrGeneration)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat api returned empty content: %w", model.ErrGeneration)
	}
	return text, nil
}

func (c *openAICompatibleClient) defaultParams() *GenerationParams {
	gen := &GenerationParams{}
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		gen.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		gen.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		gen.MaxTokens = &m
	}
	return gen
}
