package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/pkg/provider"
)

// Image 是生成的图片。
type Image struct {
	Data     []byte
	MimeType string
}

// ImageClient 定义了图片生成能力。
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt string) (Image, error)
}

type openAIImageClient struct {
	cfg    config.ImageConfig
	client *openai.Client
	limits provider.Limits
}

// NewImageClient 创建图片生成客户端。
func NewImageClient(cfg config.ImageConfig, limits provider.Limits) ImageClient {
	return &openAIImageClient{
		cfg:    cfg,
		client: provider.NewOpenAIClient(cfg.APIKey, cfg.BaseURL),
		limits: limits,
	}
}

func (c *openAIImageClient) GenerateImage(ctx context.Context, prompt string) (Image, error) {
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.cfg.Model,
		N:              1,
		Size:           c.cfg.Size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}
	resp, err := provider.Call(ctx, c.limits, "image", c.cfg.Model, model.ErrGeneration,
		func(ctx context.Context) (openai.ImageResponse, error) {
			return c.client.CreateImage(ctx, req)
		})
	if err != nil {
		return Image{}, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return Image{}, fmt.Errorf("image api returned no image data: %w", model.ErrGeneration)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return Image{}, fmt.Errorf("decode image payload: %v: %w", err, model.ErrGeneration)
	}
	return Image{Data: data, MimeType: http.DetectContentType(data)}, nil
}
