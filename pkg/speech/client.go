// Package speech 提供文本转语音能力，输出 WAV 音频。
package speech

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/provider"
)

// Client 定义了语音合成能力。返回值总是 WAV 格式。
type Client interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type openAISpeechClient struct {
	cfg    config.SpeechConfig
	client *openai.Client
	limits provider.Limits
}

// NewClient 创建语音合成客户端。请求 pcm 输出，再在本地包装为 WAV。
func NewClient(cfg config.SpeechConfig, limits provider.Limits) Client {
	return &openAISpeechClient{
		cfg:    cfg,
		client: provider.NewOpenAIClient(cfg.APIKey, cfg.BaseURL),
		limits: limits,
	}
}

func (c *openAISpeechClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = c.cfg.Voice
	}
	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	}
	audio, err := provider.Call(ctx, c.limits, "speech", c.cfg.Model, model.ErrGeneration,
		func(ctx context.Context) ([]byte, error) {
			resp, err := c.client.CreateSpeech(ctx, req)
			if err != nil {
				return nil, err
			}
			defer resp.Close()
			return io.ReadAll(resp)
		})
	if err != nil {
		log.Errorf("[SpeechClient] 语音合成失败, voice: %s, error: %v", voice, err)
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech api returned no audio: %w", model.ErrGeneration)
	}
	return WrapPCM(audio, c.cfg.SampleRate), nil
}
