// Package provider 为所有模型调用提供统一的限流、超时、指标和错误分类。
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/pkg/metrics"
)

// Limits 是一次模型调用的超时与限流设置，可在多个客户端之间共享。
type Limits struct {
	Timeout time.Duration
	limiter *rate.Limiter
}

// NewLimits 根据配置创建 Limits。RequestsPerSecond <= 0 表示不限流。
func NewLimits(cfg config.ProviderConfig) Limits {
	l := Limits{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// Call 在超时与限流约束下执行 fn，记录指标，并把错误归类到 base（例如 model.ErrGeneration）。
// 超时的错误同时满足 errors.Is(err, model.ErrProviderTimeout) 和 errors.Is(err, base)。
func Call[T any](ctx context.Context, l Limits, capability, modelName string, base error, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("%s rate limiter: %w", capability, errors.Join(base, err))
		}
	}

	callCtx := ctx
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := fn(callCtx)
	metrics.ProviderRequestDuration.WithLabelValues(capability, modelName).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			metrics.ProviderRequestsTotal.WithLabelValues(capability, modelName, "timeout").Inc()
			return zero, fmt.Errorf("%s call exceeded %s: %w", capability, l.Timeout, errors.Join(model.ErrProviderTimeout, base))
		}
		metrics.ProviderRequestsTotal.WithLabelValues(capability, modelName, "error").Inc()
		return zero, fmt.Errorf("%s: %w", Describe(err), base)
	}
	metrics.ProviderRequestsTotal.WithLabelValues(capability, modelName, "success").Inc()
	return out, nil
}

// Describe 从 OpenAI 兼容接口的错误中提取可读的描述。
func Describe(err error) string {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		var parsed struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(reqErr.Body, &parsed) == nil && parsed.Detail != "" {
			return fmt.Sprintf("provider error %d: %s", reqErr.HTTPStatusCode, parsed.Detail)
		}
		return fmt.Sprintf("provider error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("provider error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Sprintf("provider request failed: %v", err)
}

// NewOpenAIClient 创建一个 OpenAI 兼容接口的客户端。
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
