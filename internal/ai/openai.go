package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hmlr/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI 兼容接入点的 LLMClient 实现
// 通过 BaseURL 可接入任意 OpenAI 协议兼容的服务
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
}

// NewOpenAIClient 创建 OpenAI 客户端
func NewOpenAIClient(cfg config.OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key 不能为空")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.ChatModel
	if model == "" {
		model = openai.GPT4oMini
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: model,
		maxRetries:   maxRetries,
	}, nil
}

// Query 使用默认模型执行一次同步补全
func (c *OpenAIClient) Query(ctx context.Context, prompt string) (string, error) {
	return c.QueryModel(ctx, prompt, c.defaultModel)
}

// QueryModel 指定模型执行一次同步补全
func (c *OpenAIClient) QueryModel(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	// 调用 API（带重试）
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		// 判断是否可重试
		if !isRetryableError(err) {
			break
		}

		// 指数退避
		if i < c.maxRetries {
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	if err != nil {
		return "", fmt.Errorf("调用补全 API 失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("API 返回空响应")
	}

	return resp.Choices[0].Message.Content, nil
}

// Name 返回客户端名称
func (c *OpenAIClient) Name() string {
	return "openai"
}

// isRetryableError 判断错误是否值得重试(限流/服务端错误)
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	// 网络层错误按可重试处理
	msg := err.Error()
	return strings.Contains(msg, "connection") || strings.Contains(msg, "timeout")
}
