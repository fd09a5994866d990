package vector

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbeddingProvider OpenAI向量化服务提供者
type OpenAIEmbeddingProvider struct {
	client *openai.Client
	model  string // 默认使用 text-embedding-3-small
}

// NewOpenAIEmbeddingProvider 创建OpenAI向量化提供者
func NewOpenAIEmbeddingProvider(apiKey, baseURL, model string) *OpenAIEmbeddingProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	// 如果未指定模型,使用默认模型
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbeddingProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Embed 将文本转换为向量
func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("文本不能为空")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("调用OpenAI Embeddings API失败: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("OpenAI API返回空向量")
	}

	return resp.Data[0].Embedding, nil
}

// EmbedBatch 批量向量化文本
// OpenAI API 限制每次请求最多2048个输入,超过时分批处理
func (p *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const batchSize = 2048
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := p.embedBatchInternal(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("批量向量化失败(batch %d-%d): %w", i, end, err)
		}

		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchInternal 内部批量向量化方法
func (p *OpenAIEmbeddingProvider) embedBatchInternal(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("调用OpenAI Embeddings API失败: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI API返回向量数量不匹配: 期望%d, 实际%d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}

	return embeddings, nil
}

// GetModel 返回嵌入模型标识
func (p *OpenAIEmbeddingProvider) GetModel() string {
	return p.model
}

// GetProviderName 返回提供者名称
func (p *OpenAIEmbeddingProvider) GetProviderName() string {
	return "openai"
}
