package ai

import "context"

// LLMClient 记忆管线对 LLM 的最小依赖面
// 分类/分组/路由/摘要四个提示词调用点都只需要同步文本补全
type LLMClient interface {
	// Query 使用默认模型执行一次同步补全
	Query(ctx context.Context, prompt string) (string, error)

	// QueryModel 指定模型执行一次同步补全
	QueryModel(ctx context.Context, prompt, model string) (string, error)

	// Name 返回客户端名称（如 "openai"）
	Name() string
}
