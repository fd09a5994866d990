package gardener

import (
	"context"
	"encoding/json"
	"fmt"

	"hmlr/internal/ai"
	"hmlr/internal/memory"
	"hmlr/internal/models"

	"go.uber.org/zap"
)

// ClassificationResult 三启发式分类结果
// 每条输入事实恰好落在三个桶之一;解析/LLM 失败时全部落入 DossierFacts
type ClassificationResult struct {
	GlobalTags   []string             `json:"global_tags"`
	SectionRules []models.SectionRule `json:"section_rules"`
	DossierFacts []string             `json:"dossier_facts"`
}

// FactClassifier 粘性标签分类器
// 用一次 LLM 调用把块内事实分为全局标签、分段规则与叙事事实
type FactClassifier struct {
	llm    ai.LLMClient
	logger *zap.Logger
}

// NewFactClassifier 创建分类器
func NewFactClassifier(llm ai.LLMClient, logger *zap.Logger) *FactClassifier {
	return &FactClassifier{llm: llm, logger: logger}
}

// Classify 对一组事实做三启发式分类
// 标签是尽力而为的优化:任何失败都退化为"全部按叙事事实处理",绝不丢事实
func (c *FactClassifier) Classify(ctx context.Context, facts []models.Fact) *ClassificationResult {
	if len(facts) == 0 {
		return &ClassificationResult{}
	}

	factLines := make([]string, len(facts))
	for i, f := range facts {
		factLines[i] = fmt.Sprintf("[turn %s] %s", f.TurnID, f.Text())
	}

	raw, err := c.llm.Query(ctx, buildClassifyPrompt(factLines))
	if err != nil {
		c.logger.Warn("分类 LLM 调用失败,全部事实退化为叙事事实",
			zap.Int("facts", len(facts)),
			zap.Error(err),
		)
		return c.fallback(facts)
	}

	result, err := parseClassification(raw)
	if err != nil {
		c.logger.Warn("分类响应解析失败,全部事实退化为叙事事实",
			zap.Int("facts", len(facts)),
			zap.Error(err),
		)
		return c.fallback(facts)
	}

	return result
}

// fallback 整组退化:每条事实原文进入叙事桶
func (c *FactClassifier) fallback(facts []models.Fact) *ClassificationResult {
	dossierFacts := make([]string, len(facts))
	for i, f := range facts {
		dossierFacts[i] = f.Text()
	}
	return &ClassificationResult{DossierFacts: dossierFacts}
}

// parseClassification 宽松解析分类响应
// 缺失的键按空集合处理,不视为错误
func parseClassification(raw string) (*ClassificationResult, error) {
	obj, err := memory.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var result ClassificationResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, fmt.Errorf("解析分类 JSON 失败: %w", err)
	}

	if result.GlobalTags == nil {
		result.GlobalTags = []string{}
	}
	if result.SectionRules == nil {
		result.SectionRules = []models.SectionRule{}
	}
	if result.DossierFacts == nil {
		result.DossierFacts = []string{}
	}

	return &result, nil
}
