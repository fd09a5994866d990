package gardener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hmlr/internal/ai"
	"hmlr/internal/memory"

	"go.uber.org/zap"
)

// GroupInput 待分组的事实及其来源元数据
type GroupInput struct {
	Text      string
	Key       string
	Timestamp time.Time
	TurnID    string
}

// FactGroup 一个带标签的主题簇,时间戳取簇内最早事实
type FactGroup struct {
	Label     string
	Facts     []string
	Timestamp time.Time
}

// fallbackGroupLabel 分组失败时的兜底簇标签
const fallbackGroupLabel = "General Facts"

// SemanticGrouper 语义分组器
// 一次 LLM 调用把叙事事实聚成若干主题簇,每簇之后成为一个事实包
type SemanticGrouper struct {
	llm    ai.LLMClient
	logger *zap.Logger
}

// NewSemanticGrouper 创建分组器
func NewSemanticGrouper(llm ai.LLMClient, logger *zap.Logger) *SemanticGrouper {
	return &SemanticGrouper{llm: llm, logger: logger}
}

// Group 对事实做语义分组
// 任何失败都塌缩为单个 "General Facts" 簇,保证没有事实被丢弃
func (g *SemanticGrouper) Group(ctx context.Context, facts []GroupInput) []FactGroup {
	if len(facts) == 0 {
		return nil
	}

	factLines := make([]string, len(facts))
	for i, f := range facts {
		factLines[i] = f.Text
	}

	raw, err := g.llm.Query(ctx, buildGroupPrompt(factLines))
	if err != nil {
		g.logger.Warn("分组 LLM 调用失败,塌缩为单一兜底簇",
			zap.Int("facts", len(facts)),
			zap.Error(err),
		)
		return g.fallback(facts)
	}

	groups, err := parseGroups(raw)
	if err != nil || len(groups) == 0 {
		g.logger.Warn("分组响应解析失败,塌缩为单一兜底簇",
			zap.Int("facts", len(facts)),
			zap.Error(err),
		)
		return g.fallback(facts)
	}

	// 簇时间戳取簇内最早成员;成员按文本线性回配输入
	for i := range groups {
		groups[i].Timestamp = earliestTimestamp(groups[i].Facts, facts)
	}

	return groups
}

// fallback 塌缩为单簇,时间戳取第一条事实(缺失时取当前时间)
func (g *SemanticGrouper) fallback(facts []GroupInput) []FactGroup {
	ts := facts[0].Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	all := make([]string, len(facts))
	for i, f := range facts {
		all[i] = f.Text
	}

	return []FactGroup{{
		Label:     fallbackGroupLabel,
		Facts:     all,
		Timestamp: ts,
	}}
}

// parseGroups 宽松解析分组响应中的第一个顶层 JSON 数组
func parseGroups(raw string) ([]FactGroup, error) {
	arr, err := memory.ExtractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		Label string   `json:"label"`
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(arr), &payload); err != nil {
		return nil, fmt.Errorf("解析分组 JSON 失败: %w", err)
	}

	groups := make([]FactGroup, 0, len(payload))
	for _, p := range payload {
		if len(p.Facts) == 0 {
			continue
		}
		label := p.Label
		if label == "" {
			label = fallbackGroupLabel
		}
		groups = append(groups, FactGroup{Label: label, Facts: p.Facts})
	}

	return groups, nil
}

// earliestTimestamp 取簇内成员在输入中的最早时间戳
// 成员与输入按文本相等回配;一个都配不上时退回第一条输入的时间
func earliestTimestamp(members []string, inputs []GroupInput) time.Time {
	var earliest time.Time
	for _, m := range members {
		for _, in := range inputs {
			if in.Text == m && !in.Timestamp.IsZero() {
				if earliest.IsZero() || in.Timestamp.Before(earliest) {
					earliest = in.Timestamp
				}
				break
			}
		}
	}

	if earliest.IsZero() {
		if len(inputs) > 0 && !inputs[0].Timestamp.IsZero() {
			return inputs[0].Timestamp
		}
		return time.Now()
	}
	return earliest
}
