package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hmlr/internal/memory"
	"hmlr/internal/models"

	"go.uber.org/zap"
)

// untaggedBucket 无归属块的片段聚合桶
const untaggedBucket = "_untagged"

// truncationMarker 预算截断标记,追加在被截断上下文的末尾
const truncationMarker = "[Context truncated due to token limit]"

// ChunkView 完成规则注入后的检索片段
type ChunkView struct {
	ChunkID     string   `json:"chunk_id"`
	TurnID      string   `json:"turn_id"`
	Content     string   `json:"content"`
	ActiveRules []string `json:"active_rules,omitempty"`
}

// BlockContext 按块聚合的片段组,携带块级全局标签
type BlockContext struct {
	BlockID    string      `json:"block_id"`
	GlobalTags []string    `json:"global_tags,omitempty"`
	Chunks     []ChunkView `json:"chunks"`
}

// DossierContext 注入上下文的档案摘要与事实清单
type DossierContext struct {
	DossierID    string    `json:"dossier_id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Facts        []string  `json:"facts,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// AssembledContext 装配完成的上下文
type AssembledContext struct {
	Text       string           `json:"text"`
	TokensUsed int              `json:"tokens_used"`
	Truncated  bool             `json:"truncated"`
	Blocks     []BlockContext   `json:"blocks"`
	Dossiers   []DossierContext `json:"dossiers"`
}

// Store 装配器依赖的只读存储面
type Store interface {
	GetChunks(ctx context.Context, chunkIDs []string) ([]models.ConversationChunk, error)
	GetBlockMetadata(ctx context.Context, blockID string) (*models.BlockMetadata, error)
	GetDossier(ctx context.Context, dossierID string) (*models.Dossier, error)
	GetDossierFacts(ctx context.Context, dossierID string) ([]models.DossierFact, error)
}

// ContextAssembler 读路径上下文装配器
// 把检索层给出的片段与档案 ID 水合成最终注入提示词的文本
type ContextAssembler struct {
	store       Store
	tokenBudget int
	logger      *zap.Logger
}

// NewContextAssembler 创建装配器
func NewContextAssembler(store Store, tokenBudget int, logger *zap.Logger) *ContextAssembler {
	if tokenBudget <= 0 {
		tokenBudget = 4000
	}
	return &ContextAssembler{store: store, tokenBudget: tokenBudget, logger: logger}
}

// HydrateChunks 按块聚合水合片段
// 块级标签每块只查一次,与片段数无关;规则按片段轮次逐条注入
func (a *ContextAssembler) HydrateChunks(ctx context.Context, chunkIDs []string) ([]BlockContext, error) {
	chunks, err := a.store.GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	// 按块分桶,保持片段首次出现的块顺序(即检索相关度顺序)
	blockOrder := make([]string, 0)
	byBlock := make(map[string][]models.ConversationChunk)
	for _, c := range chunks {
		key := c.BlockID
		if key == "" {
			key = untaggedBucket
		}
		if _, ok := byBlock[key]; !ok {
			blockOrder = append(blockOrder, key)
		}
		byBlock[key] = append(byBlock[key], c)
	}

	results := make([]BlockContext, 0, len(blockOrder))
	for _, blockID := range blockOrder {
		bc := BlockContext{BlockID: blockID}

		var rules []models.SectionRule
		if blockID != untaggedBucket {
			meta, err := a.store.GetBlockMetadata(ctx, blockID)
			if err != nil {
				return nil, err
			}
			if meta != nil {
				bc.GlobalTags = meta.GlobalTags
				rules, err = meta.DecodeSectionRules()
				if err != nil {
					a.logger.Warn("分段规则解码失败,按无规则处理",
						zap.String("block_id", blockID),
						zap.Error(err),
					)
					rules = nil
				}
			}
		}

		for _, c := range byBlock[blockID] {
			view := ChunkView{
				ChunkID: c.ChunkID,
				TurnID:  c.TurnID,
				Content: c.Content,
			}
			for _, r := range rules {
				if r.Covers(c.TurnID) {
					view.ActiveRules = append(view.ActiveRules, r.RuleText)
				}
			}
			bc.Chunks = append(bc.Chunks, view)
		}
		results = append(results, bc)
	}
	return results, nil
}

// HydrateDossiers 水合档案摘要与事实清单,缺失的档案跳过不报错
func (a *ContextAssembler) HydrateDossiers(ctx context.Context, dossierIDs []string) ([]DossierContext, error) {
	results := make([]DossierContext, 0, len(dossierIDs))
	for _, id := range dossierIDs {
		dossier, err := a.store.GetDossier(ctx, id)
		if err != nil {
			if errors.Is(err, memory.ErrDossierNotFound) {
				a.logger.Warn("档案不存在,跳过水合", zap.String("dossier_id", id))
				continue
			}
			return nil, err
		}

		facts, err := a.store.GetDossierFacts(ctx, id)
		if err != nil {
			return nil, err
		}
		texts := make([]string, len(facts))
		for i, f := range facts {
			texts[i] = f.FactText
		}

		results = append(results, DossierContext{
			DossierID:    dossier.DossierID,
			Title:        dossier.Title,
			Summary:      dossier.Summary,
			Facts:        texts,
			LastModified: dossier.LastModified,
		})
	}
	return results, nil
}

// AssembleFullContext 水合片段与档案并在 Token 预算内渲染成文本
// 档案摘要(长期记忆)优先于对话片段;全部拼接后超出预算时按字符硬截断并追加标记,
// 不做任何语义感知的裁剪或按相关度取舍
func (a *ContextAssembler) AssembleFullContext(ctx context.Context, chunkIDs, dossierIDs []string) (*AssembledContext, error) {
	dossiers, err := a.HydrateDossiers(ctx, dossierIDs)
	if err != nil {
		return nil, err
	}
	blocks, err := a.HydrateChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, d := range dossiers {
		sb.WriteString(renderDossier(d))
	}
	for _, b := range blocks {
		sb.WriteString(renderBlock(b))
	}

	text := sb.String()
	used := estimateTokens(text)
	truncated := false
	if used > a.tokenBudget {
		truncated = true
		text = text[:a.tokenBudget*4] + "\n" + truncationMarker + "\n"
		used = a.tokenBudget
	}

	return &AssembledContext{
		Text:       text,
		TokensUsed: used,
		Truncated:  truncated,
		Blocks:     blocks,
		Dossiers:   dossiers,
	}, nil
}

// renderDossier 渲染单个档案小节:标题、摘要、事实清单与最后更新时间
func renderDossier(d DossierContext) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("### Dossier: %s\n", d.Title))
	if d.Summary != "" {
		b.WriteString(fmt.Sprintf("Summary: %s\n", d.Summary))
	}
	for _, f := range d.Facts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Last Updated: %s\n", d.LastModified.Format("2006-01-02 15:04:05")))
	b.WriteString("\n")
	return b.String()
}

// renderBlock 渲染单个块小节:块头、生效规则行、逐片段条目
// 无归属桶不渲染规则头;命中分段规则的片段以 [规则文本] 前缀标注
func renderBlock(bc BlockContext) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("### Context Block: %s\n", bc.BlockID))
	if bc.BlockID != untaggedBucket && len(bc.GlobalTags) > 0 {
		wrapped := make([]string, len(bc.GlobalTags))
		for i, t := range bc.GlobalTags {
			wrapped[i] = "[" + t + "]"
		}
		b.WriteString("Active Rules: ")
		b.WriteString(strings.Join(wrapped, ", "))
		b.WriteString("\n")
	}
	for _, c := range bc.Chunks {
		b.WriteString("- ")
		for _, r := range c.ActiveRules {
			b.WriteString("[" + r + "] ")
		}
		b.WriteString(c.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// estimateTokens 粗粒度 Token 估算,四字符折一个 Token
func estimateTokens(s string) int {
	return len(s) / 4
}
