package gardener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hmlr/internal/dossier"
	"hmlr/internal/memory"
	"hmlr/internal/metrics"
	"hmlr/internal/models"

	"go.uber.org/zap"
)

// 园丁处理结果状态
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// GardenResult 一次园丁处理的结果
type GardenResult struct {
	Status          string `json:"status"`
	BlockID         string `json:"block_id"`
	Message         string `json:"message,omitempty"`
	FactsProcessed  int    `json:"facts_processed"`
	TagsApplied     int    `json:"tags_applied"`
	DossiersCreated int    `json:"dossiers_created"`
}

// BlockGardener 桥接块园丁
// 对一个已闭合的块执行完整管线: 分类 -> 落标签 -> 语义分组 -> 逐簇路由归档 -> 删块
// 块删除是无条件的,管线各级的 LLM 失败都已在级内兜底
type BlockGardener struct {
	store      *memory.MemoryStore
	classifier *FactClassifier
	grouper    *SemanticGrouper
	router     *dossier.DossierRouter
	logger     *zap.Logger
}

// NewBlockGardener 创建园丁
func NewBlockGardener(store *memory.MemoryStore, classifier *FactClassifier, grouper *SemanticGrouper, router *dossier.DossierRouter, logger *zap.Logger) *BlockGardener {
	return &BlockGardener{
		store:      store,
		classifier: classifier,
		grouper:    grouper,
		router:     router,
		logger:     logger,
	}
}

// Garden 处理一个桥接块
// 块不存在视为已处理过(重复投递),返回 not_found 而非错误
func (g *BlockGardener) Garden(ctx context.Context, blockID string) (*GardenResult, error) {
	start := time.Now()
	result, err := g.garden(ctx, blockID)
	metrics.GardenDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.BlocksGardenedTotal.WithLabelValues(StatusError).Inc()
		return &GardenResult{Status: StatusError, BlockID: blockID, Message: err.Error()}, err
	}
	metrics.BlocksGardenedTotal.WithLabelValues(result.Status).Inc()
	return result, nil
}

func (g *BlockGardener) garden(ctx context.Context, blockID string) (*GardenResult, error) {
	// 1. 取块;不存在说明已被处理,幂等返回
	if _, err := g.store.GetBlock(ctx, blockID); err != nil {
		if errors.Is(err, memory.ErrBlockNotFound) {
			g.logger.Info("桥接块不存在,跳过处理", zap.String("block_id", blockID))
			return &GardenResult{Status: StatusNotFound, BlockID: blockID, Message: "block already gardened"}, nil
		}
		return nil, err
	}

	// 2. 取块派生的全部事实;无事实直接删块收工
	facts, err := g.store.GetFactsForBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		if err := g.store.DeleteBlock(ctx, blockID); err != nil {
			return nil, err
		}
		g.logger.Info("桥接块无事实,直接删除", zap.String("block_id", blockID))
		return &GardenResult{Status: StatusSuccess, BlockID: blockID, Message: "No facts to process"}, nil
	}

	result := &GardenResult{
		Status:         StatusSuccess,
		BlockID:        blockID,
		FactsProcessed: len(facts),
	}

	// 3. 三启发式分类
	classified := g.classifier.Classify(ctx, facts)

	// 4. 落块级粘性标签
	tags, err := g.applyTags(ctx, blockID, classified)
	if err != nil {
		return nil, err
	}
	result.TagsApplied = tags

	// 5. 叙事事实回配原始行,语义分组后逐簇路由归档
	// 未配置路由器时整段跳过;单簇路由失败只记日志,不影响其余簇与删块
	if g.router != nil {
		inputs := rematchFacts(classified.DossierFacts, facts)
		groups := g.grouper.Group(ctx, inputs)
		for _, grp := range groups {
			packet := &dossier.FactPacket{
				Label:         grp.Label,
				Facts:         grp.Facts,
				SourceBlockID: blockID,
				Timestamp:     grp.Timestamp,
			}
			routed, err := g.router.Route(ctx, packet)
			if err != nil {
				g.logger.Error("路由事实包失败,跳过该簇",
					zap.String("block_id", blockID),
					zap.String("label", grp.Label),
					zap.Error(err),
				)
				continue
			}
			if routed.Created {
				result.DossiersCreated++
			}
		}
	}

	// 7. 无条件删块,派生物已全部落库
	if err := g.store.DeleteBlock(ctx, blockID); err != nil {
		return nil, err
	}

	g.logger.Info("桥接块处理完成",
		zap.String("block_id", blockID),
		zap.Int("facts", result.FactsProcessed),
		zap.Int("tags", result.TagsApplied),
		zap.Int("dossiers_created", result.DossiersCreated),
	)
	return result, nil
}

// applyTags 落库全局标签与分段规则,返回落库条数
// 没有任何标签时不写空行,块删除后读路径按无标签处理
func (g *BlockGardener) applyTags(ctx context.Context, blockID string, classified *ClassificationResult) (int, error) {
	total := len(classified.GlobalTags) + len(classified.SectionRules)
	if total == 0 {
		return 0, nil
	}

	meta := &models.BlockMetadata{
		BlockID:    blockID,
		GlobalTags: classified.GlobalTags,
	}
	if err := meta.EncodeSectionRules(classified.SectionRules); err != nil {
		return 0, fmt.Errorf("编码分段规则失败: %w", err)
	}
	if err := g.store.SaveBlockMetadata(ctx, meta); err != nil {
		return 0, err
	}

	metrics.TagsAppliedTotal.Add(float64(total))
	return total, nil
}

// rematchFacts 把分类器透传回来的事实文本线性回配到原始事实行
// 逐条取第一条未消费的文本相等匹配;配不上的文本仍然进入管线,只是缺轮次与时间戳
func rematchFacts(texts []string, facts []models.Fact) []GroupInput {
	used := make([]bool, len(facts))
	inputs := make([]GroupInput, 0, len(texts))

	for _, text := range texts {
		in := GroupInput{Text: text}
		for i, f := range facts {
			if used[i] || f.Text() != text {
				continue
			}
			used[i] = true
			in.Key = f.Key
			in.Timestamp = f.Timestamp
			in.TurnID = f.TurnID
			break
		}
		inputs = append(inputs, in)
	}
	return inputs
}
