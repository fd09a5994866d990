package dossier

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"hmlr/internal/ai"
	"hmlr/internal/config"
	"hmlr/internal/memory"
	"hmlr/internal/metrics"
	"hmlr/internal/vector"

	"go.uber.org/zap"
)

// voteTally 一份候选档案在多向量投票中的得票
type voteTally struct {
	dossierID string
	hits      int
	scoreSum  float64
}

// DossierRouter 多向量投票路由器
// 包内每条事实各自检索一次,命中在档案维度累计成选票;
// 得票档案送 LLM 仲裁,零票或仲裁失败一律新建档案
type DossierRouter struct {
	index  vector.FactIndex
	llm    ai.LLMClient
	store  *memory.MemoryStore
	writer *DossierWriter
	cfg    config.MemoryConfig
	logger *zap.Logger
}

// NewDossierRouter 创建路由器
func NewDossierRouter(index vector.FactIndex, llm ai.LLMClient, store *memory.MemoryStore, writer *DossierWriter, cfg config.MemoryConfig, logger *zap.Logger) *DossierRouter {
	return &DossierRouter{
		index:  index,
		llm:    llm,
		store:  store,
		writer: writer,
		cfg:    cfg,
		logger: logger,
	}
}

// Route 决定事实包的归宿并执行写入
// 决策路径: 投票 -> 零票直接新建 / 有票送仲裁 -> APPEND 或 CREATE
// 仲裁失败不丢事实,降级为新建档案
func (r *DossierRouter) Route(ctx context.Context, packet *FactPacket) (*RouteResult, error) {
	// 1. 逐事实投票
	candidates := r.vote(ctx, packet)
	metrics.RoutingVoteCandidates.Observe(float64(len(candidates)))

	// 2. 零票: 没有档案谈得上相关,免仲裁直接新建
	if len(candidates) == 0 {
		return r.create(ctx, packet, "create")
	}

	// 3. 截取头部候选送仲裁
	if len(candidates) > r.cfg.CandidateLimit {
		candidates = candidates[:r.cfg.CandidateLimit]
	}

	views, err := r.loadCandidateViews(ctx, candidates)
	if err != nil {
		r.logger.Warn("加载候选档案失败,降级为新建",
			zap.String("block_id", packet.SourceBlockID),
			zap.Error(err),
		)
		return r.create(ctx, packet, "create_fallback")
	}

	decision, dossierID := r.arbitrate(ctx, packet, views)
	switch decision {
	case "append":
		if err := r.writer.Append(ctx, dossierID, packet); err != nil {
			return nil, err
		}
		metrics.DossierRoutesTotal.WithLabelValues("append").Inc()
		return &RouteResult{DossierID: dossierID}, nil
	case "create":
		return r.create(ctx, packet, "create")
	default:
		return r.create(ctx, packet, "create_fallback")
	}
}

// create 新建档案并记指标
func (r *DossierRouter) create(ctx context.Context, packet *FactPacket, action string) (*RouteResult, error) {
	dossierID, err := r.writer.CreateNew(ctx, packet)
	if err != nil {
		return nil, err
	}
	metrics.DossierRoutesTotal.WithLabelValues(action).Inc()
	return &RouteResult{DossierID: dossierID, Created: true}, nil
}

// vote 包内每条事实独立检索,按档案累计命中数与分数和
// 排序: 命中数降序,同票按分数和降序
func (r *DossierRouter) vote(ctx context.Context, packet *FactPacket) []voteTally {
	tallies := make(map[string]*voteTally)
	order := make([]string, 0)

	for _, fact := range packet.Facts {
		hits, err := r.index.Search(ctx, fact, r.cfg.SearchTopK, r.cfg.SearchThreshold)
		if err != nil {
			// 单条检索失败只损失这一张选票
			r.logger.Warn("投票检索失败",
				zap.String("block_id", packet.SourceBlockID),
				zap.Error(err),
			)
			continue
		}
		for _, h := range hits {
			t, ok := tallies[h.DossierID]
			if !ok {
				t = &voteTally{dossierID: h.DossierID}
				tallies[h.DossierID] = t
				order = append(order, h.DossierID)
			}
			t.hits++
			t.scoreSum += h.Score
		}
	}

	ranked := make([]voteTally, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, *tallies[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].hits != ranked[j].hits {
			return ranked[i].hits > ranked[j].hits
		}
		return ranked[i].scoreSum > ranked[j].scoreSum
	})
	return ranked
}

// loadCandidateViews 补齐候选档案的标题、摘要与示例事实
func (r *DossierRouter) loadCandidateViews(ctx context.Context, candidates []voteTally) ([]candidateView, error) {
	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		dossier, err := r.store.GetDossier(ctx, c.dossierID)
		if err != nil {
			return nil, err
		}

		facts, err := r.store.GetDossierFacts(ctx, c.dossierID)
		if err != nil {
			return nil, err
		}
		examples := make([]string, 0, r.cfg.ExampleFactsPerDoc)
		for _, f := range facts {
			if len(examples) >= r.cfg.ExampleFactsPerDoc {
				break
			}
			examples = append(examples, f.FactText)
		}

		views = append(views, candidateView{
			DossierID:    dossier.DossierID,
			Title:        dossier.Title,
			Summary:      dossier.Summary,
			ExampleFacts: examples,
			Hits:         c.hits,
			ScoreSum:     c.scoreSum,
		})
	}
	return views, nil
}

// routingDecision 仲裁响应的约定结构
type routingDecision struct {
	Action          string `json:"action"`
	TargetDossierID string `json:"target_dossier_id"`
}

// arbitrate 送 LLM 仲裁,返回 ("append", id) / ("create", "") / ("fallback", "")
// 响应必须是 {"action": "append", "target_dossier_id": ...} 或 {"action": "create"},
// 其余一概视为失败;追加目标只能在候选里选,越界 ID 视为幻觉
func (r *DossierRouter) arbitrate(ctx context.Context, packet *FactPacket, views []candidateView) (string, string) {
	raw, err := r.llm.Query(ctx, buildDecisionPrompt(packet, views))
	if err != nil {
		r.logger.Warn("归档仲裁 LLM 调用失败,降级为新建",
			zap.String("block_id", packet.SourceBlockID),
			zap.Error(err),
		)
		return "fallback", ""
	}

	obj, err := memory.ExtractJSONObject(raw)
	if err != nil {
		r.logger.Warn("仲裁响应不含 JSON,降级为新建",
			zap.String("block_id", packet.SourceBlockID),
			zap.String("reply", strings.TrimSpace(raw)),
		)
		return "fallback", ""
	}
	var decision routingDecision
	if err := json.Unmarshal([]byte(obj), &decision); err != nil {
		r.logger.Warn("仲裁响应解析失败,降级为新建",
			zap.String("block_id", packet.SourceBlockID),
			zap.Error(err),
		)
		return "fallback", ""
	}

	switch decision.Action {
	case "append":
		id := strings.TrimSpace(decision.TargetDossierID)
		for _, v := range views {
			if v.DossierID == id {
				return "append", id
			}
		}
		r.logger.Warn("仲裁返回了候选之外的档案 ID,降级为新建",
			zap.String("block_id", packet.SourceBlockID),
			zap.String("dossier_id", id),
		)
		return "fallback", ""
	case "create":
		return "create", ""
	}

	r.logger.Warn("仲裁动作无法识别,降级为新建",
		zap.String("block_id", packet.SourceBlockID),
		zap.String("action", decision.Action),
	)
	return "fallback", ""
}
