package dossier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hmlr/internal/ai"
	"hmlr/internal/memory"
	"hmlr/internal/models"
	"hmlr/internal/vector"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// summaryPrefix 摘要改写响应的约定前缀
const summaryPrefix = "UPDATED SUMMARY:"

// DossierWriter 档案写入器
// 负责落库事实、写入向量、追加审计记录并重写摘要
// 摘要改写失败不阻断写入:新建档案退回拼接摘要,追加档案保留旧摘要
type DossierWriter struct {
	store  *memory.MemoryStore
	index  vector.FactIndex
	llm    ai.LLMClient
	ids    memory.IDGenerator
	logger *zap.Logger
}

// NewDossierWriter 创建写入器
func NewDossierWriter(store *memory.MemoryStore, index vector.FactIndex, llm ai.LLMClient, ids memory.IDGenerator, logger *zap.Logger) *DossierWriter {
	return &DossierWriter{store: store, index: index, llm: llm, ids: ids, logger: logger}
}

// CreateNew 以事实包为种子新建一份档案
// 标题取簇标签;摘要先由 LLM 生成,失败时用"标题: 前三条事实"兜底
func (w *DossierWriter) CreateNew(ctx context.Context, packet *FactPacket) (string, error) {
	dossier := &models.Dossier{
		DossierID: w.ids.Generate("dossier"),
		Title:     packet.Label,
	}
	if err := w.store.CreateDossier(ctx, dossier); err != nil {
		return "", err
	}

	w.recordProvenance(ctx, dossier.DossierID, models.ProvenanceCreated, packet.SourceBlockID, map[string]interface{}{
		"title":     packet.Label,
		"num_facts": len(packet.Facts),
	})

	w.appendFacts(ctx, dossier.DossierID, packet)

	summary, err := w.rewriteSummary(ctx, packet.Label, "", packet.Facts)
	if err != nil {
		w.logger.Warn("新建档案摘要生成失败,使用拼接兜底",
			zap.String("dossier_id", dossier.DossierID),
			zap.Error(err),
		)
		summary = fallbackSummary(packet.Label, packet.Facts)
	}
	if err := w.store.UpdateDossierSummary(ctx, dossier.DossierID, summary); err != nil {
		return "", err
	}

	return dossier.DossierID, nil
}

// Append 把事实包追加进既有档案
// 档案只追加不修改:事实永不覆盖,摘要基于旧摘要与新事实整体重写
func (w *DossierWriter) Append(ctx context.Context, dossierID string, packet *FactPacket) error {
	dossier, err := w.store.GetDossier(ctx, dossierID)
	if err != nil {
		return err
	}

	w.appendFacts(ctx, dossierID, packet)

	summary, err := w.rewriteSummary(ctx, dossier.Title, dossier.Summary, packet.Facts)
	if err != nil {
		w.logger.Warn("追加档案摘要改写失败,保留旧摘要",
			zap.String("dossier_id", dossierID),
			zap.Error(err),
		)
		return w.store.TouchDossier(ctx, dossierID)
	}

	if err := w.store.UpdateDossierSummary(ctx, dossierID, summary); err != nil {
		return err
	}
	w.recordProvenance(ctx, dossierID, models.ProvenanceSummaryUpdated, packet.SourceBlockID, map[string]interface{}{
		"label": packet.Label,
	})
	return nil
}

// appendFacts 落库包内事实并逐条写入向量索引,每条事实留一条 fact_added 审计
// 非事务:单条事实落库失败跳过该条,向量写入失败只告警,后续事实照常继续
func (w *DossierWriter) appendFacts(ctx context.Context, dossierID string, packet *FactPacket) {
	for _, text := range packet.Facts {
		fact := &models.DossierFact{
			FactID:        w.ids.Generate("dfact"),
			DossierID:     dossierID,
			FactText:      text,
			SourceBlockID: packet.SourceBlockID,
			Confidence:    1.0,
		}
		if err := w.store.AddDossierFact(ctx, fact); err != nil {
			w.logger.Warn("落库档案事实失败,跳过该条",
				zap.String("dossier_id", dossierID),
				zap.String("fact_id", fact.FactID),
				zap.Error(err),
			)
			continue
		}
		if err := w.index.SaveEmbedding(ctx, fact.FactID, dossierID, text); err != nil {
			w.logger.Warn("写入事实向量失败,事实已落库",
				zap.String("dossier_id", dossierID),
				zap.String("fact_id", fact.FactID),
				zap.Error(err),
			)
		}
		w.recordProvenance(ctx, dossierID, models.ProvenanceFactAdded, packet.SourceBlockID, map[string]interface{}{
			"fact_id": fact.FactID,
			"label":   packet.Label,
		})
	}
}

// rewriteSummary 调 LLM 整体重写摘要,剥离约定前缀
func (w *DossierWriter) rewriteSummary(ctx context.Context, title, current string, facts []string) (string, error) {
	raw, err := w.llm.Query(ctx, buildSummaryPrompt(title, current, facts))
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(raw)
	if idx := strings.Index(summary, summaryPrefix); idx >= 0 {
		summary = strings.TrimSpace(summary[idx+len(summaryPrefix):])
	}
	if summary == "" {
		return "", fmt.Errorf("摘要响应为空")
	}
	return summary, nil
}

// recordProvenance 追加审计记录,失败只告警不阻断写入
func (w *DossierWriter) recordProvenance(ctx context.Context, dossierID string, op models.ProvenanceOperation, sourceBlockID string, details map[string]interface{}) {
	raw, _ := json.Marshal(details)

	entry := &models.ProvenanceEntry{
		DossierID:     dossierID,
		Operation:     op,
		SourceBlockID: sourceBlockID,
		Details:       datatypes.JSON(raw),
	}
	if err := w.store.AddProvenance(ctx, entry); err != nil {
		w.logger.Warn("写入审计记录失败",
			zap.String("dossier_id", dossierID),
			zap.String("operation", string(op)),
			zap.Error(err),
		)
	}
}

// fallbackSummary 拼接兜底摘要:标题加前三条事实
func fallbackSummary(title string, facts []string) string {
	head := facts
	if len(head) > 3 {
		head = head[:3]
	}
	return title + ": " + strings.Join(head, "; ")
}
