package dossier

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"hmlr/internal/memory"
	"hmlr/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriter_CreateNew(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(setupDossierTestDB(t))
	index := &fakeIndex{}
	writer := NewDossierWriter(store, index, summaryLLM(), memory.NewIDGenerator(), zap.NewNop())

	packet := &FactPacket{
		Label:         "Cache Design",
		Facts:         []string{"cache backend: redis", "cache ttl: 300s"},
		SourceBlockID: "blk-1",
	}
	dossierID, err := writer.CreateNew(ctx, packet)
	require.NoError(t, err)

	dossier, err := store.GetDossier(ctx, dossierID)
	require.NoError(t, err)
	require.Equal(t, "Cache Design", dossier.Title)
	require.Equal(t, "generated summary", dossier.Summary)

	facts, err := store.GetDossierFacts(ctx, dossierID)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	require.Equal(t, "blk-1", facts[0].SourceBlockID)

	// 每条事实都写入了向量索引
	require.Len(t, index.saved, 2)
	require.Equal(t, dossierID, index.saved[0].dossierID)

	// 审计: 1 条 created + 每事实 1 条 fact_added
	entries, err := store.GetProvenance(ctx, dossierID)
	require.NoError(t, err)
	require.Equal(t, 1, countOps(entries, models.ProvenanceCreated))
	require.Equal(t, 2, countOps(entries, models.ProvenanceFactAdded))
}

func TestWriter_CreateNewSummaryFallback(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(setupDossierTestDB(t))
	llm := &fakeLLM{fn: func(prompt string) (string, error) {
		return "", fmt.Errorf("summary model down")
	}}
	writer := NewDossierWriter(store, &fakeIndex{}, llm, memory.NewIDGenerator(), zap.NewNop())

	dossierID, err := writer.CreateNew(ctx, &FactPacket{
		Label:         "Project Alpha",
		Facts:         []string{"f1", "f2", "f3", "f4"},
		SourceBlockID: "blk-1",
	})
	require.NoError(t, err)

	dossier, err := store.GetDossier(ctx, dossierID)
	require.NoError(t, err)
	// 摘要兜底: 标题 + 前三条事实
	require.Equal(t, "Project Alpha: f1; f2; f3", dossier.Summary)
}

func TestWriter_AppendMonotonic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(setupDossierTestDB(t))
	index := &fakeIndex{}
	writer := NewDossierWriter(store, index, summaryLLM(), memory.NewIDGenerator(), zap.NewNop())

	dossierID, err := writer.CreateNew(ctx, &FactPacket{
		Label:         "Cache Design",
		Facts:         []string{"cache backend: redis"},
		SourceBlockID: "blk-1",
	})
	require.NoError(t, err)

	before, err := store.CountDossierFacts(ctx, dossierID)
	require.NoError(t, err)

	newFacts := []string{"cache ttl: 300s", "eviction policy: lru"}
	require.NoError(t, writer.Append(ctx, dossierID, &FactPacket{
		Label:         "Cache Design",
		Facts:         newFacts,
		SourceBlockID: "blk-2",
	}))

	// 追加只增不减:事实数恰好增加 len(newFacts)
	after, err := store.CountDossierFacts(ctx, dossierID)
	require.NoError(t, err)
	require.Equal(t, before+int64(len(newFacts)), after)

	// 审计: 本次追加留下每事实 1 条 fact_added + 1 条 summary_updated
	entries, err := store.GetProvenance(ctx, dossierID)
	require.NoError(t, err)
	require.Equal(t, 3, countOps(entries, models.ProvenanceFactAdded))
	require.Equal(t, 1, countOps(entries, models.ProvenanceSummaryUpdated))

	// 新事实保留来源块
	facts, err := store.GetDossierFacts(ctx, dossierID)
	require.NoError(t, err)
	require.Equal(t, "blk-2", facts[len(facts)-1].SourceBlockID)
}

func TestWriter_AppendSummaryFailureKeepsOld(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(setupDossierTestDB(t))
	index := &fakeIndex{}

	writer := NewDossierWriter(store, index, summaryLLM(), memory.NewIDGenerator(), zap.NewNop())
	dossierID, err := writer.CreateNew(ctx, &FactPacket{
		Label:         "Cache Design",
		Facts:         []string{"cache backend: redis"},
		SourceBlockID: "blk-1",
	})
	require.NoError(t, err)

	// 第二个写入器的摘要模型持续失败
	failing := &fakeLLM{fn: func(prompt string) (string, error) {
		return "", fmt.Errorf("summary model down")
	}}
	failingWriter := NewDossierWriter(store, index, failing, memory.NewIDGenerator(), zap.NewNop())

	require.NoError(t, failingWriter.Append(ctx, dossierID, &FactPacket{
		Label:         "Cache Design",
		Facts:         []string{"cache ttl: 300s"},
		SourceBlockID: "blk-2",
	}))

	// 摘要改写失败保留旧摘要,事实仍然落库
	dossier, err := store.GetDossier(ctx, dossierID)
	require.NoError(t, err)
	require.Equal(t, "generated summary", dossier.Summary)

	count, err := store.CountDossierFacts(ctx, dossierID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

// scriptedIDGen 按预置序列返回 ID,用尽后回退随机生成
type scriptedIDGen struct {
	ids  []string
	next int
	rest *memory.TimestampIDGenerator
}

func (g *scriptedIDGen) Generate(prefix string) string {
	if g.next < len(g.ids) {
		id := g.ids[g.next]
		g.next++
		return id
	}
	if g.rest == nil {
		g.rest = memory.NewIDGenerator()
	}
	return g.rest.Generate(prefix)
}

func TestWriter_FactPersistFailureSkipsThatFactOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(setupDossierTestDB(t))
	require.NoError(t, store.CreateDossier(ctx, &models.Dossier{
		DossierID: "d-1",
		Title:     "Cache Design",
		Summary:   "old summary",
	}))

	// 第二条事实撞主键落库失败,第一三条照常写入
	ids := &scriptedIDGen{ids: []string{"dfact-a", "dfact-a", "dfact-c"}}
	index := &fakeIndex{}
	writer := NewDossierWriter(store, index, summaryLLM(), ids, zap.NewNop())

	require.NoError(t, writer.Append(ctx, "d-1", &FactPacket{
		Label:         "Cache Design",
		Facts:         []string{"cache backend: redis", "cache ttl: 300s", "eviction policy: lru"},
		SourceBlockID: "blk-1",
	}))

	count, err := store.CountDossierFacts(ctx, "d-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	// 失败的那条不写向量也不留 fact_added 审计
	require.Len(t, index.saved, 2)
	entries, err := store.GetProvenance(ctx, "d-1")
	require.NoError(t, err)
	require.Equal(t, 2, countOps(entries, models.ProvenanceFactAdded))
}

func TestWriter_EmbeddingFailureKeepsFact(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(setupDossierTestDB(t))
	require.NoError(t, store.CreateDossier(ctx, &models.Dossier{
		DossierID: "d-1",
		Title:     "Cache Design",
		Summary:   "old summary",
	}))

	index := &fakeIndex{failSaves: map[string]bool{"cache ttl: 300s": true}}
	writer := NewDossierWriter(store, index, summaryLLM(), memory.NewIDGenerator(), zap.NewNop())

	require.NoError(t, writer.Append(ctx, "d-1", &FactPacket{
		Label:         "Cache Design",
		Facts:         []string{"cache ttl: 300s", "eviction policy: lru"},
		SourceBlockID: "blk-1",
	}))

	// 向量写入失败只告警:事实仍落库,fact_added 审计照记
	count, err := store.CountDossierFacts(ctx, "d-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	require.Len(t, index.saved, 1)
	entries, err := store.GetProvenance(ctx, "d-1")
	require.NoError(t, err)
	require.Equal(t, 2, countOps(entries, models.ProvenanceFactAdded))
}

func TestWriter_CreatedProvenanceDetails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(setupDossierTestDB(t))
	writer := NewDossierWriter(store, &fakeIndex{}, summaryLLM(), memory.NewIDGenerator(), zap.NewNop())

	dossierID, err := writer.CreateNew(ctx, &FactPacket{
		Label:         "Cache Design",
		Facts:         []string{"f1", "f2"},
		SourceBlockID: "blk-1",
	})
	require.NoError(t, err)

	entries, err := store.GetProvenance(ctx, dossierID)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Operation != models.ProvenanceCreated {
			continue
		}
		var details map[string]interface{}
		require.NoError(t, json.Unmarshal(e.Details, &details))
		require.Equal(t, "Cache Design", details["title"])
		require.EqualValues(t, 2, details["num_facts"])
		return
	}
	t.Fatalf("未找到 created 审计记录")
}

func TestWriter_AppendSummaryPromptUsesOldSummaryAndNewFacts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(setupDossierTestDB(t))
	require.NoError(t, store.CreateDossier(ctx, &models.Dossier{
		DossierID: "d-1",
		Title:     "Cache Design",
		Summary:   "redis is the cache backend",
	}))
	require.NoError(t, store.AddDossierFact(ctx, &models.DossierFact{
		DossierID: "d-1",
		FactText:  "historical fact about sharding",
	}))

	llm := summaryLLM()
	writer := NewDossierWriter(store, &fakeIndex{}, llm, memory.NewIDGenerator(), zap.NewNop())

	require.NoError(t, writer.Append(ctx, "d-1", &FactPacket{
		Label:         "Cache Design",
		Facts:         []string{"cache ttl: 300s"},
		SourceBlockID: "blk-2",
	}))

	// 摘要提示词携带旧摘要与本次新事实,不回读档案的历史事实全集
	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	require.Contains(t, prompt, "redis is the cache backend")
	require.Contains(t, prompt, "cache ttl: 300s")
	require.NotContains(t, prompt, "historical fact about sharding")
}

func countOps(entries []models.ProvenanceEntry, op models.ProvenanceOperation) int {
	n := 0
	for _, e := range entries {
		if e.Operation == op {
			n++
		}
	}
	return n
}
