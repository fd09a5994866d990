package assembler

import (
	"context"
	"strings"
	"testing"
	"time"

	"hmlr/internal/memory"
	"hmlr/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore 记录元数据查询次数的只读存储替身
type fakeStore struct {
	chunks        []models.ConversationChunk
	metadata      map[string]*models.BlockMetadata
	dossiers      map[string]*models.Dossier
	dossierFacts  map[string][]models.DossierFact
	metadataCalls int
}

func (f *fakeStore) GetChunks(ctx context.Context, chunkIDs []string) ([]models.ConversationChunk, error) {
	byID := make(map[string]models.ConversationChunk, len(f.chunks))
	for _, c := range f.chunks {
		byID[c.ChunkID] = c
	}
	result := make([]models.ConversationChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

func (f *fakeStore) GetBlockMetadata(ctx context.Context, blockID string) (*models.BlockMetadata, error) {
	f.metadataCalls++
	return f.metadata[blockID], nil
}

func (f *fakeStore) GetDossier(ctx context.Context, dossierID string) (*models.Dossier, error) {
	d, ok := f.dossiers[dossierID]
	if !ok {
		return nil, memory.ErrDossierNotFound
	}
	return d, nil
}

func (f *fakeStore) GetDossierFacts(ctx context.Context, dossierID string) ([]models.DossierFact, error) {
	return f.dossierFacts[dossierID], nil
}

func taggedMetadata(t *testing.T, blockID string, tags []string, rules []models.SectionRule) *models.BlockMetadata {
	t.Helper()
	meta := &models.BlockMetadata{BlockID: blockID, GlobalTags: tags}
	require.NoError(t, meta.EncodeSectionRules(rules))
	return meta
}

func TestHydrateChunks_MetadataFetchedOncePerBlock(t *testing.T) {
	store := &fakeStore{
		chunks: []models.ConversationChunk{
			{ChunkID: "c1", BlockID: "blk-1", TurnID: "turn_0001", Content: "first"},
			{ChunkID: "c2", BlockID: "blk-1", TurnID: "turn_0002", Content: "second"},
			{ChunkID: "c3", BlockID: "blk-1", TurnID: "turn_0003", Content: "third"},
		},
		metadata: map[string]*models.BlockMetadata{
			"blk-1": taggedMetadata(t, "blk-1", []string{"env: python-3.9"}, nil),
		},
	}
	a := NewContextAssembler(store, 4000, zap.NewNop())

	blocks, err := a.HydrateChunks(context.Background(), []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Chunks, 3)
	require.Equal(t, []string{"env: python-3.9"}, blocks[0].GlobalTags)

	// 同块三个片段只查一次元数据
	if store.metadataCalls != 1 {
		t.Fatalf("同块片段应只查一次元数据, 实际查询 %d 次", store.metadataCalls)
	}
}

func TestHydrateChunks_UntaggedBucket(t *testing.T) {
	store := &fakeStore{
		chunks: []models.ConversationChunk{
			{ChunkID: "c1", BlockID: "blk-1", TurnID: "turn_0001", Content: "tagged"},
			{ChunkID: "c2", BlockID: "", TurnID: "turn_0002", Content: "orphan"},
		},
		metadata: map[string]*models.BlockMetadata{},
	}
	a := NewContextAssembler(store, 4000, zap.NewNop())

	blocks, err := a.HydrateChunks(context.Background(), []string{"c1", "c2"})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, "blk-1", blocks[0].BlockID)
	require.Equal(t, "_untagged", blocks[1].BlockID)

	// 无归属桶不触发元数据查询
	if store.metadataCalls != 1 {
		t.Fatalf("无归属桶不应查元数据, 实际查询 %d 次", store.metadataCalls)
	}
}

func TestHydrateChunks_SectionRulesCoverOnlyTheirTurns(t *testing.T) {
	rules := []models.SectionRule{
		{StartTurn: "turn_0002", EndTurn: "turn_0003", RuleText: "the API means the billing API"},
	}
	store := &fakeStore{
		chunks: []models.ConversationChunk{
			{ChunkID: "c1", BlockID: "blk-1", TurnID: "turn_0001", Content: "before"},
			{ChunkID: "c2", BlockID: "blk-1", TurnID: "turn_0002", Content: "inside"},
			{ChunkID: "c3", BlockID: "blk-1", TurnID: "turn_0004", Content: "after"},
		},
		metadata: map[string]*models.BlockMetadata{
			"blk-1": taggedMetadata(t, "blk-1", nil, rules),
		},
	}
	a := NewContextAssembler(store, 4000, zap.NewNop())

	blocks, err := a.HydrateChunks(context.Background(), []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	require.Len(t, blocks[0].Chunks, 3)

	require.Empty(t, blocks[0].Chunks[0].ActiveRules)
	require.Equal(t, []string{"the API means the billing API"}, blocks[0].Chunks[1].ActiveRules)
	require.Empty(t, blocks[0].Chunks[2].ActiveRules)
}

func TestHydrateChunks_PreservesRetrievalBlockOrder(t *testing.T) {
	store := &fakeStore{
		chunks: []models.ConversationChunk{
			{ChunkID: "c1", BlockID: "blk-2", TurnID: "turn_0001", Content: "a"},
			{ChunkID: "c2", BlockID: "blk-1", TurnID: "turn_0002", Content: "b"},
			{ChunkID: "c3", BlockID: "blk-2", TurnID: "turn_0003", Content: "c"},
		},
		metadata: map[string]*models.BlockMetadata{},
	}
	a := NewContextAssembler(store, 4000, zap.NewNop())

	blocks, err := a.HydrateChunks(context.Background(), []string{"c1", "c2", "c3"})
	require.NoError(t, err)

	// 块顺序跟随片段首次出现顺序,即检索相关度顺序
	require.Len(t, blocks, 2)
	require.Equal(t, "blk-2", blocks[0].BlockID)
	require.Len(t, blocks[0].Chunks, 2)
	require.Equal(t, "blk-1", blocks[1].BlockID)
}

func TestHydrateDossiers_SkipsMissing(t *testing.T) {
	modified := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	store := &fakeStore{
		dossiers: map[string]*models.Dossier{
			"d1": {DossierID: "d1", Title: "Cache Design", Summary: "redis with lru", LastModified: modified},
		},
		dossierFacts: map[string][]models.DossierFact{
			"d1": {
				{FactID: "f1", DossierID: "d1", FactText: "cache backend: redis"},
				{FactID: "f2", DossierID: "d1", FactText: "eviction policy: lru"},
			},
		},
	}
	a := NewContextAssembler(store, 4000, zap.NewNop())

	dossiers, err := a.HydrateDossiers(context.Background(), []string{"d1", "d-gone"})
	require.NoError(t, err)
	require.Len(t, dossiers, 1)
	require.Equal(t, "Cache Design", dossiers[0].Title)

	// 水合结果带事实清单与最后更新时间
	require.Equal(t, []string{"cache backend: redis", "eviction policy: lru"}, dossiers[0].Facts)
	require.Equal(t, modified, dossiers[0].LastModified)
}

func TestAssembleFullContext_DossiersBeforeBlocks(t *testing.T) {
	modified := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	store := &fakeStore{
		chunks: []models.ConversationChunk{
			{ChunkID: "c1", BlockID: "blk-1", TurnID: "turn_0001", Content: "chunk content"},
		},
		metadata: map[string]*models.BlockMetadata{
			"blk-1": taggedMetadata(t, "blk-1", []string{"env: go-1.22", "project: hmlr"}, nil),
		},
		dossiers: map[string]*models.Dossier{
			"d1": {DossierID: "d1", Title: "Cache Design", Summary: "redis with lru", LastModified: modified},
		},
		dossierFacts: map[string][]models.DossierFact{
			"d1": {{FactID: "f1", DossierID: "d1", FactText: "cache backend: redis"}},
		},
	}
	a := NewContextAssembler(store, 4000, zap.NewNop())

	result, err := a.AssembleFullContext(context.Background(), []string{"c1"}, []string{"d1"})
	require.NoError(t, err)
	require.False(t, result.Truncated)

	dossierPos := strings.Index(result.Text, "### Dossier: Cache Design")
	blockPos := strings.Index(result.Text, "### Context Block: blk-1")
	require.NotEqual(t, -1, dossierPos)
	require.NotEqual(t, -1, blockPos)
	if dossierPos > blockPos {
		t.Fatalf("档案摘要应渲染在对话块之前")
	}

	// 档案小节: 摘要行、事实条目、最后更新时间
	require.Contains(t, result.Text, "Summary: redis with lru")
	require.Contains(t, result.Text, "- cache backend: redis")
	require.Contains(t, result.Text, "Last Updated: 2026-03-01 10:30:00")

	// 块小节: 全局标签逐个加方括号,片段成条目
	require.Contains(t, result.Text, "Active Rules: [env: go-1.22], [project: hmlr]")
	require.Contains(t, result.Text, "- chunk content")
}

func TestAssembleFullContext_SectionRulePrefixesChunk(t *testing.T) {
	rules := []models.SectionRule{
		{StartTurn: "turn_0002", EndTurn: "turn_0002", RuleText: "the API means the billing API"},
	}
	store := &fakeStore{
		chunks: []models.ConversationChunk{
			{ChunkID: "c1", BlockID: "blk-1", TurnID: "turn_0001", Content: "plain"},
			{ChunkID: "c2", BlockID: "blk-1", TurnID: "turn_0002", Content: "scoped"},
		},
		metadata: map[string]*models.BlockMetadata{
			"blk-1": taggedMetadata(t, "blk-1", nil, rules),
		},
	}
	a := NewContextAssembler(store, 4000, zap.NewNop())

	result, err := a.AssembleFullContext(context.Background(), []string{"c1", "c2"}, nil)
	require.NoError(t, err)

	// 命中规则的片段以 [规则文本] 前缀标注,未命中的保持裸条目
	require.Contains(t, result.Text, "- plain\n")
	require.Contains(t, result.Text, "- [the API means the billing API] scoped\n")
}

func TestAssembleFullContext_TruncatesOnBudget(t *testing.T) {
	long := strings.Repeat("x", 400)
	store := &fakeStore{
		chunks: []models.ConversationChunk{
			{ChunkID: "c1", BlockID: "blk-1", TurnID: "turn_0001", Content: long},
			{ChunkID: "c2", BlockID: "blk-2", TurnID: "turn_0002", Content: long},
		},
		metadata: map[string]*models.BlockMetadata{},
	}
	a := NewContextAssembler(store, 120, zap.NewNop())

	result, err := a.AssembleFullContext(context.Background(), []string{"c1", "c2"}, nil)
	require.NoError(t, err)

	// 超预算按字符硬截断:不丢整节,正文止步于预算换算的字符数,末尾带标记
	require.True(t, result.Truncated)
	require.Equal(t, 120, result.TokensUsed)

	marker := "[Context truncated due to token limit]"
	require.True(t, strings.HasSuffix(result.Text, marker+"\n"))

	body := strings.TrimSuffix(result.Text, "\n"+marker+"\n")
	require.Len(t, body, 120*4)
	require.True(t, strings.HasPrefix(body, "### Context Block: blk-1"))
}

func TestAssembleFullContext_EmptyInput(t *testing.T) {
	a := NewContextAssembler(&fakeStore{}, 4000, zap.NewNop())

	result, err := a.AssembleFullContext(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "", result.Text)
	require.False(t, result.Truncated)
	require.Zero(t, result.TokensUsed)
}
