package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hmlr/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 错误定义
var (
	ErrBlockNotFound   = errors.New("bridge block not found")
	ErrDossierNotFound = errors.New("dossier not found")
)

// MemoryStore 记忆层关系存储
// 所有实体的 CRUD 集中在这里,组件只依赖它暴露的窄方法面
type MemoryStore struct {
	db *gorm.DB
}

// NewMemoryStore 创建记忆存储
func NewMemoryStore(db *gorm.DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// DB 暴露底层连接,仅供基础设施层(迁移/健康检查)使用
func (s *MemoryStore) DB() *gorm.DB {
	return s.db
}

// ========== 桥接块 ==========

// CreateBlock 写入一个桥接块
func (s *MemoryStore) CreateBlock(ctx context.Context, block *models.BridgeBlock) error {
	if err := s.db.WithContext(ctx).Create(block).Error; err != nil {
		return fmt.Errorf("创建桥接块失败: %w", err)
	}
	return nil
}

// GetBlock 按 ID 读取桥接块,不存在时返回 ErrBlockNotFound
func (s *MemoryStore) GetBlock(ctx context.Context, blockID string) (*models.BridgeBlock, error) {
	var block models.BridgeBlock
	if err := s.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		First(&block).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("查询桥接块失败: %w", err)
	}
	return &block, nil
}

// DeleteBlock 删除桥接块正文
// 园丁处理完成后调用;由块派生的事实/标签/档案在此之前已经落库
func (s *MemoryStore) DeleteBlock(ctx context.Context, blockID string) error {
	if err := s.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		Delete(&models.BridgeBlock{}).Error; err != nil {
		return fmt.Errorf("删除桥接块失败: %w", err)
	}
	return nil
}

// ========== 事实 ==========

// CreateFact 写入一条事实(不可变,更新即插入新行)
func (s *MemoryStore) CreateFact(ctx context.Context, fact *models.Fact) error {
	if err := s.db.WithContext(ctx).Create(fact).Error; err != nil {
		return fmt.Errorf("创建事实失败: %w", err)
	}
	return nil
}

// GetFactsForBlock 读取某个桥接块抽取出的全部事实,按时间排序
func (s *MemoryStore) GetFactsForBlock(ctx context.Context, blockID string) ([]models.Fact, error) {
	var facts []models.Fact
	if err := s.db.WithContext(ctx).
		Where("source_block_id = ?", blockID).
		Order("timestamp ASC").
		Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("查询块事实失败: %w", err)
	}
	return facts, nil
}

// ========== 块级标签 ==========

// SaveBlockMetadata 保存块级标签,同块重复调用覆盖旧值
// 块删除后标签仍然保留,供读路径装配使用
func (s *MemoryStore) SaveBlockMetadata(ctx context.Context, meta *models.BlockMetadata) error {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "block_id"}},
			UpdateAll: true,
		}).
		Create(meta).Error; err != nil {
		return fmt.Errorf("保存块标签失败: %w", err)
	}
	return nil
}

// GetBlockMetadata 读取块级标签,不存在时返回 (nil, nil)
func (s *MemoryStore) GetBlockMetadata(ctx context.Context, blockID string) (*models.BlockMetadata, error) {
	var meta models.BlockMetadata
	if err := s.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		First(&meta).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询块标签失败: %w", err)
	}
	return &meta, nil
}

// ========== 对话片段(读路径) ==========

// CreateChunk 写入一个检索片段
func (s *MemoryStore) CreateChunk(ctx context.Context, chunk *models.ConversationChunk) error {
	if err := s.db.WithContext(ctx).Create(chunk).Error; err != nil {
		return fmt.Errorf("创建对话片段失败: %w", err)
	}
	return nil
}

// GetChunks 按 ID 批量读取片段,保持入参顺序
func (s *MemoryStore) GetChunks(ctx context.Context, chunkIDs []string) ([]models.ConversationChunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	var chunks []models.ConversationChunk
	if err := s.db.WithContext(ctx).
		Where("chunk_id IN ?", chunkIDs).
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("查询对话片段失败: %w", err)
	}

	// 恢复调用方给定的顺序(检索排序即相关度排序)
	byID := make(map[string]models.ConversationChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}
	ordered := make([]models.ConversationChunk, 0, len(chunks))
	for _, id := range chunkIDs {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// ========== 档案 ==========

// CreateDossier 创建档案
func (s *MemoryStore) CreateDossier(ctx context.Context, dossier *models.Dossier) error {
	if err := s.db.WithContext(ctx).Create(dossier).Error; err != nil {
		return fmt.Errorf("创建档案失败: %w", err)
	}
	return nil
}

// GetDossier 按 ID 读取档案,不存在时返回 ErrDossierNotFound
func (s *MemoryStore) GetDossier(ctx context.Context, dossierID string) (*models.Dossier, error) {
	var dossier models.Dossier
	if err := s.db.WithContext(ctx).
		Where("dossier_id = ?", dossierID).
		First(&dossier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDossierNotFound
		}
		return nil, fmt.Errorf("查询档案失败: %w", err)
	}
	return &dossier, nil
}

// ListDossiers 分页列出档案,按最近修改排序
func (s *MemoryStore) ListDossiers(ctx context.Context, limit, offset int) ([]models.Dossier, int64, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Dossier{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计档案数失败: %w", err)
	}

	var dossiers []models.Dossier
	if err := s.db.WithContext(ctx).
		Order("last_modified DESC").
		Limit(limit).
		Offset(offset).
		Find(&dossiers).Error; err != nil {
		return nil, 0, fmt.Errorf("查询档案列表失败: %w", err)
	}
	return dossiers, total, nil
}

// UpdateDossierSummary 整体覆盖档案摘要并刷新修改时间
func (s *MemoryStore) UpdateDossierSummary(ctx context.Context, dossierID, summary string) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Dossier{}).
		Where("dossier_id = ?", dossierID).
		Updates(map[string]interface{}{
			"summary":       summary,
			"last_modified": time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("更新档案摘要失败: %w", err)
	}
	return nil
}

// TouchDossier 刷新档案修改时间
func (s *MemoryStore) TouchDossier(ctx context.Context, dossierID string) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Dossier{}).
		Where("dossier_id = ?", dossierID).
		Update("last_modified", time.Now()).Error; err != nil {
		return fmt.Errorf("更新档案修改时间失败: %w", err)
	}
	return nil
}

// AddDossierFact 追加一条档案事实
func (s *MemoryStore) AddDossierFact(ctx context.Context, fact *models.DossierFact) error {
	if err := s.db.WithContext(ctx).Create(fact).Error; err != nil {
		return fmt.Errorf("追加档案事实失败: %w", err)
	}
	return nil
}

// GetDossierFacts 读取档案全部事实,按写入顺序
func (s *MemoryStore) GetDossierFacts(ctx context.Context, dossierID string) ([]models.DossierFact, error) {
	var facts []models.DossierFact
	if err := s.db.WithContext(ctx).
		Where("dossier_id = ?", dossierID).
		Order("created_at ASC").
		Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("查询档案事实失败: %w", err)
	}
	return facts, nil
}

// CountDossierFacts 统计档案事实数
func (s *MemoryStore) CountDossierFacts(ctx context.Context, dossierID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.DossierFact{}).
		Where("dossier_id = ?", dossierID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计档案事实失败: %w", err)
	}
	return count, nil
}

// ========== 审计 ==========

// AddProvenance 追加一条档案变更审计记录
func (s *MemoryStore) AddProvenance(ctx context.Context, entry *models.ProvenanceEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	return nil
}

// GetProvenance 读取档案审计记录,按时间排序
func (s *MemoryStore) GetProvenance(ctx context.Context, dossierID string) ([]models.ProvenanceEntry, error) {
	var entries []models.ProvenanceEntry
	if err := s.db.WithContext(ctx).
		Where("dossier_id = ?", dossierID).
		Order("timestamp ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	return entries, nil
}
