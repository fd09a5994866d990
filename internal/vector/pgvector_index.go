package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// FactEmbedding 档案事实的向量行,以 (fact_id, dossier_id) 为键
type FactEmbedding struct {
	FactID    string          `gorm:"type:varchar(64);primaryKey"`
	DossierID string          `gorm:"type:varchar(64);not null;index:idx_femb_dossier"`
	Content   string          `gorm:"type:text;not null"`
	Embedding pgvector.Vector `gorm:"type:vector(1536)"`
	Model     string          `gorm:"type:varchar(100)"`
	CreatedAt time.Time       `gorm:"not null"`
}

// TableName 指定表名
func (FactEmbedding) TableName() string {
	return "fact_embeddings"
}

// PGVectorIndex 基于PostgreSQL pgvector扩展的事实向量索引实现
type PGVectorIndex struct {
	db       *gorm.DB
	provider EmbeddingProvider
}

// NewPGVectorIndex 创建pgvector索引实例
func NewPGVectorIndex(db *gorm.DB, provider EmbeddingProvider) (*PGVectorIndex, error) {
	idx := &PGVectorIndex{
		db:       db,
		provider: provider,
	}

	// 确保pgvector扩展已启用
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("确保pgvector扩展失败: %w", err)
	}

	if err := db.AutoMigrate(&FactEmbedding{}); err != nil {
		return nil, fmt.Errorf("迁移向量表失败: %w", err)
	}

	return idx, nil
}

// SaveEmbedding 为一条档案事实写入向量
func (s *PGVectorIndex) SaveEmbedding(ctx context.Context, factID, dossierID, text string) error {
	if factID == "" || dossierID == "" {
		return fmt.Errorf("fact_id 与 dossier_id 不能为空")
	}

	embedding, err := s.provider.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("事实向量化失败: %w", err)
	}

	row := &FactEmbedding{
		FactID:    factID,
		DossierID: dossierID,
		Content:   text,
		Embedding: pgvector.NewVector(embedding),
		Model:     s.provider.GetModel(),
		CreatedAt: time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("写入事实向量失败: %w", err)
	}

	return nil
}

// Search 对单条查询文本做近邻检索
// 使用余弦相似度: 1 - (embedding <=> query) >= threshold 的结果才返回
func (s *PGVectorIndex) Search(ctx context.Context, query string, topK int, threshold float64) ([]*FactHit, error) {
	if query == "" {
		return nil, fmt.Errorf("查询文本不能为空")
	}
	if topK <= 0 {
		topK = 10
	}

	queryEmbedding, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	queryVec := pgvector.NewVector(queryEmbedding)

	// <=> 是pgvector的余弦距离操作符
	sql := `
		SELECT
			fact_id,
			dossier_id,
			1 - (embedding <=> $1::vector) AS score
		FROM fact_embeddings
		WHERE 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`

	var rows []struct {
		FactID    string  `gorm:"column:fact_id"`
		DossierID string  `gorm:"column:dossier_id"`
		Score     float64 `gorm:"column:score"`
	}

	if err := s.db.WithContext(ctx).Raw(sql, queryVec, threshold, topK).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("向量搜索失败: %w", err)
	}

	hits := make([]*FactHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, &FactHit{
			FactID:    r.FactID,
			DossierID: r.DossierID,
			Score:     r.Score,
		})
	}

	return hits, nil
}

// Count 统计某个档案已入索引的事实数
func (s *PGVectorIndex) Count(ctx context.Context, dossierID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&FactEmbedding{}).
		Where("dossier_id = ?", dossierID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计档案向量数失败: %w", err)
	}
	return count, nil
}
