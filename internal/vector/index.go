package vector

import "context"

// FactHit 一次相似度检索命中的档案事实
type FactHit struct {
	FactID    string  `json:"fact_id"`
	DossierID string  `json:"dossier_id"`
	Score     float64 `json:"score"`
}

// FactIndex 档案事实向量索引
// 相似度低于阈值的结果由索引侧过滤,路由器拿到的命中全部有效
type FactIndex interface {
	// SaveEmbedding 为一条档案事实写入向量
	SaveEmbedding(ctx context.Context, factID, dossierID, text string) error

	// Search 对单条查询文本做近邻检索
	Search(ctx context.Context, query string, topK int, threshold float64) ([]*FactHit, error)

	// Count 统计某个档案已入索引的事实数
	Count(ctx context.Context, dossierID string) (int64, error)
}
