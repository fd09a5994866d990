package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hmlr_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hmlr_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 园丁管线指标
var (
	// BlocksGardenedTotal 已处理的桥接块总数
	BlocksGardenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hmlr_blocks_gardened_total",
			Help: "园丁处理的桥接块总数",
		},
		[]string{"status"}, // success, not_found, error
	)

	// GardenDuration 单个桥接块处理耗时（秒）
	GardenDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hmlr_garden_duration_seconds",
			Help:    "园丁处理耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// TagsAppliedTotal 已落库的粘性标签总数
	TagsAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hmlr_tags_applied_total",
			Help: "已落库的粘性标签总数(全局标签+分段规则)",
		},
	)
)

// 档案路由指标
var (
	// DossierRoutesTotal 档案路由决策总数
	DossierRoutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hmlr_dossier_routes_total",
			Help: "档案路由决策总数",
		},
		[]string{"action"}, // append, create, create_fallback
	)

	// RoutingVoteCandidates 每次路由投票产生的候选档案数
	RoutingVoteCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hmlr_routing_vote_candidates",
			Help:    "多向量投票候选数分布",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)
)
