package api

import (
	assembleHandlers "hmlr/api/handlers/assemble"
	blockHandlers "hmlr/api/handlers/blocks"
	dossierHandlers "hmlr/api/handlers/dossiers"
	"hmlr/internal/ai"
	"hmlr/internal/assembler"
	"hmlr/internal/config"
	"hmlr/internal/dossier"
	"hmlr/internal/gardener"
	"hmlr/internal/infra/queue"
	"hmlr/internal/logger"
	"hmlr/internal/memory"
	"hmlr/internal/metrics"
	"hmlr/internal/vector"
	"hmlr/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 设置并返回 Gin 路由和 Worker 服务器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server) {
	router := gin.New()

	// 初始化队列客户端
	queueClient := queue.NewClient(cfg.Redis)

	// 初始化存储层
	store := memory.NewMemoryStore(db)
	idGen := memory.NewIDGenerator()

	// 初始化 LLM 客户端
	llmClient, err := ai.NewOpenAIClient(cfg.AI.OpenAI)
	if err != nil {
		logger.Fatal("初始化 LLM 客户端失败", zap.Error(err))
	}

	// 初始化向量索引
	embeddingProvider := vector.NewOpenAIEmbeddingProvider(
		cfg.AI.OpenAI.APIKey,
		cfg.AI.OpenAI.BaseURL,
		cfg.AI.OpenAI.EmbeddingModel,
	)
	factIndex, err := vector.NewPGVectorIndex(db, embeddingProvider)
	if err != nil {
		logger.Fatal("初始化向量索引失败", zap.Error(err))
	}

	// 初始化写路径管线: 分类 -> 分组 -> 路由 -> 写入
	classifier := gardener.NewFactClassifier(llmClient, logger.Get())
	grouper := gardener.NewSemanticGrouper(llmClient, logger.Get())
	writer := dossier.NewDossierWriter(store, factIndex, llmClient, idGen, logger.Get())
	dossierRouter := dossier.NewDossierRouter(factIndex, llmClient, store, writer, cfg.Memory, logger.Get())
	blockGardener := gardener.NewBlockGardener(store, classifier, grouper, dossierRouter, logger.Get())

	// 初始化读路径装配器
	contextAssembler := assembler.NewContextAssembler(store, cfg.Memory.ContextTokenBudget, logger.Get())

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 初始化 Handlers
	blockHandler := blockHandlers.NewHandler(store, queueClient)
	dossierHandler := dossierHandlers.NewHandler(store)
	assembleHandler := assembleHandlers.NewHandler(contextAssembler)

	// 路由注册器，方便同时挂载 /api 与 /api/v1
	registerAPIRoutes := func(apiGroup *gin.RouterGroup) {
		// 桥接块
		blocksGroup := apiGroup.Group("/blocks")
		{
			blocksGroup.GET("/:id", blockHandler.Get)
			blocksGroup.POST("/:id/garden", blockHandler.Garden)
		}

		// 档案
		dossiersGroup := apiGroup.Group("/dossiers")
		{
			dossiersGroup.GET("", dossierHandler.List)
			dossiersGroup.GET("/:id", dossierHandler.Get)
		}

		// 上下文装配
		apiGroup.POST("/context/assemble", assembleHandler.Assemble)
	}

	// 主 API 组（向后兼容）
	apiGroup := router.Group("/api")
	registerAPIRoutes(apiGroup)

	// 版本化 API 组
	apiV1 := router.Group("/api/v1")
	registerAPIRoutes(apiV1)

	// 初始化 Worker 服务器
	workerServer := worker.NewServer(cfg.Redis, blockGardener, logger.Get())

	return router, workerServer
}
