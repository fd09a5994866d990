package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"hmlr/internal/gardener"
	"hmlr/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type GardenerHandler struct {
	gardener *gardener.BlockGardener
	logger   *zap.Logger
}

func NewGardenerHandler(g *gardener.BlockGardener, logger *zap.Logger) *GardenerHandler {
	return &GardenerHandler{
		gardener: g,
		logger:   logger,
	}
}

func (h *GardenerHandler) HandleGardenBlock(ctx context.Context, t *asynq.Task) error {
	var p tasks.GardenBlockPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始园丁任务", zap.String("block_id", p.BlockID))

	result, err := h.gardener.Garden(ctx, p.BlockID)
	if err != nil {
		h.logger.Error("园丁任务失败", zap.String("block_id", p.BlockID), zap.Error(err))
		return err
	}

	h.logger.Info("园丁任务完成",
		zap.String("block_id", p.BlockID),
		zap.String("status", result.Status),
		zap.Int("facts_processed", result.FactsProcessed),
		zap.Int("dossiers_created", result.DossiersCreated),
	)
	return nil
}
