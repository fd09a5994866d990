package blocks

import (
	"errors"
	"net/http"

	"hmlr/internal/infra/queue"
	"hmlr/internal/memory"

	"github.com/gin-gonic/gin"
)

// Handler 桥接块 Handler
type Handler struct {
	store *memory.MemoryStore
	queue queue.Client
}

// NewHandler 创建 Handler
func NewHandler(store *memory.MemoryStore, queue queue.Client) *Handler {
	return &Handler{store: store, queue: queue}
}

// Garden 触发园丁处理
// @Summary 触发桥接块园丁处理
// @Description 将块投入后台队列,202 表示已接受;同块重复投递被队列去重
// @Tags Blocks
// @Produce json
// @Param id path string true "块 ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/blocks/{id}/garden [post]
func (h *Handler) Garden(c *gin.Context) {
	blockID := c.Param("id")

	if _, err := h.store.GetBlock(c.Request.Context(), blockID); err != nil {
		if errors.Is(err, memory.ErrBlockNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.queue.EnqueueGardenBlock(blockID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "queued",
		"block_id": blockID,
	})
}

// Get 查询桥接块
// @Summary 查询桥接块
// @Tags Blocks
// @Produce json
// @Param id path string true "块 ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/v1/blocks/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	blockID := c.Param("id")

	block, err := h.store.GetBlock(c.Request.Context(), blockID)
	if err != nil {
		if errors.Is(err, memory.ErrBlockNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"block": block})
}
