package dossiers

import (
	"errors"
	"net/http"
	"strconv"

	"hmlr/internal/memory"

	"github.com/gin-gonic/gin"
)

// Handler 档案 Handler
type Handler struct {
	store *memory.MemoryStore
}

// NewHandler 创建 Handler
func NewHandler(store *memory.MemoryStore) *Handler {
	return &Handler{store: store}
}

// List 分页列出档案
// @Summary 列出档案
// @Description 按最近修改时间排序分页返回
// @Tags Dossiers
// @Produce json
// @Param limit query int false "每页条数" default(20)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} map[string]any
// @Router /api/v1/dossiers [get]
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	dossiers, total, err := h.store.ListDossiers(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dossiers": dossiers,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// Get 查询单份档案,携带全部事实与审计记录
// @Summary 查询档案详情
// @Tags Dossiers
// @Produce json
// @Param id path string true "档案 ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/v1/dossiers/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	dossierID := c.Param("id")
	ctx := c.Request.Context()

	dossier, err := h.store.GetDossier(ctx, dossierID)
	if err != nil {
		if errors.Is(err, memory.ErrDossierNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "dossier not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	facts, err := h.store.GetDossierFacts(ctx, dossierID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	provenance, err := h.store.GetProvenance(ctx, dossierID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dossier":    dossier,
		"facts":      facts,
		"provenance": provenance,
	})
}
