package assemble

import (
	"net/http"

	"hmlr/internal/assembler"

	"github.com/gin-gonic/gin"
)

// AssembleRequest 上下文装配请求
type AssembleRequest struct {
	ChunkIDs   []string `json:"chunk_ids"`
	DossierIDs []string `json:"dossier_ids"`
}

// Handler 上下文装配 Handler
type Handler struct {
	assembler *assembler.ContextAssembler
}

// NewHandler 创建 Handler
func NewHandler(a *assembler.ContextAssembler) *Handler {
	return &Handler{assembler: a}
}

// Assemble 装配上下文
// @Summary 装配注入上下文
// @Description 按块聚合水合片段、注入粘性标签与档案摘要,在 Token 预算内渲染
// @Tags Context
// @Accept json
// @Produce json
// @Param request body AssembleRequest true "检索层给出的片段与档案 ID"
// @Success 200 {object} assembler.AssembledContext
// @Failure 400 {object} map[string]string
// @Router /api/v1/context/assemble [post]
func (h *Handler) Assemble(c *gin.Context) {
	var req AssembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.assembler.AssembleFullContext(c.Request.Context(), req.ChunkIDs, req.DossierIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
