package handler

import (
	"net/http"
	"strconv"
	"strings"

	"project-chimera/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ListMemos godoc
// @Summary      List investment memos
// @Description  Returns memo summaries for the current user, newest first
// @Tags         memos
// @Produce      json
// @Security     BearerAuth
// @Param        ticker  query  string  false  "Filter by ticker"
// @Param        status  query  string  false  "Filter by status (pending, approved, rejected)"
// @Param        limit   query  int     false  "Number of memos (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /memos [get]
func (h *Handler) ListMemos(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-memos")
	defer span.End()

	filter := domain.MemoFilter{
		UserID: currentUserID(c),
		Ticker: strings.TrimSpace(c.Query("ticker")),
		Status: domain.MemoStatus(strings.TrimSpace(c.Query("status"))),
	}
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		filter.Limit = n
	}

	memos, err := h.memoService.List(ctx, filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memos": memos})
}

// GetMemo godoc
// @Summary      Get one memo with its agent outputs
// @Tags         memos
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  int  true  "Memo ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /memos/{id} [get]
func (h *Handler) GetMemo(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-memo")
	defer span.End()

	id, ok := pathID(c)
	if !ok {
		return
	}
	memo, err := h.memoService.Get(ctx, id, currentUserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memo": memo})
}

type decisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approved rejected"`
	Notes    string `json:"notes"`
}

// DecideMemo godoc
// @Summary      Approve or reject a pending memo
// @Description  The decision is single-shot: re-deciding returns 409
// @Tags         memos
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  int              true  "Memo ID"
// @Param        body  body  decisionRequest  true  "Decision payload"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /memos/{id}/decision [post]
func (h *Handler) DecideMemo(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.decide-memo")
	defer span.End()

	id, ok := pathID(c)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	memo, err := h.memoService.Decide(ctx, id, currentUserID(c), domain.MemoStatus(req.Decision), req.Notes)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memo": memo})
}

// DeleteMemo godoc
// @Summary      Delete a memo
// @Tags         memos
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  int  true  "Memo ID"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /memos/{id} [delete]
func (h *Handler) DeleteMemo(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.delete-memo")
	defer span.End()

	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.memoService.Delete(ctx, id, currentUserID(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GenerateMemo godoc
// @Summary      Start a basic analysis run
// @Description  Returns 202 with the queued run; poll /api/runs/{id} for progress
// @Tags         memos
// @Produce      json
// @Security     BearerAuth
// @Param        ticker  path  string  true  "Stock ticker"
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /memos/generate/{ticker} [post]
func (h *Handler) GenerateMemo(c *gin.Context) {
	h.startRun(c, domain.ModeBasic, "handler.generate-memo")
}

// GenerateEnhancedMemo godoc
// @Summary      Start an enhanced analysis run with debate and risk perspectives
// @Tags         memos
// @Produce      json
// @Security     BearerAuth
// @Param        ticker  path  string  true  "Stock ticker"
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /memos/generate-enhanced/{ticker} [post]
func (h *Handler) GenerateEnhancedMemo(c *gin.Context) {
	h.startRun(c, domain.ModeEnhanced, "handler.generate-enhanced-memo")
}

func (h *Handler) startRun(c *gin.Context, mode domain.AnalysisMode, spanName string) {
	ctx, span := h.tracer.Start(c.Request.Context(), spanName)
	defer span.End()

	ticker := strings.TrimSpace(c.Param("ticker"))
	span.SetAttributes(attribute.String("ticker", ticker))

	run, err := h.analysisService.Generate(ctx, currentUserID(c), ticker, mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// GenerateAllMemos godoc
// @Summary      Start runs for every watchlist ticker without a memo from today
// @Tags         memos
// @Produce      json
// @Security     BearerAuth
// @Param        mode  query  string  false  "Analysis mode (basic or enhanced)"  default(basic)
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /memos/generate-all [post]
func (h *Handler) GenerateAllMemos(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.generate-all-memos")
	defer span.End()

	mode := domain.AnalysisMode(strings.TrimSpace(c.DefaultQuery("mode", string(domain.ModeBasic))))
	if !mode.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be basic or enhanced"})
		return
	}
	runs, skipped, err := h.analysisService.GenerateAll(ctx, currentUserID(c), mode)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runs": runs, "skipped": skipped})
}

// CleanupPendingMemos godoc
// @Summary      Auto-reject memos stuck in pending
// @Description  Idempotent: already-decided memos are never touched
// @Tags         memos
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /memos/cleanup-pending [post]
func (h *Handler) CleanupPendingMemos(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.cleanup-pending-memos")
	defer span.End()

	n, err := h.memoService.CleanupPending(ctx, currentUserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": n})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}
