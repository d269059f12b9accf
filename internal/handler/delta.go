package handler

import (
	"net/http"
	"strconv"
	"strings"

	"project-chimera/internal/domain"

	"github.com/gin-gonic/gin"
)

// GetDeltaCards godoc
// @Summary      List detected changes for a ticker
// @Description  Cards describe filing, price and news changes since the previous snapshot
// @Tags         delta
// @Produce      json
// @Security     BearerAuth
// @Param        ticker  path   string  true   "Stock ticker"
// @Param        limit   query  int     false  "Number of cards (default 20)"  default(20)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/delta/{ticker}/cards [get]
func (h *Handler) GetDeltaCards(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-delta-cards")
	defer span.End()

	limit := 20
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	cards, err := h.marketService.Cards(ctx, c.Param("ticker"), limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards})
}

// GenerateDeltaMemo godoc
// @Summary      Start an enhanced run in response to detected changes
// @Description  Delta analysis reuses the full pipeline so the memo carries every agent's view of the change
// @Tags         delta
// @Produce      json
// @Security     BearerAuth
// @Param        ticker  path  string  true  "Stock ticker"
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/delta/{ticker}/memo [post]
func (h *Handler) GenerateDeltaMemo(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.delta-memo")
	defer span.End()

	run, err := h.analysisService.Generate(ctx, currentUserID(c), c.Param("ticker"), domain.ModeEnhanced)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// IngestSnapshot godoc
// @Summary      Ingest a market snapshot
// @Description  Replaces the ticker's snapshot and returns the delta cards the change produced
// @Tags         delta
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  domain.MarketSnapshot  true  "Snapshot payload"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/snapshots [post]
func (h *Handler) IngestSnapshot(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.ingest-snapshot")
	defer span.End()

	var snap domain.MarketSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cards, err := h.marketService.Ingest(ctx, snap)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards})
}
