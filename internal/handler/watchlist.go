package handler

import (
	"net/http"

	"project-chimera/internal/domain"

	"github.com/gin-gonic/gin"
)

// GetWatchlist godoc
// @Summary      List watchlist tickers
// @Tags         watchlist
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /watchlist [get]
func (h *Handler) GetWatchlist(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-watchlist")
	defer span.End()

	tickers, err := h.watchlistService.List(ctx, currentUserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickers": tickers, "capacity": domain.WatchlistCap})
}

type watchlistRequest struct {
	Ticker string `json:"ticker" binding:"required"`
}

// AddToWatchlist godoc
// @Summary      Add a ticker to the watchlist
// @Description  The watchlist holds at most 20 tickers
// @Tags         watchlist
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  watchlistRequest  true  "Ticker payload"
// @Success      201  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /watchlist [post]
func (h *Handler) AddToWatchlist(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.add-to-watchlist")
	defer span.End()

	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ticker, err := h.watchlistService.Add(ctx, currentUserID(c), req.Ticker)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticker": ticker})
}

// RemoveFromWatchlist godoc
// @Summary      Remove a ticker and cancel its in-flight runs
// @Tags         watchlist
// @Produce      json
// @Security     BearerAuth
// @Param        ticker  path  string  true  "Stock ticker"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /watchlist/{ticker} [delete]
func (h *Handler) RemoveFromWatchlist(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.remove-from-watchlist")
	defer span.End()

	if err := h.watchlistService.Remove(ctx, currentUserID(c), c.Param("ticker")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
