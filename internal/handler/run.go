package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetRun godoc
// @Summary      Poll an analysis run
// @Tags         runs
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  int  true  "Run ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/runs/{id} [get]
func (h *Handler) GetRun(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-run")
	defer span.End()

	id, ok := pathID(c)
	if !ok {
		return
	}
	run, err := h.analysisService.GetRun(ctx, id, currentUserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// CancelRun godoc
// @Summary      Cancel an in-flight analysis run
// @Tags         runs
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  int  true  "Run ID"
// @Success      202  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/runs/{id} [delete]
func (h *Handler) CancelRun(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.cancel-run")
	defer span.End()

	id, ok := pathID(c)
	if !ok {
		return
	}
	if !h.analysisService.Cancel(currentUserID(c), id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run is not active"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// StreamRuns godoc
// @Summary      Stream run state transitions over a websocket
// @Tags         runs
// @Security     BearerAuth
// @Success      101  {string}  string  "Switching protocols"
// @Router       /api/runs/stream [get]
func (h *Handler) StreamRuns(c *gin.Context) {
	userID := currentUserID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(userID)
	defer cancel()

	// Reader goroutine notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("run stream write for user %d: %v", userID, err)
				return
			}
		case <-closed:
			return
		}
	}
}
