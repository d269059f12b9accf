package handler

import (
	"errors"
	"net/http"

	"project-chimera/internal/domain"
	"project-chimera/internal/service"
	"project-chimera/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	tracer           trace.Tracer
	authService      *service.AuthService
	memoService      *service.MemoService
	watchlistService *service.WatchlistService
	analysisService  *service.AnalysisService
	marketService    *service.MarketService
	hub              *stream.Hub
	upgrader         websocket.Upgrader
}

func New(
	tracer trace.Tracer,
	authService *service.AuthService,
	memoService *service.MemoService,
	watchlistService *service.WatchlistService,
	analysisService *service.AnalysisService,
	marketService *service.MarketService,
	hub *stream.Hub,
) *Handler {
	return &Handler{
		tracer:           tracer,
		authService:      authService,
		memoService:      memoService,
		watchlistService: watchlistService,
		analysisService:  analysisService,
		marketService:    marketService,
		hub:              hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/me", h.RequireAuth, h.Me)

	authed := r.Group("/", h.RequireAuth)
	{
		authed.GET("/memos", h.ListMemos)
		authed.GET("/memos/:id", h.GetMemo)
		authed.POST("/memos/:id/decision", h.DecideMemo)
		authed.DELETE("/memos/:id", h.DeleteMemo)
		authed.POST("/memos/generate/:ticker", h.GenerateMemo)
		authed.POST("/memos/generate-enhanced/:ticker", h.GenerateEnhancedMemo)
		authed.POST("/memos/generate-all", h.GenerateAllMemos)
		authed.POST("/memos/cleanup-pending", h.CleanupPendingMemos)

		authed.GET("/watchlist", h.GetWatchlist)
		authed.POST("/watchlist", h.AddToWatchlist)
		authed.DELETE("/watchlist/:ticker", h.RemoveFromWatchlist)

		authed.GET("/api/runs/:id", h.GetRun)
		authed.DELETE("/api/runs/:id", h.CancelRun)
		authed.GET("/api/runs/stream", h.StreamRuns)

		authed.GET("/api/delta/:ticker/cards", h.GetDeltaCards)
		authed.POST("/api/delta/:ticker/memo", h.GenerateDeltaMemo)

		authed.POST("/api/snapshots", h.IngestSnapshot)
	}
}

// Health godoc
// @Summary      Service health check
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFromErr maps domain sentinels to HTTP status codes. Anything
// unclassified is a 500.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrWatchlistFull):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDataUnavailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFromErr(err), gin.H{"error": err.Error()})
}
