package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/provider"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/quote-stream/pkg/models"
)

const (
	apiName    = "Stock Ticker API"
	apiVersion = "1.0.0"
)

// Handler serves the REST endpoints and upgrades /ws connections.
type Handler struct {
	hub      *hub.Hub
	provider provider.QuoteProvider
	// optional
	store   repository.SnapshotStore
	limiter repository.RateLimiter

	logger  *zap.Logger
	opts    gateway.Options
	baseCtx context.Context
}

// NewHandler wires the HTTP surface. baseCtx outlives individual requests and
// bounds work done for websocket clients after the upgrade. store and limiter
// may be nil.
func NewHandler(
	baseCtx context.Context,
	h *hub.Hub,
	p provider.QuoteProvider,
	store repository.SnapshotStore,
	limiter repository.RateLimiter,
	logger *zap.Logger,
	opts gateway.Options,
) *Handler {
	return &Handler{
		hub:      h,
		provider: p,
		store:    store,
		limiter:  limiter,
		logger:   logger.Named("api"),
		opts:     opts,
		baseCtx:  baseCtx,
	}
}

type stockResponse struct {
	Quote      models.Quote  `json:"quote"`
	Historical models.Series `json:"historical"`
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": apiName, "version": apiVersion})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "up",
		"connections": h.hub.Registry().Len(),
		"symbols":     h.hub.Registry().SymbolCount(),
	})
}

// GetQuote handles GET /api/quote/:symbol
func (h *Handler) GetQuote(c *gin.Context) {
	q, ok := h.fetchQuote(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, q)
}

// GetStock handles GET /api/stock/:symbol?period=1mo
func (h *Handler) GetStock(c *gin.Context) {
	q, ok := h.fetchQuote(c)
	if !ok {
		return
	}
	period := c.DefaultQuery("period", provider.DefaultPeriod)
	c.JSON(http.StatusOK, stockResponse{
		Quote:      q,
		Historical: h.provider.FetchHistory(c.Request.Context(), q.Symbol, period),
	})
}

// Search handles GET /api/search/:query. Never fails; unknown queries give [].
func (h *Handler) Search(c *gin.Context) {
	results := h.provider.Search(c.Request.Context(), models.NormalizeSymbol(c.Param("query")))
	if results == nil {
		results = []models.SearchResult{}
	}
	c.JSON(http.StatusOK, results)
}

// Snapshots handles GET /api/snapshots?symbols=AAPL,MSFT from the Redis cache.
func (h *Handler) Snapshots(c *gin.Context) {
	quotes := []models.Quote{}
	if h.store == nil {
		c.JSON(http.StatusOK, quotes)
		return
	}

	var symbols []string
	for _, s := range strings.Split(c.Query("symbols"), ",") {
		if s = models.NormalizeSymbol(s); s != "" {
			symbols = append(symbols, s)
		}
	}

	found, err := h.store.GetSnapshots(c.Request.Context(), symbols)
	if err != nil {
		h.logger.Error("Snapshot lookup failed", zap.Strings("symbols", symbols), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "snapshot cache unavailable"})
		return
	}
	c.JSON(http.StatusOK, append(quotes, found...))
}

func (h *Handler) fetchQuote(c *gin.Context) (models.Quote, bool) {
	symbol := models.NormalizeSymbol(c.Param("symbol"))
	q, err := h.provider.FetchQuote(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"detail": fmt.Sprintf("Could not fetch data for symbol: %s. Error: %v", symbol, err),
		})
		return models.Quote{}, false
	}
	return q, true
}
