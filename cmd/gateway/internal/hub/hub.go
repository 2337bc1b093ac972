package hub

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/provider"
	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// Hub interprets client commands against the Registry and fans quotes out to
// interested connections.
type Hub struct {
	registry     *Registry
	dispatcher   *Dispatcher
	provider     provider.QuoteProvider
	logger       *zap.Logger
	fetchTimeout time.Duration
}

func NewHub(registry *Registry, p provider.QuoteProvider, logger *zap.Logger, fetchTimeout time.Duration) *Hub {
	return &Hub{
		registry:     registry,
		dispatcher:   NewDispatcher(),
		provider:     p,
		logger:       logger.Named("hub"),
		fetchTimeout: fetchTimeout,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

// SnapshotDistinctSymbols is the set of symbols with at least one subscriber.
func (h *Hub) SnapshotDistinctSymbols() []string { return h.registry.SnapshotDistinctSymbols() }

// Connect registers a freshly accepted connection with no subscriptions.
func (h *Hub) Connect(conn Conn) error {
	if err := h.registry.Register(conn); err != nil {
		return err
	}
	h.logger.Debug("Client connected", zap.String("conn", conn.ID()), zap.Int("clients", h.registry.Len()))
	return nil
}

// HandleMessage decodes one inbound text frame. Malformed payloads are dropped
// and the connection stays open.
func (h *Hub) HandleMessage(ctx context.Context, conn Conn, payload []byte) {
	var req protocol.WSRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.logger.Debug("Ignoring malformed message", zap.String("conn", conn.ID()), zap.Error(err))
		return
	}
	h.HandleCommand(ctx, conn, req)
}

func (h *Hub) HandleCommand(ctx context.Context, conn Conn, req protocol.WSRequest) {
	symbol := models.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		h.logger.Debug("Ignoring command without symbol", zap.String("conn", conn.ID()), zap.String("action", req.Action))
		return
	}

	switch req.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(ctx, conn, symbol)
	case protocol.ActionUnsubscribe:
		h.registry.Unsubscribe(conn, symbol)
	default:
		h.logger.Debug("Ignoring unknown action", zap.String("conn", conn.ID()), zap.String("action", req.Action))
	}
}

// handleSubscribe records interest, then answers with one immediate quote so the
// client does not wait for the next refresh. A failed fetch leaves the
// subscription in place.
func (h *Hub) handleSubscribe(ctx context.Context, conn Conn, symbol string) {
	if !h.registry.Subscribe(conn, symbol) {
		// disconnected concurrently
		return
	}

	fetchCtx := ctx
	if h.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, h.fetchTimeout)
		defer cancel()
	}

	msg := protocol.InvalidSymbolMessage(symbol)
	q, err := h.provider.FetchQuote(fetchCtx, symbol)
	if err != nil {
		h.logger.Debug("Initial fetch failed", zap.String("symbol", symbol), zap.Error(err))
	} else {
		msg = protocol.QuoteMessage(q)
	}

	if err := h.dispatcher.Push(conn, msg); err != nil {
		h.dropConn(conn, err)
	}
}

// Broadcast pushes q to every connection subscribed to its symbol and returns
// how many pushes succeeded. Failed connections are dropped; the rest still receive it.
func (h *Hub) Broadcast(q models.Quote) int {
	conns := h.registry.ConnectionsInterestedIn(q.Symbol)
	if len(conns) == 0 {
		return 0
	}

	b, err := json.Marshal(protocol.QuoteMessage(q))
	if err != nil {
		h.logger.Error("Failed to encode quote", zap.String("symbol", q.Symbol), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, conn := range conns {
		if err := h.dispatcher.PushRaw(conn, b); err != nil {
			h.dropConn(conn, err)
			continue
		}
		delivered++
	}
	return delivered
}

// Disconnect removes conn from the registry and closes it. Safe to call more than once.
func (h *Hub) Disconnect(conn Conn) {
	if h.registry.Unregister(conn) {
		h.logger.Debug("Client disconnected", zap.String("conn", conn.ID()), zap.Int("clients", h.registry.Len()))
	}
	conn.Close()
}

func (h *Hub) dropConn(conn Conn, err error) {
	h.logger.Debug("Push failed, dropping client", zap.String("conn", conn.ID()), zap.Error(err))
	h.Disconnect(conn)
}

// Shutdown disconnects every client. Used when the server stops.
func (h *Hub) Shutdown() {
	conns := h.registry.Conns()
	for _, conn := range conns {
		h.Disconnect(conn)
	}
	h.logger.Info("Hub shut down", zap.Int("clients_closed", len(conns)))
}
