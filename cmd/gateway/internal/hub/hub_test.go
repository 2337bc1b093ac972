package hub_test

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/quote-stream/pkg/models"
)

func setup(failing ...string) (*hub.Hub, *testutils.MockProvider) {
	p := testutils.NewMockProvider(failing...)
	return hub.NewHub(hub.NewRegistry(), p, zap.NewNop(), 0), p
}

func connect(t *testing.T, h *hub.Hub, id string) *testutils.MockClient {
	t.Helper()
	c := testutils.NewMockClient(id)
	if err := h.Connect(c); err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	return c
}

func TestHub_Subscribe_SendsImmediateQuote(t *testing.T) {
	h, p := setup()
	client := connect(t, h, "c1")

	h.HandleMessage(context.Background(), client, []byte(`{"action":"subscribe","symbol":"aapl"}`))

	msg, ok := client.LastMsg()
	if !ok || msg.Type != protocol.TypeQuote {
		t.Fatalf("Expected quote push, got %+v", msg)
	}
	if msg.Data == nil || msg.Data.Symbol != "AAPL" {
		t.Errorf("Expected quote for AAPL, got %+v", msg.Data)
	}
	if p.CallCount("AAPL") != 1 {
		t.Errorf("Expected one upstream fetch, got %d", p.CallCount("AAPL"))
	}
	if got := h.Registry().Subscriptions(client); len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("Expected subscription set [AAPL], got %v", got)
	}
}

func TestHub_Subscribe_InvalidSymbol(t *testing.T) {
	h, _ := setup("ZZZZ")
	client := connect(t, h, "c1")

	h.HandleCommand(context.Background(), client, protocol.WSRequest{Action: "subscribe", Symbol: "zzzz"})

	msg, _ := client.LastMsg()
	if msg.Type != protocol.TypeError || msg.Message != "Invalid symbol: ZZZZ" {
		t.Errorf("Expected invalid symbol error, got %+v", msg)
	}
	// The subscription survives a failed first fetch.
	if got := h.Registry().Subscriptions(client); len(got) != 1 {
		t.Errorf("Expected symbol to stay subscribed, got %v", got)
	}
	if client.IsClosed() {
		t.Error("Connection should stay open after a fetch failure")
	}
}

func TestHub_CaseInsensitiveRoundTrip(t *testing.T) {
	h, _ := setup()
	client := connect(t, h, "c1")

	h.HandleMessage(context.Background(), client, []byte(`{"action":"subscribe","symbol":"aapl"}`))
	h.HandleMessage(context.Background(), client, []byte(`{"action":"unsubscribe","symbol":"AAPL"}`))

	if got := h.Registry().Subscriptions(client); len(got) != 0 {
		t.Errorf("Expected empty subscription set, got %v", got)
	}
	if syms := h.Registry().SnapshotDistinctSymbols(); len(syms) != 0 {
		t.Errorf("Expected no distinct symbols, got %v", syms)
	}
}

func TestHub_Unsubscribe_NoPush(t *testing.T) {
	h, _ := setup()
	client := connect(t, h, "c1")

	h.HandleCommand(context.Background(), client, protocol.WSRequest{Action: "subscribe", Symbol: "TSLA"})
	before := client.Count()
	h.HandleCommand(context.Background(), client, protocol.WSRequest{Action: "unsubscribe", Symbol: "TSLA"})
	h.HandleCommand(context.Background(), client, protocol.WSRequest{Action: "unsubscribe", Symbol: "GOOG"})

	if client.Count() != before {
		t.Errorf("Unsubscribe should not push, got %d new messages", client.Count()-before)
	}
}

func TestHub_MalformedMessagesIgnored(t *testing.T) {
	h, p := setup()
	client := connect(t, h, "c1")

	payloads := []string{
		`{ "action": "subsc`,
		`[]`,
		`{"symbol":"AAPL"}`,
		`{"action":"subscribe"}`,
		`{"action":"subscribe","symbol":"   "}`,
		`{"action":"unsubscribe_all","symbol":"AAPL"}`,
	}
	for _, pl := range payloads {
		h.HandleMessage(context.Background(), client, []byte(pl))
	}

	if client.Count() != 0 {
		t.Errorf("Malformed input should not produce pushes, got %+v", client.Messages)
	}
	if client.IsClosed() {
		t.Error("Malformed input must not close the connection")
	}
	if p.TotalCalls() != 0 {
		t.Errorf("Malformed input should not reach the provider, got %d calls", p.TotalCalls())
	}
	if !h.Registry().Contains(client) {
		t.Error("Client should still be registered")
	}
}

func TestHub_SubscribeAfterDisconnect(t *testing.T) {
	h, p := setup()
	client := connect(t, h, "c1")
	h.Disconnect(client)

	h.HandleCommand(context.Background(), client, protocol.WSRequest{Action: "subscribe", Symbol: "AAPL"})

	if p.TotalCalls() != 0 {
		t.Error("Subscribe from a departed client should not fetch")
	}
	if h.Registry().Contains(client) {
		t.Error("Departed client must not be resurrected")
	}
}

func TestHub_Broadcast_FansOutToInterested(t *testing.T) {
	h, _ := setup()
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	other := connect(t, h, "other")

	h.Registry().Subscribe(a, "GOOG")
	h.Registry().Subscribe(b, "goog")
	h.Registry().Subscribe(other, "MSFT")

	n := h.Broadcast(models.Quote{Symbol: "GOOG", Price: 140})

	if n != 2 {
		t.Errorf("Expected 2 deliveries, got %d", n)
	}
	if a.LastMsgType() != "quote" || b.LastMsgType() != "quote" {
		t.Error("Both GOOG subscribers should get the quote")
	}
	if other.Count() != 0 {
		t.Error("MSFT subscriber should not get a GOOG quote")
	}
}

func TestHub_Broadcast_FailingClientIsolated(t *testing.T) {
	h, _ := setup()
	healthy := connect(t, h, "healthy")
	broken := connect(t, h, "broken")
	broken.SendErr = testutils.ErrMockSend

	h.Registry().Subscribe(healthy, "AAPL")
	h.Registry().Subscribe(broken, "AAPL")

	n := h.Broadcast(models.Quote{Symbol: "AAPL"})

	if n != 1 || healthy.Count() != 1 {
		t.Errorf("Healthy client should still receive the push, delivered=%d", n)
	}
	if h.Registry().Contains(broken) {
		t.Error("Client with a failed push should be unregistered")
	}
	if !broken.IsClosed() {
		t.Error("Client with a failed push should be closed")
	}
}

func TestHub_Disconnect_Idempotent(t *testing.T) {
	h, _ := setup()
	client := connect(t, h, "c1")
	h.Registry().Subscribe(client, "AAPL")

	h.Disconnect(client)
	h.Disconnect(client)

	if h.Registry().Len() != 0 {
		t.Errorf("Expected empty registry, got %d", h.Registry().Len())
	}
	if len(h.Registry().ConnectionsInterestedIn("AAPL")) != 0 {
		t.Error("Disconnected client still listed as interested")
	}
}

func TestHub_Connect_Twice(t *testing.T) {
	h, _ := setup()
	client := connect(t, h, "c1")

	if err := h.Connect(client); err != hub.ErrAlreadyRegistered {
		t.Errorf("Expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestHub_RaceCondition(t *testing.T) {
	// Run with `go test -race ./...`
	h, _ := setup()
	clients := make([]*testutils.MockClient, 8)
	for i := range clients {
		clients[i] = connect(t, h, string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(3)
		go func(c *testutils.MockClient) {
			defer wg.Done()
			h.HandleCommand(context.Background(), c, protocol.WSRequest{Action: "subscribe", Symbol: "AAPL"})
		}(c)
		go func(c *testutils.MockClient) {
			defer wg.Done()
			h.HandleCommand(context.Background(), c, protocol.WSRequest{Action: "unsubscribe", Symbol: "AAPL"})
		}(c)
		go func(c *testutils.MockClient) {
			defer wg.Done()
			h.Broadcast(models.Quote{Symbol: "AAPL"})
			h.Disconnect(c)
		}(c)
	}
	wg.Wait()

	if h.Registry().Len() != 0 || h.Registry().SymbolCount() != 0 {
		t.Errorf("Expected empty registry after all disconnects, got %d conns %d symbols",
			h.Registry().Len(), h.Registry().SymbolCount())
	}
}

func TestHub_Shutdown(t *testing.T) {
	h, _ := setup()
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	h.Registry().Subscribe(a, "AAPL")

	h.Shutdown()

	if h.Registry().Len() != 0 {
		t.Errorf("Expected no clients after shutdown, got %d", h.Registry().Len())
	}
	if !a.IsClosed() || !b.IsClosed() {
		t.Error("All clients should be closed on shutdown")
	}
}
