package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/provider"
	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Stores decoded JSON messages
	Closed   bool
	// SendErr, when set, is returned by every Send
	SendErr error
	Mu      sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) Send(b []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.SendErr != nil {
		return m.SendErr
	}
	if m.Closed {
		return hub.ErrConnClosed
	}
	var resp protocol.WSResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return fmt.Errorf("mock client got invalid json: %w", err)
	}
	m.Messages = append(m.Messages, resp)
	return nil
}

func (m *MockClient) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

func (m *MockClient) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Messages)
}

func (m *MockClient) LastMsg() (protocol.WSResponse, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.WSResponse{}, false
	}
	return m.Messages[len(m.Messages)-1], true
}

func (m *MockClient) LastMsgType() string {
	msg, _ := m.LastMsg()
	return msg.Type
}

// MockProvider simulates the upstream quote source
type MockProvider struct {
	// Failing symbols return provider.ErrNotFound
	Failing map[string]bool
	Price   float64
	// Delay is applied to every FetchQuote
	Delay time.Duration
	// OnFetch, when set, runs before each FetchQuote returns
	OnFetch func(symbol string)

	Calls map[string]int
	Mu    sync.Mutex
}

func NewMockProvider(failing ...string) *MockProvider {
	m := &MockProvider{Failing: make(map[string]bool), Price: 100, Calls: make(map[string]int)}
	for _, s := range failing {
		m.Failing[s] = true
	}
	return m
}

func (m *MockProvider) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	m.Mu.Lock()
	m.Calls[symbol]++
	failing := m.Failing[symbol]
	delay, hook := m.Delay, m.OnFetch
	m.Mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.Quote{}, ctx.Err()
		}
	}
	if hook != nil {
		hook(symbol)
	}
	if failing {
		return models.Quote{}, fmt.Errorf("mock %s: %w", symbol, provider.ErrNotFound)
	}
	return models.Quote{Symbol: symbol, Name: symbol, Price: m.Price, Timestamp: time.Now()}, nil
}

func (m *MockProvider) FetchHistory(ctx context.Context, symbol, period string) models.Series {
	if m.Failing[symbol] {
		return models.EmptySeries()
	}
	return models.Series{Dates: []string{"2024-01-02"}, Prices: []float64{m.Price}, Volumes: []int64{1000}}
}

func (m *MockProvider) Search(ctx context.Context, query string) []models.SearchResult {
	if m.Failing[query] {
		return []models.SearchResult{}
	}
	return []models.SearchResult{{Symbol: query, Name: query}}
}

func (m *MockProvider) CallCount(symbol string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Calls[symbol]
}

func (m *MockProvider) TotalCalls() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		n += c
	}
	return n
}

var ErrMockSend = errors.New("mock send failure")
