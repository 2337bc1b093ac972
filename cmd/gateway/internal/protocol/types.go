package protocol

import (
	"fmt"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

const (
	TypeQuote = "quote"
	TypeError = "error"
)

// WSRequest is one client command: {"action": "subscribe", "symbol": "aapl"}
type WSRequest struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// WSResponse is one server push. Exactly one of Data or Message is set.
type WSResponse struct {
	Type    string        `json:"type"` // "quote", "error"
	Message string        `json:"message,omitempty"`
	Data    *models.Quote `json:"data,omitempty"`
}

func QuoteMessage(q models.Quote) WSResponse {
	return WSResponse{Type: TypeQuote, Data: &q}
}

func InvalidSymbolMessage(symbol string) WSResponse {
	return WSResponse{Type: TypeError, Message: fmt.Sprintf("Invalid symbol: %s", symbol)}
}
