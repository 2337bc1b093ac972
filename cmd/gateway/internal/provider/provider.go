package provider

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// ErrNotFound is returned when the upstream has no usable data for a symbol.
var ErrNotFound = errors.New("quote not found")

// QuoteProvider is the upstream market data source. Calls may be slow and may fail.
type QuoteProvider interface {
	FetchQuote(ctx context.Context, symbol string) (models.Quote, error)
	// FetchHistory never fails; it returns an empty series when nothing is available.
	FetchHistory(ctx context.Context, symbol, period string) models.Series
	// Search returns an empty list on any failure.
	Search(ctx context.Context, query string) []models.SearchResult
}

// for deterministic testing
type Clock interface {
	Now() time.Time
}

// for deterministic values
type Rand interface {
	Float64() float64
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

type RealRand struct{ *rand.Rand }

func NewRealRand() RealRand { return RealRand{rand.New(rand.NewSource(time.Now().UnixNano()))} }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }
