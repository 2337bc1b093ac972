package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// Compile-time check to ensure SimulatedProvider implements QuoteProvider
var _ QuoteProvider = (*SimulatedProvider)(nil)

type simSession struct {
	high, low float64
	volume    int64
}

// SimulatedProvider produces random quotes around fixed base prices. Symbols
// without a base price are unknown.
type SimulatedProvider struct {
	logger     *zap.Logger
	basePrices map[string]float64
	rand       Rand
	clock      Clock

	mu       sync.Mutex
	sessions map[string]*simSession
}

func NewSimulatedProvider(logger *zap.Logger, basePrices map[string]float64, rnd Rand, clock Clock) *SimulatedProvider {
	prices := make(map[string]float64, len(basePrices))
	for sym, p := range basePrices {
		prices[models.NormalizeSymbol(sym)] = p
	}
	return &SimulatedProvider{
		logger:     logger.Named("simulated"),
		basePrices: prices,
		rand:       rnd,
		clock:      clock,
		sessions:   make(map[string]*simSession),
	}
}

func (p *SimulatedProvider) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return models.Quote{}, err
	}
	symbol = models.NormalizeSymbol(symbol)
	base, ok := p.basePrices[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("simulated %s: %w", symbol, ErrNotFound)
	}

	p.mu.Lock()
	fluctuation := (p.rand.Float64() * 10) - 5
	price := base + fluctuation
	volume := int64(p.rand.Float64() * 10000)

	s, ok := p.sessions[symbol]
	if !ok {
		s = &simSession{high: price, low: price}
		p.sessions[symbol] = s
	}
	s.high = max(s.high, price)
	s.low = min(s.low, price)
	s.volume += volume
	high, low, total := s.high, s.low, s.volume
	p.mu.Unlock()

	change := price - base
	return models.Quote{
		Symbol:        symbol,
		Name:          symbol,
		Price:         round2(price),
		Change:        round2(change),
		ChangePercent: round2(change / base * 100),
		High:          round2(high),
		Low:           round2(low),
		Open:          round2(base),
		PreviousClose: round2(base),
		Volume:        total,
		Timestamp:     p.clock.Now(),
	}, nil
}

// FetchHistory returns one synthetic close per day of the period.
func (p *SimulatedProvider) FetchHistory(ctx context.Context, symbol, period string) models.Series {
	symbol = models.NormalizeSymbol(symbol)
	base, known := p.basePrices[symbol]
	now := p.clock.Now()
	start, ok := periodStart(period, now)
	if !known || !ok || ctx.Err() != nil {
		return models.EmptySeries()
	}
	// Cap "max" so the series stays small.
	if floor := now.AddDate(-1, 0, 0); start.Before(floor) {
		start = floor
	}

	s := models.EmptySeries()
	p.mu.Lock()
	defer p.mu.Unlock()
	for d := start.Truncate(24 * time.Hour); !d.After(now); d = d.Add(24 * time.Hour) {
		s.Dates = append(s.Dates, d.UTC().Format("2006-01-02"))
		s.Prices = append(s.Prices, round2(base+(p.rand.Float64()*10)-5))
		s.Volumes = append(s.Volumes, int64(p.rand.Float64()*1e6))
	}
	return s
}

func (p *SimulatedProvider) Search(ctx context.Context, query string) []models.SearchResult {
	symbol := models.NormalizeSymbol(query)
	if _, ok := p.basePrices[symbol]; !ok {
		return []models.SearchResult{}
	}
	return []models.SearchResult{{Symbol: symbol, Name: symbol}}
}
