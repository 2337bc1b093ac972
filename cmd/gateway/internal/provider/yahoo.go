package provider

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// Compile-time check to ensure YahooProvider implements QuoteProvider
var _ QuoteProvider = (*YahooProvider)(nil)

// YahooProvider resolves quotes and daily history through Yahoo Finance.
type YahooProvider struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	clock   Clock

	getEquity func(symbol string) (*finance.Equity, error)
	getBars   func(p *chart.Params) ([]*finance.ChartBar, error)
}

// NewYahooProvider caps upstream calls at rps per second; rps <= 0 disables the cap.
func NewYahooProvider(logger *zap.Logger, rps int) *YahooProvider {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &YahooProvider{
		logger:    logger.Named("yahoo"),
		limiter:   limiter,
		clock:     RealClock{},
		getEquity: equity.Get,
		getBars:   collectBars,
	}
}

func (p *YahooProvider) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return models.Quote{}, fmt.Errorf("empty symbol: %w", ErrNotFound)
	}

	eq, err := limitedCall(ctx, p.limiter, func() (*finance.Equity, error) {
		return p.getEquity(symbol)
	})
	if err != nil {
		return models.Quote{}, fmt.Errorf("fetch %s: %w: %w", symbol, err, ErrNotFound)
	}
	return quoteFromEquity(symbol, eq, p.clock.Now())
}

func (p *YahooProvider) FetchHistory(ctx context.Context, symbol, period string) models.Series {
	symbol = models.NormalizeSymbol(symbol)
	now := p.clock.Now()
	start, ok := periodStart(period, now)
	if symbol == "" || !ok {
		return models.EmptySeries()
	}

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.FromUnix(int(start.Unix())),
		End:      datetime.FromUnix(int(now.Unix())),
		Interval: datetime.OneDay,
	}
	bars, err := limitedCall(ctx, p.limiter, func() ([]*finance.ChartBar, error) {
		return p.getBars(params)
	})
	if err != nil {
		p.logger.Debug("History unavailable", zap.String("symbol", symbol), zap.String("period", period), zap.Error(err))
		return models.EmptySeries()
	}
	return seriesFromBars(bars)
}

func (p *YahooProvider) Search(ctx context.Context, query string) []models.SearchResult {
	symbol := models.NormalizeSymbol(query)
	if symbol == "" {
		return []models.SearchResult{}
	}

	eq, err := limitedCall(ctx, p.limiter, func() (*finance.Equity, error) {
		return p.getEquity(symbol)
	})
	if err != nil || eq == nil || eq.Symbol == "" {
		return []models.SearchResult{}
	}
	return []models.SearchResult{{Symbol: eq.Symbol, Name: displayName(symbol, eq)}}
}

func quoteFromEquity(symbol string, eq *finance.Equity, now time.Time) (models.Quote, error) {
	if eq == nil || eq.RegularMarketPrice <= 0 {
		return models.Quote{}, fmt.Errorf("no market data for %s: %w", symbol, ErrNotFound)
	}

	price := eq.RegularMarketPrice
	prevClose := eq.RegularMarketPreviousClose
	var change, changePct float64
	if prevClose != 0 {
		change = price - prevClose
		changePct = change / prevClose * 100
	}

	q := models.Quote{
		Symbol:        symbol,
		Name:          displayName(symbol, eq),
		Price:         round2(price),
		Change:        round2(change),
		ChangePercent: round2(changePct),
		High:          round2(eq.RegularMarketDayHigh),
		Low:           round2(eq.RegularMarketDayLow),
		Open:          round2(eq.RegularMarketOpen),
		PreviousClose: round2(prevClose),
		Volume:        int64(eq.RegularMarketVolume),
		Timestamp:     now,
	}
	if eq.MarketCap > 0 {
		mc := float64(eq.MarketCap)
		q.MarketCap = &mc
	}
	return q, nil
}

func seriesFromBars(bars []*finance.ChartBar) models.Series {
	s := models.EmptySeries()
	for _, b := range bars {
		if b == nil {
			continue
		}
		s.Dates = append(s.Dates, time.Unix(int64(b.Timestamp), 0).UTC().Format("2006-01-02"))
		s.Prices = append(s.Prices, b.Close.Round(2).InexactFloat64())
		s.Volumes = append(s.Volumes, int64(b.Volume))
	}
	return s
}

func displayName(symbol string, eq *finance.Equity) string {
	switch {
	case eq.LongName != "":
		return eq.LongName
	case eq.ShortName != "":
		return eq.ShortName
	}
	return symbol
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func collectBars(p *chart.Params) ([]*finance.ChartBar, error) {
	iter := chart.Get(p)
	var bars []*finance.ChartBar
	for iter.Next() {
		bars = append(bars, iter.Bar())
	}
	return bars, iter.Err()
}

// limitedCall waits for a token in the caller, so a fetch that gives up while
// queued never reaches upstream.
func limitedCall[T any](ctx context.Context, limiter *rate.Limiter, fn func() (T, error)) (T, error) {
	if err := limiter.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return callWithContext(ctx, fn)
}

// callWithContext runs a blocking upstream call and gives up when ctx ends.
// The call itself keeps running until the library returns; its result is dropped.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
