package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func newTestYahoo(getEquity func(string) (*finance.Equity, error)) *YahooProvider {
	p := NewYahooProvider(zap.NewNop(), 0)
	p.clock = fixedClock{testNow}
	p.getEquity = getEquity
	return p
}

func appleEquity() *finance.Equity {
	return &finance.Equity{
		Quote: finance.Quote{
			Symbol:                     "AAPL",
			ShortName:                  "Apple",
			RegularMarketPrice:         172.456,
			RegularMarketPreviousClose: 170.0,
			RegularMarketDayHigh:       173.001,
			RegularMarketDayLow:        169.499,
			RegularMarketOpen:          170.5,
			RegularMarketVolume:        5_000_000,
		},
		LongName:  "Apple Inc.",
		MarketCap: 2_700_000_000_000,
	}
}

func TestYahoo_FetchQuote(t *testing.T) {
	var asked string
	p := newTestYahoo(func(symbol string) (*finance.Equity, error) {
		asked = symbol
		return appleEquity(), nil
	})

	q, err := p.FetchQuote(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", asked)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.Equal(t, 172.46, q.Price)
	assert.Equal(t, 2.46, q.Change)
	assert.Equal(t, 1.44, q.ChangePercent)
	assert.Equal(t, 173.0, q.High)
	assert.Equal(t, 169.5, q.Low)
	assert.Equal(t, int64(5_000_000), q.Volume)
	require.NotNil(t, q.MarketCap)
	assert.Equal(t, 2.7e12, *q.MarketCap)
	assert.Equal(t, testNow, q.Timestamp)
}

func TestYahoo_FetchQuote_NotFound(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) (*finance.Equity, error)
	}{
		{"upstream error", func(string) (*finance.Equity, error) { return nil, errors.New("429 too many requests") }},
		{"no result", func(string) (*finance.Equity, error) { return nil, nil }},
		{"no price", func(string) (*finance.Equity, error) { return &finance.Equity{}, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestYahoo(tt.fn).FetchQuote(context.Background(), "ZZZZ")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestYahoo_FetchQuote_NameFallback(t *testing.T) {
	p := newTestYahoo(func(string) (*finance.Equity, error) {
		return &finance.Equity{Quote: finance.Quote{RegularMarketPrice: 10}}, nil
	})

	q, err := p.FetchQuote(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", q.Name)
	assert.Nil(t, q.MarketCap)
	assert.Zero(t, q.Change)
}

func TestYahoo_FetchQuote_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := newTestYahoo(func(string) (*finance.Equity, error) {
		<-release
		return appleEquity(), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.FetchQuote(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestYahoo_RateLimitedFetchesGiveUpBeforeUpstream(t *testing.T) {
	var upstream atomic.Int64
	p := NewYahooProvider(zap.NewNop(), 5)
	p.clock = fixedClock{testNow}
	p.getEquity = func(string) (*finance.Equity, error) {
		upstream.Add(1)
		return appleEquity(), nil
	}

	for tick := 0; tick < 3; tick++ {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()
				p.FetchQuote(ctx, "AAPL")
			}()
		}
		wg.Wait()
	}

	settled := upstream.Load()
	// 5 rps over three 100ms windows leaves room for a handful of calls, not 60
	assert.LessOrEqual(t, settled, int64(6))

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, settled, upstream.Load(), "no upstream calls once every caller has returned")
}

func TestYahoo_FetchHistory(t *testing.T) {
	day1 := time.Date(2024, 3, 13, 13, 30, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	var got *chart.Params
	p := newTestYahoo(nil)
	p.getBars = func(params *chart.Params) ([]*finance.ChartBar, error) {
		got = params
		return []*finance.ChartBar{
			{Close: decimal.NewFromFloat(101.504), Volume: 1200, Timestamp: int(day1.Unix())},
			{Close: decimal.NewFromFloat(99.996), Volume: 800, Timestamp: int(day2.Unix())},
		}, nil
	}

	s := p.FetchHistory(context.Background(), "msft", "5d")

	require.NotNil(t, got)
	assert.Equal(t, "MSFT", got.Symbol)
	assert.Equal(t, []string{"2024-03-13", "2024-03-14"}, s.Dates)
	assert.Equal(t, []float64{101.5, 100.0}, s.Prices)
	assert.Equal(t, []int64{1200, 800}, s.Volumes)
}

func TestYahoo_FetchHistory_Empty(t *testing.T) {
	p := newTestYahoo(nil)
	p.getBars = func(*chart.Params) ([]*finance.ChartBar, error) {
		return nil, errors.New("no data")
	}

	for _, period := range []string{"1mo", "forever"} {
		s := p.FetchHistory(context.Background(), "MSFT", period)
		assert.NotNil(t, s.Dates)
		assert.Equal(t, 0, s.Len(), period)
	}
}

func TestYahoo_Search(t *testing.T) {
	p := newTestYahoo(func(symbol string) (*finance.Equity, error) {
		if symbol == "AAPL" {
			return appleEquity(), nil
		}
		return nil, errors.New("not found")
	})

	got := p.Search(context.Background(), "aapl")
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "Apple Inc.", got[0].Name)

	assert.Empty(t, p.Search(context.Background(), "nope"))
	assert.NotNil(t, p.Search(context.Background(), "  "))
}

func TestPeriodStart(t *testing.T) {
	tests := []struct {
		period string
		want   time.Time
		ok     bool
	}{
		{"", testNow.AddDate(0, -1, 0), true},
		{"1MO", testNow.AddDate(0, -1, 0), true},
		{"5d", testNow.AddDate(0, 0, -5), true},
		{"ytd", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2w", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, ok := periodStart(tt.period, testNow)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}
