package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/provider"
	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// Fanout is the part of the hub the scheduler drives.
type Fanout interface {
	SnapshotDistinctSymbols() []string
	Broadcast(q models.Quote) int
}

// Sink receives every refreshed quote after it was pushed to clients.
type Sink interface {
	Publish(q models.Quote) bool
}

type Options struct {
	Interval       time.Duration
	MaxConcurrency int
	FetchTimeout   time.Duration
}

type TickStats struct {
	Symbols int
	Fetched int
	Failed  int
	Pushed  int
}

// Scheduler refreshes every subscribed symbol once per interval and fans the
// result out to interested connections.
type Scheduler struct {
	fanout   Fanout
	provider provider.QuoteProvider
	sink     Sink
	logger   *zap.Logger
	opts     Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a scheduler. sink may be nil.
func New(fanout Fanout, p provider.QuoteProvider, sink Sink, logger *zap.Logger, opts Options) *Scheduler {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	return &Scheduler{
		fanout:   fanout,
		provider: p,
		sink:     sink,
		logger:   logger.Named("scheduler"),
		opts:     opts,
	}
}

// Run ticks until ctx is cancelled. The next tick is armed only after the
// previous one has finished, so ticks never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := time.Now()
		stats := s.Tick(ctx)
		if stats.Symbols > 0 {
			s.logger.Debug("Refresh tick",
				zap.Int("symbols", stats.Symbols),
				zap.Int("fetched", stats.Fetched),
				zap.Int("failed", stats.Failed),
				zap.Int("pushed", stats.Pushed),
				zap.Duration("took", time.Since(start)))
		}
		timer.Reset(s.opts.Interval)
	}
}

// Tick fetches each distinct subscribed symbol exactly once and broadcasts the
// successful results. A failed symbol is skipped until the next tick.
func (s *Scheduler) Tick(ctx context.Context) TickStats {
	symbols := s.fanout.SnapshotDistinctSymbols()
	stats := TickStats{Symbols: len(symbols)}
	if len(symbols) == 0 {
		return stats
	}

	var fetched, failed, pushed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.opts.MaxConcurrency)
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		symbol := symbol
		g.Go(func() error {
			q, err := s.fetch(ctx, symbol)
			if err != nil {
				failed.Add(1)
				s.logger.Debug("Refresh failed", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			fetched.Add(1)
			pushed.Add(int64(s.fanout.Broadcast(q)))
			if s.sink != nil {
				s.sink.Publish(q)
			}
			return nil
		})
	}
	g.Wait()

	stats.Fetched = int(fetched.Load())
	stats.Failed = int(failed.Load())
	stats.Pushed = int(pushed.Load())
	return stats
}

func (s *Scheduler) fetch(ctx context.Context, symbol string) (models.Quote, error) {
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}
	return s.provider.FetchQuote(ctx, symbol)
}

// Start launches Run in the background. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.Run(ctx)
	}(s.done)

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("max_concurrency", s.opts.MaxConcurrency))
}

// Stop cancels the loop and waits for the in-flight tick to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Scheduler stopped")
}
