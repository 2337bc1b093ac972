package feed

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

const writeTimeout = 5 * time.Second

type Options struct {
	NumWorkers  int
	QueueSize   int
	SnapshotTTL time.Duration
}

// Publisher mirrors refreshed quotes to the Redis snapshot cache and the Kafka
// tick topic. Either sink may be nil. Work is sharded by symbol so each
// symbol's quotes are written in order by a single worker.
type Publisher struct {
	logger *zap.Logger
	rdb    RedisClient
	writer KafkaWriter
	opts   Options

	mu      sync.RWMutex
	chans   []chan models.Quote
	running bool
	wg      sync.WaitGroup

	dropped atomic.Int64
}

func NewPublisher(logger *zap.Logger, rdb RedisClient, writer KafkaWriter, opts Options) *Publisher {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	return &Publisher{
		logger: logger.Named("feed"),
		rdb:    rdb,
		writer: writer,
		opts:   opts,
	}
}

// Enabled reports whether any sink is configured.
func (p *Publisher) Enabled() bool { return p.rdb != nil || p.writer != nil }

func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || !p.Enabled() {
		return
	}

	p.chans = make([]chan models.Quote, p.opts.NumWorkers)
	for i := range p.chans {
		p.chans[i] = make(chan models.Quote, p.opts.QueueSize)
		p.wg.Add(1)
		go p.worker(i, p.chans[i])
	}
	p.running = true
	p.logger.Info("Feed publisher started",
		zap.Int("workers", p.opts.NumWorkers),
		zap.Bool("redis", p.rdb != nil),
		zap.Bool("kafka", p.writer != nil))
}

// Publish enqueues q without blocking. A full shard drops the quote: for live
// prices the next refresh supersedes it anyway.
func (p *Publisher) Publish(q models.Quote) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return false
	}

	workerID := getWorkerID(q.Symbol, len(p.chans))
	select {
	case p.chans[workerID] <- q:
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warn("Dropping slow quote", zap.String("symbol", q.Symbol), zap.Int("worker_id", workerID))
		return false
	}
}

// Stop drains queued quotes and closes the Kafka writer. The Redis client is
// owned by the caller.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	for _, ch := range p.chans {
		close(ch)
	}
	p.mu.Unlock()

	p.logger.Info("Waiting for feed workers to drain...")
	p.wg.Wait()

	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func (p *Publisher) worker(id int, quotes <-chan models.Quote) {
	defer p.wg.Done()

	// Only valid because a symbol always lands on the same worker.
	lastTS := make(map[string]time.Time)

	for q := range quotes {
		if !q.Timestamp.After(lastTS[q.Symbol]) {
			p.logger.Debug("Skipping stale quote", zap.String("symbol", q.Symbol), zap.Time("ts", q.Timestamp))
			continue
		}

		payload, err := json.Marshal(q)
		if err != nil {
			p.logger.Error("JSON Marshal Error", zap.Error(err), zap.String("symbol", q.Symbol))
			continue
		}

		if p.write(q, payload) {
			p.logger.Debug("Published", zap.String("symbol", q.Symbol), zap.Int("worker_id", id))
			lastTS[q.Symbol] = q.Timestamp
		}
	}
}

func (p *Publisher) write(q models.Quote, payload []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	ok := true
	if p.rdb != nil {
		// SET + PUBLISH in one round trip
		pipe := p.rdb.Pipeline()
		pipe.Set(ctx, models.SnapshotKey(q.Symbol), payload, p.opts.SnapshotTTL)
		pipe.Publish(ctx, models.ChannelName(q.Symbol), payload)
		if _, err := pipe.Exec(ctx); err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", q.Symbol))
			ok = false
		}
	}
	if p.writer != nil {
		err := p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(q.Symbol), // keeps a symbol on one partition
			Value: payload,
			Time:  q.Timestamp,
		})
		if err != nil {
			p.logger.Error("Kafka Write Error", zap.Error(err), zap.String("symbol", q.Symbol))
			ok = false
		}
	}
	return ok
}

func getWorkerID(symbol string, numWorkers int) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(numWorkers))
}
