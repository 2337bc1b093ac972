package feed

import (
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/config"
)

// NewKafkaWriter builds the tick topic writer. Messages are batched; in async
// mode WriteMessages only enqueues and delivery errors are logged here.
func NewKafkaWriter(cfg config.KafkaConfig, logger *zap.Logger) *kafka.Writer {
	logger = logger.Named("kafka")
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // keeps a symbol on one partition
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	if cfg.Async {
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Kafka Write Error", zap.Error(err), zap.Int("batch", len(messages)))
			}
		}
	}
	return w
}
