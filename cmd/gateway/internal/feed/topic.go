package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrTopicNotReady = errors.New("topic has no partitions yet")

const (
	readyPolls    = 5
	readyInterval = 200 * time.Millisecond
)

type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// TopicCreator makes sure the tick topic exists before the publisher writes to it.
type TopicCreator struct {
	logger *zap.Logger
	dialer KafkaDialer
	clock  Clock
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, clock Clock) *TopicCreator {
	return &TopicCreator{logger: logger.Named("topic"), dialer: dialer, clock: clock}
}

// Ensure creates spec on the cluster controller unless it already exists, then
// waits until its partitions are visible from the first reachable broker.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, spec TopicSpec) error {
	if spec.Partitions <= 0 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}

	conn, err := tc.dialFirst(ctx, brokers)
	if err != nil {
		return err
	}
	defer conn.Close()

	if parts, err := conn.ReadPartitions(spec.Name); err == nil && len(parts) > 0 {
		tc.logger.Info("Topic already exists", zap.String("topic", spec.Name), zap.Int("partitions", len(parts)))
		return nil
	}

	if err := tc.createOnController(ctx, conn, spec); err != nil {
		return err
	}
	return tc.awaitPartitions(ctx, conn, spec.Name)
}

func (tc *TopicCreator) dialFirst(ctx context.Context, brokers []string) (KafkaConn, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	var errs error
	for _, addr := range brokers {
		conn, err := tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("dial %s: %w", addr, err))
	}
	return nil, errs
}

// Topic creation must go to the controller broker.
func (tc *TopicCreator) createOnController(ctx context.Context, conn KafkaConn, spec TopicSpec) error {
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}

	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	cc, err := tc.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", addr, err)
	}
	defer cc.Close()

	err = cc.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.Partitions,
		ReplicationFactor: spec.ReplicationFactor,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}
	tc.logger.Info("Topic creation request sent", zap.String("topic", spec.Name), zap.Int("partitions", spec.Partitions))
	return nil
}

func (tc *TopicCreator) awaitPartitions(ctx context.Context, conn KafkaConn, topic string) error {
	for i := 0; i < readyPolls; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tc.clock.Sleep(readyInterval)
		parts, err := conn.ReadPartitions(topic)
		if err == nil && len(parts) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(parts)))
			return nil
		}
	}
	return fmt.Errorf("%s: %w", topic, ErrTopicNotReady)
}
