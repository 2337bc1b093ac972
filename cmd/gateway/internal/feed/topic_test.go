package feed_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/feed"
	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/testutils"
)

func TestTopicCreator_CreatesAndWaits(t *testing.T) {
	conn := &testutils.MockKafkaConn{PendingPolls: 2}
	mockDialer := &testutils.MockKafkaDialer{ConnSpy: conn, FailAddrs: map[string]bool{"down:9092": true}}
	mockClock := &testutils.MockClock{}

	tc := feed.NewTopicCreator(zap.NewNop(), mockDialer, mockClock)
	err := tc.Ensure(context.Background(), []string{"down:9092", "broker:9092"}, feed.TopicSpec{Name: "quote_ticks", Partitions: 6})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if len(conn.CreatedTopics) != 1 || conn.CreatedTopics[0] != "quote_ticks" {
		t.Errorf("Expected topic 'quote_ticks', got %v", conn.CreatedTopics)
	}
	if conn.Partitions != 6 {
		t.Errorf("Expected 6 partitions, got %d", conn.Partitions)
	}
	// existence check + two misses + one hit
	if conn.Polls != 4 {
		t.Errorf("Expected 4 partition reads, got %d", conn.Polls)
	}
	if mockClock.Slept == 0 {
		t.Error("Creator should wait for the topic through the clock")
	}
}

func TestTopicCreator_AlreadyExists(t *testing.T) {
	conn := &testutils.MockKafkaConn{Existing: map[string]int{"quote_ticks": 3}}
	mockDialer := &testutils.MockKafkaDialer{ConnSpy: conn}

	tc := feed.NewTopicCreator(zap.NewNop(), mockDialer, &testutils.MockClock{})
	if err := tc.Ensure(context.Background(), []string{"broker:9092"}, feed.TopicSpec{Name: "quote_ticks"}); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if len(conn.CreatedTopics) != 0 {
		t.Errorf("Existing topic should not be recreated, got %v", conn.CreatedTopics)
	}
	if len(mockDialer.Dialed) != 1 {
		t.Errorf("Controller should not be dialed, got %v", mockDialer.Dialed)
	}
}

func TestTopicCreator_AllBrokersDown(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{FailAddrs: map[string]bool{"a:9092": true, "b:9092": true}}

	tc := feed.NewTopicCreator(zap.NewNop(), mockDialer, &testutils.MockClock{})
	err := tc.Ensure(context.Background(), []string{"a:9092", "b:9092"}, feed.TopicSpec{Name: "quote_ticks"})

	if err == nil {
		t.Fatal("Expected an error when no broker is reachable")
	}
	if !strings.Contains(err.Error(), "a:9092") || !strings.Contains(err.Error(), "b:9092") {
		t.Errorf("Error should name every broker tried, got %v", err)
	}
}

func TestTopicCreator_NeverReady(t *testing.T) {
	conn := &testutils.MockKafkaConn{NeverReady: true}
	mockDialer := &testutils.MockKafkaDialer{ConnSpy: conn}

	tc := feed.NewTopicCreator(zap.NewNop(), mockDialer, &testutils.MockClock{})
	err := tc.Ensure(context.Background(), []string{"broker:9092"}, feed.TopicSpec{Name: "quote_ticks"})

	if !errors.Is(err, feed.ErrTopicNotReady) {
		t.Errorf("Expected ErrTopicNotReady, got %v", err)
	}
	if conn.Partitions != 1 {
		t.Errorf("Zero partitions should default to 1, got %d", conn.Partitions)
	}
}
