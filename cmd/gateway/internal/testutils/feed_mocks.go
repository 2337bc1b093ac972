package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/feed"
)

type MockPipeline struct {
	redis.Pipeliner // Embed interface to satisfy missing methods like ACLCat, etc.

	ExecCount    int
	RecordedCmds []string
	Fail         bool
	Mu           sync.Mutex
}

func (m *MockPipeline) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RecordedCmds = append(m.RecordedCmds, "SET "+key)
	return redis.NewStatusCmd(ctx)
}

func (m *MockPipeline) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RecordedCmds = append(m.RecordedCmds, "PUBLISH "+channel)
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ExecCount++
	if m.Fail {
		return nil, errors.New("redis down")
	}
	return nil, nil
}

func (m *MockPipeline) Recorded() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]string(nil), m.RecordedCmds...)
}

type MockRedisClient struct {
	PipelineSpy *MockPipeline
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{PipelineSpy: &MockPipeline{}}
}

func (m *MockRedisClient) Pipeline() redis.Pipeliner {
	return m.PipelineSpy
}

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Closed     bool
	ShouldFail bool
	Mu         sync.Mutex
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

type MockClock struct {
	Slept time.Duration
}

func (m *MockClock) Sleep(d time.Duration) { m.Slept += d }

type MockKafkaConn struct {
	CreatedTopics []string
	Partitions    int
	// Existing maps topic to partition count
	Existing map[string]int
	// PendingPolls is how many reads miss a freshly created topic
	PendingPolls int
	// NeverReady keeps created topics invisible
	NeverReady bool
	Polls      int
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.Existing == nil {
		m.Existing = make(map[string]int)
	}
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
		m.Partitions = t.NumPartitions
		if !m.NeverReady {
			m.Existing[t.Topic] = t.NumPartitions
		}
	}
	return nil
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	m.Polls++
	n := m.Existing[topics[0]]
	if n == 0 {
		return nil, kafka.UnknownTopicOrPartition
	}
	if m.PendingPolls > 0 {
		m.PendingPolls--
		return nil, kafka.LeaderNotAvailable
	}
	parts := make([]kafka.Partition, n)
	for i := range parts {
		parts[i] = kafka.Partition{Topic: topics[0], ID: i}
	}
	return parts, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	// FailAddrs are refused
	FailAddrs map[string]bool
	Dialed    []string
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (feed.KafkaConn, error) {
	m.Dialed = append(m.Dialed, address)
	if m.FailAddrs[address] {
		return nil, errors.New("connection refused")
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
