package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultStreamMaxLen caps the audit stream with approximate trimming so the
// stream cannot grow without bound.
const DefaultStreamMaxLen = 100_000

// RedisSink publishes events to a Redis Stream. Record hands the event to a
// buffered channel and returns immediately; a single writer goroutine drains
// the channel with XADD. A full buffer drops the event and logs, it never
// blocks the request path.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
	log    *zap.Logger

	events    chan Event
	closeOnce sync.Once
	done      chan struct{}
}

// RedisSinkConfig tunes the stream sink.
type RedisSinkConfig struct {
	Stream     string // stream key (default "erpgate:audit")
	MaxLen     int64  // approximate stream cap (default DefaultStreamMaxLen)
	BufferSize int    // pending-event buffer (default 256)
}

// NewRedisSink creates a stream sink and starts its writer.
func NewRedisSink(client *redis.Client, cfg RedisSinkConfig, log *zap.Logger) *RedisSink {
	if cfg.Stream == "" {
		cfg.Stream = "erpgate:audit"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultStreamMaxLen
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &RedisSink{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		log:    log,
		events: make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Record queues the event. Never blocks; a full buffer drops the event.
func (s *RedisSink) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case s.events <- e:
	default:
		s.log.Warn("audit buffer full, dropping event", zap.String("kind", e.Kind))
	}
}

func (s *RedisSink) run() {
	defer close(s.done)
	for e := range s.events {
		s.publish(e)
	}
}

func (s *RedisSink) publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.log.Warn("audit event marshal failed", zap.String("kind", e.Kind), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream:       s.stream,
		MaxLenApprox: s.maxLen,
		Values: map[string]interface{}{
			"kind":      e.Kind,
			"data":      string(payload),
			"timestamp": e.At.Unix(),
		},
	}).Err()
	if err != nil {
		s.log.Warn("audit publish failed", zap.String("kind", e.Kind), zap.Error(err))
	}
}

// Close stops accepting events, flushes the buffer and waits for the writer.
func (s *RedisSink) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	<-s.done
	return nil
}
