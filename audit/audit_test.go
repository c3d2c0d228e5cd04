package audit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestNopSinkAcceptsEverything(t *testing.T) {
	t.Parallel()

	var s Sink = NopSink{}
	s.Record(context.Background(), Event{Kind: EventMenuServed})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestRedisSinkNeverBlocksTheCaller(t *testing.T) {
	t.Parallel()

	// Unreachable backend: every publish fails, the buffer fills, and Record
	// must still return immediately.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	s := NewRedisSink(client, RedisSinkConfig{BufferSize: 1}, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Record(context.Background(), Event{Kind: EventAuthFailed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a dead backend")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestRedisSinkStampsEventTime(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	s := NewRedisSink(client, RedisSinkConfig{}, nil)
	defer s.Close()

	e := Event{Kind: EventTenantMismatch}
	s.Record(context.Background(), e)
	// The queued copy gets a timestamp; the caller's value is untouched.
	if !e.At.IsZero() {
		t.Fatal("caller's event must not be mutated")
	}
}
