// Package sink publishes transcripts to downstream consumers.
package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// Sink receives every transcript a stream emits.
type Sink interface {
	Publish(ctx context.Context, tr ttypes.Transcript) error
	Close() error
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, ttypes.Transcript) error { return nil }
func (Discard) Close() error                                     { return nil }

// DefaultMaxLen caps the redis stream length (approximately).
const DefaultMaxLen = 10000

// Redis appends transcripts to a redis stream with XADD so several
// consumers can follow a conversation with XREAD or consumer groups.
type Redis struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, stream string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log.Debug("redis sink connected", "addr", addr, "stream", stream)
	return &Redis{client: client, stream: stream, maxLen: DefaultMaxLen}, nil
}

// Publish appends tr to the stream.
func (r *Redis) Publish(ctx context.Context, tr ttypes.Transcript) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: fields(tr),
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func fields(tr ttypes.Transcript) map[string]any {
	return map[string]any{
		"stream_id":   tr.StreamID,
		"seq":         strconv.Itoa(tr.Seq),
		"text":        tr.Text,
		"final":       strconv.FormatBool(tr.Final),
		"duration_ms": strconv.FormatInt(tr.Duration.Milliseconds(), 10),
	}
}
