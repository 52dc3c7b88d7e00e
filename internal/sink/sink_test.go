package sink

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

func TestFields(t *testing.T) {
	got := fields(ttypes.Transcript{StreamID: "abc", Seq: 3, Text: "hi", Final: true, Duration: 1500 * time.Millisecond})

	want := map[string]string{
		"stream_id":   "abc",
		"seq":         "3",
		"text":        "hi",
		"final":       "true",
		"duration_ms": "1500",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %q", k, got[k], v)
		}
	}
}

func TestDiscard(t *testing.T) {
	var s Sink = Discard{}
	if err := s.Publish(context.Background(), ttypes.Transcript{}); err != nil {
		t.Error(err)
	}
}

func TestRedis_Publish(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	stream := "voicepipe:test:" + uuid.NewString()

	r, err := NewRedis(ctx, addr, stream)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer r.Close() //nolint:errcheck
	defer r.client.Del(ctx, stream)

	for i := range 3 {
		if err := r.Publish(ctx, ttypes.Transcript{StreamID: "s", Seq: i, Text: "hello"}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := r.client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 || msgs[2].Values["seq"] != "2" {
		t.Errorf("stream = %+v", msgs)
	}
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, "127.0.0.1:1", "x"); err == nil {
		t.Error("NewRedis() should fail for a closed port")
	}
}
