package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_ReturnsResult(t *testing.T) {
	p := New(2, 4)
	defer p.Close()

	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		return "hello", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("Do() = %q, want %q", got, "hello")
	}
}

func TestDo_PropagatesError(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	boom := errors.New("boom")
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want %v", err, boom)
	}
}

func TestDo_BoundsConcurrency(t *testing.T) {
	const workers = 3
	p := New(workers, 16)
	defer p.Close()

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Do(context.Background(), p, func(context.Context) (struct{}, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > workers {
		t.Errorf("peak concurrency = %d, want <= %d", got, workers)
	}
	if got := p.Stats().Submitted; got != 12 {
		t.Errorf("submitted = %d, want 12", got)
	}
}

func TestDo_CancelAbandons(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	release := make(chan struct{})
	finished := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, p, func(context.Context) (int, error) {
		<-release
		close(finished)
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if got := p.Stats().Abandoned; got != 1 {
		t.Errorf("abandoned = %d, want 1", got)
	}

	// The abandoned call still runs to completion without blocking its worker
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("abandoned job never finished")
	}
}

func TestPool_Close(t *testing.T) {
	p := New(2, 2)

	var ran atomic.Int64
	for i := 0; i < 4; i++ {
		if _, err := Do(context.Background(), p, func(context.Context) (int, error) {
			ran.Add(1)
			return 0, nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	p.Close()
	p.Close() // idempotent

	if ran.Load() != 4 {
		t.Errorf("ran %d jobs, want 4", ran.Load())
	}

	_, err := Do(context.Background(), p, func(context.Context) (int, error) { return 0, nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Do() after Close error = %v, want ErrPoolClosed", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(0, -1)
	defer p.Close()

	if got := p.Stats().Workers; got != 1 {
		t.Errorf("workers = %d, want 1", got)
	}
}
