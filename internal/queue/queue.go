package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

var (
	// ErrQueueFull is returned when a single item exceeds the memory limit
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned by Push after Close and by Pop once a closed
	// queue has drained
	ErrQueueClosed = errors.New("queue is closed")
)

// AudioQueue hands synthesized segments from the synthesis stream to the
// player. It is a bounded FIFO: Push blocks while the queue holds maxItems
// segments or memoryLimit bytes of samples, which keeps synthesis from
// running arbitrarily far ahead of playback.
type AudioQueue struct {
	items       []ttypes.SynthesizedAudio
	maxItems    int
	memoryLimit int64 // 0 means unlimited
	memory      int64

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	closed bool
	stats  Stats
}

// Stats tracks queue performance metrics
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalDropped  int64
	CurrentSize   int
	PeakSize      int
	MemoryBytes   int64
	BufferedAudio time.Duration
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// NewAudioQueue creates a queue holding at most maxItems segments and
// memoryLimit bytes of samples.
func NewAudioQueue(maxItems int, memoryLimit int64) *AudioQueue {
	if maxItems < 1 {
		maxItems = 1
	}
	q := &AudioQueue{
		items:       make([]ttypes.SynthesizedAudio, 0, maxItems),
		maxItems:    maxItems,
		memoryLimit: memoryLimit,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends a segment, waiting for space. It returns ctx.Err() if the
// context ends first.
func (q *AudioQueue) Push(ctx context.Context, item ttypes.SynthesizedAudio) error {
	size := itemSize(item)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.memoryLimit > 0 && size > q.memoryLimit {
		q.stats.TotalDropped++
		return ErrQueueFull
	}

	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	for !q.closed && ctx.Err() == nil && !q.hasRoom(size) {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.items = append(q.items, item)
	q.memory += size

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}

	q.notEmpty.Signal()
	return nil
}

// Pop removes the oldest segment, waiting until one is available. After
// Close it keeps returning queued segments and then ErrQueueClosed.
func (q *AudioQueue) Pop(ctx context.Context) (ttypes.SynthesizedAudio, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.notEmpty.Wait()
	}
	if err := ctx.Err(); err != nil {
		return ttypes.SynthesizedAudio{}, err
	}
	if len(q.items) == 0 {
		return ttypes.SynthesizedAudio{}, ErrQueueClosed
	}

	item := q.items[0]
	q.items[0] = ttypes.SynthesizedAudio{}
	q.items = q.items[1:]
	q.memory -= itemSize(item)

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()

	q.notFull.Signal()
	return item, nil
}

// Size returns the number of queued segments.
func (q *AudioQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued segment, as when playback is interrupted.
func (q *AudioQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = q.items[:0]
	q.memory = 0
	q.stats.TotalDropped += int64(n)
	q.notFull.Broadcast()
	return n
}

// GetStats returns current queue statistics.
func (q *AudioQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	stats.MemoryBytes = q.memory
	for _, item := range q.items {
		stats.BufferedAudio += item.Duration()
	}
	return stats
}

// Close stops accepting segments and wakes any waiters.
func (q *AudioQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return nil
}

// hasRoom must be called with the lock held. An empty queue always accepts
// one item so a segment larger than the remaining budget cannot deadlock.
func (q *AudioQueue) hasRoom(size int64) bool {
	if len(q.items) == 0 {
		return true
	}
	if len(q.items) >= q.maxItems {
		return false
	}
	return q.memoryLimit <= 0 || q.memory+size <= q.memoryLimit
}

// wake rouses waiters so they can observe a canceled context.
func (q *AudioQueue) wake() {
	q.mu.Lock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

func itemSize(item ttypes.SynthesizedAudio) int64 {
	return int64(len(item.Samples) * 2)
}
