package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/cache"
	"github.com/dgnsrekt/voicepipe/internal/sentence"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
	"github.com/dgnsrekt/voicepipe/internal/worker"
)

// SynthesisStream speaks text one sentence at a time.
type SynthesisStream struct {
	synth ttypes.Synthesizer
	pool  *worker.Pool
	opts  options
}

// NewSynthesisStream creates a stream over synth.
func NewSynthesisStream(synth ttypes.Synthesizer, pool *worker.Pool, opts ...Option) (*SynthesisStream, error) {
	if synth == nil || pool == nil {
		return nil, errors.New("synthesizer and worker pool are required")
	}
	return &SynthesisStream{
		synth: synth,
		pool:  pool,
		opts:  buildOptions("tts", opts),
	}, nil
}

// ID returns the stream id stamped on audio events.
func (s *SynthesisStream) ID() string {
	return s.opts.id
}

// Run segments every text received and emits one SynthesizedAudio per
// successfully synthesized segment, in order. A failed segment is logged and
// skipped; its sequence number is not reused. The returned channel is closed
// once texts is closed and drained, or ctx is done.
func (s *SynthesisStream) Run(ctx context.Context, texts <-chan string) <-chan ttypes.SynthesizedAudio {
	out := make(chan ttypes.SynthesizedAudio)

	go func() {
		defer close(out)
		defer s.opts.metrics.StreamStarted("synthesis")()

		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case text, ok := <-texts:
				if !ok {
					s.opts.logger.Debug("synthesis stream finished", "segments", seq)
					return
				}
				for seg := range sentence.Segment(text) {
					if !s.synthesize(ctx, out, seg, seq) {
						return
					}
					seq++
				}
			}
		}
	}()

	return out
}

// Speak synthesizes a single text.
func (s *SynthesisStream) Speak(ctx context.Context, text string) <-chan ttypes.SynthesizedAudio {
	texts := make(chan string, 1)
	texts <- text
	close(texts)
	return s.Run(ctx, texts)
}

// synthesize produces one segment, from the cache when possible. It returns
// false when the stream has to stop.
func (s *SynthesisStream) synthesize(ctx context.Context, out chan<- ttypes.SynthesizedAudio, seg string, seq int) bool {
	info := s.synth.GetInfo()
	key := cache.GenerateCacheKey(seg, info.Name+"/"+info.Voice, info.Speed)

	if s.opts.cache != nil {
		if samples, rate, ok := s.opts.cache.GetAudio(key); ok {
			s.opts.metrics.RecordSegment("cached", 0, audio.SamplesDuration(len(samples), rate))
			return s.emit(ctx, out, ttypes.SynthesizedAudio{
				StreamID:   s.opts.id,
				Seq:        seq,
				Text:       seg,
				Samples:    samples,
				SampleRate: rate,
				Cached:     true,
			})
		}
	}

	start := time.Now()
	samples, err := worker.Do(ctx, s.pool, func(jctx context.Context) ([]int16, error) {
		return s.synth.Synthesize(jctx, seg)
	})
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, worker.ErrPoolClosed) {
		s.opts.logger.Error("worker pool closed, stopping stream")
		return false
	}
	if err != nil {
		s.opts.logger.Warn("synthesis failed, skipping segment", "seq", seq, "text", seg, "error", err)
		s.opts.metrics.RecordSegment("failed", time.Since(start), 0)
		return true
	}
	if len(samples) == 0 {
		s.opts.logger.Debug("empty audio, skipping segment", "seq", seq)
		s.opts.metrics.RecordSegment("empty", time.Since(start), 0)
		return true
	}

	// The rate is only reliable after the first successful call
	rate := s.synth.GetInfo().SampleRate
	s.opts.metrics.RecordSegment("ok", time.Since(start), audio.SamplesDuration(len(samples), rate))
	if s.opts.cache != nil {
		if err := s.opts.cache.PutAudio(key, samples, rate); err != nil {
			s.opts.logger.Debug("could not cache segment", "seq", seq, "error", err)
		}
	}

	return s.emit(ctx, out, ttypes.SynthesizedAudio{
		StreamID:   s.opts.id,
		Seq:        seq,
		Text:       seg,
		Samples:    samples,
		SampleRate: rate,
	})
}

func (s *SynthesisStream) emit(ctx context.Context, out chan<- ttypes.SynthesizedAudio, ev ttypes.SynthesizedAudio) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
