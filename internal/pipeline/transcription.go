package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
	"github.com/dgnsrekt/voicepipe/internal/worker"
)

// TranscriptionConfig sizes the accumulation buffer.
type TranscriptionConfig struct {
	SampleRate      int
	MinChunkSeconds float64
}

// TranscriptionStream accumulates audio frames and transcribes them in
// chunks of at least MinChunkSeconds.
type TranscriptionStream struct {
	transcriber ttypes.Transcriber
	pool        *worker.Pool
	config      TranscriptionConfig
	opts        options
}

// NewTranscriptionStream validates config and creates a stream. Zero config
// fields take the audio package defaults.
func NewTranscriptionStream(t ttypes.Transcriber, pool *worker.Pool, config TranscriptionConfig, opts ...Option) (*TranscriptionStream, error) {
	if t == nil || pool == nil {
		return nil, errors.New("transcriber and worker pool are required")
	}
	if config.SampleRate == 0 {
		config.SampleRate = audio.DefaultSampleRate
	}
	if config.MinChunkSeconds == 0 {
		config.MinChunkSeconds = audio.DefaultMinChunkSeconds
	}
	// Surface bad values here rather than on Run
	if _, err := audio.NewBuffer(config.SampleRate, config.MinChunkSeconds); err != nil {
		return nil, err
	}
	return &TranscriptionStream{
		transcriber: t,
		pool:        pool,
		config:      config,
		opts:        buildOptions("stt", opts),
	}, nil
}

// ID returns the stream id stamped on transcripts.
func (s *TranscriptionStream) ID() string {
	return s.opts.id
}

// Run consumes frames until the channel is closed or ctx is done and emits
// one Transcript per non-empty transcription. The returned channel is closed
// when Run finishes. Each call uses its own buffer.
func (s *TranscriptionStream) Run(ctx context.Context, frames <-chan []int16) <-chan ttypes.Transcript {
	out := make(chan ttypes.Transcript)
	buf, _ := audio.NewBuffer(s.config.SampleRate, s.config.MinChunkSeconds)

	go func() {
		defer close(out)
		defer s.opts.metrics.StreamStarted("transcription")()

		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					if rest := buf.Flush(); len(rest) > 0 {
						s.transcribe(ctx, out, rest, seq, true)
					}
					s.opts.logger.Debug("transcription stream finished", "chunks", seq)
					return
				}
				buf.Append(frame)
				if !buf.ShouldFlush() {
					continue
				}
				if !s.transcribe(ctx, out, buf.Flush(), seq, false) {
					return
				}
				seq++
			}
		}
	}()

	return out
}

// transcribe offloads one chunk and emits its transcript. It returns false
// when the stream has to stop.
func (s *TranscriptionStream) transcribe(ctx context.Context, out chan<- ttypes.Transcript, chunk []int16, seq int, final bool) bool {
	chunkDur := audio.SamplesDuration(len(chunk), s.config.SampleRate)
	start := time.Now()

	text, err := worker.Do(ctx, s.pool, func(jctx context.Context) (string, error) {
		return s.transcriber.Transcribe(jctx, chunk, s.config.SampleRate)
	})
	if ctx.Err() != nil {
		// Abandoned; the chunk is not retried
		return false
	}
	if errors.Is(err, worker.ErrPoolClosed) {
		s.opts.logger.Error("worker pool closed, stopping stream")
		return false
	}
	if err != nil {
		s.opts.logger.Warn("transcription failed", "seq", seq, "audio", chunkDur, "error", err)
		text = ""
	}
	text = strings.TrimSpace(text)
	s.opts.metrics.RecordTranscription(chunkDur, time.Since(start), text, err)

	if text == "" {
		return true
	}
	s.opts.logger.Debug("transcript", "seq", seq, "final", final, "took", time.Since(start))

	select {
	case out <- ttypes.Transcript{
		StreamID: s.opts.id,
		Seq:      seq,
		Text:     text,
		Samples:  len(chunk),
		Duration: chunkDur,
		Final:    final,
	}:
		return true
	case <-ctx.Done():
		return false
	}
}
