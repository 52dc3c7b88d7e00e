package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/queue"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// queueMemoryLimit bounds the audio buffered ahead of playback.
const queueMemoryLimit = 64 << 20

// play sends segments to the sound device in order. Segments wait in an
// AudioQueue so synthesis keeps working while earlier ones play. onPlay, if
// set, is called as each segment starts.
func play(ctx context.Context, cfg config.AudioConfig, segments <-chan ttypes.SynthesizedAudio, onPlay func(ttypes.SynthesizedAudio)) error {
	pc := audio.DefaultPlayerConfig()
	pc.SampleRate = cfg.PlaybackRate
	player, err := audio.NewPlayer(pc)
	if err != nil {
		return fmt.Errorf("unable to open audio device: %w", err)
	}
	defer player.Close() //nolint:errcheck
	if err := player.SetVolume(cfg.Volume); err != nil {
		return err
	}

	q := queue.NewAudioQueue(cfg.QueueSize, queueMemoryLimit)
	defer q.Close() //nolint:errcheck
	go func() {
		defer q.Close() //nolint:errcheck
		for seg := range segments {
			err := q.Push(ctx, seg)
			if errors.Is(err, queue.ErrQueueFull) {
				log.Warn("Segment too large to queue, skipping", "seq", seg.Seq, "duration", seg.Duration())
				continue
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		seg, err := q.Pop(ctx)
		if errors.Is(err, queue.ErrQueueClosed) {
			stats := q.GetStats()
			log.Debug("Playback finished", "segments", stats.TotalDequeued, "peak_queued", stats.PeakSize)
			return nil
		}
		if err != nil {
			return err
		}
		if onPlay != nil {
			onPlay(seg)
		}
		if err := player.Play(ctx, seg.Samples, seg.SampleRate); err != nil {
			return err
		}
	}
}

// collect joins segments into one clip at the rate of the first segment.
func collect(segments <-chan ttypes.SynthesizedAudio) ([]int16, int) {
	var (
		samples []int16
		rate    int
	)
	for seg := range segments {
		if rate == 0 {
			rate = seg.SampleRate
		}
		samples = append(samples, audio.Resample(seg.Samples, seg.SampleRate, rate)...)
	}
	return samples, rate
}
