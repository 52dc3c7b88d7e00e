package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/pipeline"
	"github.com/dgnsrekt/voicepipe/internal/sink"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// frameDuration is the size of the frames a WAV file is replayed in, which
// mimics a live capture.
const frameDuration = 100 * time.Millisecond

var (
	chunkSeconds float64
	publish      bool
	showSeq      bool

	transcribeCmd = &cobra.Command{
		Use:     "transcribe FILE...",
		Short:   "Transcribe WAV recordings",
		Long:    paragraph(fmt.Sprintf("\n%s WAV recordings the way a live stream would be: the audio is fed in small frames and every few seconds of it is sent to the speech engine. Use - to read a WAV from stdin.", keyword("Transcribe"))),
		Example: paragraph("voicepipe transcribe meeting.wav\nvoicepipe transcribe --stt google --chunk 5 a.wav b.wav\narecord -f S16_LE -r 16000 -d 10 -t wav | voicepipe transcribe -"),
		Args:    cobra.MinimumNArgs(1),
		RunE:    runTranscribe,
	}
)

func init() {
	transcribeCmd.Flags().Float64Var(&chunkSeconds, "chunk", 0, "seconds of audio per transcription call (default from config)")
	transcribeCmd.Flags().BoolVar(&publish, "publish", false, "also publish transcripts to the configured Redis stream")
	transcribeCmd.Flags().BoolVar(&showSeq, "seq", false, "prefix each transcript with its chunk number")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if chunkSeconds > 0 {
		cfg.Audio.MinChunkSeconds = chunkSeconds
	}

	a := newApp(cfg)
	defer a.Close()

	transcriber, err := a.transcriber()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var out sink.Sink = sink.Discard{}
	if publish {
		if cfg.Server.RedisAddr == "" {
			return fmt.Errorf("--publish needs server.redis_addr or REDIS_ADDR")
		}
		r, err := sink.NewRedis(ctx, cfg.Server.RedisAddr, cfg.Server.RedisStream)
		if err != nil {
			return err
		}
		out = r
	}
	defer out.Close() //nolint:errcheck

	width := outputWidth()
	for _, arg := range args {
		wav, err := readWAV(arg)
		if err != nil {
			return err
		}
		log.Debug("Transcribing", "source", arg, "rate", wav.SampleRate, "duration", audio.SamplesDuration(len(wav.Samples), wav.SampleRate))

		stream, err := pipeline.NewTranscriptionStream(transcriber, a.pool, pipeline.TranscriptionConfig{
			SampleRate:      wav.SampleRate,
			MinChunkSeconds: cfg.Audio.MinChunkSeconds,
		})
		if err != nil {
			return err
		}

		for tr := range stream.Run(ctx, replay(ctx, wav)) {
			if tr.Text == "" {
				continue
			}
			printTranscript(os.Stdout, tr, width)
			if err := out.Publish(ctx, tr); err != nil {
				log.Warn("Could not publish transcript", "seq", tr.Seq, "err", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func readWAV(arg string) (*audio.WAV, error) {
	if arg == "-" {
		wav, err := audio.DecodeWAV(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read WAV from stdin: %w", err)
		}
		return wav, nil
	}
	wav, err := audio.ReadWAVFile(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", arg, err)
	}
	return wav, nil
}

// replay feeds a recording to the stream in capture-sized frames.
func replay(ctx context.Context, wav *audio.WAV) <-chan []int16 {
	frames := make(chan []int16)
	size := max(audio.SamplesFor(frameDuration, wav.SampleRate), 1)
	go func() {
		defer close(frames)
		for start := 0; start < len(wav.Samples); start += size {
			end := min(start+size, len(wav.Samples))
			select {
			case frames <- wav.Samples[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames
}

func printTranscript(w io.Writer, tr ttypes.Transcript, width int) {
	text := tr.Text
	if showSeq {
		text = fmt.Sprintf("%s %s", faint(fmt.Sprintf("[%d]", tr.Seq)), text)
	}
	_, _ = fmt.Fprintln(w, wordwrap.String(text, width))
}

// outputWidth is the terminal width capped at 120, or 80 when stdout is
// not a terminal.
func outputWidth() int {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			return min(w, 120)
		}
	}
	return 80
}
