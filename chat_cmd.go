package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/pipeline"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

var (
	maxTurns int

	chatCmd = &cobra.Command{
		Use:     "chat [FILE.wav...]",
		Short:   "Talk with a language model",
		Long:    paragraph(fmt.Sprintf("\n%s with an OpenAI-compatible model. Replies are spoken sentence by sentence while they are still being written. Type your turns, or pass WAV recordings to speak them instead. Type /exit to leave.", keyword("Chat"))),
		Example: paragraph("voicepipe chat\nvoicepipe chat --tts gtts\nvoicepipe chat question.wav"),
		RunE:    runChat,
	}
)

func init() {
	chatCmd.Flags().IntVar(&maxTurns, "max-turns", defaultMaxTurns, "conversation turns to remember (0 keeps everything)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a := newApp(cfg)
	defer a.Close()

	generator, err := a.generator()
	if err != nil {
		return err
	}
	synth, err := a.synthesizer()
	if err != nil {
		return err
	}
	synthesis, err := pipeline.NewSynthesisStream(synth, a.pool, pipeline.WithCache(a.cache))
	if err != nil {
		return err
	}

	var transcription *pipeline.TranscriptionStream
	var recordings []*audio.WAV
	if len(args) > 0 {
		transcriber, err := a.transcriber()
		if err != nil {
			return err
		}
		for _, arg := range args {
			wav, err := readWAV(arg)
			if err != nil {
				return err
			}
			recordings = append(recordings, wav)
		}
		transcription, err = pipeline.NewTranscriptionStream(transcriber, a.pool, pipeline.TranscriptionConfig{
			SampleRate:      recordings[0].SampleRate,
			MinChunkSeconds: cfg.Audio.MinChunkSeconds,
		})
		if err != nil {
			return err
		}
	}

	agent, err := pipeline.NewVoiceAgent(transcription, synthesis, generator, pipeline.AgentConfig{
		SystemPrompt: cfg.LLM.SystemPrompt,
		Greeting:     cfg.LLM.Greeting,
		MaxTurns:     maxTurns,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	prompt := make(chan struct{}, 1)
	var events <-chan pipeline.Event
	if transcription != nil {
		events, err = agent.Run(ctx, replayAll(ctx, recordings))
		if err != nil {
			return err
		}
	} else {
		turns := make(chan string)
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		go readTurns(ctx, os.Stdin, os.Stdout, turns, prompt, interactive)
		if cfg.LLM.Greeting == "" {
			prompt <- struct{}{}
		}
		events = agent.RunTurns(ctx, turns)
	}

	speech := make(chan ttypes.SynthesizedAudio, 8)
	played := make(chan error, 1)
	go func() {
		err := play(ctx, cfg.Audio, speech, nil)
		// Keep the conversation going in text if the device fails
		for range speech {
		}
		played <- err
	}()

	width := outputWidth()
	for ev := range events {
		switch ev.Type {
		case pipeline.EventTranscript:
			if transcription == nil {
				continue
			}
			fmt.Println(faint(wordwrap.String("you: "+ev.Transcript.Text, width)))
		case pipeline.EventReply:
			fmt.Println(wordwrap.String(ev.Text, width))
			next(prompt)
		case pipeline.EventError:
			fmt.Fprintln(os.Stderr, errorText(ev.Err.Error()))
			next(prompt)
		case pipeline.EventAudio:
			select {
			case speech <- ev.Audio:
			case <-ctx.Done():
			}
		}
	}
	close(speech)

	err = <-played
	if errors.Is(err, context.Canceled) {
		return nil
	}
	log.Debug("Chat finished", "messages", len(agent.History()))
	return err
}

// next lets readTurns ask for another line.
func next(prompt chan<- struct{}) {
	select {
	case prompt <- struct{}{}:
	default:
	}
}

// readTurns sends one line per prompt and closes turns on EOF or /exit.
func readTurns(ctx context.Context, r io.Reader, w io.Writer, turns chan<- string, prompt <-chan struct{}, interactive bool) {
	defer close(turns)
	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-ctx.Done():
			return
		case <-prompt:
		}

		var line string
		for line == "" {
			if interactive {
				_, _ = fmt.Fprint(w, keyword("> "))
			}
			if !scanner.Scan() {
				return
			}
			line = strings.TrimSpace(scanner.Text())
		}
		if line == "/exit" || line == "/quit" {
			return
		}

		select {
		case turns <- line:
		case <-ctx.Done():
			return
		}
	}
}

// replayAll feeds recordings back to back, resampled to the rate of the
// first one.
func replayAll(ctx context.Context, recordings []*audio.WAV) <-chan []int16 {
	frames := make(chan []int16)
	rate := recordings[0].SampleRate
	go func() {
		defer close(frames)
		for _, rec := range recordings {
			wav := &audio.WAV{SampleRate: rate, Samples: audio.Resample(rec.Samples, rec.SampleRate, rate)}
			for frame := range replay(ctx, wav) {
				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return frames
}
