package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/pipeline"
	"github.com/dgnsrekt/voicepipe/internal/sentence"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

var (
	speakOut      string
	speakMarkdown bool

	speakCmd = &cobra.Command{
		Use:     "speak [TEXT|FILE|-]",
		Short:   "Read text aloud",
		Long:    paragraph(fmt.Sprintf("\n%s text sentence by sentence. Playback of the first sentence starts while the rest are still being synthesized. Text comes from the arguments, a file, or stdin.", keyword("Speak"))),
		Example: paragraph("voicepipe speak \"Hello there. How are you?\"\nvoicepipe speak --tts gtts README.md\ncat notes.txt | voicepipe speak --out notes.wav"),
		RunE:    runSpeak,
	}
)

func init() {
	speakCmd.Flags().StringVarP(&speakOut, "out", "o", "", "write a WAV file instead of playing")
	speakCmd.Flags().BoolVarP(&speakMarkdown, "markdown", "m", false, "treat the input as markdown (implied for .md files)")
}

func runSpeak(cmd *cobra.Command, args []string) error {
	text, isMarkdown, err := readSpeakInput(args)
	if err != nil {
		return err
	}
	if isMarkdown || speakMarkdown {
		text = sentence.StripMarkdown(text)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to speak")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a := newApp(cfg)
	defer a.Close()

	synth, err := a.synthesizer()
	if err != nil {
		return err
	}
	stream, err := pipeline.NewSynthesisStream(synth, a.pool, pipeline.WithCache(a.cache))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	segments := stream.Speak(ctx, text)
	if speakOut != "" {
		return writeClip(ctx, speakOut, segments)
	}
	return play(ctx, cfg.Audio, segments, func(seg ttypes.SynthesizedAudio) {
		log.Debug("Speaking", "seq", seg.Seq, "cached", seg.Cached, "text", seg.Text)
	})
}

func writeClip(ctx context.Context, path string, segments <-chan ttypes.SynthesizedAudio) error {
	samples, rate := collect(segments)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.New("no audio was synthesized, see the log for details")
	}
	if err := audio.WriteWAVFile(path, samples, rate); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	fmt.Printf("Wrote %s (%s)\n", path, audio.SamplesDuration(len(samples), rate))
	return nil
}

// readSpeakInput returns the text to speak and whether it came from a
// markdown file.
func readSpeakInput(args []string) (string, bool, error) {
	if yes, err := stdinIsPipe(); err != nil {
		return "", false, err
	} else if yes && len(args) == 0 {
		args = []string{"-"}
	}

	switch {
	case len(args) == 0:
		return "", false, errors.New("missing text: pass it as an argument, a file, or on stdin")
	case len(args) == 1 && args[0] == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", false, fmt.Errorf("unable to read from stdin: %w", err)
		}
		return string(b), false, nil
	case len(args) == 1:
		if st, err := os.Stat(args[0]); err == nil && !st.IsDir() {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return "", false, fmt.Errorf("unable to open file: %w", err)
			}
			return string(b), isMarkdownFile(args[0]), nil
		}
	}
	return strings.Join(args, " "), false, nil
}

func isMarkdownFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".mdown", ".mkdn", ".mkd", ".markdown":
		return true
	}
	return false
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}
