// Package engines contains the speech synthesis backends: Piper (offline
// subprocess), gTTS (online, via gtts-cli and ffmpeg) and a deterministic
// tone generator. Each implements ttypes.Synthesizer.
package engines
