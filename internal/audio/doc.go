// Package audio holds the sample-level plumbing of the voice pipeline: the
// accumulation buffer that gates transcription, PCM and WAV codecs, and
// cross-platform playback through oto/v3.
package audio
