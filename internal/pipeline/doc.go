// Package pipeline coordinates the blocking inference engines as streams.
//
// A TranscriptionStream turns a channel of audio frames into transcripts,
// a SynthesisStream turns text into per-sentence audio and a VoiceAgent
// chains the two through a chat model. Every stream keeps at most one engine
// call in flight on the shared worker pool and emits events in input order.
package pipeline
