// Package queue buffers synthesized segments between synthesis and playback.
package queue
