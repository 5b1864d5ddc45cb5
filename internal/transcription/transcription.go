// Package transcription streams call audio to a speech-to-text service and
// surfaces its transcript events.
package transcription

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned when audio is sent to a channel that has shut down.
var ErrClosed = errors.New("transcription channel closed")

// Result is one transcript event.
type Result struct {
	Words      []string
	Transcript string
	Confidence float64
	// SegmentFinal means the text for this audio span will not change.
	SegmentFinal bool
	// SpeechFinal means the speaker paused; the utterance is complete.
	SpeechFinal bool
}

// Text joins the word tokens, falling back to the transcript string.
func (r Result) Text() string {
	if len(r.Words) > 0 {
		return strings.TrimSpace(strings.Join(r.Words, " "))
	}
	return strings.TrimSpace(r.Transcript)
}

// Channel is one open transcription connection.
type Channel interface {
	// SendAudio queues raw call audio. It blocks while the outbound buffer is full.
	SendAudio(ctx context.Context, audio []byte) error
	// Results is closed when the connection ends, after which Err reports why.
	Results() <-chan Result
	Err() error
	Close() error
}

// Provider opens transcription channels, one per call.
type Provider interface {
	Open(ctx context.Context) (Channel, error)
}
