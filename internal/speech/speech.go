// Package speech turns agent reply text into audio for the phone leg.
package speech

import "context"

// Synthesizer renders text as audio in the call's wire format.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Name() string
}

// Text sends the reply's UTF-8 bytes as the media payload. It is what the
// bridge received before a voice provider was configured and keeps local
// setups working without one.
type Text struct{}

func (Text) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

func (Text) Name() string { return "text" }
