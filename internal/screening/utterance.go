package screening

import (
	"strings"

	"github.com/zodrickjohn/Recuria/internal/transcription"
)

// utteranceBuffer joins final transcript segments until the speaker pauses.
type utteranceBuffer struct {
	parts []string
}

func (b *utteranceBuffer) add(result transcription.Result) (string, bool) {
	if !result.SegmentFinal {
		return "", false
	}
	if text := result.Text(); text != "" {
		b.parts = append(b.parts, text)
	}
	if !result.SpeechFinal {
		return "", false
	}
	return b.flush()
}

func (b *utteranceBuffer) flush() (string, bool) {
	if len(b.parts) == 0 {
		return "", false
	}
	utterance := strings.Join(b.parts, " ")
	b.parts = nil
	return utterance, true
}
