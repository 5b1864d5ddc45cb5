package transcription

import (
	"encoding/json"
	"fmt"
)

// listenMessage keeps channel raw: "Results" sends an object there while
// "UtteranceEnd" sends an array of channel indexes.
type listenMessage struct {
	Type        string          `json:"type"`
	IsFinal     *bool           `json:"is_final"`
	SpeechFinal *bool           `json:"speech_final"`
	Channel     json.RawMessage `json:"channel"`
	Description string          `json:"description"`
	Message     string          `json:"message"`
}

type listenChannel struct {
	Alternatives []struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
		Words      []struct {
			Word string `json:"word"`
		} `json:"words"`
	} `json:"alternatives"`
}

// ParseMessage decodes one listen event. ok is false for events that carry no
// transcript (metadata, speech started). A "Results" event without finality
// flags counts as final. "UtteranceEnd" becomes an empty speech-final result.
func ParseMessage(data []byte) (result Result, ok bool, err error) {
	var msg listenMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Result{}, false, fmt.Errorf("decode listen message: %w", err)
	}

	switch msg.Type {
	case "Results":
	case "UtteranceEnd":
		return Result{SegmentFinal: true, SpeechFinal: true}, true, nil
	case "Error":
		return Result{}, false, fmt.Errorf("deepgram error: %s %s", msg.Description, msg.Message)
	default:
		return Result{}, false, nil
	}

	result = Result{
		SegmentFinal: msg.IsFinal == nil || *msg.IsFinal,
		SpeechFinal:  msg.SpeechFinal == nil || *msg.SpeechFinal,
	}

	var channel listenChannel
	if len(msg.Channel) > 0 {
		if err := json.Unmarshal(msg.Channel, &channel); err != nil {
			return Result{}, false, fmt.Errorf("decode listen channel: %w", err)
		}
	}
	if len(channel.Alternatives) == 0 {
		return result, true, nil
	}

	alt := channel.Alternatives[0]
	result.Transcript = alt.Transcript
	result.Confidence = alt.Confidence
	for _, w := range alt.Words {
		if w.Word != "" {
			result.Words = append(result.Words, w.Word)
		}
	}

	return result, true, nil
}
