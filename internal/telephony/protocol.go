// Package telephony speaks to the phone leg of a screening call: the Twilio
// media stream wire format, outbound call placement, TwiML and webhook signatures.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrMalformed marks an inbound message that could not be decoded. Callers drop it and continue.
var ErrMalformed = errors.New("malformed media stream message")

// Kind is the media stream event discriminator.
type Kind string

const (
	KindConnected Kind = "connected"
	KindStart     Kind = "start"
	KindMedia     Kind = "media"
	KindMark      Kind = "mark"
	KindDTMF      Kind = "dtmf"
	KindStop      Kind = "stop"
	KindClear     Kind = "clear"
)

// ParamCandidateUID is the custom stream parameter carrying the candidate UID.
const ParamCandidateUID = "candidate_uid"

// Event is one decoded inbound message.
type Event struct {
	Kind      Kind
	StreamSID string
	// Set on start.
	Start *StartInfo
	// Set on media: decoded audio and the media timestamp in milliseconds.
	Audio     []byte
	Timestamp int64
	// Set on mark.
	MarkName string
}

// StartInfo is the payload of a start event.
type StartInfo struct {
	AccountSID string
	CallSID    string
	StreamSID  string
	Encoding   string
	SampleRate int
	Parameters StartParameters
	// ParameterErr is set when the custom parameters could not be decoded.
	// Parameters is then left zero and the stream still starts.
	ParameterErr error
}

// StartParameters are the typed custom parameters attached to the stream by TwiML.
type StartParameters struct {
	CandidateUID int64 `mapstructure:"candidate_uid"`
}

type wireMessage struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid,omitempty"`
	Start     *struct {
		AccountSID  string `json:"accountSid"`
		CallSID     string `json:"callSid"`
		StreamSID   string `json:"streamSid"`
		MediaFormat struct {
			Encoding   string `json:"encoding"`
			SampleRate int    `json:"sampleRate"`
		} `json:"mediaFormat"`
		CustomParameters map[string]any `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *wireMedia `json:"media,omitempty"`
	Mark  *wireMark  `json:"mark,omitempty"`
}

type wireMedia struct {
	Track     string `json:"track,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type wireMark struct {
	Name string `json:"name"`
}

// Decode parses one inbound text frame. Errors wrap ErrMalformed.
func Decode(data []byte) (*Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	kind := Kind(strings.TrimSpace(msg.Event))
	if kind == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformed)
	}

	event := &Event{Kind: kind, StreamSID: msg.StreamSID}

	switch kind {
	case KindStart:
		if msg.Start == nil {
			return nil, fmt.Errorf("%w: start without payload", ErrMalformed)
		}

		params, paramErr := decodeParameters(msg.Start.CustomParameters)
		if paramErr != nil {
			params = StartParameters{}
		}

		event.Start = &StartInfo{
			AccountSID:   msg.Start.AccountSID,
			CallSID:      msg.Start.CallSID,
			StreamSID:    msg.Start.StreamSID,
			Encoding:     msg.Start.MediaFormat.Encoding,
			SampleRate:   msg.Start.MediaFormat.SampleRate,
			Parameters:   params,
			ParameterErr: paramErr,
		}
		if event.StreamSID == "" {
			event.StreamSID = msg.Start.StreamSID
		}
		if event.StreamSID == "" {
			return nil, fmt.Errorf("%w: start without stream sid", ErrMalformed)
		}
	case KindMedia:
		if msg.Media == nil {
			return nil, fmt.Errorf("%w: media without payload", ErrMalformed)
		}

		audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: media payload: %v", ErrMalformed, err)
		}
		event.Audio = audio

		if ts := strings.TrimSpace(msg.Media.Timestamp); ts != "" {
			if v, err := strconv.ParseInt(ts, 10, 64); err == nil {
				event.Timestamp = v
			}
		}
	case KindMark:
		if msg.Mark != nil {
			event.MarkName = msg.Mark.Name
		}
	}

	return event, nil
}

func decodeParameters(raw map[string]any) (StartParameters, error) {
	var params StartParameters
	if len(raw) == 0 {
		return params, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &params,
	})
	if err != nil {
		return params, err
	}

	if err := decoder.Decode(raw); err != nil {
		return params, fmt.Errorf("custom parameters: %w", err)
	}

	return params, nil
}

type outboundMessage struct {
	Event     Kind       `json:"event"`
	StreamSID string     `json:"streamSid"`
	Media     *wireMedia `json:"media,omitempty"`
	Mark      *wireMark  `json:"mark,omitempty"`
}

// EncodeMedia builds an outbound media frame carrying audio for the stream.
func EncodeMedia(streamSID string, audio []byte) ([]byte, error) {
	return json.Marshal(outboundMessage{
		Event:     KindMedia,
		StreamSID: streamSID,
		Media:     &wireMedia{Payload: base64.StdEncoding.EncodeToString(audio)},
	})
}

// EncodeMark builds an outbound mark frame; the bridge echoes it back once playback reaches it.
func EncodeMark(streamSID, name string) ([]byte, error) {
	return json.Marshal(outboundMessage{
		Event:     KindMark,
		StreamSID: streamSID,
		Mark:      &wireMark{Name: name},
	})
}

// EncodeClear builds an outbound clear frame that drops any audio still buffered on the bridge.
func EncodeClear(streamSID string) ([]byte, error) {
	return json.Marshal(outboundMessage{Event: KindClear, StreamSID: streamSID})
}
