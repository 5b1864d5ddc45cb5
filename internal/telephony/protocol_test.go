package telephony

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeStart(t *testing.T) {
	t.Parallel()

	raw := `{"event":"start","sequenceNumber":"1","start":{"accountSid":"AC1","streamSid":"SID123","callSid":"CA9",` +
		`"tracks":["inbound"],"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1},` +
		`"customParameters":{"candidate_uid":"42"}},"streamSid":"SID123"}`

	event, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.Kind != KindStart || event.StreamSID != "SID123" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Start.CallSID != "CA9" {
		t.Fatalf("expected call sid CA9, got %q", event.Start.CallSID)
	}
	if event.Start.Parameters.CandidateUID != 42 {
		t.Fatalf("expected candidate uid 42, got %d", event.Start.Parameters.CandidateUID)
	}
	if event.Start.SampleRate != 8000 {
		t.Fatalf("expected sample rate 8000, got %d", event.Start.SampleRate)
	}
}

func TestDecodeStartWithoutParameters(t *testing.T) {
	t.Parallel()

	event, err := Decode([]byte(`{"event":"start","start":{"streamSid":"SID1","callSid":"CA1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.StreamSID != "SID1" {
		t.Fatalf("expected stream sid from start payload, got %q", event.StreamSID)
	}
	if event.Start.Parameters.CandidateUID != 0 {
		t.Fatalf("expected no candidate uid, got %d", event.Start.Parameters.CandidateUID)
	}
}

func TestDecodeStartKeepsStreamOnBadParameters(t *testing.T) {
	t.Parallel()

	raw := `{"event":"start","streamSid":"SID1","start":{"streamSid":"SID1","callSid":"CA1",` +
		`"customParameters":{"candidate_uid":"abc"}}}`

	event, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.Kind != KindStart || event.StreamSID != "SID1" || event.Start.CallSID != "CA1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Start.Parameters.CandidateUID != 0 {
		t.Fatalf("expected no candidate uid, got %d", event.Start.Parameters.CandidateUID)
	}
	if event.Start.ParameterErr == nil {
		t.Fatal("expected the parameter error to be reported")
	}
}

func TestDecodeMedia(t *testing.T) {
	t.Parallel()

	event, err := Decode([]byte(`{"event":"media","streamSid":"SID1","media":{"track":"inbound","timestamp":"1520","payload":"AQID"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(event.Audio, []byte{1, 2, 3}) {
		t.Fatalf("unexpected audio: %v", event.Audio)
	}
	if event.Timestamp != 1520 {
		t.Fatalf("expected timestamp 1520, got %d", event.Timestamp)
	}
}

func TestDecodeMark(t *testing.T) {
	t.Parallel()

	event, err := Decode([]byte(`{"event":"mark","streamSid":"SID1","mark":{"name":"reply-1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != KindMark || event.MarkName != "reply-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDecodeUnknownEventIsNotAnError(t *testing.T) {
	t.Parallel()

	event, err := Decode([]byte(`{"event":"dtmf","streamSid":"SID1","dtmf":{"digit":"1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != KindDTMF {
		t.Fatalf("expected dtmf kind, got %q", event.Kind)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":            `{"event":`,
		"missing event":       `{"streamSid":"SID1"}`,
		"start no payload":    `{"event":"start"}`,
		"start no stream sid": `{"event":"start","start":{"callSid":"CA1"}}`,
		"media no payload":    `{"event":"media","streamSid":"SID1"}`,
		"media bad base64":    `{"event":"media","streamSid":"SID1","media":{"payload":"%%%"}}`,
	}

	for name, raw := range cases {
		name, raw := name, raw
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if _, err := Decode([]byte(raw)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestEncodeOutbound(t *testing.T) {
	t.Parallel()

	media, err := EncodeMedia("SID1", []byte("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(media, &decoded); err != nil {
		t.Fatalf("unmarshal media: %v", err)
	}
	if decoded["event"] != "media" || decoded["streamSid"] != "SID1" {
		t.Fatalf("unexpected media frame: %s", media)
	}
	payload := decoded["media"].(map[string]any)["payload"]
	if payload != "aGk=" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	clearFrame, err := EncodeClear("SID1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(clearFrame) != `{"event":"clear","streamSid":"SID1"}` {
		t.Fatalf("unexpected clear frame: %s", clearFrame)
	}

	mark, err := EncodeMark("SID1", "reply-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(mark) != `{"event":"mark","streamSid":"SID1","mark":{"name":"reply-2"}}` {
		t.Fatalf("unexpected mark frame: %s", mark)
	}
}
