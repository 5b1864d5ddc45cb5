package transcription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDeepgramRoundTrip(t *testing.T) {
	t.Parallel()

	type observed struct {
		auth  string
		query string
		audio []byte
	}
	seen := make(chan observed, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		kind, audio, err := conn.ReadMessage()
		if err != nil || kind != websocket.BinaryMessage {
			return
		}
		seen <- observed{auth: r.Header.Get("Authorization"), query: r.URL.RawQuery, audio: audio}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"words":[{"word":"hello"},{"word":"there"}]}]}}`))

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(msg), "CloseStream") {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	defer server.Close()

	provider, err := NewDeepgram(DeepgramConfig{APIKey: "dg-key", BaseURL: wsURL(server), Endpointing: 300}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel, err := provider.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := channel.SendAudio(ctx, []byte{0xff, 0x7f}); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	select {
	case result := <-channel.Results():
		if result.Text() != "hello there" || !result.SpeechFinal {
			t.Fatalf("unexpected result: %+v", result)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for result")
	}

	got := <-seen
	if got.auth != "Token dg-key" {
		t.Fatalf("unexpected authorization header %q", got.auth)
	}
	for _, want := range []string{"encoding=mulaw", "sample_rate=8000", "endpointing=300", "interim_results=false"} {
		if !strings.Contains(got.query, want) {
			t.Fatalf("expected %q in query %q", want, got.query)
		}
	}
	if string(got.audio) != string([]byte{0xff, 0x7f}) {
		t.Fatalf("unexpected audio %v", got.audio)
	}

	if err := channel.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := channel.SendAudio(ctx, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestDeepgramServerDrop(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer server.Close()

	provider, err := NewDeepgram(DeepgramConfig{APIKey: "dg-key", BaseURL: wsURL(server)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel, err := provider.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer channel.Close()

	select {
	case _, ok := <-channel.Results():
		if ok {
			t.Fatal("expected results channel to close")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for disconnect")
	}

	if channel.Err() == nil {
		t.Fatal("expected a read error after the server dropped")
	}
	if err := channel.SendAudio(ctx, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNewDeepgramRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewDeepgram(DeepgramConfig{}, nil); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestDeepgramListenURLUtteranceEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DeepgramConfig
		want []string
		skip string
	}{
		{
			name: "utterance end turns on interim results",
			cfg:  DeepgramConfig{APIKey: "k", UtteranceEndMs: 1000},
			want: []string{"utterance_end_ms=1000", "interim_results=true"},
		},
		{
			name: "no utterance end by default",
			cfg:  DeepgramConfig{APIKey: "k"},
			want: []string{"interim_results=false"},
			skip: "utterance_end_ms",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider, err := NewDeepgram(tt.cfg, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			target, err := provider.listenURL()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(target, want) {
					t.Fatalf("expected %q in %q", want, target)
				}
			}
			if tt.skip != "" && strings.Contains(target, tt.skip) {
				t.Fatalf("did not expect %q in %q", tt.skip, target)
			}
		})
	}
}

func TestDeepgramWriteFailureEndsChannel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer server.Close()
	defer close(release)

	provider, err := NewDeepgram(DeepgramConfig{APIKey: "dg-key", BaseURL: wsURL(server)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel, err := provider.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer channel.Close()

	stream := channel.(*deepgramStream)
	stream.fail(errors.New("broken pipe"))

	select {
	case _, ok := <-channel.Results():
		if ok {
			t.Fatal("expected results channel to close")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the channel to end")
	}

	if err := channel.Err(); err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("expected the write error to be kept, got %v", err)
	}
	if err := channel.SendAudio(ctx, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
