package screening

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zodrickjohn/Recuria/internal/ai"
	"github.com/zodrickjohn/Recuria/internal/candidate"
	"github.com/zodrickjohn/Recuria/internal/evaluation"
	"github.com/zodrickjohn/Recuria/internal/telephony"
	"github.com/zodrickjohn/Recuria/internal/transcript"
	"github.com/zodrickjohn/Recuria/internal/transcription"
)

const waitTimeout = 5 * time.Second

type inbound struct {
	event *telephony.Event
	err   error
}

type sentFrame struct {
	kind  string
	sid   string
	audio []byte
	mark  string
}

type fakeStream struct {
	inbound   chan inbound
	sent      chan sentFrame
	closed    chan struct{}
	closeOnce sync.Once
	failSends bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		inbound: make(chan inbound, 64),
		sent:    make(chan sentFrame, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeStream) push(event *telephony.Event) { f.inbound <- inbound{event: event} }

func (f *fakeStream) pushErr(err error) { f.inbound <- inbound{err: err} }

func (f *fakeStream) Next() (*telephony.Event, error) {
	select {
	case in := <-f.inbound:
		return in.event, in.err
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeStream) record(frame sentFrame) error {
	select {
	case <-f.closed:
		return telephony.ErrStreamClosed
	default:
	}
	if f.failSends {
		return errors.New("telephony leg closed")
	}
	f.sent <- frame
	return nil
}

func (f *fakeStream) SendAudio(sid string, audio []byte) error {
	return f.record(sentFrame{kind: "media", sid: sid, audio: audio})
}

func (f *fakeStream) SendMark(sid, name string) error {
	return f.record(sentFrame{kind: "mark", sid: sid, mark: name})
}

func (f *fakeStream) SendClear(sid string) error {
	return f.record(sentFrame{kind: "clear", sid: sid})
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// waitSent returns the next outbound frame of the given kind, skipping others.
func (f *fakeStream) waitSent(t *testing.T, kind string) sentFrame {
	t.Helper()

	deadline := time.After(waitTimeout)
	for {
		select {
		case frame := <-f.sent:
			if frame.kind == kind {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", kind)
			return sentFrame{}
		}
	}
}

type fakeChannel struct {
	results   chan transcription.Result
	audio     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		results: make(chan transcription.Result, 16),
		audio:   make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeChannel) SendAudio(_ context.Context, audio []byte) error {
	select {
	case <-c.closed:
		return transcription.ErrClosed
	default:
	}
	select {
	case c.audio <- audio:
	default:
	}
	return nil
}

func (c *fakeChannel) Results() <-chan transcription.Result { return c.results }

func (c *fakeChannel) Err() error { return c.err }

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeChannel) waitAudio(t *testing.T) []byte {
	t.Helper()
	select {
	case audio := <-c.audio:
		return audio
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for forwarded audio")
		return nil
	}
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeProvider struct {
	opened  chan *fakeChannel
	openErr error
}

func (p *fakeProvider) Open(context.Context) (transcription.Channel, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	ch := newFakeChannel()
	p.opened <- ch
	return ch, nil
}

func (p *fakeProvider) next(t *testing.T) *fakeChannel {
	t.Helper()
	select {
	case ch := <-p.opened:
		return ch
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for transcription channel")
		return nil
	}
}

// scriptedGenerator answers evaluation requests (those with a schema) with a
// fixed score and live replies through reply.
type scriptedGenerator struct {
	mu       sync.Mutex
	reply    func(ctx context.Context, req ai.Request) (string, error)
	requests []ai.Request
}

func (g *scriptedGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	if req.Schema != nil {
		return `{"score": 7, "justification": "Solid answers.\nFinal Score: 7"}`, nil
	}

	g.mu.Lock()
	g.requests = append(g.requests, req)
	reply := g.reply
	g.mu.Unlock()

	if reply != nil {
		return reply(ctx, req)
	}
	return "Reply to: " + req.LastUserText(), nil
}

func (g *scriptedGenerator) Model() string { return "scripted" }

func (g *scriptedGenerator) replyRequests() []ai.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.Request(nil), g.requests...)
}

type harness struct {
	coord    *Coordinator
	store    *candidate.MemoryStore
	provider *fakeProvider
	gen      *scriptedGenerator
	registry *Registry
	tracker  *Tracker
	logs     *observer.ObservedLogs
	dir      string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	h := &harness{
		store: candidate.NewMemoryStore(
			candidate.Record{UID: 42, Name: "Ada Lovelace", Phone: "+15550000042", PhoneScreen: candidate.ScreenInProgress},
			candidate.Record{UID: 43, Name: "Alan Turing", Phone: "+15550000043", PhoneScreen: candidate.ScreenInProgress},
		),
		provider: &fakeProvider{opened: make(chan *fakeChannel, 4)},
		gen:      &scriptedGenerator{},
		registry: NewRegistry(time.Minute),
		tracker:  NewTracker(),
		logs:     logs,
		dir:      t.TempDir(),
	}

	coord, err := NewCoordinator(cfg, Dependencies{
		Transcription: h.provider,
		Generator:     h.gen,
		Evaluator:     evaluation.New(h.gen, h.store, log),
		Sink:          transcript.Dir{Root: h.dir},
		Candidates:    h.store,
		Registry:      h.registry,
		Tracker:       h.tracker,
	}, log)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	h.coord = coord

	return h
}

func (h *harness) serve(ctx context.Context, stream *fakeStream) <-chan *Session {
	out := make(chan *Session, 1)
	go func() { out <- h.coord.Serve(ctx, stream) }()
	return out
}

func (h *harness) transcriptPath(uid, sessionID string) string {
	return filepath.Join(h.dir, "transcripts", uid, sessionID+".txt")
}

// begin sends the start event and waits until the telephony loop has handled it.
func begin(t *testing.T, stream *fakeStream, channel *fakeChannel, sid, callSID string, uid int64) {
	t.Helper()
	stream.push(startEvent(sid, callSID, uid))
	stream.push(mediaEvent(sid, 20))
	channel.waitAudio(t)
}

func waitSession(t *testing.T, done <-chan *Session) *Session {
	t.Helper()
	select {
	case s := <-done:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for session to finish")
		return nil
	}
}

func startEvent(sid, callSID string, uid int64) *telephony.Event {
	return &telephony.Event{
		Kind:      telephony.KindStart,
		StreamSID: sid,
		Start: &telephony.StartInfo{
			CallSID:    callSID,
			StreamSID:  sid,
			Parameters: telephony.StartParameters{CandidateUID: uid},
		},
	}
}

func mediaEvent(sid string, timestamp int64) *telephony.Event {
	return &telephony.Event{Kind: telephony.KindMedia, StreamSID: sid, Audio: []byte{0xff, 0x7f}, Timestamp: timestamp}
}

func stopEvent(sid string) *telephony.Event {
	return &telephony.Event{Kind: telephony.KindStop, StreamSID: sid}
}

func finalResult(words ...string) transcription.Result {
	return transcription.Result{Words: words, SegmentFinal: true, SpeechFinal: true}
}

// flakySpeech fails the first failures calls and then echoes the text.
type flakySpeech struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakySpeech) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("voice unavailable")
	}
	return []byte(text), nil
}

func (f *flakySpeech) Name() string { return "flaky" }
