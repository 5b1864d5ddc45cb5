package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/logger"
)

const (
	defaultDeepgramURL   = "wss://api.deepgram.com/v1/listen"
	defaultDeepgramModel = "nova-2-phonecall"
	defaultKeepAlive     = 5 * time.Second
	defaultCloseTimeout  = 2 * time.Second
	writeTimeout         = 10 * time.Second
	audioBuffer          = 256
	resultBuffer         = 64
)

// DeepgramConfig configures the live listen endpoint.
type DeepgramConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	// Endpointing is the silence in milliseconds that ends an utterance. Zero keeps the service default.
	Endpointing    int
	InterimResults bool
	// UtteranceEndMs asks for an UtteranceEnd event after that many milliseconds
	// without words. It closes utterances whose last final segment was not
	// speech final. Setting it turns on interim results.
	UtteranceEndMs int
	KeepAlive      time.Duration
}

// Deepgram opens live transcription channels for 8 kHz mu-law call audio.
type Deepgram struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewDeepgram validates cfg and returns a provider.
func NewDeepgram(cfg DeepgramConfig, log *zap.Logger) (*Deepgram, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("deepgram api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDeepgramURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultDeepgramModel
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Deepgram{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.WithProvider(log.Named("transcription"), "deepgram", cfg.Model),
	}, nil
}

func (d *Deepgram) listenURL() (string, error) {
	u, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse deepgram url: %w", err)
	}

	q := u.Query()
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", "8000")
	q.Set("channels", "1")
	q.Set("model", d.cfg.Model)
	q.Set("punctuate", "true")
	interim := d.cfg.InterimResults
	if d.cfg.UtteranceEndMs > 0 {
		interim = true
		q.Set("utterance_end_ms", strconv.Itoa(d.cfg.UtteranceEndMs))
	}
	q.Set("interim_results", strconv.FormatBool(interim))
	if d.cfg.Language != "" {
		q.Set("language", d.cfg.Language)
	}
	if d.cfg.Endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(d.cfg.Endpointing))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Open dials the listen endpoint and starts the reader and writer goroutines.
func (d *Deepgram) Open(ctx context.Context) (Channel, error) {
	target, err := d.listenURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to deepgram (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect to deepgram: %w", err)
	}

	s := &deepgramStream{
		conn:      conn,
		audio:     make(chan []byte, audioBuffer),
		results:   make(chan Result, resultBuffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		keepAlive: d.cfg.KeepAlive,
		logger:    d.logger,
	}

	go s.readLoop()
	go s.writeLoop()

	d.logger.Debug("transcription channel opened")

	return s, nil
}

type deepgramStream struct {
	conn      *websocket.Conn
	audio     chan []byte
	results   chan Result
	stop      chan struct{}
	done      chan struct{}
	keepAlive time.Duration
	logger    *zap.Logger

	stopOnce  sync.Once
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func (s *deepgramStream) SendAudio(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	select {
	case <-s.stop:
		return ErrClosed
	case <-s.done:
		if err := s.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return ErrClosed
	default:
	}

	select {
	case s.audio <- audio:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return ErrClosed
	case <-s.done:
		return ErrClosed
	}
}

func (s *deepgramStream) Results() <-chan Result { return s.results }

func (s *deepgramStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close asks the service to flush and close, waits briefly for the final
// results, then drops the connection.
func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopOnce.Do(func() { close(s.stop) })

		select {
		case <-s.done:
		case <-time.After(defaultCloseTimeout):
		}

		err = s.conn.Close()
		<-s.done
		s.logger.Debug("transcription channel closed")
	})
	return err
}

func (s *deepgramStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *deepgramStream) writeLoop() {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-s.audio:
			if err := s.write(websocket.BinaryMessage, chunk); err != nil {
				s.fail(fmt.Errorf("write audio: %w", err))
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				s.fail(fmt.Errorf("write keepalive: %w", err))
				return
			}
		case <-s.stop:
			_ = s.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
			return
		case <-s.done:
			return
		}
	}
}

func (s *deepgramStream) write(kind int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(kind, data)
}

// fail records err and drops the connection so readLoop ends the channel.
func (s *deepgramStream) fail(err error) {
	s.setErr(err)
	s.logger.Warn("transcription write failed", zap.Error(err))
	_ = s.conn.Close()
}

func (s *deepgramStream) readLoop() {
	defer close(s.done)
	defer close(s.results)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.setErr(fmt.Errorf("read transcript: %w", err))
				}
			}
			return
		}

		result, ok, err := ParseMessage(data)
		if err != nil {
			s.logger.Warn("dropping transcription message", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		select {
		case s.results <- result:
		case <-s.stop:
		}
	}
}
