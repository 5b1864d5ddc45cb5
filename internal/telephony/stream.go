package telephony

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 5 * time.Second
	// MaxMediaChunk bounds the audio bytes carried by one outbound media frame.
	MaxMediaChunk = 3200
)

// ErrStreamClosed is returned by writes after Close.
var ErrStreamClosed = errors.New("media stream closed")

// Conn is the subset of *websocket.Conn a Stream needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Stream is one accepted media stream connection. Reads must come from a
// single goroutine; writes are serialized internally.
type Stream struct {
	conn         Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewStream wraps an upgraded websocket connection.
func NewStream(conn Conn, writeTimeout time.Duration) *Stream {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Stream{conn: conn, writeTimeout: writeTimeout, closed: make(chan struct{})}
}

// Next blocks for the next inbound event. Undecodable text frames return an
// error wrapping ErrMalformed; binary frames are skipped. Any other error means
// the connection is gone.
func (s *Stream) Next() (*Event, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return Decode(data)
	}
}

// SendAudio splits audio into media frames of at most MaxMediaChunk bytes each.
func (s *Stream) SendAudio(streamSID string, audio []byte) error {
	for len(audio) > 0 {
		n := len(audio)
		if n > MaxMediaChunk {
			n = MaxMediaChunk
		}

		frame, err := EncodeMedia(streamSID, audio[:n])
		if err != nil {
			return err
		}
		if err := s.write(frame); err != nil {
			return err
		}
		audio = audio[n:]
	}
	return nil
}

// SendMark writes a mark frame.
func (s *Stream) SendMark(streamSID, name string) error {
	frame, err := EncodeMark(streamSID, name)
	if err != nil {
		return err
	}
	return s.write(frame)
}

// SendClear writes a clear frame.
func (s *Stream) SendClear(streamSID string) error {
	frame, err := EncodeClear(streamSID)
	if err != nil {
		return err
	}
	return s.write(frame)
}

// Done is closed once the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.closed
}

// Close closes the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) write(frame []byte) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}
