// Package screening runs live phone screens: one Session per accepted media
// stream, relaying audio to transcription and generated replies back to the
// caller, then handing the transcript to evaluation when the call ends.
package screening

import (
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/zodrickjohn/Recuria/internal/transcript"
)

// State is the session lifecycle position.
type State string

const (
	StateIdle        State = "idle"
	StateConnected   State = "connected"
	StateStreaming   State = "streaming"
	StateTerminating State = "terminating"
	StateClosed      State = "closed"
)

// Session is the state of one call. The transcript is appended only by the
// reply loop; timing and marks are shared with the telephony loop under mu.
type Session struct {
	ID         string
	Transcript transcript.Log

	mu            sync.Mutex
	state         State
	streamSID     string
	callSID       string
	candidateUID  int64
	candidateName string

	latestMediaTimestamp int64
	// responseStart is the media timestamp when the last reply began playing, -1 when none is playing.
	responseStart int64
	pendingMarks  []string
	replySeq      int

	evaluateOnce sync.Once
}

func newSession() *Session {
	return &Session{ID: uuid.NewString(), state: StateIdle, responseStart: -1}
}

// Snapshot is a consistent copy of the session identity.
type Snapshot struct {
	ID            string
	State         State
	StreamSID     string
	CallSID       string
	CandidateUID  int64
	CandidateName string
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:            s.ID,
		State:         s.state,
		StreamSID:     s.streamSID,
		CallSID:       s.callSID,
		CandidateUID:  s.candidateUID,
		CandidateName: s.candidateName,
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// bind records the stream identity from a start event and resets the
// per-connection timing state.
func (s *Session) bind(streamSID, callSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streamSID = streamSID
	s.callSID = callSID
	s.state = StateStreaming
	s.latestMediaTimestamp = 0
	s.responseStart = -1
	s.pendingMarks = nil
}

func (s *Session) bindCandidate(uid int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidateUID = uid
	s.candidateName = name
}

func (s *Session) streamToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// clear invalidates the stream token once the call is over.
func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streamSID = ""
	s.pendingMarks = nil
	s.responseStart = -1
	s.state = StateClosed
}

func (s *Session) observeMedia(timestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timestamp > s.latestMediaTimestamp {
		s.latestMediaTimestamp = timestamp
	}
}

// startReply registers a mark for a reply about to be sent and returns its name.
func (s *Session) startReply() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replySeq++
	name := "reply-" + strconv.Itoa(s.replySeq)
	s.pendingMarks = append(s.pendingMarks, name)
	if s.responseStart < 0 {
		s.responseStart = s.latestMediaTimestamp
	}
	return name
}

// ackMark drops an echoed mark. Once nothing is pending the reply has finished playing.
func (s *Session) ackMark(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, pending := range s.pendingMarks {
		if pending == name {
			s.pendingMarks = append(s.pendingMarks[:i], s.pendingMarks[i+1:]...)
			break
		}
	}
	if len(s.pendingMarks) == 0 {
		s.responseStart = -1
	}
}

// interrupt reports whether a reply is still playing and, if so, forgets it.
// The caller clears the bridge's audio buffer. elapsed is how long, in media
// time, the reply had been playing.
func (s *Session) interrupt() (elapsed int64, playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pendingMarks) == 0 {
		return 0, false
	}
	if s.responseStart >= 0 {
		elapsed = s.latestMediaTimestamp - s.responseStart
	}
	s.pendingMarks = nil
	s.responseStart = -1
	return elapsed, true
}

func (s *Session) pendingMarkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingMarks)
}
