package screening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/ai"
	"github.com/zodrickjohn/Recuria/internal/candidate"
	"github.com/zodrickjohn/Recuria/internal/evaluation"
	"github.com/zodrickjohn/Recuria/internal/logger"
	"github.com/zodrickjohn/Recuria/internal/metrics"
	"github.com/zodrickjohn/Recuria/internal/speech"
	"github.com/zodrickjohn/Recuria/internal/telephony"
	"github.com/zodrickjohn/Recuria/internal/transcript"
	"github.com/zodrickjohn/Recuria/internal/transcription"
)

const (
	defaultReplyTimeout    = 15 * time.Second
	defaultFinalizeTimeout = 2 * time.Minute
	defaultHistoryTurns    = 20
	candidateLookupTimeout = 5 * time.Second
)

// MediaStream is the phone leg of one call. Close must be safe to call more
// than once and must unblock a pending Next.
type MediaStream interface {
	Next() (*telephony.Event, error)
	SendAudio(streamSID string, audio []byte) error
	SendMark(streamSID, name string) error
	SendClear(streamSID string) error
	Close() error
}

// Evaluator scores a finished call.
type Evaluator interface {
	Evaluate(ctx context.Context, uid int64, turns []transcript.Turn) (*evaluation.Result, error)
}

// Config tunes live reply generation and call teardown.
type Config struct {
	ReplyTimeout    time.Duration
	FinalizeTimeout time.Duration
	// HistoryTurns bounds how many earlier turns accompany each reply request.
	HistoryTurns int
	Persona      string
	Company      string
	Role         string
}

// Dependencies are the collaborators a Coordinator drives. Transcription,
// Generator and Evaluator are required.
type Dependencies struct {
	Transcription transcription.Provider
	Generator     ai.Generator
	Speech        speech.Synthesizer
	Evaluator     Evaluator
	Sink          transcript.Sink
	Candidates    candidate.Store
	Registry      *Registry
	Tracker       *Tracker
	Metrics       *metrics.Manager
}

// Coordinator runs call sessions. It holds no per-call state; every Serve
// call owns its own Session.
type Coordinator struct {
	cfg  Config
	deps Dependencies
	log  *zap.Logger
}

func NewCoordinator(cfg Config, deps Dependencies, log *zap.Logger) (*Coordinator, error) {
	if deps.Transcription == nil {
		return nil, errors.New("transcription provider is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("response generator is required")
	}
	if deps.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if deps.Speech == nil {
		deps.Speech = speech.Text{}
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = defaultFinalizeTimeout
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Coordinator{cfg: cfg, deps: deps, log: log.Named("screening")}, nil
}

func (c *Coordinator) sessionLog(s *Session) *zap.Logger {
	snap := s.Snapshot()
	return c.log.With(logger.SessionFields(snap.ID, snap.StreamSID, snap.CallSID, snap.CandidateUID)...)
}

// Serve runs one call until the phone leg stops or drops, then persists the
// transcript, evaluates it and closes transcription. It returns the finished
// session.
func (c *Coordinator) Serve(ctx context.Context, stream MediaStream) *Session {
	session := newSession()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unregister := c.deps.Tracker.Register(session.ID, cancel)
	defer unregister()

	channel, err := c.deps.Transcription.Open(ctx)
	if err != nil {
		c.deps.Metrics.SessionFailedToStart()
		c.sessionLog(session).Error("call failed to start", zap.Error(err))
		_ = stream.Close()
		session.clear()
		return session
	}
	defer func() {
		if err := channel.Close(); err != nil {
			c.sessionLog(session).Debug("closing transcription", zap.Error(err))
		}
	}()

	session.setState(StateConnected)
	c.deps.Metrics.SessionStarted()
	c.sessionLog(session).Info("media stream accepted")

	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	stopping := make(chan struct{})
	telephonyDone := make(chan string, 1)
	replyDone := make(chan string, 1)

	go c.supervise(session, "telephony", telephonyDone, func() string {
		return c.telephonyLoop(ctx, session, stream, channel)
	})
	go c.supervise(session, "reply", replyDone, func() string {
		return c.replyLoop(ctx, session, stream, channel, stopping)
	})

	var outcome string
	select {
	case outcome = <-telephonyDone:
		if outcome == metrics.SessionStopped {
			close(stopping)
		} else {
			cancel()
		}
		<-replyDone
	case outcome = <-replyDone:
		cancel()
		<-telephonyDone
	}
	_ = stream.Close()

	session.setState(StateTerminating)
	c.finish(ctx, session, outcome)
	session.clear()

	return session
}

// supervise runs one loop and reports its outcome, turning a panic into a dropped call.
func (c *Coordinator) supervise(s *Session, loop string, done chan<- string, run func() string) {
	outcome := metrics.SessionDropped
	defer func() {
		if r := recover(); r != nil {
			c.sessionLog(s).Error("session loop panicked", zap.String("loop", loop), zap.Any("panic", r), zap.Stack("stack"))
			outcome = metrics.SessionDropped
		}
		done <- outcome
	}()

	outcome = run()
}

func (c *Coordinator) telephonyLoop(ctx context.Context, s *Session, stream MediaStream, channel transcription.Channel) string {
	for {
		event, err := stream.Next()
		if err != nil {
			if errors.Is(err, telephony.ErrMalformed) {
				c.sessionLog(s).Warn("dropping malformed media stream message", zap.Error(err))
				continue
			}
			if ctx.Err() == nil {
				c.sessionLog(s).Warn("media stream read failed", zap.Error(err))
			}
			return metrics.SessionDropped
		}

		switch event.Kind {
		case telephony.KindStart:
			c.bindStart(ctx, s, event)
		case telephony.KindMedia:
			s.observeMedia(event.Timestamp)
			if err := channel.SendAudio(ctx, event.Audio); err != nil {
				if ctx.Err() == nil {
					c.sessionLog(s).Error("forwarding audio to transcription failed", zap.Error(err))
				}
				return metrics.SessionDropped
			}
		case telephony.KindMark:
			s.ackMark(event.MarkName)
		case telephony.KindStop:
			c.sessionLog(s).Info("stop received")
			return metrics.SessionStopped
		default:
			c.sessionLog(s).Debug("ignoring media stream event", zap.String("event", string(event.Kind)))
		}
	}
}

func (c *Coordinator) bindStart(ctx context.Context, s *Session, event *telephony.Event) {
	start := event.Start
	s.bind(event.StreamSID, start.CallSID)

	if start.ParameterErr != nil {
		c.sessionLog(s).Warn("ignoring stream parameters", zap.Error(start.ParameterErr))
	}

	uid := start.Parameters.CandidateUID
	if registered, ok := c.deps.Registry.Take(start.CallSID); ok && uid <= 0 {
		uid = registered
	}

	if uid > 0 {
		name := ""
		if c.deps.Candidates != nil {
			lookupCtx, cancel := context.WithTimeout(ctx, candidateLookupTimeout)
			record, err := c.deps.Candidates.Get(lookupCtx, uid)
			cancel()
			if err != nil {
				c.sessionLog(s).Warn("candidate lookup failed", zap.Int64(logger.FieldCandidateUID, uid), zap.Error(err))
			} else {
				name = record.DisplayName()
			}
		}
		s.bindCandidate(uid, name)
	}

	log := c.sessionLog(s)
	if s.Snapshot().CandidateUID <= 0 {
		log.Warn("no candidate bound to call")
		return
	}
	log.Info("stream started")
}

func (c *Coordinator) replyLoop(ctx context.Context, s *Session, stream MediaStream, channel transcription.Channel, stopping <-chan struct{}) string {
	var buffer utteranceBuffer

	for {
		select {
		case <-ctx.Done():
			return metrics.SessionDropped
		case <-stopping:
			c.drain(s, channel, &buffer)
			return metrics.SessionStopped
		case result, ok := <-channel.Results():
			if !ok {
				c.sessionLog(s).Error("transcription channel closed mid-call", zap.Error(channel.Err()))
				return metrics.SessionDropped
			}

			utterance, complete := buffer.add(result)
			if !complete {
				continue
			}

			if err := c.handleUtterance(ctx, s, stream, utterance); err != nil {
				select {
				case <-stopping:
					c.drain(s, channel, &buffer)
					return metrics.SessionStopped
				default:
				}
				c.sessionLog(s).Warn("reply undelivered, ending session", zap.Error(err))
				return metrics.SessionDropped
			}
		}
	}
}

// drain records results that were already received when the call stopped.
// No replies are generated for them.
func (c *Coordinator) drain(s *Session, channel transcription.Channel, buffer *utteranceBuffer) {
	for {
		select {
		case result, ok := <-channel.Results():
			if !ok {
				c.appendTail(s, buffer)
				return
			}
			if utterance, complete := buffer.add(result); complete {
				c.deps.Metrics.Utterance()
				s.Transcript.Append(transcript.SpeakerCandidate, utterance)
			}
		default:
			c.appendTail(s, buffer)
			return
		}
	}
}

func (c *Coordinator) appendTail(s *Session, buffer *utteranceBuffer) {
	if utterance, ok := buffer.flush(); ok {
		c.deps.Metrics.Utterance()
		s.Transcript.Append(transcript.SpeakerCandidate, utterance)
	}
}

// handleUtterance records the candidate turn, generates and records the agent
// turn and plays it. Only a failed delivery is returned as an error.
func (c *Coordinator) handleUtterance(ctx context.Context, s *Session, stream MediaStream, utterance string) error {
	c.deps.Metrics.Utterance()
	token := s.streamToken()

	if elapsed, playing := s.interrupt(); playing {
		c.sessionLog(s).Debug("candidate spoke over reply", zap.Int64("played_ms", elapsed))
		if err := stream.SendClear(token); err != nil {
			c.sessionLog(s).Warn("clearing playback failed", zap.Error(err))
		}
	}

	history := s.Transcript.Turns()
	s.Transcript.Append(transcript.SpeakerCandidate, utterance)

	started := time.Now()
	reply, err := c.generateReply(ctx, s, history, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.deps.Metrics.Reply(metrics.ReplySkipped, time.Since(started))
		c.sessionLog(s).Warn("reply skipped", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return nil
	}

	audio, err := c.deps.Speech.Synthesize(ctx, reply)
	if err != nil {
		c.deps.Metrics.Reply(metrics.ReplyUndelivered, time.Since(started))
		c.sessionLog(s).Warn("reply synthesis failed", zap.String("speech", c.deps.Speech.Name()), zap.Error(err))
		return nil
	}

	// Only replies the candidate can hear belong in the transcript.
	s.Transcript.Append(transcript.SpeakerAgent, reply)

	mark := s.startReply()
	if err := stream.SendAudio(token, audio); err != nil {
		c.deps.Metrics.Reply(metrics.ReplyUndelivered, time.Since(started))
		return fmt.Errorf("send reply audio: %w", err)
	}
	if err := stream.SendMark(token, mark); err != nil {
		c.deps.Metrics.Reply(metrics.ReplyUndelivered, time.Since(started))
		return fmt.Errorf("send reply mark: %w", err)
	}

	c.deps.Metrics.Reply(metrics.ReplySent, time.Since(started))
	c.sessionLog(s).Debug("reply sent", zap.String("mark", mark), zap.Int("audio_bytes", len(audio)))

	return nil
}

// finish persists the transcript and runs the evaluation. It runs on a
// context detached from the session so a dropped call is still scored.
func (c *Coordinator) finish(parent context.Context, s *Session, outcome string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.FinalizeTimeout)
	defer cancel()

	log := c.sessionLog(s)
	snap := s.Snapshot()
	turns := s.Transcript.Turns()

	c.deps.Metrics.SessionFinished(outcome)
	if outcome == metrics.SessionStopped {
		log.Info("call stopped", zap.Int("turns", len(turns)))
	} else {
		log.Warn("call dropped early", zap.Int("turns", len(turns)))
	}

	if len(turns) > 0 && c.deps.Sink != nil {
		key := transcript.Key(snap.CandidateUID, snap.ID)
		if err := c.deps.Sink.Save(ctx, key, []byte(transcript.Render(turns))); err != nil {
			log.Error("saving transcript failed", zap.String("key", key), zap.Error(err))
		} else {
			log.Info("transcript saved", zap.String("key", key))
		}
	}

	if snap.CandidateUID <= 0 {
		log.Warn("skipping evaluation, no candidate bound")
		return
	}
	if s.Transcript.Count(transcript.SpeakerCandidate) == 0 {
		log.Info("skipping evaluation, candidate never spoke")
		return
	}

	s.evaluateOnce.Do(func() {
		if _, err := c.deps.Evaluator.Evaluate(ctx, snap.CandidateUID, turns); err != nil {
			log.Warn("post-call evaluation not recorded", zap.Error(err))
		}
	})
}
