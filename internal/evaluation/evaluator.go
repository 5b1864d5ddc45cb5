// Package evaluation scores a finished phone screen and records the result on
// the candidate.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/ai"
	"github.com/zodrickjohn/Recuria/internal/candidate"
	"github.com/zodrickjohn/Recuria/internal/logger"
	"github.com/zodrickjohn/Recuria/internal/metrics"
	"github.com/zodrickjohn/Recuria/internal/transcript"
	"github.com/zodrickjohn/Recuria/internal/utils"
)

// ErrGeneration means the generator failed; nothing was written.
var ErrGeneration = errors.New("evaluation generation failed")

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

// Recorder counts evaluation outcomes.
type Recorder interface {
	Evaluation(outcome string)
}

type Option func(*Evaluator)

func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.recorder = r
		}
	}
}

func WithMaxLogLength(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxLogLen = n
		}
	}
}

// Evaluator runs the rubric over a transcript and writes the score.
type Evaluator struct {
	generator ai.Generator
	store     candidate.Store
	recorder  Recorder
	logger    *zap.Logger
	maxLogLen int
}

func New(generator ai.Generator, store candidate.Store, log *zap.Logger, opts ...Option) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}

	e := &Evaluator{
		generator: generator,
		store:     store,
		recorder:  (*metrics.Manager)(nil),
		logger:    logger.WithProvider(log.Named("evaluation"), "gemini", generator.Model()),
		maxLogLen: defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate scores turns and writes secondary_score, phone_screen_notes and
// phone_screen=completed for uid in one keyed update. On generation failure
// the record is left untouched and the error wraps ErrGeneration. An unknown
// uid yields an error wrapping candidate.ErrNotFound.
func (e *Evaluator) Evaluate(ctx context.Context, uid int64, turns []transcript.Turn) (*Result, error) {
	if uid <= 0 {
		return nil, fmt.Errorf("invalid candidate uid %d", uid)
	}
	if len(turns) == 0 {
		return nil, errors.New("transcript is empty")
	}

	log := e.logger.With(zap.Int64(logger.FieldCandidateUID, uid))

	name := ""
	if record, err := e.store.Get(ctx, uid); err == nil {
		name = record.DisplayName()
	} else if errors.Is(err, candidate.ErrNotFound) {
		e.recorder.Evaluation(metrics.EvaluationNotFound)
		log.Error("candidate not found", zap.Error(err))
		return nil, err
	}

	result, err := e.Score(ctx, name, transcript.Render(turns))
	if err != nil {
		e.recorder.Evaluation(metrics.EvaluationGenerationFailed)
		log.Error("evaluation failed", zap.Error(err))
		return nil, err
	}

	if err := e.store.UpdateScreening(ctx, uid, candidate.Completed(result.Score, result.Justification)); err != nil {
		if errors.Is(err, candidate.ErrNotFound) {
			e.recorder.Evaluation(metrics.EvaluationNotFound)
			log.Error("candidate not found", zap.Error(err))
		} else {
			e.recorder.Evaluation(metrics.EvaluationStoreFailed)
			log.Error("storing evaluation failed", zap.Error(err))
		}
		return result, fmt.Errorf("store evaluation: %w", err)
	}

	if result.Fallback {
		e.recorder.Evaluation(metrics.EvaluationFallback)
	} else {
		e.recorder.Evaluation(metrics.EvaluationCompleted)
	}

	log.Info("evaluation stored", zap.Float64("score", result.Score), zap.Bool("fallback", result.Fallback))

	return result, nil
}

// Score asks the generator to grade transcriptText. It never fails on an
// unreadable response: the structured form is tried first, then a
// "Final Score:" line, then DefaultScore with Fallback set.
func (e *Evaluator) Score(ctx context.Context, candidateName, transcriptText string) (*Result, error) {
	prompt := buildPrompt(candidateName, transcriptText)

	req := ai.UserText("", prompt)
	req.Schema = &ai.Schema{
		Properties: map[string]ai.FieldType{
			"score":         ai.FieldNumber,
			"justification": ai.FieldString,
		},
		Required: []string{"score", "justification"},
	}

	e.logger.Debug("evaluation request",
		zap.Int("prompt_length", req.PromptLength()),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	e.logger.Debug("evaluation response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	result, perr := ParseResult(raw)
	if perr == nil {
		return result, nil
	}

	e.logger.Warn("structured evaluation unreadable", zap.Error(perr))

	notes := strings.TrimSpace(raw)
	if score, ok := ExtractScore(raw); ok {
		return &Result{Score: score, Justification: notes, Raw: raw}, nil
	}

	e.logger.Warn("evaluation used fallback score", zap.Float64("score", DefaultScore))

	return &Result{Score: DefaultScore, Justification: notes, Fallback: true, Raw: raw}, nil
}

func buildPrompt(candidateName, transcriptText string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Candidate: {{CANDIDATE}}\n\nTranscript:\n{{TRANSCRIPT}}\n\nReturn final score and justification."
	}
	if strings.TrimSpace(candidateName) == "" {
		candidateName = "unknown"
	}

	prompt := strings.ReplaceAll(template, "{{CANDIDATE}}", candidateName)
	return strings.ReplaceAll(prompt, "{{TRANSCRIPT}}", strings.TrimSpace(transcriptText))
}
