package screening

import (
	"context"
	"errors"
	"strings"

	"github.com/zodrickjohn/Recuria/internal/ai"
	"github.com/zodrickjohn/Recuria/internal/transcript"
)

const defaultPersona = `You are Carla, a friendly recruiter at {{COMPANY}} holding a short phone screen with {{CANDIDATE}} for the {{ROLE}} position.
You are speaking on a phone call, so answer in one or two short sentences of plain speech without markdown or emoji.
Ask one question at a time about the candidate's background, experience and availability, and respond naturally to what they just said.`

func (c *Coordinator) persona(candidateName string) string {
	template := c.cfg.Persona
	if strings.TrimSpace(template) == "" {
		template = defaultPersona
	}

	replacements := []string{
		"{{COMPANY}}", fallback(c.cfg.Company, "our company"),
		"{{ROLE}}", fallback(c.cfg.Role, "open"),
		"{{CANDIDATE}}", fallback(candidateName, "the candidate"),
	}
	return strings.NewReplacer(replacements...).Replace(template)
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

// generateReply asks for the agent's next line given the turns so far. It is
// bounded by the reply timeout.
func (c *Coordinator) generateReply(ctx context.Context, s *Session, history []transcript.Turn, utterance string) (string, error) {
	if n := c.cfg.HistoryTurns; len(history) > n {
		history = history[len(history)-n:]
	}

	req := ai.Request{System: c.persona(s.Snapshot().CandidateName)}
	for _, turn := range history {
		role := ai.RoleUser
		if turn.Speaker == transcript.SpeakerAgent {
			role = ai.RoleModel
		}
		req.Parts = append(req.Parts, ai.Part{Role: role, Text: turn.Text})
	}
	req.Parts = append(req.Parts, ai.Part{Role: ai.RoleUser, Text: utterance})

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReplyTimeout)
	defer cancel()

	text, err := c.deps.Generator.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("generator returned an empty reply")
	}
	return text, nil
}
