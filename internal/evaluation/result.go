package evaluation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultScore is recorded when no score can be read from the response.
	DefaultScore = 8.0
	MaxScore     = 10.0
	MinScore     = 0.0
)

var finalScorePattern = regexp.MustCompile(`Final Score:\s*(\d+\.?\d*)`)

// Result is one scored transcript.
type Result struct {
	Score         float64
	Justification string
	// Fallback is set when Score is DefaultScore because the response had none.
	Fallback bool
	Raw      string
}

// ParseError reports a structured response that is missing or mistypes a required field.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "evaluation response: " + e.Reason
	}
	return fmt.Sprintf("evaluation response: field %q %s", e.Field, e.Reason)
}

type structuredResult struct {
	Score         *float64 `json:"score"`
	Justification *string  `json:"justification"`
}

// ParseResult decodes the structured {score, justification} response. It
// fails with *ParseError instead of filling in defaults.
func ParseResult(raw string) (*Result, error) {
	cleaned := extractJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, &ParseError{Reason: "is not a JSON object"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, &ParseError{Reason: "is not valid JSON: " + err.Error()}
	}

	var parsed structuredResult
	if v, ok := fields["score"]; ok {
		if err := json.Unmarshal(v, &parsed.Score); err != nil {
			return nil, &ParseError{Field: "score", Reason: "is not a number"}
		}
	}
	if v, ok := fields["justification"]; ok {
		if err := json.Unmarshal(v, &parsed.Justification); err != nil {
			return nil, &ParseError{Field: "justification", Reason: "is not a string"}
		}
	}

	if parsed.Score == nil {
		return nil, &ParseError{Field: "score", Reason: "is missing"}
	}
	if parsed.Justification == nil || strings.TrimSpace(*parsed.Justification) == "" {
		return nil, &ParseError{Field: "justification", Reason: "is missing"}
	}

	score, ok := clamp(*parsed.Score)
	if !ok {
		return nil, &ParseError{Field: "score", Reason: "is not finite"}
	}

	return &Result{
		Score:         score,
		Justification: strings.TrimSpace(*parsed.Justification),
		Raw:           raw,
	}, nil
}

// ExtractScore finds a "Final Score: N" line in free text.
func ExtractScore(text string) (float64, bool) {
	match := finalScorePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}

	score, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	return clamp(score)
}

func clamp(score float64) (float64, bool) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return math.Max(MinScore, math.Min(MaxScore, score)), true
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
