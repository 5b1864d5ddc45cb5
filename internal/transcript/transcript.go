// Package transcript holds a call's turn sequence and the sinks that persist it.
package transcript

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
)

// Speaker tags who said a turn.
type Speaker string

const (
	SpeakerCandidate Speaker = "candidate"
	SpeakerAgent     Speaker = "agent"
)

// Turn is one line of the conversation.
type Turn struct {
	Speaker Speaker
	Text    string
}

// Log is an append-only turn sequence owned by one call session.
type Log struct {
	mu    sync.Mutex
	turns []Turn
}

// Append adds a turn. Blank text is ignored. It reports whether a turn was added.
func (l *Log) Append(speaker Speaker, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, Turn{Speaker: speaker, Text: text})
	return true
}

// Turns returns a copy of the turns in append order.
func (l *Log) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Count returns the number of turns by speaker.
func (l *Log) Count(speaker Speaker) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, t := range l.turns {
		if t.Speaker == speaker {
			n++
		}
	}
	return n
}

// Render formats turns as "speaker: text" lines.
func Render(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Parse reads lines produced by Render. Lines without a known speaker prefix
// continue the previous turn.
func Parse(text string) ([]Turn, error) {
	var turns []Turn

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		speaker, rest, found := strings.Cut(line, ":")
		switch Speaker(strings.TrimSpace(speaker)) {
		case SpeakerCandidate, SpeakerAgent:
			if found {
				turns = append(turns, Turn{Speaker: Speaker(strings.TrimSpace(speaker)), Text: strings.TrimSpace(rest)})
				continue
			}
		}

		if len(turns) == 0 {
			return nil, fmt.Errorf("line %q has no speaker", line)
		}
		turns[len(turns)-1].Text += " " + line
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return turns, nil
}
