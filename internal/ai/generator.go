package ai

import (
	"context"
	"strings"
)

// Role tags one part of a conversation sent to a Generator.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is a role-tagged piece of prompt text.
type Part struct {
	Role Role
	Text string
}

// FieldType is the JSON type of one schema property.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
)

// Schema requests a flat JSON object as the reply.
type Schema struct {
	Properties map[string]FieldType
	Required   []string
}

// Request is one generation call. When Schema is set the reply is expected to be JSON.
type Request struct {
	System string
	Parts  []Part
	Schema *Schema
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// UserText builds a single user-part request.
func UserText(system, prompt string) Request {
	return Request{
		System: system,
		Parts:  []Part{{Role: RoleUser, Text: prompt}},
	}
}

// PromptLength counts the characters sent by a request, for logging.
func (r Request) PromptLength() int {
	n := len([]rune(r.System))
	for _, p := range r.Parts {
		n += len([]rune(p.Text))
	}
	return n
}

// LastUserText returns the text of the final user part, if any.
func (r Request) LastUserText() string {
	for i := len(r.Parts) - 1; i >= 0; i-- {
		if r.Parts[i].Role == RoleUser {
			return strings.TrimSpace(r.Parts[i].Text)
		}
	}
	return ""
}
