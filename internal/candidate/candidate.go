// Package candidate holds the candidate record and the store contract the
// screening pipeline writes phone-screen results through.
package candidate

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrNotFound is returned when no record carries the requested UID.
var ErrNotFound = errors.New("candidate not found")

// Phone screen statuses stored in Record.PhoneScreen.
const (
	ScreenNotCompleted = "not completed"
	ScreenInProgress   = "in progress"
	ScreenCompleted    = "completed"
)

// Record is a candidate document. Only the screening fields are written by this service.
type Record struct {
	UID            int64   `bson:"UID" json:"UID"`
	Name           string  `bson:"name,omitempty" json:"name,omitempty"`
	Email          string  `bson:"email,omitempty" json:"email,omitempty"`
	Phone          string  `bson:"phone,omitempty" json:"phone,omitempty"`
	Education      string  `bson:"education,omitempty" json:"education,omitempty"`
	Status         string  `bson:"status,omitempty" json:"status,omitempty"`
	InitialScore   float64 `bson:"initial_score,omitempty" json:"initial_score,omitempty"`
	SecondaryScore float64 `bson:"secondary_score,omitempty" json:"secondary_score,omitempty"`
	PhoneScreen    string  `bson:"phone_screen,omitempty" json:"phone_screen,omitempty"`
	PhoneNotes     string  `bson:"phone_screen_notes,omitempty" json:"phone_screen_notes,omitempty"`
}

// DisplayName returns the candidate name or a neutral placeholder.
func (r *Record) DisplayName() string {
	if r == nil || strings.TrimSpace(r.Name) == "" {
		return "the candidate"
	}
	return strings.TrimSpace(r.Name)
}

// ScreeningUpdate is the set of screening fields written in one keyed update.
// Nil pointers are left untouched.
type ScreeningUpdate struct {
	Status *string
	Score  *float64
	Notes  *string
}

// Completed builds the update written after a successful evaluation.
func Completed(score float64, notes string) ScreeningUpdate {
	status := ScreenCompleted
	return ScreeningUpdate{Status: &status, Score: &score, Notes: &notes}
}

// StatusOnly builds an update that only moves the phone screen status.
func StatusOnly(status string) ScreeningUpdate {
	return ScreeningUpdate{Status: &status}
}

// Empty reports whether the update would set nothing.
func (u ScreeningUpdate) Empty() bool {
	return u.Status == nil && u.Score == nil && u.Notes == nil
}

// Store is keyed access to candidate records. Implementations never create or delete records.
type Store interface {
	Get(ctx context.Context, uid int64) (*Record, error)
	// UpdateScreening atomically sets the given fields on the record keyed by uid.
	// It returns ErrNotFound when no record matched.
	UpdateScreening(ctx context.Context, uid int64, update ScreeningUpdate) error
}

// ParseUID parses a positive decimal candidate UID.
func ParseUID(raw string) (int64, error) {
	uid, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, errors.New("candidate uid must be an integer")
	}
	if uid <= 0 {
		return 0, errors.New("candidate uid must be positive")
	}
	return uid, nil
}
