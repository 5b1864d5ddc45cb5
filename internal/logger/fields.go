package logger

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for an upstream provider name.
	FieldProvider = "provider"
	// FieldModel is the structured log field key for a model identifier.
	FieldModel = "model"
	// FieldSessionID identifies one call session.
	FieldSessionID = "session_id"
	// FieldStreamSID is the telephony media stream token.
	FieldStreamSID = "stream_sid"
	// FieldCallSID is the telephony call identifier.
	FieldCallSID = "call_sid"
	// FieldCandidateUID is the numeric candidate identifier.
	FieldCandidateUID = "candidate_uid"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ProviderFields describes an upstream provider and model. Empty values are dropped.
func ProviderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithProvider attaches provider fields to the logger.
func WithProvider(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, ProviderFields(provider, model)...)
}

// SessionFields returns the fields that identify a call session. A zero
// candidate UID means the candidate is not bound yet and is omitted.
func SessionFields(sessionID, streamSID, callSID string, candidateUID int64) []zap.Field {
	uid := ""
	if candidateUID > 0 {
		uid = strconv.FormatInt(candidateUID, 10)
	}

	return StringFields(
		StringField{Key: FieldSessionID, Value: sessionID},
		StringField{Key: FieldStreamSID, Value: streamSID},
		StringField{Key: FieldCallSID, Value: callSID},
		StringField{Key: FieldCandidateUID, Value: uid},
	)
}
