package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  Gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	empty := StringFields()
	if len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	enriched := WithFields(logger, zap.String("foo", "bar"))
	enriched.Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx["foo"] != "bar" {
		t.Fatalf("expected field to be bar, got %q", ctx["foo"])
	}

	enriched = WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}

	enriched.Info("another log")
}

func TestWithProvider(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	WithProvider(zap.New(core), "gemini", "gemini-2.5-flash").Info("test log")

	ctx := observed.All()[0].ContextMap()
	if ctx[FieldProvider] != "gemini" {
		t.Fatalf("expected provider field to be gemini, got %q", ctx[FieldProvider])
	}
	if ctx[FieldModel] != "gemini-2.5-flash" {
		t.Fatalf("expected model field, got %q", ctx[FieldModel])
	}

	if len(ProviderFields("", "")) != 0 {
		t.Fatalf("expected empty provider fields")
	}
}

func TestSessionFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		uid      int64
		stream   string
		expected map[string]string
	}{
		{
			name:   "unbound candidate omitted",
			uid:    0,
			stream: "MZ1",
			expected: map[string]string{
				FieldSessionID: "s-1",
				FieldStreamSID: "MZ1",
			},
		},
		{
			name:   "bound candidate",
			uid:    42,
			stream: "",
			expected: map[string]string{
				FieldSessionID:    "s-1",
				FieldCandidateUID: "42",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fields := SessionFields("s-1", tt.stream, "", tt.uid)
			if len(fields) != len(tt.expected) {
				t.Fatalf("expected %d fields, got %d", len(tt.expected), len(fields))
			}
			for _, f := range fields {
				if tt.expected[f.Key] != f.String {
					t.Fatalf("unexpected field %s=%q", f.Key, f.String)
				}
			}
		})
	}
}
