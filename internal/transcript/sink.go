package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// Sink stores a finished transcript.
type Sink interface {
	Save(ctx context.Context, key string, body []byte) error
}

// Key names the artifact for one call: transcripts/<uid>/<session-id>.txt.
func Key(candidateUID int64, sessionID string) string {
	uid := "unbound"
	if candidateUID > 0 {
		uid = strconv.FormatInt(candidateUID, 10)
	}
	return "transcripts/" + uid + "/" + sessionID + ".txt"
}

// Dir writes transcripts below a local directory.
type Dir struct {
	Root string
}

func (d Dir) Save(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("invalid transcript key %q", key)
	}

	path := filepath.Join(d.Root, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write transcript %s: %w", path, err)
	}
	return nil
}

// SupabaseConfig points at a storage bucket.
type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
}

// Supabase uploads transcripts to Supabase storage.
type Supabase struct {
	bucket string
	upload func(bucket, path string, data io.Reader) error
	logger *zap.Logger
}

// NewSupabase creates a storage client for cfg.
func NewSupabase(cfg SupabaseConfig, log *zap.Logger) (*Supabase, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" || cfg.Bucket == "" {
		return nil, errors.New("supabase url, service key and bucket are required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.ServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}

	upload := func(bucket, path string, data io.Reader) error {
		_, err := client.Storage.UploadFile(bucket, path, data)
		return err
	}

	return newSupabase(cfg.Bucket, upload, log), nil
}

func newSupabase(bucket string, upload func(string, string, io.Reader) error, log *zap.Logger) *Supabase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supabase{bucket: bucket, upload: upload, logger: log.Named("transcripts")}
}

func (s *Supabase) Save(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.upload(s.bucket, key, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("upload transcript to supabase: %w", err)
	}

	s.logger.Debug("transcript uploaded", zap.String("bucket", s.bucket), zap.String("key", key))
	return nil
}
