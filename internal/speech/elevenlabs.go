package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/logger"
	"github.com/zodrickjohn/Recuria/internal/utils"
)

const (
	defaultElevenLabsURL   = "https://api.elevenlabs.io"
	defaultElevenLabsModel = "eleven_flash_v2_5"
	// Twilio media streams carry 8 kHz mu-law.
	outputFormat = "ulaw_8000"
)

// ElevenLabsConfig configures the text-to-speech endpoint.
type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// ElevenLabs synthesizes replies through the ElevenLabs HTTP API.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

// NewElevenLabs validates cfg and returns a synthesizer.
func NewElevenLabs(cfg ElevenLabsConfig, log *zap.Logger) (*ElevenLabs, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, errors.New("elevenlabs api key and voice id are required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultElevenLabsModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultElevenLabsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.WithProvider(log.Named("speech"), "elevenlabs", cfg.Model),
	}, nil
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("nothing to synthesize")
	}

	u, err := url.Parse(strings.TrimRight(e.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(e.cfg.VoiceID))
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs url: %w", err)
	}
	q := u.Query()
	q.Set("output_format", outputFormat)
	u.RawQuery = q.Encode()

	body, err := json.Marshal(synthesisRequest{Text: text, ModelID: e.cfg.Model})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/basic")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs status=%d body=%s", resp.StatusCode, utils.TruncateForLog(string(b), 200))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read elevenlabs audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("elevenlabs returned no audio")
	}

	e.logger.Debug("reply synthesized", zap.Int("text_length", len(text)), zap.Int("audio_bytes", len(audio)))

	return audio, nil
}
