package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zodrickjohn/Recuria/internal/ai"
	"github.com/zodrickjohn/Recuria/internal/logger"
	"github.com/zodrickjohn/Recuria/internal/utils"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel        = "gemini-2.5-flash"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 200
	retryBaseDelay      = 500 * time.Millisecond
	retryMaxDelay       = 5 * time.Second
)

type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options tune a Generator.
type Options struct {
	Model        string
	MaxRetries   int
	MaxLogLength int
}

// Generator wraps the Google GenAI client and implements ai.Generator.
type Generator struct {
	models     contentModels
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

var wait = utils.WaitFor

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, opts Options, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, opts, log), nil
}

func newGenerator(models contentModels, opts Options, log *zap.Logger) *Generator {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		models:     models,
		model:      model,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLen,
		logger:     logger.WithProvider(log, "gemini", model),
	}
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Generate sends the request to Gemini and returns the concatenated text reply.
// Temporary API failures are retried with exponential backoff.
func (g *Generator) Generate(ctx context.Context, req ai.Request) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	contents := buildContents(req.Parts)
	if len(contents) == 0 {
		return "", errors.New("prompt must not be empty")
	}

	config := buildConfig(req)

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", req.PromptLength()),
		zap.String("prompt_preview", utils.TruncateForLog(req.LastUserText(), g.maxLogLen)),
		zap.Bool("structured", req.Schema != nil),
	)

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			output, err := responseText(resp)
			if err != nil {
				return "", err
			}

			g.logger.Debug("gemini generate content response",
				zap.Int("attempt", attempt),
				zap.Int("response_length", utf8.RuneCountInString(output)),
				zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
			)
			return output, nil
		}

		lastErr = err
		if !isTemporary(err) || attempt == g.maxRetries {
			break
		}

		delay := utils.Backoff(retryBaseDelay, retryMaxDelay, attempt)
		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
	}

	return "", fmt.Errorf("generate content: %w", lastErr)
}

func buildContents(parts []ai.Part) []*genai.Content {
	contents := make([]*genai.Content, 0, len(parts))
	for _, part := range parts {
		text := strings.TrimSpace(part.Text)
		if text == "" {
			continue
		}

		role := string(genai.RoleUser)
		if part.Role == ai.RoleModel {
			role = string(genai.RoleModel)
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: text}},
		})
	}
	return contents
}

func buildConfig(req ai.Request) *genai.GenerateContentConfig {
	system := strings.TrimSpace(req.System)
	if system == "" && req.Schema == nil {
		return nil
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = buildSchema(req.Schema)
	}

	return cfg
}

func buildSchema(schema *ai.Schema) *genai.Schema {
	properties := make(map[string]*genai.Schema, len(schema.Properties))
	for name, kind := range schema.Properties {
		t := genai.TypeString
		if kind == ai.FieldNumber {
			t = genai.TypeNumber
		}
		properties[name] = &genai.Schema{Type: t}
	}

	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   append([]string(nil), schema.Required...),
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func isTemporary(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	return false
}
