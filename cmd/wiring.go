package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/ai/gemini"
	"github.com/zodrickjohn/Recuria/internal/candidate/mongostore"
	"github.com/zodrickjohn/Recuria/internal/evaluation"
	"github.com/zodrickjohn/Recuria/internal/metrics"
	"github.com/zodrickjohn/Recuria/internal/secrets"
	"github.com/zodrickjohn/Recuria/internal/speech"
	"github.com/zodrickjohn/Recuria/internal/telephony"
	"github.com/zodrickjohn/Recuria/internal/transcript"
	"github.com/zodrickjohn/Recuria/internal/transcription"
)

const (
	speechElevenLabs = "elevenlabs"
	speechText       = "text"
)

func newStore(ctx context.Context, cfg *MongoConfig, logger *zap.Logger) (*mongostore.Store, error) {
	return mongostore.Connect(ctx, mongostore.Config{
		URI:        cfg.URI,
		Database:   cfg.Database,
		Collection: cfg.Collection,
	}, logger)
}

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (*gemini.Generator, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := logger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))

	return gemini.NewGenerator(ctx, apiKey, gemini.Options{
		Model:        cfg.Gemini.Model,
		MaxRetries:   cfg.Gemini.MaxRetries,
		MaxLogLength: cfg.Gemini.MaxLogLength,
	}, genLogger)
}

func newEvaluator(generator *gemini.Generator, store *mongostore.Store, m *metrics.Manager, cfg *AIConfig, logger *zap.Logger) *evaluation.Evaluator {
	opts := []evaluation.Option{evaluation.WithMaxLogLength(cfg.Gemini.MaxLogLength)}
	if m != nil {
		opts = append(opts, evaluation.WithRecorder(m))
	}
	return evaluation.New(generator, store, logger, opts...)
}

func newTranscription(cfg *DeepgramConfig, logger *zap.Logger) (*transcription.Deepgram, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "deepgram api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "DEEPGRAM_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	return transcription.NewDeepgram(transcription.DeepgramConfig{
		APIKey:         apiKey,
		Model:          cfg.Model,
		Language:       cfg.Language,
		Endpointing:    cfg.Endpointing,
		UtteranceEndMs: cfg.UtteranceEndMs,
	}, logger)
}

func newSpeech(cfg *SpeechConfig, logger *zap.Logger) (speech.Synthesizer, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Provider)) {
	case "", speechText:
		logger.Warn("replies are sent as raw text bytes", zap.String("hint", "set speech.provider to elevenlabs for audible replies"))
		return speech.Text{}, nil
	case speechElevenLabs:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "elevenlabs api key",
			Value: cfg.ElevenLabs.APIKey,
			File:  cfg.ElevenLabs.APIKeyFile,
			Env:   "ELEVENLABS_API_KEY",
		})
		if err != nil {
			return nil, err
		}
		return speech.NewElevenLabs(speech.ElevenLabsConfig{
			APIKey:  apiKey,
			VoiceID: cfg.ElevenLabs.VoiceID,
			Model:   cfg.ElevenLabs.Model,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported speech provider: %s", cfg.Provider)
	}
}

// newSink prefers Supabase storage when a bucket is configured.
func newSink(cfg *TranscriptsConfig, logger *zap.Logger) (transcript.Sink, error) {
	if cfg.Supabase != nil && strings.TrimSpace(cfg.Supabase.Bucket) != "" {
		key, err := secrets.Load(secrets.Source{
			Name:  "supabase service key",
			Value: cfg.Supabase.ServiceKey,
			File:  cfg.Supabase.ServiceKeyFile,
			Env:   "SUPABASE_SERVICE_ROLE_KEY",
		})
		if err != nil {
			return nil, err
		}
		return transcript.NewSupabase(transcript.SupabaseConfig{
			URL:        cfg.Supabase.URL,
			ServiceKey: key,
			Bucket:     cfg.Supabase.Bucket,
		}, logger)
	}

	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("transcripts.dir or transcripts.supabase.bucket is required")
	}
	return transcript.Dir{Root: cfg.Dir}, nil
}

func twilioAuthToken(cfg *TwilioConfig) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "twilio auth token",
		Value: cfg.AuthToken,
		File:  cfg.AuthTokenFile,
		Env:   "TWILIO_AUTH_TOKEN",
	})
}

func newDialer(cfg *TwilioConfig, publicHost string, logger *zap.Logger) (*telephony.Dialer, error) {
	token, err := twilioAuthToken(cfg)
	if err != nil {
		return nil, err
	}

	return telephony.NewDialer(telephony.DialerConfig{
		AccountSID:       cfg.AccountSID,
		AuthToken:        token,
		From:             cfg.From,
		WebhookURL:       "https://" + strings.TrimSuffix(strings.TrimSpace(publicHost), "/") + "/incoming-call",
		MachineDetection: cfg.MachineDetection,
	}, logger)
}
