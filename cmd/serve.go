package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/logger"
	"github.com/zodrickjohn/Recuria/internal/metrics"
	"github.com/zodrickjohn/Recuria/internal/screening"
	"github.com/zodrickjohn/Recuria/internal/server"
	"github.com/zodrickjohn/Recuria/internal/telephony"
)

const storeCloseTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the call server",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (default :3000)")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

// setup builds the logger and reads the config. It exits on failure.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the recuria", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}

// serve runs the call server until SIGINT or SIGTERM.
func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	defer logger.Sync()

	if config.Server.PublicHost == "" {
		logger.Fatal("public host is required",
			zap.String("hint", "set server.public-host or the CALL_SERVER_HOST environment variable"),
		)
	}

	store, err := newStore(ctx, config.Store.Mongo, logger)
	if err != nil {
		logger.Fatal("connecting candidate store", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("closing candidate store", zap.Error(err))
		}
	}()

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("creating response generator", zap.Error(err))
	}

	stt, err := newTranscription(config.Deepgram, logger)
	if err != nil {
		logger.Fatal("creating transcription provider", zap.Error(err))
	}

	synth, err := newSpeech(config.Speech, logger)
	if err != nil {
		logger.Fatal("creating speech synthesizer", zap.Error(err))
	}

	sink, err := newSink(config.Transcripts, logger)
	if err != nil {
		logger.Fatal("creating transcript sink", zap.Error(err))
	}

	m := metrics.NewManager()
	registry := screening.NewRegistry(0)
	tracker := screening.NewTracker()

	coordinator, err := screening.NewCoordinator(screening.Config{
		ReplyTimeout:    config.AI.ReplyTimeout,
		FinalizeTimeout: config.Screening.FinalizeTimeout,
		HistoryTurns:    config.Screening.HistoryTurns,
		Persona:         config.Screening.Persona,
		Company:         config.Screening.Company,
		Role:            config.Screening.Role,
	}, screening.Dependencies{
		Transcription: stt,
		Generator:     generator,
		Speech:        synth,
		Evaluator:     newEvaluator(generator, store, m, config.AI, logger),
		Sink:          sink,
		Candidates:    store,
		Registry:      registry,
		Tracker:       tracker,
		Metrics:       m,
	}, logger)
	if err != nil {
		logger.Fatal("creating session coordinator", zap.Error(err))
	}

	deps := server.Dependencies{
		Sessions: coordinator,
		Tracker:  tracker,
		Metrics:  m,
	}

	// Outbound calling is optional; inbound webhooks work without it.
	if dialer, err := newDialer(config.Twilio, config.Server.PublicHost, logger); err != nil {
		logger.Warn("outbound calling disabled", zap.Error(err))
	} else {
		deps.Caller = screening.NewCaller(store, dialer, registry, m, logger)
	}

	if config.Server.ValidateSignatures {
		token, err := twilioAuthToken(config.Twilio)
		if err != nil {
			logger.Fatal("loading twilio auth token for signature validation", zap.Error(err))
		}
		deps.Signatures = telephony.NewSignatureValidator(token)
	}

	srv, err := server.New(server.Config{
		Listen:          config.Server.Listen,
		PublicHost:      config.Server.PublicHost,
		Greeting:        config.Server.Greeting,
		WriteTimeout:    config.Server.WriteTimeout,
		ShutdownTimeout: config.Server.ShutdownTimeout,
	}, deps, logger)
	if err != nil {
		logger.Fatal("creating http server", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}

	logger.Info("exiting", zap.String("reason", "shutdown complete"))
}

// redacted returns a copy of config safe for debug output.
func redacted(config *Config) Config {
	out := *config

	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}

	if config.Twilio != nil {
		tw := *config.Twilio
		tw.AuthToken = mask(tw.AuthToken)
		out.Twilio = &tw
	}
	if config.Deepgram != nil {
		dg := *config.Deepgram
		dg.APIKey = mask(dg.APIKey)
		out.Deepgram = &dg
	}
	if config.AI != nil && config.AI.Gemini != nil {
		aiCfg := *config.AI
		gm := *config.AI.Gemini
		gm.APIKey = mask(gm.APIKey)
		aiCfg.Gemini = &gm
		out.AI = &aiCfg
	}
	if config.Speech != nil && config.Speech.ElevenLabs != nil {
		sp := *config.Speech
		el := *config.Speech.ElevenLabs
		el.APIKey = mask(el.APIKey)
		sp.ElevenLabs = &el
		out.Speech = &sp
	}
	if config.Store != nil && config.Store.Mongo != nil {
		st := *config.Store
		mg := *config.Store.Mongo
		mg.URI = mask(mg.URI)
		st.Mongo = &mg
		out.Store = &st
	}
	if config.Transcripts != nil && config.Transcripts.Supabase != nil {
		tr := *config.Transcripts
		sb := *config.Transcripts.Supabase
		sb.ServiceKey = mask(sb.ServiceKey)
		tr.Supabase = &sb
		out.Transcripts = &tr
	}

	return out
}
