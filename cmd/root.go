package cmd

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "recuria"
)

type Config struct {
	Server      *ServerConfig      `mapstructure:"server"`
	Twilio      *TwilioConfig      `mapstructure:"twilio"`
	Deepgram    *DeepgramConfig    `mapstructure:"deepgram"`
	AI          *AIConfig          `mapstructure:"ai"`
	Speech      *SpeechConfig      `mapstructure:"speech"`
	Store       *StoreConfig       `mapstructure:"store"`
	Transcripts *TranscriptsConfig `mapstructure:"transcripts"`
	Screening   *ScreeningConfig   `mapstructure:"screening"`
}

type ServerConfig struct {
	Listen             string        `mapstructure:"listen"`
	PublicHost         string        `mapstructure:"public-host"`
	Greeting           string        `mapstructure:"greeting"`
	ValidateSignatures bool          `mapstructure:"validate-signatures"`
	WriteTimeout       time.Duration `mapstructure:"write-timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown-timeout"`
}

type TwilioConfig struct {
	AccountSID       string `mapstructure:"account-sid"`
	AuthToken        string `mapstructure:"auth-token"`
	AuthTokenFile    string `mapstructure:"auth-token-file"`
	From             string `mapstructure:"from"`
	MachineDetection bool   `mapstructure:"machine-detection"`
}

type DeepgramConfig struct {
	APIKey         string `mapstructure:"api-key"`
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	Endpointing    int    `mapstructure:"endpointing"`
	UtteranceEndMs int    `mapstructure:"utterance-end-ms"`
}

type AIConfig struct {
	Provider     string        `mapstructure:"provider"`
	ReplyTimeout time.Duration `mapstructure:"reply-timeout"`
	Gemini       *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type SpeechConfig struct {
	Provider   string            `mapstructure:"provider"`
	ElevenLabs *ElevenLabsConfig `mapstructure:"elevenlabs"`
}

type ElevenLabsConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	VoiceID    string `mapstructure:"voice-id"`
	Model      string `mapstructure:"model"`
}

type StoreConfig struct {
	Mongo *MongoConfig `mapstructure:"mongo"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type TranscriptsConfig struct {
	Dir      string          `mapstructure:"dir"`
	Supabase *SupabaseConfig `mapstructure:"supabase"`
}

type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	ServiceKey     string `mapstructure:"service-key"`
	ServiceKeyFile string `mapstructure:"service-key-file"`
	Bucket         string `mapstructure:"bucket"`
}

type ScreeningConfig struct {
	Persona         string        `mapstructure:"persona"`
	Company         string        `mapstructure:"company"`
	Role            string        `mapstructure:"role"`
	HistoryTurns    int           `mapstructure:"history-turns"`
	FinalizeTimeout time.Duration `mapstructure:"finalize-timeout"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "recuria phone-screens candidates with an AI recruiter and scores the calls",
	}
)

// envBindings maps config keys to the environment variables deployments already use.
var envBindings = map[string]string{
	"server.public-host":         "CALL_SERVER_HOST",
	"twilio.account-sid":         "TWILIO_ACCOUNT_SID",
	"twilio.from":                "TWILIO_PHONE_NUMBER",
	"store.mongo.uri":            "DATABASE_URL",
	"store.mongo.database":       "DATABASE_NAME",
	"transcripts.supabase.url":   "SUPABASE_URL",
	"speech.elevenlabs.voice-id": "ELEVENLABS_VOICE_ID",
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("twilio.machine-detection", true)
	viper.SetDefault("transcripts.dir", "transcripts")
	viper.SetDefault("deepgram.utterance-end-ms", 1000)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is recuria.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// version needs nothing from the environment.
	if versionCmd.CalledAs() != "" {
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The file is optional when everything comes from the environment,
	// but an explicit or broken one must parse.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	config.withDefaults()

	return config, nil
}

// withDefaults fills absent sections so builders can dereference them.
func (c *Config) withDefaults() {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Twilio == nil {
		c.Twilio = &TwilioConfig{}
	}
	if c.Deepgram == nil {
		c.Deepgram = &DeepgramConfig{}
	}
	if c.AI == nil {
		c.AI = &AIConfig{}
	}
	if c.AI.Gemini == nil {
		c.AI.Gemini = &GeminiConfig{}
	}
	if c.Speech == nil {
		c.Speech = &SpeechConfig{}
	}
	if c.Speech.ElevenLabs == nil {
		c.Speech.ElevenLabs = &ElevenLabsConfig{}
	}
	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Mongo == nil {
		c.Store.Mongo = &MongoConfig{}
	}
	if c.Transcripts == nil {
		c.Transcripts = &TranscriptsConfig{}
	}
	if c.Screening == nil {
		c.Screening = &ScreeningConfig{}
	}
}
