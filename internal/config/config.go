package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Clarity environment variables.
const EnvPrefix = "CLARITY_"

// Transcript sink selections for LogSink.
const (
	SinkRelay    = "relay"
	SinkBigQuery = "bigquery"
	SinkLocal    = "local"
)

// Config holds the configuration of all three binaries. Secrets are loaded
// exclusively from the environment and never appear in the config file.
type Config struct {
	Addr          string `yaml:"addr" envconfig:"CLARITY_ADDR"`
	DBPath        string `yaml:"db_path" envconfig:"CLARITY_DB_PATH"`
	TranscriptDir string `yaml:"transcript_dir" envconfig:"CLARITY_TRANSCRIPT_DIR"`
	ScriptPath    string `yaml:"script_path" envconfig:"CLARITY_SCRIPT_PATH"`

	RealtimeBaseURL      string `yaml:"realtime_base_url" envconfig:"CLARITY_REALTIME_BASE_URL"`
	RealtimeModel        string `yaml:"realtime_model" envconfig:"CLARITY_REALTIME_MODEL"`
	Voice                string `yaml:"voice" envconfig:"CLARITY_VOICE"`
	TranscriptionModel   string `yaml:"transcription_model" envconfig:"CLARITY_TRANSCRIPTION_MODEL"`
	AgentID              string `yaml:"agent_id" envconfig:"CLARITY_AGENT_ID"`
	VADSilenceDurationMS int    `yaml:"vad_silence_duration_ms" envconfig:"CLARITY_VAD_SILENCE_DURATION_MS"`
	ConnectTimeout       string `yaml:"connect_timeout" envconfig:"CLARITY_CONNECT_TIMEOUT"`

	LogSink   string `yaml:"log_sink" envconfig:"CLARITY_LOG_SINK"`
	LoggerURL string `yaml:"logger_url" envconfig:"CLARITY_LOGGER_URL"`

	BigQueryProjectID   string `yaml:"bq_project_id" envconfig:"CLARITY_BQ_PROJECT_ID"`
	BigQueryDataset     string `yaml:"bq_dataset" envconfig:"CLARITY_BQ_DATASET"`
	BigQueryTable       string `yaml:"bq_table" envconfig:"CLARITY_BQ_TABLE"`
	BigQueryClientEmail string `yaml:"bq_client_email" envconfig:"CLARITY_BQ_CLIENT_EMAIL"`

	SummaryModel          string `yaml:"summary_model" envconfig:"CLARITY_SUMMARY_MODEL"`
	GDriveFolderID        string `yaml:"gdrive_folder_id" envconfig:"CLARITY_GDRIVE_FOLDER_ID"`
	GoogleCredentialsFile string `yaml:"google_credentials_file" envconfig:"CLARITY_GOOGLE_CREDENTIALS_FILE"`

	LogLevel       string `yaml:"log_level" envconfig:"CLARITY_LOG_LEVEL"`
	LogPretty      bool   `yaml:"log_pretty" envconfig:"CLARITY_LOG_PRETTY"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"CLARITY_METRICS_ENABLED"`

	// Interview client.
	ServerURL  string `yaml:"server_url" envconfig:"CLARITY_SERVER_URL"`
	InputAudio string `yaml:"input_audio" envconfig:"CLARITY_INPUT_AUDIO"`
	RecordDir  string `yaml:"record_dir" envconfig:"CLARITY_RECORD_DIR"`

	// Secrets: env vars only, never serialized to YAML.
	OpenAIAPIKey       string `yaml:"-" envconfig:"CLARITY_OPENAI_API_KEY"`
	LoggerAPIKey       string `yaml:"-" envconfig:"CLARITY_LOGGER_API_KEY"`
	IngestAPIKey       string `yaml:"-" envconfig:"CLARITY_INGEST_API_KEY"`
	BigQueryPrivateKey string `yaml:"-" envconfig:"CLARITY_BQ_PRIVATE_KEY"`
	AnthropicAPIKey    string `yaml:"-" envconfig:"CLARITY_ANTHROPIC_API_KEY"`
	GeminiAPIKey       string `yaml:"-" envconfig:"CLARITY_GEMINI_API_KEY"`
}

func defaults() Config {
	return Config{
		Addr:                  ":8080",
		DBPath:                "data/clarity.db",
		TranscriptDir:         "data/transcripts",
		RealtimeBaseURL:       "https://api.openai.com",
		RealtimeModel:         "gpt-4o-realtime-preview-2024-12-17",
		Voice:                 "shimmer",
		TranscriptionModel:    "whisper-1",
		ConnectTimeout:        "20s",
		LogSink:               SinkRelay,
		BigQueryDataset:       "clarity_interviews",
		BigQueryTable:         "transcripts",
		SummaryModel:          "openai/gpt-4o-mini",
		GoogleCredentialsFile: "./service-account.json",
		LogLevel:              "info",
		MetricsEnabled:        true,
		ServerURL:             "http://127.0.0.1:8080",
		RecordDir:             "data/recordings",
	}
}

// Load reads configuration from a YAML file (if it exists), then a .env file
// in the working directory (if it exists), then CLARITY_* environment
// variables. Missing secrets produce warnings rather than errors; the request
// that needs them fails instead.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, nil, fmt.Errorf("load .env: %w", err)
	}
	// Tags hold the full CLARITY_ names. With no prefix, envconfig has no
	// unprefixed fallback key to read.
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.LogSink = strings.ToLower(strings.TrimSpace(cfg.LogSink))
	// Keys pasted from a service-account JSON keep their escaped newlines.
	cfg.BigQueryPrivateKey = strings.ReplaceAll(cfg.BigQueryPrivateKey, `\n`, "\n")

	return cfg, validate(&cfg), nil
}

// ParsedConnectTimeout returns ConnectTimeout as a time.Duration, falling
// back to 20s if the value is invalid.
func (c *Config) ParsedConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil || d <= 0 {
		return 20 * time.Second
	}
	return d
}

// BigQueryConfigured reports whether enough is set to address a table.
func (c *Config) BigQueryConfigured() bool {
	return c.BigQueryProjectID != "" && c.BigQueryDataset != "" && c.BigQueryTable != ""
}

// RelayConfigured reports whether the intermediary logging service is set up.
func (c *Config) RelayConfigured() bool {
	return c.LoggerURL != "" && c.LoggerAPIKey != ""
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured; realtime sessions cannot be created. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	switch cfg.LogSink {
	case SinkRelay:
		if !cfg.RelayConfigured() {
			warnings = append(warnings, "Transcript relay not configured; set "+EnvPrefix+"LOGGER_URL and "+EnvPrefix+"LOGGER_API_KEY.")
		}
	case SinkBigQuery:
		if !cfg.BigQueryConfigured() {
			warnings = append(warnings, "BigQuery sink selected but "+EnvPrefix+"BQ_PROJECT_ID is not set.")
		}
	case SinkLocal:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown log_sink %q; transcripts are kept locally only.", cfg.LogSink))
		cfg.LogSink = SinkLocal
	}
	if d, err := time.ParseDuration(cfg.ConnectTimeout); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid connect_timeout %q; using default 20s.", cfg.ConnectTimeout))
	}
	if cfg.VADSilenceDurationMS < 0 {
		warnings = append(warnings, "Negative vad_silence_duration_ms ignored.")
		cfg.VADSilenceDurationMS = 0
	}

	return warnings
}
