package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values when set.
const (
	EnvOpenAIAPIKey   = "OPENAI_API_KEY"
	EnvModel          = "GPT_MODEL"
	EnvBackendBaseURL = "POSTGRESQL_BASE_URL"
	EnvPublicURL      = "NGROK_URL"
	EnvVoiceID        = "ELEVENLABS_VOICE_ID"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvGatewayPort    = "PORT"
	EnvBackendPort    = "BACKEND_PORT"
	EnvLogLevel       = "LOG_LEVEL"
)

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.LLM.APIKey, EnvOpenAIAPIKey)
	setString(&cfg.LLM.Model, EnvModel)
	setString(&cfg.Backend.BaseURL, EnvBackendBaseURL)
	setString(&cfg.Gateway.PublicURL, EnvPublicURL)
	setString(&cfg.Voice.VoiceID, EnvVoiceID)
	setString(&cfg.Database.URL, EnvDatabaseURL)
	setInt(&cfg.Gateway.Port, EnvGatewayPort)
	setInt(&cfg.Backend.Port, EnvBackendPort)
	setString(&cfg.Logging.Level, EnvLogLevel)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// setInt ignores unparseable values; Validate reports the file value instead.
func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
