// Package config loads the frontdesk configuration from YAML or JSON5 files,
// the process environment and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main configuration structure for frontdesk.
type Config struct {
	Version   int             `yaml:"version"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Backend   BackendConfig   `yaml:"backend"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Lookup    LookupConfig    `yaml:"lookup"`
	Assistant AssistantConfig `yaml:"assistant"`
	Voice     VoiceConfig     `yaml:"voice"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// GatewayConfig configures the voice gateway HTTP server.
type GatewayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicURL is the externally reachable origin the telephony provider
	// uses for the relay websocket.
	PublicURL       string        `yaml:"public_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig configures the lookup backend server and how the gateway
// reaches it.
type BackendConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// BaseURL is where the gateway sends lookups and serves filler audio from.
	BaseURL     string   `yaml:"base_url"`
	StaticDir   string   `yaml:"static_dir"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig configures the backend store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres | sqlite
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	PingTimeout     time.Duration `yaml:"ping_timeout"`
}

type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type LookupConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// AssistantConfig shapes the conversation.
type AssistantConfig struct {
	Timezone string `yaml:"timezone"`
	// SystemPrompt replaces the built-in front desk instructions when set.
	SystemPrompt    string        `yaml:"system_prompt"`
	Greeting        string        `yaml:"greeting"`
	HistoryWindow   int           `yaml:"history_window"`
	TurnLockTimeout time.Duration `yaml:"turn_lock_timeout"`
	// CueBaseURL serves the filler audio played during lookups. Defaults to
	// backend.base_url.
	CueBaseURL string `yaml:"cue_base_url"`
}

// VoiceConfig is passed to the telephony provider in the call-setup document.
type VoiceConfig struct {
	VoiceID               string `yaml:"voice_id"`
	TTSProvider           string `yaml:"tts_provider"`
	TranscriptionProvider string `yaml:"transcription_provider"`
	SpeechModel           string `yaml:"speech_model"`
	Hints                 string `yaml:"hints"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is json or text. Empty selects text on a terminal, json otherwise.
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig controls OpenTelemetry tracing. Tracing is off unless an
// endpoint is set.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads the configuration file at path, applies environment overrides
// and defaults, and validates the result. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	raw := map[string]any{}
	if strings.TrimSpace(path) != "" {
		var err error
		raw, err = LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "0.0.0.0"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 5050
	}
	if cfg.Gateway.ShutdownTimeout == 0 {
		cfg.Gateway.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Backend.Host == "" {
		cfg.Backend.Host = "0.0.0.0"
	}
	if cfg.Backend.Port == 0 {
		cfg.Backend.Port = 8000
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Backend.Port)
	}
	if cfg.Backend.StaticDir == "" {
		cfg.Backend.StaticDir = "static"
	}
	if len(cfg.Backend.CORSOrigins) == 0 {
		cfg.Backend.CORSOrigins = []string{"http://localhost:3001"}
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.PingTimeout == 0 {
		cfg.Database.PingTimeout = 5 * time.Second
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 20 * time.Second
	}
	if cfg.LLM.MaxAttempts == 0 {
		cfg.LLM.MaxAttempts = 3
	}

	if cfg.Lookup.Timeout == 0 {
		cfg.Lookup.Timeout = 5 * time.Second
	}
	if cfg.Lookup.MaxAttempts == 0 {
		cfg.Lookup.MaxAttempts = 2
	}

	if cfg.Assistant.Timezone == "" {
		cfg.Assistant.Timezone = "America/New_York"
	}
	if cfg.Assistant.HistoryWindow == 0 {
		cfg.Assistant.HistoryWindow = 9
	}
	if cfg.Assistant.TurnLockTimeout == 0 {
		cfg.Assistant.TurnLockTimeout = 30 * time.Second
	}
	if cfg.Assistant.CueBaseURL == "" {
		cfg.Assistant.CueBaseURL = cfg.Backend.BaseURL
	}

	if cfg.Voice.TTSProvider == "" {
		cfg.Voice.TTSProvider = "ElevenLabs"
	}
	if cfg.Voice.TranscriptionProvider == "" {
		cfg.Voice.TranscriptionProvider = "Deepgram"
	}
	if cfg.Voice.SpeechModel == "" {
		cfg.Voice.SpeechModel = "nova-2-general"
	}
	if cfg.Voice.Hints == "" {
		cfg.Voice.Hints = "cigna"
	}

	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = 2 * time.Hour
	}
	if cfg.Session.SweepSchedule == "" {
		cfg.Session.SweepSchedule = "@every 5m"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "frontdesk"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1
	}
}
