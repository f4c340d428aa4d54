package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/haasonsaas/frontdesk/internal/datetime"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	checkPort := func(name string, port int) {
		if port < 1 || port > 65535 {
			add("%s must be between 1 and 65535, got %d", name, port)
		}
	}
	checkPort("gateway.port", c.Gateway.Port)
	checkPort("backend.port", c.Backend.Port)

	checkURL := func(name, raw string) {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("%s must be an absolute http(s) URL, got %q", name, raw)
		}
	}
	checkURL("backend.base_url", c.Backend.BaseURL)
	checkURL("assistant.cue_base_url", c.Assistant.CueBaseURL)

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		add("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		add("database.max_idle_conns (%d) exceeds max_open_conns (%d)", c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.LLM.MaxAttempts < 1 {
		add("llm.max_attempts must be at least 1")
	}
	if c.Lookup.MaxAttempts < 1 {
		add("lookup.max_attempts must be at least 1")
	}
	if c.LLM.Timeout < 0 || c.Lookup.Timeout < 0 || c.Assistant.TurnLockTimeout < 0 {
		add("timeouts must not be negative")
	}

	if _, err := datetime.LoadLocation(c.Assistant.Timezone); err != nil {
		add("assistant.timezone: %v", err)
	}
	if c.Assistant.HistoryWindow < 2 {
		add("assistant.history_window must be at least 2, got %d", c.Assistant.HistoryWindow)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		add("logging.format must be json or text, got %q", c.Logging.Format)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// RequireGateway reports settings the voice gateway cannot run without.
func (c *Config) RequireGateway() error {
	var issues []string
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		issues = append(issues, "llm.api_key (or "+EnvOpenAIAPIKey+") is required")
	}
	if strings.TrimSpace(c.Gateway.PublicURL) == "" {
		issues = append(issues, "gateway.public_url (or "+EnvPublicURL+") is required")
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// RequireDatabase reports settings the backend cannot run without.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return &ValidationError{Issues: []string{"database.url (or " + EnvDatabaseURL + ") is required"}}
	}
	return nil
}
