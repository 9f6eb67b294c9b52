// Package config provides configuration loading for assistd.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then environment variables. See LoadWithFile for the precedence rules.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete assistd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Provider      ProviderConfig      `koanf:"provider"`
	Assistant     AssistantConfig     `koanf:"assistant"`
	Events        EventsConfig        `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	BodyLimit       string        `koanf:"body_limit"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"`
}

// LoggingConfig holds the subset of logging settings exposed to operators.
// The logging package owns the full configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ProviderConfig selects and configures the completion provider.
type ProviderConfig struct {
	// Name is one of "gemini", "openai", "anthropic" or "disabled".
	Name       string        `koanf:"name"`
	Model      string        `koanf:"model"`
	APIKey     Secret        `koanf:"api_key"`
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	RateLimit  float64       `koanf:"rate_limit"` // requests per second, 0 disables
	Burst      int           `koanf:"burst"`
	MaxRetries int           `koanf:"max_retries"`
}

// AssistantConfig holds per-variant pipeline overrides.
type AssistantConfig struct {
	CompletionTimeout time.Duration `koanf:"completion_timeout"`
	RulesFile         string        `koanf:"rules_file"`
	ChatTurnCap       int           `koanf:"chat_turn_cap"`
	GreeterTurnCap    int           `koanf:"greeter_turn_cap"`
	DiagnosticTurnCap int           `koanf:"diagnostic_turn_cap"`
}

// EventsConfig configures the assistant event side channel.
// An empty NATSURL keeps events in the log only.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

var validProviders = map[string]bool{
	"gemini":    true,
	"openai":    true,
	"anthropic": true,
	"disabled":  true,
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Service name is empty (when telemetry is enabled)
//   - Provider name is unknown, or a remote provider has no API key
//   - A turn cap is not positive
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if !validProviders[c.Provider.Name] {
		return fmt.Errorf("unknown provider %q (must be gemini, openai, anthropic or disabled)", c.Provider.Name)
	}
	// openai may point at a local OpenAI-compatible server that needs no key
	if (c.Provider.Name == "gemini" || c.Provider.Name == "anthropic") && !c.Provider.APIKey.IsSet() {
		return fmt.Errorf("provider %s requires an api key", c.Provider.Name)
	}
	if c.Provider.RateLimit < 0 {
		return fmt.Errorf("provider rate limit cannot be negative: %v", c.Provider.RateLimit)
	}

	if c.Assistant.CompletionTimeout <= 0 {
		return errors.New("completion timeout must be positive")
	}
	caps := map[string]int{
		"chat":       c.Assistant.ChatTurnCap,
		"greeter":    c.Assistant.GreeterTurnCap,
		"diagnostic": c.Assistant.DiagnosticTurnCap,
	}
	for name, limit := range caps {
		if limit < 1 {
			return fmt.Errorf("%s turn cap must be positive, got %d", name, limit)
		}
	}

	return nil
}
