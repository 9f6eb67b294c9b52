package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		validate func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env: map[string]string{
				"GEMINI_API_KEY": "test-gemini-key",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8080 {
					t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
				}
				if cfg.Server.ShutdownTimeout != 10*time.Second {
					t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
				}
				if cfg.Server.BodyLimit != "64K" {
					t.Errorf("Server.BodyLimit = %q, want 64K", cfg.Server.BodyLimit)
				}
				if cfg.Observability.EnableTelemetry {
					t.Error("Observability.EnableTelemetry = true, want false (disabled by default)")
				}
				if cfg.Provider.Name != "gemini" {
					t.Errorf("Provider.Name = %q, want gemini", cfg.Provider.Name)
				}
				if cfg.Provider.APIKey.Value() != "test-gemini-key" {
					t.Error("Provider.APIKey not taken from GEMINI_API_KEY")
				}
				if cfg.Assistant.ChatTurnCap != 20 {
					t.Errorf("Assistant.ChatTurnCap = %d, want 20", cfg.Assistant.ChatTurnCap)
				}
				if cfg.Assistant.GreeterTurnCap != 16 {
					t.Errorf("Assistant.GreeterTurnCap = %d, want 16", cfg.Assistant.GreeterTurnCap)
				}
				if cfg.Assistant.CompletionTimeout != 20*time.Second {
					t.Errorf("Assistant.CompletionTimeout = %v, want 20s", cfg.Assistant.CompletionTimeout)
				}
				if cfg.Events.SubjectPrefix != "assistd.events" {
					t.Errorf("Events.SubjectPrefix = %q, want assistd.events", cfg.Events.SubjectPrefix)
				}
			},
		},
		{
			name: "environment variable overrides",
			env: map[string]string{
				"SERVER_HTTP_PORT":           "9191",
				"SERVER_SHUTDOWN_TIMEOUT":    "5s",
				"PROVIDER_NAME":              "openai",
				"PROVIDER_BASE_URL":          "http://localhost:11434/v1",
				"PROVIDER_RATE_LIMIT":        "2.5",
				"ASSISTANT_GREETER_TURN_CAP": "8",
				"EVENTS_NATS_URL":            "nats://localhost:4222",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 9191 {
					t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
				}
				if cfg.Server.ShutdownTimeout != 5*time.Second {
					t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
				}
				if cfg.Provider.Name != "openai" {
					t.Errorf("Provider.Name = %q, want openai", cfg.Provider.Name)
				}
				if cfg.Provider.BaseURL != "http://localhost:11434/v1" {
					t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
				}
				if cfg.Provider.RateLimit != 2.5 {
					t.Errorf("Provider.RateLimit = %v, want 2.5", cfg.Provider.RateLimit)
				}
				if cfg.Assistant.GreeterTurnCap != 8 {
					t.Errorf("Assistant.GreeterTurnCap = %d, want 8", cfg.Assistant.GreeterTurnCap)
				}
				if cfg.Events.NATSURL != "nats://localhost:4222" {
					t.Errorf("Events.NATSURL = %q", cfg.Events.NATSURL)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.validate(t, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
			Provider: ProviderConfig{
				Name:   "gemini",
				APIKey: Secret("key"),
			},
			Assistant: AssistantConfig{
				CompletionTimeout: time.Second,
				ChatTurnCap:       20,
				GreeterTurnCap:    16,
				DiagnosticTurnCap: 20,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Observability.EnableTelemetry = true
				c.Observability.ServiceName = ""
			},
			wantErr: "service name",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider.Name = "bard" },
			wantErr: "unknown provider",
		},
		{
			name:    "gemini without key",
			mutate:  func(c *Config) { c.Provider.APIKey = "" },
			wantErr: "requires an api key",
		},
		{
			name: "openai without key is allowed",
			mutate: func(c *Config) {
				c.Provider.Name = "openai"
				c.Provider.APIKey = ""
			},
		},
		{
			name:    "disabled provider",
			mutate:  func(c *Config) { c.Provider = ProviderConfig{Name: "disabled"} },
			wantErr: "",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.Provider.RateLimit = -1 },
			wantErr: "rate limit",
		},
		{
			name:    "zero greeter cap",
			mutate:  func(c *Config) { c.Assistant.GreeterTurnCap = 0 },
			wantErr: "greeter turn cap",
		},
		{
			name:    "zero completion timeout",
			mutate:  func(c *Config) { c.Assistant.CompletionTimeout = 0 },
			wantErr: "completion timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-live-123")

	if got := s.String(); got != "[REDACTED]" {
		t.Errorf("String() = %q", got)
	}
	if got := fmt.Sprintf("%v %s %#v", s, s, s); strings.Contains(got, "sk-live-123") {
		t.Errorf("formatted secret leaked: %q", got)
	}

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "sk-live-123") {
		t.Errorf("json leaked secret: %s", data)
	}
	if s.Value() != "sk-live-123" {
		t.Errorf("Value() = %q", s.Value())
	}
	if Secret("").IsSet() {
		t.Error("empty secret reports IsSet")
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v, want 1m30s", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("negative duration accepted")
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("garbage duration accepted")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SERVER_HTTP_PORT":             "server.http_port",
		"PROVIDER_API_KEY":             "provider.api_key",
		"ASSISTANT_DIAGNOSTIC_TURN_CAP": "assistant.diagnostic_turn_cap",
		"HOME":                         "home",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
