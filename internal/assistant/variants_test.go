package assistant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/assistd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinVariants(t *testing.T) {
	for _, cfg := range []Config{ChatConfig(), GreeterConfig(), DiagnosticConfig()} {
		t.Run(cfg.Name, func(t *testing.T) {
			require.NoError(t, cfg.Validate())
			assert.Contains(t, cfg.SystemPrompt, "/pricing")
		})
	}

	assert.Equal(t, 20, ChatConfig().TurnCap)
	assert.Equal(t, 16, GreeterConfig().TurnCap)
	assert.Equal(t, 20, DiagnosticConfig().TurnCap)

	assert.Equal(t, StrategyModelEmitted, GreeterConfig().Strategy)
	assert.Empty(t, GreeterConfig().Rules)
	assert.Empty(t, DiagnosticConfig().Rules)
	assert.Contains(t, GreeterConfig().SystemPrompt, "[ROUTE year=")
	assert.Contains(t, ChatConfig().SystemPrompt, "[UPGRADE_INTENT reason=")
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]func(*Config){
		"no name":            func(c *Config) { c.Name = "" },
		"zero cap":           func(c *Config) { c.TurnCap = 0 },
		"blank prompt":       func(c *Config) { c.SystemPrompt = "  " },
		"no fallback":        func(c *Config) { c.FallbackReply = "" },
		"no error reply":     func(c *Config) { c.ErrorReply = "" },
		"route on heuristic": func(c *Config) { c.Families = append(c.Families, FamilyRoute) },
		"no token budget":    func(c *Config) { c.Generation.MaxOutputTokens = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := ChatConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	greeter := GreeterConfig()
	greeter.Families = nil
	assert.Error(t, greeter.Validate(), "model-emitted routing needs route tags")
}

func TestConfigure_Defaults(t *testing.T) {
	configs, err := Configure(config.AssistantConfig{})
	require.NoError(t, err)
	require.Len(t, configs, 3)

	assert.Equal(t, ChatConfig(), configs[0])
	assert.Equal(t, GreeterConfig(), configs[1])
	assert.Equal(t, DiagnosticConfig(), configs[2])
}

func TestConfigure_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[rule]]
name = "recall"
target = "/recalls"
keywords = ["recall"]
`), 0o600))

	configs, err := Configure(config.AssistantConfig{
		ChatTurnCap:       30,
		GreeterTurnCap:    8,
		DiagnosticTurnCap: 12,
		RulesFile:         path,
	})
	require.NoError(t, err)

	assert.Equal(t, 30, configs[0].TurnCap)
	assert.Equal(t, 8, configs[1].TurnCap)
	assert.Equal(t, 12, configs[2].TurnCap)
	require.Len(t, configs[0].Rules, 1)
	assert.Equal(t, "recall", configs[0].Rules[0].Name)
	assert.Empty(t, configs[1].Rules)
	assert.Empty(t, configs[2].Rules)
}

func TestConfigure_BadRulesFile(t *testing.T) {
	_, err := Configure(config.AssistantConfig{RulesFile: filepath.Join(t.TempDir(), "missing.toml")})
	assert.Error(t, err)
}
