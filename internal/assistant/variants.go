package assistant

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/assistd/internal/config"
)

// Strategy selects where redirects come from. A variant uses exactly one.
type Strategy int

const (
	// StrategyHeuristic matches the user's message against keyword rules.
	StrategyHeuristic Strategy = iota
	// StrategyModelEmitted trusts a route tag emitted by the model.
	StrategyModelEmitted
)

func (s Strategy) String() string {
	if s == StrategyModelEmitted {
		return "model_emitted"
	}
	return "heuristic"
}

// Generation holds fixed sampling parameters for a variant.
type Generation struct {
	MaxOutputTokens int32
	Temperature     float32
}

// Config describes one assistant variant.
type Config struct {
	Name         string
	TurnCap      int
	SystemPrompt string
	Strategy     Strategy
	// Families are the tag families scanned in model replies, in order.
	Families []Family
	// Rules drive heuristic redirects. Nil disables them.
	Rules      []Rule
	Generation Generation
	// FallbackReply answers missing, oversized or unusable conversations.
	// It is returned verbatim.
	FallbackReply string
	// ErrorReply answers when the provider fails.
	ErrorReply string
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("variant name is required")
	}
	if c.TurnCap < 1 {
		return fmt.Errorf("variant %s: turn cap must be positive", c.Name)
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return fmt.Errorf("variant %s: system prompt is required", c.Name)
	}
	if c.FallbackReply == "" || c.ErrorReply == "" {
		return fmt.Errorf("variant %s: fallback and error replies are required", c.Name)
	}
	if c.Strategy == StrategyModelEmitted && len(c.Rules) > 0 {
		return fmt.Errorf("variant %s: model-emitted routing cannot use heuristic rules", c.Name)
	}
	hasRoute := false
	for _, f := range c.Families {
		if f == FamilyRoute {
			hasRoute = true
		}
	}
	if hasRoute != (c.Strategy == StrategyModelEmitted) {
		return fmt.Errorf("variant %s: route tags and model-emitted routing go together", c.Name)
	}
	if c.Generation.MaxOutputTokens <= 0 {
		return fmt.Errorf("variant %s: max output tokens must be positive", c.Name)
	}
	return nil
}

const (
	VariantChat       = "chat"
	VariantGreeter    = "greeter"
	VariantDiagnostic = "diagnostic"
)

const (
	fallbackReply = "Thanks for chatting! This conversation has gotten long, so let's start fresh. " +
		"You can browse step-by-step repair guides at /guides or run a new diagnosis at /diagnose."
	greeterFallbackReply = "Let's start over. Pick your vehicle's year, make and model from the menu above " +
		"to jump straight to its repair hub."
	errorReply = "Sorry, I'm having trouble answering right now. " +
		"In the meantime you can browse repair guides at /guides or try the diagnostic tool at /diagnose."
)

const capabilityMap = `Site capabilities you can point users to:
- Symptom diagnostics at /diagnose
- Step-by-step repair guides at /guides
- Vehicle repair hubs at /repair/{year}/{make}/{model}
- Pro features at /pricing: PDF export of guides, a saved-vehicle garage, unlimited diagnostics and repair history`

const chatPrompt = `You are the friendly DIY auto-repair assistant for a car repair website.
Keep answers short, practical and safe. Recommend a professional mechanic for brake hydraulics, airbags, fuel system leaks and anything that feels unsafe.

` + capabilityMap + `

When the user asks for a Pro feature, answer normally and append exactly one tag on its own line:
[UPGRADE_INTENT reason=<pdf_export|saved_vehicles|unlimited_diagnostics|repair_history>]
Never mention or explain the tag.`

const greeterPrompt = `You greet visitors on the home page of a DIY auto-repair website and figure out which vehicle they are working on.
Ask one short clarifying question at a time. You need the model year, the make, the model and the problem they are having.

Once you know all four, reply with one encouraging sentence and then exactly one tag:
[ROUTE year=<4-digit year> make=<make> model=<model>]
Write make and model in lowercase with hyphens instead of spaces, for example make=land-rover model=range-rover.
Never emit the tag before you know the problem. Never mention or explain the tag.

` + capabilityMap

const diagnosticPrompt = `You are the diagnostic assistant inside a car symptom checker. The user already described their vehicle and symptoms.
Ask focused follow-up questions, list likely causes from most to least likely, and say how urgent the issue is.
Flag safety risks clearly. Recommend a professional when the repair needs special tools or lifts.

` + capabilityMap + `

When the user asks for a Pro feature, answer normally and append exactly one tag on its own line:
[UPGRADE_INTENT reason=<pdf_export|saved_vehicles|unlimited_diagnostics|repair_history>]
Never mention or explain the tag.`

// ChatConfig is the general site assistant.
func ChatConfig() Config {
	return Config{
		Name:          VariantChat,
		TurnCap:       20,
		SystemPrompt:  chatPrompt,
		Strategy:      StrategyHeuristic,
		Families:      []Family{FamilyUpgrade},
		Rules:         DefaultRules(),
		Generation:    Generation{MaxOutputTokens: 400, Temperature: 0.4},
		FallbackReply: fallbackReply,
		ErrorReply:    errorReply,
	}
}

// GreeterConfig is the home-page vehicle intake assistant.
func GreeterConfig() Config {
	return Config{
		Name:          VariantGreeter,
		TurnCap:       16,
		SystemPrompt:  greeterPrompt,
		Strategy:      StrategyModelEmitted,
		Families:      []Family{FamilyRoute},
		Generation:    Generation{MaxOutputTokens: 250, Temperature: 0.3},
		FallbackReply: greeterFallbackReply,
		ErrorReply:    errorReply,
	}
}

// DiagnosticConfig is the chat inside the diagnostic flow. The user is
// already where the diagnostic rule would send them, so it has no rules.
func DiagnosticConfig() Config {
	return Config{
		Name:          VariantDiagnostic,
		TurnCap:       20,
		SystemPrompt:  diagnosticPrompt,
		Strategy:      StrategyHeuristic,
		Families:      []Family{FamilyUpgrade},
		Generation:    Generation{MaxOutputTokens: 600, Temperature: 0.3},
		FallbackReply: fallbackReply,
		ErrorReply:    errorReply,
	}
}

// Configure returns the built-in variants with operator overrides applied.
// A rules file replaces the chat variant's keyword rules.
func Configure(ac config.AssistantConfig) ([]Config, error) {
	chat, greeter, diagnostic := ChatConfig(), GreeterConfig(), DiagnosticConfig()

	if ac.ChatTurnCap > 0 {
		chat.TurnCap = ac.ChatTurnCap
	}
	if ac.GreeterTurnCap > 0 {
		greeter.TurnCap = ac.GreeterTurnCap
	}
	if ac.DiagnosticTurnCap > 0 {
		diagnostic.TurnCap = ac.DiagnosticTurnCap
	}
	if ac.RulesFile != "" {
		rules, err := LoadRules(ac.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("loading rules: %w", err)
		}
		chat.Rules = rules
	}

	configs := []Config{chat, greeter, diagnostic}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return configs, nil
}
