package assistant

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/assistd/internal/completion"
)

// ErrInvalidRules is returned when a rules file cannot be used.
var ErrInvalidRules = errors.New("invalid routing rules")

// Rule maps a keyword vocabulary to a redirect target.
type Rule struct {
	Name   string `toml:"name"`
	Target string `toml:"target"`
	// Keywords match case-insensitively at word starts, so "vibrat"
	// matches "vibration".
	Keywords []string `toml:"keywords"`
	// Suppress lists cues that veto this rule even when a keyword matched.
	Suppress []string `toml:"suppress"`
}

// DefaultRules is the built-in rule list. Diagnostic vocabulary is checked
// before how-to vocabulary, and only the how-to rule yields to export cues.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:   "diagnostic",
			Target: "/diagnose",
			Keywords: []string{
				"symptom", "problem", "noise", "squeak", "grind", "rattle",
				"vibrat", "leak", "smoke", "smell", "warning light",
				"check engine", "won't start", "stall", "overheat", "misfire",
			},
		},
		{
			Name:     "how-to",
			Target:   "/guides",
			Keywords: []string{"guide", "how to", "how do i", "repair", "replace", "install", "change", "swap"},
			Suppress: []string{"pdf", "export", "print", "download", "save as"},
		},
	}
}

type compiledRule struct {
	Rule
	match    *regexp.Regexp
	suppress *regexp.Regexp
}

// Router picks a redirect for the latest user message. Rules are tried in
// order and the first match wins. Safe for concurrent use.
type Router struct {
	rules []compiledRule
}

// NewRouter compiles rules.
func NewRouter(rules []Rule) (*Router, error) {
	r := &Router{rules: make([]compiledRule, 0, len(rules))}
	for i, rule := range rules {
		if rule.Name == "" || rule.Target == "" {
			return nil, fmt.Errorf("%w: rule %d needs a name and a target", ErrInvalidRules, i)
		}
		if !strings.HasPrefix(rule.Target, "/") {
			return nil, fmt.Errorf("%w: rule %q target must be a site path", ErrInvalidRules, rule.Name)
		}
		if len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("%w: rule %q has no keywords", ErrInvalidRules, rule.Name)
		}
		c := compiledRule{Rule: rule, match: vocabulary(rule.Keywords)}
		if len(rule.Suppress) > 0 {
			c.suppress = vocabulary(rule.Suppress)
		}
		r.rules = append(r.rules, c)
	}
	return r, nil
}

// vocabulary builds a case-insensitive word-start alternation.
func vocabulary(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`)
}

// Route returns the first matching rule, or false.
func (r *Router) Route(message string) (Rule, bool) {
	if r == nil {
		return Rule{}, false
	}
	for _, rule := range r.rules {
		if !rule.match.MatchString(message) {
			continue
		}
		if rule.suppress != nil && rule.suppress.MatchString(message) {
			continue
		}
		return rule.Rule, true
	}
	return Rule{}, false
}

// Rules returns a copy of the router's rules in evaluation order.
func (r *Router) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	for i, c := range r.rules {
		out[i] = c.Rule
	}
	return out
}

// LoadRules reads an ordered rule list from a TOML file:
//
//	[[rule]]
//	name = "diagnostic"
//	target = "/diagnose"
//	keywords = ["noise", "leak"]
func LoadRules(path string) ([]Rule, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var doc struct {
		Rule []Rule `toml:"rule"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRules, path, err)
	}
	if len(doc.Rule) == 0 {
		return nil, fmt.Errorf("%w: %s defines no rules", ErrInvalidRules, path)
	}
	// compile once to surface bad entries at load time
	if _, err := NewRouter(doc.Rule); err != nil {
		return nil, err
	}
	return doc.Rule, nil
}

// translateHistory turns caller turns into provider history plus the
// prompt. Blank turns and leading assistant turns are dropped since
// providers expect history to open with the user. The last remaining turn
// must come from the user.
func translateHistory(turns []Turn) ([]completion.Message, string, error) {
	kept := make([]Turn, 0, len(turns))
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		role := normalizeRole(t.Role)
		if len(kept) == 0 && role == RoleAssistant {
			continue
		}
		kept = append(kept, Turn{Role: role, Content: content})
	}

	if len(kept) == 0 || kept[len(kept)-1].Role != RoleUser {
		return nil, "", ErrEmptyMessage
	}

	last := len(kept) - 1
	history := make([]completion.Message, 0, last)
	for _, t := range kept[:last] {
		role := completion.RoleUser
		if t.Role == RoleAssistant {
			role = completion.RoleModel
		}
		history = append(history, completion.Message{Role: role, Text: t.Content})
	}
	return history, kept[last].Content, nil
}

func normalizeRole(r Role) Role {
	switch strings.ToLower(string(r)) {
	case "assistant", "model", "bot":
		return RoleAssistant
	default:
		return RoleUser
	}
}
