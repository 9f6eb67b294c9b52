package diagnosis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// ErrInvalidReport means the model's reply could not be read as a report.
var ErrInvalidReport = errors.New("invalid diagnosis report")

// Urgency says how soon the driver should act.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyModerate Urgency = "moderate"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Difficulty rates the repair for a home mechanic.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyProfessional Difficulty = "professional"
)

// Likelihood ranks a probable cause.
type Likelihood string

const (
	LikelihoodHigh   Likelihood = "high"
	LikelihoodMedium Likelihood = "medium"
	LikelihoodLow    Likelihood = "low"
)

const (
	maxCauses      = 5
	maxNextSteps   = 8
	maxSafetyNotes = 5
)

// Cause is one probable cause of the reported symptoms.
type Cause struct {
	Name        string     `json:"name" jsonschema:"required" jsonschema_description:"Short name of the failing part or condition"`
	Description string     `json:"description" jsonschema_description:"One or two sentences tying the cause to the symptoms"`
	Likelihood  Likelihood `json:"likelihood" jsonschema:"required,enum=high,enum=medium,enum=low"`
}

// Report is a structured symptom diagnosis.
type Report struct {
	Summary       string     `json:"summary" jsonschema:"required" jsonschema_description:"Plain-language summary of what is probably wrong"`
	Urgency       Urgency    `json:"urgency" jsonschema:"required,enum=low,enum=moderate,enum=high,enum=critical"`
	Difficulty    Difficulty `json:"difficulty" jsonschema:"required,enum=beginner,enum=intermediate,enum=advanced,enum=professional"`
	Causes        []Cause    `json:"causes" jsonschema:"required,minItems=1,maxItems=5" jsonschema_description:"Probable causes, most likely first"`
	NextSteps     []string   `json:"nextSteps,omitempty" jsonschema:"maxItems=8" jsonschema_description:"Checks or repairs to do next, in order"`
	SafetyNotes   []string   `json:"safetyNotes,omitempty" jsonschema:"maxItems=5"`
	EstimatedCost string     `json:"estimatedCost,omitempty" jsonschema_description:"Rough parts and labor range, e.g. $150-$300"`
}

// Schema reflects the JSON schema the model is asked to follow.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(&Report{})
	s.Title = "Vehicle symptom diagnosis"
	s.Description = "Structured diagnosis of a vehicle problem for a DIY mechanic."
	return s
}

// rawReport mirrors Report with loose types so bad enum values and
// oversized lists can be coerced instead of rejected.
type rawReport struct {
	Summary     string `json:"summary"`
	Urgency     string `json:"urgency"`
	Difficulty  string `json:"difficulty"`
	Causes      []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Likelihood  string `json:"likelihood"`
	} `json:"causes"`
	NextSteps     []string `json:"nextSteps"`
	SafetyNotes   []string `json:"safetyNotes"`
	EstimatedCost string   `json:"estimatedCost"`
}

// ParseReport reads a model reply into a Report. Markdown code fences and
// prose around the JSON object are tolerated. Unknown enum values fall back
// to moderate urgency, professional difficulty and medium likelihood.
func ParseReport(content string) (*Report, error) {
	content = stripFences(content)

	var raw rawReport
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
		}
	}

	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		return nil, fmt.Errorf("%w: missing summary", ErrInvalidReport)
	}

	report := &Report{
		Summary:       summary,
		Urgency:       coerceUrgency(raw.Urgency),
		Difficulty:    coerceDifficulty(raw.Difficulty),
		NextSteps:     capList(raw.NextSteps, maxNextSteps),
		SafetyNotes:   capList(raw.SafetyNotes, maxSafetyNotes),
		EstimatedCost: strings.TrimSpace(raw.EstimatedCost),
	}
	for _, c := range raw.Causes {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		report.Causes = append(report.Causes, Cause{
			Name:        name,
			Description: strings.TrimSpace(c.Description),
			Likelihood:  coerceLikelihood(c.Likelihood),
		})
		if len(report.Causes) == maxCauses {
			break
		}
	}
	if len(report.Causes) == 0 {
		return nil, fmt.Errorf("%w: no causes", ErrInvalidReport)
	}
	return report, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	// drop the opening fence line, which may carry a language hint
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[i+1:]
	} else {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSpace(content)
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func coerceUrgency(v string) Urgency {
	switch u := Urgency(normalize(v)); u {
	case UrgencyLow, UrgencyModerate, UrgencyHigh, UrgencyCritical:
		return u
	}
	return UrgencyModerate
}

func coerceDifficulty(v string) Difficulty {
	switch d := Difficulty(normalize(v)); d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyProfessional:
		return d
	}
	return DifficultyProfessional
}

func coerceLikelihood(v string) Likelihood {
	switch l := Likelihood(normalize(v)); l {
	case LikelihoodHigh, LikelihoodMedium, LikelihoodLow:
		return l
	}
	return LikelihoodMedium
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func capList(items []string, limit int) []string {
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
