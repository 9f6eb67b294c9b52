// Package scenario replays scripted conversations against assistant
// variants and checks what each turn produced. Model replies are scripted,
// so scenarios run offline and deterministically.
package scenario

import (
	"time"

	"github.com/fyrsmithlabs/assistd/internal/assistant"
)

// Scenario defines one conversation to replay.
type Scenario struct {
	// Name identifies the scenario
	Name string `json:"name"`

	// Description explains what this scenario tests
	Description string `json:"description,omitempty"`

	// Variant is the assistant variant to run against
	Variant string `json:"variant"`

	// SourceContext is passed through as the conversation's origin page
	SourceContext string `json:"source_context,omitempty"`

	// Turns is the full history sent with the request
	Turns []assistant.Turn `json:"turns"`

	// ModelReply is what the provider answers with
	ModelReply string `json:"model_reply,omitempty"`

	// ModelError makes the provider fail with this message instead
	ModelError string `json:"model_error,omitempty"`

	// Assertions to check after the turn completes
	Assertions []Assertion `json:"assertions"`
}

// Assertion defines an expected property of the result.
type Assertion struct {
	// Type of assertion
	// Options: "outcome", "directive", "redirect", "link",
	//          "reply_equals", "reply_contains", "reply_excludes",
	//          "provider_called", "stage"
	Type string `json:"type"`

	// Value for comparison. Empty redirect and link values assert absence.
	Value string `json:"value,omitempty"`

	// Message to show on failure
	Message string `json:"message,omitempty"`
}

// File is the on-disk scenario format.
type File struct {
	Scenarios []Scenario `json:"scenarios"`
}

// TestResult captures the outcome of running a scenario.
type TestResult struct {
	Scenario   string             `json:"scenario"`
	Passed     bool               `json:"passed"`
	Response   assistant.Response `json:"response"`
	Outcome    assistant.Outcome  `json:"outcome,omitempty"`
	Assertions []AssertResult     `json:"assertions"`
	Error      string             `json:"error,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// AssertResult captures individual assertion outcomes.
type AssertResult struct {
	Assertion Assertion `json:"assertion"`
	Passed    bool      `json:"passed"`
	Actual    string    `json:"actual,omitempty"`
	Message   string    `json:"message,omitempty"`
}
