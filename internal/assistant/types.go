package assistant

// Role is the author of a conversation turn as the caller labels it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationRequest is everything one assistant call needs. The caller
// resends the full history every turn.
type ConversationRequest struct {
	Turns []Turn
	// SessionID is a client-generated correlation id, used only in logs
	// and events.
	SessionID string
	// SourceContext is the page or surface the conversation started from.
	SourceContext string
}

// Link is a navigable affordance attached to a reply.
type Link struct {
	Href  string `json:"href"`
	Label string `json:"label"`
}

// FollowUp is a secondary message shown after the reply.
type FollowUp struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Response is the only externally visible result of a pipeline run.
type Response struct {
	Reply    string    `json:"reply"`
	Redirect string    `json:"redirect,omitempty"`
	Link     *Link     `json:"link,omitempty"`
	FollowUp *FollowUp `json:"followUp,omitempty"`
}

// Outcome classifies how a request was served.
type Outcome string

const (
	OutcomeAnswered      Outcome = "answered"
	OutcomeOverflow      Outcome = "overflow"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeProviderError Outcome = "provider_error"
	OutcomeInternalError Outcome = "internal_error"
)

// Result carries the response plus what happened while producing it.
// Response is always safe to show.
type Result struct {
	Response  Response
	Outcome   Outcome
	Directive Directive
	// Rule names the heuristic rule that produced Response.Redirect, if any.
	Rule   string
	Stages []Stage
	Err    error
}

// Stage is a step of the per-turn reply state machine.
type Stage int

const (
	StageAwaitingModelReply Stage = iota
	StageReplyReceived
	StageTagScan
	StageStripAndEnrich
	StagePassthrough
	StageResponseReady
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingModelReply:
		return "awaiting_model_reply"
	case StageReplyReceived:
		return "reply_received"
	case StageTagScan:
		return "tag_scan"
	case StageStripAndEnrich:
		return "strip_and_enrich"
	case StagePassthrough:
		return "passthrough"
	case StageResponseReady:
		return "response_ready"
	default:
		return "unknown"
	}
}
