package http

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fyrsmithlabs/assistd/internal/assistant"
	"github.com/fyrsmithlabs/assistd/internal/diagnosis"
	"github.com/google/uuid"
)

// HeaderSessionID carries the session id a conversation was answered
// under, generated when the client sent none.
const HeaderSessionID = "X-Session-Id"

// ConversationRequest is the body of the conversational endpoints. Site
// widgets disagree on field names, so both spellings are accepted.
type ConversationRequest struct {
	Messages        []assistant.Turn `json:"messages"`
	History         []assistant.Turn `json:"history"`
	SessionID       string           `json:"sessionId"`
	SessionIDSnake  string           `json:"session_id"`
	SourcePage      string           `json:"sourcePage"`
	SourcePageSnake string           `json:"source_page"`
}

// toAssistant resolves aliases. messages wins over history, camelCase wins
// over snake_case.
func (r ConversationRequest) toAssistant() assistant.ConversationRequest {
	out := assistant.ConversationRequest{
		Turns:         r.Messages,
		SessionID:     r.SessionID,
		SourceContext: r.SourcePage,
	}
	if len(out.Turns) == 0 {
		out.Turns = r.History
	}
	if out.SessionID == "" {
		out.SessionID = r.SessionIDSnake
	}
	if out.SessionID == "" {
		out.SessionID = uuid.NewString()
	}
	if out.SourceContext == "" {
		out.SourceContext = r.SourcePageSnake
	}
	return out
}

func decodeConversation(body io.Reader) (assistant.ConversationRequest, error) {
	var req ConversationRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return assistant.ConversationRequest{}, fmt.Errorf("decode conversation: %w", err)
	}
	return req.toAssistant(), nil
}

func decodeDiagnose(body io.Reader) (diagnosis.Request, error) {
	var req diagnosis.Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return diagnosis.Request{}, fmt.Errorf("decode diagnose: %w", err)
	}
	return req, nil
}
