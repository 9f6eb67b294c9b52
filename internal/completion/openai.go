package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI completes requests against any OpenAI-compatible chat endpoint.
type OpenAI struct {
	llm *openai.LLM
}

// NewOpenAI creates a client. An empty baseURL uses the public API.
func NewOpenAI(apiKey, model, baseURL string) (*OpenAI, error) {
	if model == "" {
		model = defaultOpenAIModel
	}
	if apiKey == "" {
		// self-hosted compatible servers often ignore auth, langchaingo still wants a token
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &OpenAI{llm: llm}, nil
}

// Complete maps history onto chat messages and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, textMessage(schema.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.History {
		role := schema.ChatMessageTypeHuman
		if m.Role == RoleModel {
			role = schema.ChatMessageTypeAI
		}
		msgs = append(msgs, textMessage(role, m.Text))
	}
	msgs = append(msgs, textMessage(schema.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(float64(req.Temperature))}
	if req.MaxOutputTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(int(req.MaxOutputTokens)))
	}

	resp, err := o.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("openai generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func textMessage(role schema.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  role,
		Parts: []llms.ContentPart{llms.TextContent{Text: text}},
	}
}

var _ Completer = (*OpenAI)(nil)
