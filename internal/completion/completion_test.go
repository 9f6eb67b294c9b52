package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/assistd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func sampleRequest() Request {
	return Request{
		System: "You are a repair assistant.",
		History: []Message{
			{Role: RoleUser, Text: "my brakes squeak"},
			{Role: RoleModel, Text: "Front or rear?"},
		},
		Prompt:          "front",
		MaxOutputTokens: 400,
		Temperature:     0.4,
	}
}

type fakeGenerator struct {
	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
	resp        *genai.GenerateContentResponse
	err         error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = cfg
	return f.resp, f.err
}

func geminiReply(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}
}

func TestGemini_Complete(t *testing.T) {
	fake := &fakeGenerator{resp: geminiReply("  Check the pads.  ")}
	g := newGeminiWith(fake, "")

	out, err := g.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Check the pads.", out)

	assert.Equal(t, defaultGeminiModel, fake.gotModel)
	require.Len(t, fake.gotContents, 3)
	assert.Equal(t, "user", string(fake.gotContents[0].Role))
	assert.Equal(t, "model", string(fake.gotContents[1].Role))
	assert.Equal(t, "front", fake.gotContents[2].Parts[0].Text)

	require.NotNil(t, fake.gotConfig.SystemInstruction)
	assert.Equal(t, int32(400), fake.gotConfig.MaxOutputTokens)
	require.NotNil(t, fake.gotConfig.Temperature)
	assert.InDelta(t, 0.4, *fake.gotConfig.Temperature, 0.0001)
	assert.Empty(t, fake.gotConfig.ResponseMIMEType)
}

func TestGemini_JSONMode(t *testing.T) {
	fake := &fakeGenerator{resp: geminiReply(`{"summary":"ok"}`)}
	g := newGeminiWith(fake, "gemini-test")

	req := sampleRequest()
	req.JSON = true
	_, err := g.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "application/json", fake.gotConfig.ResponseMIMEType)
	assert.Equal(t, "gemini-test", fake.gotModel)
}

func TestGemini_Errors(t *testing.T) {
	g := newGeminiWith(&fakeGenerator{err: errors.New("quota")}, "")
	_, err := g.Complete(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")

	g = newGeminiWith(&fakeGenerator{resp: geminiReply("   ")}, "")
	_, err = g.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "")
	require.Error(t, err)
}

func newTestAnthropic(t *testing.T, handler http.HandlerFunc, retries int) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewAnthropic("test-key", AnthropicOptions{BaseURL: srv.URL, MaxRetries: retries})
	require.NoError(t, err)
	a.baseBackoff = time.Millisecond
	return a
}

func TestAnthropic_Complete(t *testing.T) {
	var got anthropicRequest
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("Anthropic-Version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Likely worn pads."}]}`))
	}, 0)

	out, err := a.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Likely worn pads.", out)

	assert.Equal(t, "You are a repair assistant.", got.System)
	assert.Equal(t, int32(400), got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
}

func TestAnthropic_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}, 2)

	out, err := a.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnthropic_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, 1)

	_, err := a.Complete(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropic_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad model"}}`))
	}, 3)

	_, err := a.Complete(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropic_EmptyContent(t *testing.T) {
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}, 0)

	_, err := a.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAI_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Rotate the tires."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14}
		}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI("", "", srv.URL)
	require.NoError(t, err)

	out, err := o.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Rotate the tires.", out)

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)

	var roles []string
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestRateLimited(t *testing.T) {
	var calls int
	next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		return "ok", nil
	})
	rl := NewRateLimited(next, 0.001, 1)

	out, err := rl.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	// bucket is empty and refills far slower than the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rl.Complete(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ProviderConfig
		want    any
		wantErr bool
	}{
		{name: "disabled", cfg: config.ProviderConfig{Name: "disabled"}, want: Unavailable{}},
		{name: "empty name", cfg: config.ProviderConfig{}, want: Unavailable{}},
		{name: "openai", cfg: config.ProviderConfig{Name: "openai", BaseURL: "http://localhost:1"}, want: &OpenAI{}},
		{name: "anthropic", cfg: config.ProviderConfig{Name: "anthropic", APIKey: "k"}, want: &Anthropic{}},
		{name: "rate limited", cfg: config.ProviderConfig{Name: "anthropic", APIKey: "k", RateLimit: 2, Burst: 1}, want: &RateLimited{}},
		{name: "anthropic without key", cfg: config.ProviderConfig{Name: "anthropic"}, wantErr: true},
		{name: "unknown", cfg: config.ProviderConfig{Name: "cohere"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewFromConfig(context.Background(), tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
