package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/assistd/internal/assistant"
	"github.com/fyrsmithlabs/assistd/internal/completion"
	"github.com/fyrsmithlabs/assistd/internal/diagnosis"
	"github.com/fyrsmithlabs/assistd/internal/logging"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// fakeCompleter answers with a fixed reply and records prompts.
type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, req completion.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	return f.reply, f.err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func testPipelines(t *testing.T, c completion.Completer) []*assistant.Pipeline {
	t.Helper()
	var out []*assistant.Pipeline
	for _, cfg := range []assistant.Config{assistant.ChatConfig(), assistant.GreeterConfig(), assistant.DiagnosticConfig()} {
		p, err := assistant.NewPipeline(cfg, c)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func setupTestServer(t *testing.T, c completion.Completer, opts ...Option) *Server {
	t.Helper()
	server, err := NewServer(logging.NewNop(), nil, testPipelines(t, c), opts...)
	require.NoError(t, err)
	return server
}

func post(t *testing.T, server *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) assistant.Response {
	t.Helper()
	var resp assistant.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server := setupTestServer(t, &fakeCompleter{})
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
		assert.Equal(t, defaultBodyLimit, server.config.BodyLimit)
		assert.Equal(t, []string{"chat", "diagnostic", "greeter"}, server.Variants())
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, testPipelines(t, &fakeCompleter{}))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error without pipelines", func(t *testing.T) {
		_, err := NewServer(logging.NewNop(), nil, nil)
		assert.Error(t, err)
	})

	t.Run("rejects duplicate variants", func(t *testing.T) {
		p := testPipelines(t, &fakeCompleter{})
		_, err := NewServer(logging.NewNop(), nil, append(p, p[0]))
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, &fakeCompleter{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Variants, 3)
}

func TestHandleHealth_Custom(t *testing.T) {
	server := setupTestServer(t, &fakeCompleter{}, WithHealth(func() HealthResponse {
		return HealthResponse{Status: "ok", Telemetry: "degraded"}
	}))

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rec.Body.String(), `"telemetry":"degraded"`)
}

func TestHandleConversation(t *testing.T) {
	t.Run("routes each variant", func(t *testing.T) {
		c := &fakeCompleter{reply: "Let's take a look."}
		server := setupTestServer(t, c)

		for _, path := range []string{"/api/chat", "/api/greeter", "/api/diagnostic-chat"} {
			rec := post(t, server, path, `{"messages":[{"role":"user","content":"hello"}]}`)
			assert.Equal(t, http.StatusOK, rec.Code, path)
			assert.Equal(t, "Let's take a look.", decodeResponse(t, rec).Reply, path)
		}
		assert.Equal(t, 3, c.calls())
	})

	t.Run("greeter route tag becomes link", func(t *testing.T) {
		c := &fakeCompleter{reply: "Worn pads, most likely. [ROUTE year=2018 make=honda model=civic]"}
		server := setupTestServer(t, c)

		rec := post(t, server, "/api/greeter", `{"messages":[
			{"role":"user","content":"2018 Honda Civic"},
			{"role":"assistant","content":"What's going on with it?"},
			{"role":"user","content":"brakes are squeaking"}
		]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		assert.Equal(t, "Worn pads, most likely.", raw["reply"])
		assert.Equal(t, "/repair/2018/honda/civic", raw["redirect"])
		link, ok := raw["link"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "/repair/2018/honda/civic", link["href"])
		assert.Contains(t, raw, "followUp")
	})

	t.Run("plain reply omits optional fields", func(t *testing.T) {
		server := setupTestServer(t, &fakeCompleter{reply: "Hi there!"})

		rec := post(t, server, "/api/chat", `{"messages":[{"role":"user","content":"hello"}]}`)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		assert.Equal(t, map[string]any{"reply": "Hi there!"}, raw)
	})

	t.Run("history alias", func(t *testing.T) {
		c := &fakeCompleter{reply: "ok"}
		server := setupTestServer(t, c)

		rec := post(t, server, "/api/chat", `{"history":[{"role":"user","content":"from history"}],"session_id":"abc"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"from history"}, c.prompts)
		assert.Equal(t, "abc", rec.Header().Get(HeaderSessionID))
	})

	t.Run("generates session id", func(t *testing.T) {
		server := setupTestServer(t, &fakeCompleter{reply: "ok"})

		rec := post(t, server, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
		_, err := uuid.Parse(rec.Header().Get(HeaderSessionID))
		assert.NoError(t, err)
	})

	t.Run("malformed json gets fallback", func(t *testing.T) {
		c := &fakeCompleter{reply: "unused"}
		server := setupTestServer(t, c)

		for _, body := range []string{`{"messages":`, `not json`, `{"messages":"hello"}`, ``} {
			rec := post(t, server, "/api/chat", body)
			assert.Equal(t, http.StatusOK, rec.Code, body)
			assert.Equal(t, assistant.ChatConfig().FallbackReply, decodeResponse(t, rec).Reply, body)
		}
		assert.Zero(t, c.calls())
	})

	t.Run("missing turns get fallback", func(t *testing.T) {
		c := &fakeCompleter{reply: "unused"}
		server := setupTestServer(t, c)

		rec := post(t, server, "/api/greeter", `{"sessionId":"s"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, assistant.GreeterConfig().FallbackReply, decodeResponse(t, rec).Reply)
		assert.Zero(t, c.calls())
	})

	t.Run("over cap gets fallback", func(t *testing.T) {
		c := &fakeCompleter{reply: "unused"}
		server := setupTestServer(t, c)

		turns := make([]assistant.Turn, 21)
		for i := range turns {
			turns[i] = assistant.Turn{Role: assistant.RoleUser, Content: "more"}
		}
		body, err := json.Marshal(map[string]any{"messages": turns})
		require.NoError(t, err)

		rec := post(t, server, "/api/chat", string(body))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, assistant.ChatConfig().FallbackReply, decodeResponse(t, rec).Reply)
		assert.Zero(t, c.calls())
	})

	t.Run("provider failure is still 200", func(t *testing.T) {
		server := setupTestServer(t, &fakeCompleter{err: errors.New("quota exceeded")})

		rec := post(t, server, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeResponse(t, rec)
		assert.Equal(t, assistant.ChatConfig().ErrorReply, resp.Reply)
		assert.NotContains(t, rec.Body.String(), "quota")
	})

	t.Run("heuristic redirect", func(t *testing.T) {
		server := setupTestServer(t, &fakeCompleter{reply: "Could be the belt."})

		rec := post(t, server, "/api/chat", `{"messages":[{"role":"user","content":"squealing noise on startup"}]}`)
		assert.Equal(t, "/diagnose", decodeResponse(t, rec).Redirect)
	})
}

func TestBodyLimit(t *testing.T) {
	c := &fakeCompleter{reply: "unused"}
	svc, err := diagnosis.NewService(c)
	require.NoError(t, err)
	server, err := NewServer(logging.NewNop(), &Config{Host: "localhost", Port: 8080, BodyLimit: "1K"},
		testPipelines(t, c), WithDiagnosis(svc))
	require.NoError(t, err)

	t.Run("oversized conversation gets the fallback", func(t *testing.T) {
		// well under the turn cap, but pasted text pushes the body past the limit
		var turns []string
		for i := 0; i < 5; i++ {
			turns = append(turns, `{"role":"user","content":"`+strings.Repeat("a", 400)+`"}`)
		}
		body := `{"messages":[` + strings.Join(turns, ",") + `]}`
		require.Greater(t, len(body), 1024)

		rec := post(t, server, "/api/chat", body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, assistant.ChatConfig().FallbackReply, decodeResponse(t, rec).Reply)
		assert.Zero(t, c.calls())
	})

	t.Run("small conversation is answered", func(t *testing.T) {
		rec := post(t, server, "/api/greeter", `{"messages":[{"role":"user","content":"hi"}]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "unused", decodeResponse(t, rec).Reply)
	})

	t.Run("oversized diagnose is rejected", func(t *testing.T) {
		body := `{"year":2014,"make":"toyota","model":"camry","symptoms":"` + strings.Repeat("a", 2048) + `"}`
		rec := post(t, server, "/api/diagnose", body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestNewServer_BadBodyLimit(t *testing.T) {
	_, err := NewServer(logging.NewNop(), &Config{BodyLimit: "lots"}, testPipelines(t, &fakeCompleter{reply: "ok"}))
	assert.ErrorContains(t, err, "invalid body limit")
}

func TestCORS(t *testing.T) {
	server, err := NewServer(logging.NewNop(), &Config{AllowedOrigins: []string{"https://fixit.example"}}, testPipelines(t, &fakeCompleter{reply: "ok"}))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set(echo.HeaderOrigin, "https://fixit.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, "https://fixit.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestRequestLogging(t *testing.T) {
	tl := logging.NewTestLogger()
	server, err := NewServer(tl.Logger, nil, testPipelines(t, &fakeCompleter{reply: "ok"}))
	require.NoError(t, err)

	rec := post(t, server, "/api/chat", `{"messages":[{"role":"user","content":"my secret symptoms"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	tl.AssertLogged(t, zapcore.InfoLevel, "http request")
	tl.AssertField(t, "http request", "path", "/api/chat")
	tl.AssertField(t, "http request", "request.id", rec.Header().Get(echo.HeaderXRequestID))
	for _, entry := range tl.All() {
		assert.NotContains(t, entry.Message, "secret symptoms")
	}
}

const diagnoseReply = `{"summary":"Worn pads.","urgency":"high","difficulty":"intermediate","causes":[{"name":"Pads","likelihood":"high"}]}`

func setupDiagnoseServer(t *testing.T, c completion.Completer) *Server {
	t.Helper()
	svc, err := diagnosis.NewService(c)
	require.NoError(t, err)
	return setupTestServer(t, c, WithDiagnosis(svc))
}

func TestHandleDiagnose(t *testing.T) {
	body := `{"year":2015,"make":"Mazda","model":"3","symptoms":"grinding when braking"}`

	t.Run("returns report", func(t *testing.T) {
		server := setupDiagnoseServer(t, &fakeCompleter{reply: diagnoseReply})

		rec := post(t, server, "/api/diagnose", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var report diagnosis.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, diagnosis.UrgencyHigh, report.Urgency)
	})

	t.Run("invalid request is 400", func(t *testing.T) {
		c := &fakeCompleter{reply: diagnoseReply}
		server := setupDiagnoseServer(t, c)

		rec := post(t, server, "/api/diagnose", `{"year":2015,"make":"Mazda","model":"3"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = post(t, server, "/api/diagnose", `{"year":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, c.calls())
	})

	t.Run("provider failure is 502 with fallback", func(t *testing.T) {
		server := setupDiagnoseServer(t, &fakeCompleter{err: errors.New("boom")})

		rec := post(t, server, "/api/diagnose", body)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		var resp DiagnoseError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, diagnosis.FallbackReply, resp.Reply)
		assert.NotContains(t, rec.Body.String(), "boom")
	})

	t.Run("unparseable reply is 502", func(t *testing.T) {
		server := setupDiagnoseServer(t, &fakeCompleter{reply: "no idea"})

		rec := post(t, server, "/api/diagnose", body)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("panicking provider is 502 with fallback", func(t *testing.T) {
		c := completion.CompleterFunc(func(context.Context, completion.Request) (string, error) {
			panic("provider blew up")
		})
		server := setupDiagnoseServer(t, c)

		rec := post(t, server, "/api/diagnose", body)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		var resp DiagnoseError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, diagnosis.FallbackReply, resp.Reply)
		assert.NotContains(t, rec.Body.String(), "blew up")
	})

	t.Run("reply without causes is 502", func(t *testing.T) {
		server := setupDiagnoseServer(t, &fakeCompleter{reply: `{"summary":"Unclear.","urgency":"low","difficulty":"beginner","causes":[]}`})

		rec := post(t, server, "/api/diagnose", body)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("not registered without service", func(t *testing.T) {
		server := setupTestServer(t, &fakeCompleter{})
		rec := post(t, server, "/api/diagnose", body)
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})
}

func TestMetricsHandler(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("assistant_requests_total 1\n"))
	})
	server := setupTestServer(t, &fakeCompleter{}, WithMetricsHandler(handler))

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("assistant_requests_total")))
}
