package core

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"showcase/artifact"
	"showcase/project"
	"showcase/stream"
)

func newTestServer(t *testing.T, backend ModelBackend, llm llms.Model) (*echo.Echo, *Server) {
	t.Helper()
	s := newServer(testConfig(), quietLogger(), llm, backend)
	t.Cleanup(s.Close)
	e := echo.New()
	s.RegisterRoutes(e)
	return e, s
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func parseEvents(t *testing.T, body string) []StreamMessage {
	t.Helper()
	var events []StreamMessage
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), block)
		var msg StreamMessage
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &msg))
		events = append(events, msg)
	}
	return events
}

func eventTypes(events []StreamMessage) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestGenerateStreamsTurn(t *testing.T) {
	e, s := newTestServer(t, newScriptedBackend(text("A profile card.\n", cardFiles)), nil)

	rec := do(e, http.MethodPost, "/api/generate", `{"prompt":"a profile card"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseEvents(t, rec.Body.String())
	types := eventTypes(events)
	require.GreaterOrEqual(t, len(types), 4)
	assert.Equal(t, []string{"session", "execution_started"}, types[:2])
	assert.Contains(t, types, "artifact")
	assert.Equal(t, 1, count(types, "preview"))

	done := events[len(events)-1]
	assert.Equal(t, "done", done.Type)
	assert.True(t, done.Complete)
	require.NotNil(t, done.Artifact)
	assert.Equal(t, "A profile card.", done.Artifact.DisplayContent)
	assert.Equal(t, done.MessageID, done.PreviewID)

	var previewEvent StreamMessage
	for _, ev := range events {
		if ev.Type == "preview" {
			previewEvent = ev
		}
	}
	assert.Equal(t, "/preview/"+done.MessageID, previewEvent.Content)
	assert.EqualValues(t, 1, previewEvent.Details["version"])

	entry, ok := s.Previews().Get(done.MessageID)
	require.True(t, ok)
	assert.True(t, entry.Project.Files.Has("/App.tsx"))
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, previewEvent.Content+"/files", "").Code)

	conversationID := events[0].Content
	rec = do(e, http.MethodGet, "/api/conversations/"+conversationID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info ConversationInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, conversationID, info.ID)
	assert.False(t, info.InFlight)
	require.Len(t, info.Messages, 2)
	assert.Equal(t, "/App.tsx", info.Messages[1].EntryFile)
	assert.True(t, info.Messages[1].Files.Has("/App.tsx"))
}

func TestGenerateContinuesConversation(t *testing.T) {
	backend := newScriptedBackend(text(cardFiles), text(cardFiles))
	e, _ := newTestServer(t, backend, nil)

	first := parseEvents(t, do(e, http.MethodPost, "/api/generate", `{"prompt":"a card"}`).Body.String())
	conversationID := first[0].Content

	second := parseEvents(t, do(e, http.MethodPost, "/api/generate",
		fmt.Sprintf(`{"prompt":"darker","conversationId":%q}`, conversationID)).Body.String())
	assert.Equal(t, conversationID, second[0].Content)

	calls := backend.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1], 4)
}

func TestGenerateRejectsBadRequests(t *testing.T) {
	e, s := newTestServer(t, newScriptedBackend(), nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed json", body: `{"prompt":`, code: http.StatusBadRequest},
		{name: "missing prompt", body: `{}`, code: http.StatusBadRequest},
		{name: "turn in flight", body: `{"prompt":"x","conversationId":"busy"}`, code: http.StatusConflict},
	}

	release, err := s.conversations.GetOrCreate("busy").Begin()
	require.NoError(t, err)
	defer release()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/generate", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestGenerateReportsFailure(t *testing.T) {
	e, _ := newTestServer(t, newScriptedBackend(failing(&StatusError{StatusCode: 503})), nil)

	events := parseEvents(t, do(e, http.MethodPost, "/api/generate", `{"prompt":"a chart"}`).Body.String())
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Type)
	assert.True(t, last.Complete)
	assert.Contains(t, last.Content, "(503)")
	assert.NotContains(t, eventTypes(events), "done")
}

func TestStopEndsGeneration(t *testing.T) {
	e, s := newTestServer(t, newScriptedBackend(hanging("Let me build that")), nil)
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/generate", echo.MIMEApplicationJSON, strings.NewReader(`{"prompt":"a slow one"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	next := func() StreamMessage {
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var msg StreamMessage
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
			return msg
		}
		t.Fatal("stream ended early")
		return StreamMessage{}
	}

	session := next()
	require.Equal(t, "session", session.Type)
	started := next()
	require.Equal(t, "execution_started", started.Type)
	require.Equal(t, "artifact", next().Type)

	rec := do(e, http.MethodPost, "/api/stop", fmt.Sprintf(`{"executionId":%q}`, started.Content))
	require.Equal(t, http.StatusOK, rec.Code)

	stopped := next()
	assert.Equal(t, "stopped", stopped.Type)
	assert.True(t, stopped.Complete)

	assert.Eventually(t, func() bool {
		conv, ok := s.conversations.Get(session.Content)
		return ok && !conv.InFlight()
	}, time.Second, 10*time.Millisecond)
	conv, _ := s.conversations.Get(session.Content)
	assert.Len(t, conv.Messages(), 1)
}

func TestStopExecution(t *testing.T) {
	e, s := newTestServer(t, newScriptedBackend(), nil)

	rec := do(e, http.MethodPost, "/api/stop", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/stop", `{"executionId":"exec_missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.cancelManager.AddExecution(ExecutionInfo{ID: "exec_1", Kind: ExecutionChat}, cancel)

	rec = do(e, http.MethodPost, "/api/stop", `{"executionId":"exec_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StopResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Stopped)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestConversationEndpoints(t *testing.T) {
	e, s := newTestServer(t, newScriptedBackend(), nil)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/conversations/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, "/api/conversations/nope", "").Code)

	conv := s.conversations.GetOrCreate("c1")
	release, err := conv.Begin()
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, do(e, http.MethodDelete, "/api/conversations/c1", "").Code)
	release()

	assert.Equal(t, http.StatusOK, do(e, http.MethodDelete, "/api/conversations/c1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/conversations/c1", "").Code)
}

func TestChatStreamsPrefixedRecords(t *testing.T) {
	backend := newScriptedBackend(
		text("<think>short answer</think>", "It merges ", "class names."),
		text("Yes."),
	)
	e, s := newTestServer(t, backend, nil)

	rec := do(e, http.MethodPost, "/api/chat", `{"message":"what does cn() do?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get("X-Session-ID")
	require.NotEmpty(t, sessionID)
	assert.NotEmpty(t, rec.Header().Get("X-Execution-ID"))

	gotText, gotReasoning := decodeRecords(t, rec.Body.String())
	assert.Equal(t, "It merges class names.", gotText)
	assert.Equal(t, "short answer", gotReasoning)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(rec.Body.String()), `d:{"finishReason":"stop"}`))

	session, ok := s.memoryStore.GetSession(sessionID)
	require.True(t, ok)
	msgs := session.GetRecentMessages(-1)
	require.Len(t, msgs, 2)
	assert.Equal(t, "It merges class names.", msgs[1].Content)
	assert.Equal(t, "short answer", msgs[1].Reasoning)

	// the second message carries the history without reasoning tags
	rec = do(e, http.MethodPost, "/api/chat", fmt.Sprintf(`{"message":"really?","sessionId":%q}`, sessionID))
	require.Equal(t, http.StatusOK, rec.Code)
	calls := backend.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[1], 4)
	assert.Equal(t, "system", calls[1][0].Role)
	assert.Equal(t, PromptMessage{Role: RoleAssistant, Content: "It merges class names."}, calls[1][2])
}

func TestChatReportsErrorRecord(t *testing.T) {
	e, _ := newTestServer(t, newScriptedBackend(failing(&StatusError{StatusCode: 401})), nil)

	rec := do(e, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	err := stream.Decode(context.Background(), strings.NewReader(rec.Body.String()), stream.FramingPrefixed, func(stream.Frame) {})
	var remoteErr *stream.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, "(401)")
}

func TestSessionEndpoints(t *testing.T) {
	e, s := newTestServer(t, newScriptedBackend(), nil)

	session := s.memoryStore.GetOrCreateSession("s1")
	session.AddMessage("user", "hi")
	session.AddMessage("assistant", "hello")

	rec := do(e, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, 2, list.Sessions[0].MessageCount)

	rec = do(e, http.MethodGet, "/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Len(t, info.Messages, 2)

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/sessions/s1/clear", "").Code)
	assert.Empty(t, session.GetRecentMessages(-1))

	assert.Equal(t, http.StatusOK, do(e, http.MethodDelete, "/sessions/s1", "").Code)
	for _, target := range []string{"/sessions/s1"} {
		assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, target, "").Code)
		assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, target, "").Code)
	}
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/sessions/s1/clear", "").Code)
}

func TestStatusAndMetrics(t *testing.T) {
	e, _ := newTestServer(t, newScriptedBackend(), nil)

	rec := do(e, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, ProviderOpenAI, status["provider"])
	assert.EqualValues(t, 0, status["executionCount"])

	rec = do(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAgentChat(t *testing.T) {
	model := &fakeModel{chunks: []string{"Thought: I can see the project.\nFinal Answer: The entry file is /App.tsx."}}
	e, s := newTestServer(t, newScriptedBackend(), model)

	rec := do(e, http.MethodPost, "/api/chat/agent", `{"message":"what is the entry?"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/chat/agent", `{"message":"what is the entry?","previewId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	files := artifact.NewFileSet()
	files.Set("/App.tsx", "export default function App() { return null }")
	s.Previews().Publish("p1", project.Assemble(project.Input{Files: files, EntryFile: "/App.tsx"}))

	rec = do(e, http.MethodPost, "/api/chat/agent", `{"message":"what is the entry?","previewId":"p1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseEvents(t, rec.Body.String())
	types := eventTypes(events)
	assert.Equal(t, []string{"session", "execution_started"}, types[:2])
	last := events[len(events)-1]
	assert.Equal(t, "response", last.Type)
	assert.Equal(t, "The entry file is /App.tsx.", last.Content)
	assert.Equal(t, "p1", last.PreviewID)
}
