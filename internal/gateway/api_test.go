// ABOUTME: Tests for HTTP API handlers covering the send and merged-history endpoints.
// ABOUTME: Uses a fake conversation service to exercise validation, status mapping, and auth.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjwyz/aqpMcp/internal/auth"
	"github.com/tjwyz/aqpMcp/internal/config"
	"github.com/tjwyz/aqpMcp/internal/conversation"
	"github.com/tjwyz/aqpMcp/internal/foundry"
)

// fakeConversation is a controllable conversationService implementation.
type fakeConversation struct {
	createdThreadID string
	ensureErr       error

	outcome *conversation.RunOutcome
	runErr  error

	histories  map[string][]foundry.Message
	historyErr error

	appendCalls  int
	historyCalls int
	lastThreadID string
	lastAgentID  string
	lastMessage  string
}

func (f *fakeConversation) EnsureThread(ctx context.Context, threadID string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	if threadID != "" {
		return threadID, nil
	}
	return f.createdThreadID, nil
}

func (f *fakeConversation) AppendAndRun(ctx context.Context, threadID, agentID, message string) (*conversation.RunOutcome, error) {
	f.appendCalls++
	f.lastThreadID = threadID
	f.lastAgentID = agentID
	f.lastMessage = message
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.outcome, nil
}

func (f *fakeConversation) History(ctx context.Context, threadID string) ([]foundry.Message, error) {
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.histories[threadID], nil
}

func (f *fakeConversation) MergedHistory(ctx context.Context, limit int, threadIDs ...string) ([]foundry.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	lists := make([][]foundry.Message, 0, len(threadIDs))
	for _, id := range threadIDs {
		lists = append(lists, f.histories[id])
	}
	return conversation.MergeThreads(limit, lists...), nil
}

// newTestGateway builds a gateway via New and swaps in the fake
// conversation service. Bootstrap is marked complete so handlers serve.
func newTestGateway(t *testing.T, conv conversationService) *Gateway {
	t.Helper()

	cfg := &config.Config{
		Service: config.ServiceConfig{
			BaseURL: "https://agents.example.net/api",
		},
		Agents: config.AgentsConfig{
			Params:  "asst_params",
			Summary: "asst_summary",
		},
		Server: config.ServerConfig{
			HTTPAddr: "localhost:0",
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	gw.conversation = conv
	gw.ready.Store(true)
	return gw
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var errResp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return errResp["error"]
}

func TestHandlePing(t *testing.T) {
	gw := newTestGateway(t, &fakeConversation{})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	gw.handlePing(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("unexpected ping body: %v", resp)
	}
}

func TestHandleReady(t *testing.T) {
	gw := newTestGateway(t, &fakeConversation{})
	gw.ready.Store(false)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	gw.handleReady(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d before bootstrap, got %d", http.StatusServiceUnavailable, rec.Code)
	}

	gw.ready.Store(true)
	rec = httptest.NewRecorder()
	gw.handleReady(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d after bootstrap, got %d", http.StatusOK, rec.Code)
	}
}

func TestHandleSend_NotReady(t *testing.T) {
	conv := &fakeConversation{}
	gw := newTestGateway(t, conv)
	gw.ready.Store(false)

	rec := postJSON(t, gw.handleSend, "/agent/send", SendRequest{
		AgentType: "params",
		Message:   "hello",
	})

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if conv.appendCalls != 0 {
		t.Errorf("conversation should not be reached before bootstrap, got %d calls", conv.appendCalls)
	}
}

func TestHandleSend_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t, &fakeConversation{})

	req := httptest.NewRequest(http.MethodGet, "/agent/send", nil)
	rec := httptest.NewRecorder()
	gw.handleSend(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestHandleSend_InvalidJSON(t *testing.T) {
	gw := newTestGateway(t, &fakeConversation{})

	req := httptest.NewRequest(http.MethodPost, "/agent/send", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	gw.handleSend(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleSend_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     SendRequest
		wantErr string
	}{
		{
			name:    "missing agent_type",
			req:     SendRequest{Message: "hello"},
			wantErr: "agent_type is required",
		},
		{
			name:    "empty message",
			req:     SendRequest{AgentType: "params"},
			wantErr: "message is required",
		},
		{
			name:    "whitespace message",
			req:     SendRequest{AgentType: "params", Message: "   \n\t"},
			wantErr: "message is required",
		},
		{
			name:    "unknown agent_type",
			req:     SendRequest{AgentType: "oracle", Message: "hello"},
			wantErr: `unknown agent_type "oracle"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConversation{}
			gw := newTestGateway(t, conv)

			rec := postJSON(t, gw.handleSend, "/agent/send", tt.req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if got := decodeError(t, rec); got != tt.wantErr {
				t.Errorf("expected error %q, got %q", tt.wantErr, got)
			}
			if conv.appendCalls != 0 {
				t.Errorf("invalid request should not reach the conversation service")
			}
		})
	}
}

func TestHandleSend_CompletedRun(t *testing.T) {
	conv := &fakeConversation{
		outcome: &conversation.RunOutcome{
			ThreadID: "thread-1",
			RunID:    "run-1",
			Status:   foundry.RunCompleted,
		},
		histories: map[string][]foundry.Message{
			"thread-1": {
				{ID: "msg-1", Role: "user", Text: "hello", CreatedAt: float64(1700000001)},
				{ID: "msg-2", Role: "assistant", Text: "hi there", CreatedAt: float64(1700000002)},
			},
		},
	}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleSend, "/agent/send", SendRequest{
		AgentType: "params",
		ThreadID:  "thread-1",
		Message:   "hello",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp SendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.AgentType != "params" || resp.ThreadID != "thread-1" || resp.RunID != "run-1" {
		t.Errorf("unexpected response identity fields: %+v", resp)
	}
	if resp.Status != "completed" {
		t.Errorf("expected status completed, got %q", resp.Status)
	}
	if resp.LastAssistant != "hi there" {
		t.Errorf("expected assistant reply %q, got %q", "hi there", resp.LastAssistant)
	}
	if conv.lastAgentID != "asst_params" {
		t.Errorf("expected agent_type to resolve to asst_params, got %q", conv.lastAgentID)
	}
}

func TestHandleSend_CreatesThreadWhenOmitted(t *testing.T) {
	conv := &fakeConversation{
		createdThreadID: "thread-new",
		outcome: &conversation.RunOutcome{
			ThreadID: "thread-new",
			RunID:    "run-1",
			Status:   foundry.RunCompleted,
		},
	}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleSend, "/agent/send", SendRequest{
		AgentType: "summary",
		Message:   "summarize this",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp SendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ThreadID != "thread-new" {
		t.Errorf("expected freshly created thread id, got %q", resp.ThreadID)
	}
	if conv.lastThreadID != "thread-new" {
		t.Errorf("run should target the created thread, got %q", conv.lastThreadID)
	}
}

func TestHandleSend_TimedOutRunReportsLastStatus(t *testing.T) {
	conv := &fakeConversation{
		outcome: &conversation.RunOutcome{
			ThreadID: "thread-1",
			RunID:    "run-1",
			Status:   foundry.RunInProgress,
		},
	}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleSend, "/agent/send", SendRequest{
		AgentType: "params",
		ThreadID:  "thread-1",
		Message:   "hello",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp SendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "in_progress" {
		t.Errorf("expected last observed status, got %q", resp.Status)
	}
	if resp.LastAssistant != "" {
		t.Errorf("non-terminal run should not carry a reply, got %q", resp.LastAssistant)
	}
	if conv.historyCalls != 0 {
		t.Errorf("history should not be fetched for a non-terminal run")
	}
}

func TestHandleSend_RunFailure(t *testing.T) {
	conv := &fakeConversation{
		runErr: &conversation.RunFailedError{
			RunID:   "run-9",
			Code:    "server_error",
			Message: "model unavailable",
		},
	}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleSend, "/agent/send", SendRequest{
		AgentType: "params",
		ThreadID:  "thread-1",
		Message:   "hello",
	})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if got := decodeError(t, rec); !strings.Contains(got, "run run-9 failed") {
		t.Errorf("error should carry the remote failure payload, got %q", got)
	}
}

func TestHandleSend_HistoryFailureDegrades(t *testing.T) {
	conv := &fakeConversation{
		outcome: &conversation.RunOutcome{
			ThreadID: "thread-1",
			RunID:    "run-1",
			Status:   foundry.RunCompleted,
		},
		historyErr: errors.New("boom"),
	}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleSend, "/agent/send", SendRequest{
		AgentType: "params",
		ThreadID:  "thread-1",
		Message:   "hello",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("reply extraction failure should not fail the send, got %d", rec.Code)
	}

	var resp SendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.LastAssistant != "" {
		t.Errorf("expected empty reply when history fetch fails, got %q", resp.LastAssistant)
	}
}

func TestHandleMessages_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  MessagesRequest
	}{
		{name: "no thread ids", req: MessagesRequest{}},
		{name: "negative limit", req: MessagesRequest{ThreadAID: "thread-a", Limit: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, &fakeConversation{})

			rec := postJSON(t, gw.handleMessages, "/agent/messages", tt.req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestHandleMessages_InvalidJSON(t *testing.T) {
	gw := newTestGateway(t, &fakeConversation{})

	req := httptest.NewRequest(http.MethodPost, "/agent/messages", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	gw.handleMessages(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleMessages_NotReady(t *testing.T) {
	gw := newTestGateway(t, &fakeConversation{})
	gw.ready.Store(false)

	rec := postJSON(t, gw.handleMessages, "/agent/messages", MessagesRequest{ThreadAID: "thread-a"})

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestHandleMessages_MergesTwoThreads(t *testing.T) {
	conv := &fakeConversation{
		histories: map[string][]foundry.Message{
			"thread-a": {
				{ID: "a1", ThreadID: "thread-a", Role: "user", Text: "first", CreatedAt: float64(1700000001)},
				{ID: "a2", ThreadID: "thread-a", Role: "assistant", Text: "third", CreatedAt: float64(1700000003)},
			},
			"thread-b": {
				{ID: "b1", ThreadID: "thread-b", Author: "assistant", CreatedAt: float64(1700000002),
					Content: []foundry.ContentBlock{{Type: "text", Text: "second"}}},
			},
		},
	}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleMessages, "/agent/messages", MessagesRequest{
		ThreadAID: "thread-a",
		ThreadBID: "thread-b",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp MessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Count != 3 {
		t.Fatalf("expected 3 merged messages, got %d", resp.Count)
	}

	wantOrder := []string{"a1", "b1", "a2"}
	for i, want := range wantOrder {
		if resp.Messages[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, resp.Messages[i].ID)
		}
	}

	second := resp.Messages[1]
	if second.ThreadID != "thread-b" {
		t.Errorf("merged entry should keep its thread id, got %q", second.ThreadID)
	}
	if second.Role != "assistant" {
		t.Errorf("author fallback should map to role, got %q", second.Role)
	}
	if second.Text != "second" {
		t.Errorf("content blocks should flatten to text, got %q", second.Text)
	}
	if second.CreatedAtMs != 1700000002000 {
		t.Errorf("seconds timestamp should normalize to ms, got %d", second.CreatedAtMs)
	}
}

func TestHandleMessages_SingleThread(t *testing.T) {
	conv := &fakeConversation{
		histories: map[string][]foundry.Message{
			"thread-b": {
				{ID: "b1", ThreadID: "thread-b", Role: "user", Text: "only", CreatedAt: float64(1700000001)},
			},
		},
	}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleMessages, "/agent/messages", MessagesRequest{ThreadBID: "thread-b"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp MessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Messages[0].ID != "b1" {
		t.Errorf("unexpected single-thread result: %+v", resp)
	}
}

func TestHandleMessages_AppliesLimit(t *testing.T) {
	conv := &fakeConversation{
		histories: map[string][]foundry.Message{
			"thread-a": {
				{ID: "a1", Role: "user", Text: "one", CreatedAt: float64(1700000001)},
				{ID: "a2", Role: "assistant", Text: "two", CreatedAt: float64(1700000002)},
				{ID: "a3", Role: "user", Text: "three", CreatedAt: float64(1700000003)},
			},
		},
	}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleMessages, "/agent/messages", MessagesRequest{
		ThreadAID: "thread-a",
		Limit:     2,
	})

	var resp MessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Count != 2 {
		t.Fatalf("expected limit to keep 2 messages, got %d", resp.Count)
	}
	if resp.Messages[0].ID != "a2" || resp.Messages[1].ID != "a3" {
		t.Errorf("limit should keep the most recent entries, got %+v", resp.Messages)
	}
}

func TestHandleMessages_FetchError(t *testing.T) {
	conv := &fakeConversation{historyErr: errors.New("upstream down")}
	gw := newTestGateway(t, conv)

	rec := postJSON(t, gw.handleMessages, "/agent/messages", MessagesRequest{ThreadAID: "thread-a"})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestRoutes_AuthProtectsAgentEndpoints(t *testing.T) {
	conv := &fakeConversation{
		histories: map[string][]foundry.Message{"thread-a": nil},
	}
	gw := newTestGateway(t, conv)
	verifier := auth.NewJWTVerifier([]byte("0123456789abcdef0123456789abcdef"))
	gw.verifier = verifier

	handler := gw.routes()

	body := `{"thread_a_id":"thread-a"}`

	// No token: rejected.
	req := httptest.NewRequest(http.MethodPost, "/agent/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d without token, got %d", http.StatusUnauthorized, rec.Code)
	}

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected /ping to stay open, got %d", rec.Code)
	}

	// Valid token: passes through to the handler.
	token, err := verifier.Generate("tui-client", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/agent/messages", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d with valid token, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestWithRequestLog_SetsRequestID(t *testing.T) {
	gw := newTestGateway(t, &fakeConversation{})

	handler := gw.withRequestLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected wrapped handler status, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header to be set")
	}
}
