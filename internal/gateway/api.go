// ABOUTME: HTTP API handlers for the send and merged-history endpoints.
// ABOUTME: Maps run orchestration and message reconciliation onto JSON responses.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjwyz/aqpMcp/internal/auth"
	"github.com/tjwyz/aqpMcp/internal/conversation"
	"github.com/tjwyz/aqpMcp/internal/foundry"
)

// maxMessagesLimit caps how many reconciled messages one request may ask for.
const maxMessagesLimit = 1000

// SendRequest is the JSON request body for POST /agent/send.
type SendRequest struct {
	AgentType string `json:"agent_type"`
	ThreadID  string `json:"thread_id,omitempty"`
	Message   string `json:"message"`
}

// SendResponse is the JSON response for POST /agent/send. Status is the
// last observed run status and is not necessarily terminal: a run that
// outlives the polling budget is reported as queued or in_progress.
type SendResponse struct {
	AgentType     string `json:"agent_type"`
	ThreadID      string `json:"thread_id"`
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	LastAssistant string `json:"last_assistant,omitempty"`
}

// MessagesRequest is the JSON request body for POST /agent/messages.
type MessagesRequest struct {
	ThreadAID string `json:"thread_a_id,omitempty"`
	ThreadBID string `json:"thread_b_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// MessageResponse is one reconciled message entry.
type MessageResponse struct {
	ID          string `json:"id"`
	ThreadID    string `json:"thread_id,omitempty"`
	Role        string `json:"role"`
	Text        string `json:"text"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// MessagesResponse is the JSON response for POST /agent/messages.
type MessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
	Count    int               `json:"count"`
}

// routes assembles the HTTP mux. Health endpoints are always open; agent
// endpoints go through the auth middleware when a secret is configured.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ping", g.handlePing)
	mux.HandleFunc("/readyz", g.handleReady)

	send := http.HandlerFunc(g.handleSend)
	messages := http.HandlerFunc(g.handleMessages)
	if g.verifier != nil {
		authMiddleware := auth.Middleware(g.verifier)
		mux.Handle("/agent/send", authMiddleware(send))
		mux.Handle("/agent/messages", authMiddleware(messages))
	} else {
		mux.Handle("/agent/send", send)
		mux.Handle("/agent/messages", messages)
	}

	return mux
}

// statusRecorder captures the response status code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLog tags each request with a short id and logs one line on
// completion with method, path, status, and duration.
func (g *Gateway) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.New().String()[:8]

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(rec, r)

		g.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}

// handlePing returns 200 OK if the server is alive.
func (g *Gateway) handlePing(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady returns 200 once bootstrap has verified the upstream
// credentials and agent bindings, 503 before that.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.ready.Load() {
		g.sendJSONError(w, http.StatusServiceUnavailable, "bootstrap not complete")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleSend handles POST /agent/send requests.
//
// Responsibilities:
//  1. Refuse until bootstrap has completed
//  2. Parse and validate the JSON body
//  3. Resolve agent_type to the configured agent id
//  4. Ensure a thread exists (create one when thread_id is omitted)
//  5. Append the message, start a run, and poll it via the conversation service
//  6. Report the outcome, including the assistant reply for completed runs
func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !g.ready.Load() {
		g.sendJSONError(w, http.StatusServiceUnavailable, "gateway is not ready")
		return
	}

	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	agentID, ok := g.config.Agents.ID(req.AgentType)
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown agent_type %q", req.AgentType))
		return
	}

	threadID, err := g.conversation.EnsureThread(r.Context(), req.ThreadID)
	if err != nil {
		g.logger.Error("failed to ensure thread", "error", err, "agent_type", req.AgentType)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	outcome, err := g.conversation.AppendAndRun(r.Context(), threadID, agentID, req.Message)
	if errors.Is(err, conversation.ErrEmptyMessage) {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		g.logger.Error("run orchestration failed", "error", err, "thread_id", threadID, "agent_type", req.AgentType)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := SendResponse{
		AgentType: req.AgentType,
		ThreadID:  outcome.ThreadID,
		RunID:     outcome.RunID,
		Status:    string(outcome.Status),
	}

	// Only a completed run has a fresh reply worth fetching. A run still
	// active after the polling budget reports its status and nothing else.
	if outcome.Status == foundry.RunCompleted {
		resp.LastAssistant = g.lastAssistant(r.Context(), threadID)
	}

	g.writeJSON(w, http.StatusOK, resp)
}

// lastAssistant fetches the thread history and extracts the newest
// assistant entry. Failures degrade to an empty reply rather than failing
// the send, since the run itself already succeeded.
func (g *Gateway) lastAssistant(ctx context.Context, threadID string) string {
	msgs, err := g.conversation.History(ctx, threadID)
	if err != nil {
		g.logger.Warn("failed to fetch history for reply extraction", "error", err, "thread_id", threadID)
		return ""
	}
	last := conversation.LastMessageByRole(conversation.OrderMessages(msgs), foundry.RoleAssistant)
	if last == nil {
		return ""
	}
	return last.BodyText()
}

// handleMessages handles POST /agent/messages requests. It fetches up to
// two thread histories, merges them into one chronological transcript, and
// returns the reconciled entries.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !g.ready.Load() {
		g.sendJSONError(w, http.StatusServiceUnavailable, "gateway is not ready")
		return
	}

	var req MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var threadIDs []string
	if req.ThreadAID != "" {
		threadIDs = append(threadIDs, req.ThreadAID)
	}
	if req.ThreadBID != "" {
		threadIDs = append(threadIDs, req.ThreadBID)
	}
	if len(threadIDs) == 0 {
		g.sendJSONError(w, http.StatusBadRequest, "at least one of thread_a_id or thread_b_id is required")
		return
	}

	if req.Limit < 0 {
		g.sendJSONError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}
	limit := req.Limit
	if limit > maxMessagesLimit {
		limit = maxMessagesLimit
	}

	merged, err := g.conversation.MergedHistory(r.Context(), limit, threadIDs...)
	if err != nil {
		g.logger.Error("failed to merge thread histories", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := MessagesResponse{
		Messages: make([]MessageResponse, len(merged)),
		Count:    len(merged),
	}
	for i, m := range merged {
		id := m.ID
		if id == "" {
			id = m.MessageID
		}
		resp.Messages[i] = MessageResponse{
			ID:          id,
			ThreadID:    m.ThreadID,
			Role:        conversation.MessageRole(m),
			Text:        m.BodyText(),
			CreatedAtMs: conversation.CreationTimeMs(m),
		}
	}

	g.writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response with the given status code.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseSendRequest decodes and validates a send request body.
func parseSendRequest(r io.Reader) (*SendRequest, error) {
	var req SendRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if req.AgentType == "" {
		return nil, errors.New("agent_type is required")
	}

	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}

	return &req, nil
}
