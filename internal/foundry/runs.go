// ABOUTME: Run types and the create/poll operations for asynchronous agent executions.
// ABOUTME: A run transitions only through remote status reads; the client never mutates one.

package foundry

import (
	"context"
	"fmt"
	"net/http"
)

// RunStatus is the remote-reported state of a run.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunExpired    RunStatus = "expired"
)

// Active reports whether the run is still being processed and worth
// polling again.
func (s RunStatus) Active() bool {
	return s == RunQueued || s == RunInProgress
}

// Terminal reports whether the run has reached a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// RunError is the remote error payload attached to a failed run.
type RunError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Run is an asynchronous agent execution against a thread.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Status    RunStatus `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// createRunRequest is the wire shape for starting a run.
type createRunRequest struct {
	AssistantID string `json:"assistant_id"`
}

// CreateRun starts a run of the given agent on the thread. Like message
// appends, run creation carries no idempotency key.
func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id required")
	}
	if agentID == "" {
		return nil, fmt.Errorf("agent id required")
	}

	var run Run
	payload := createRunRequest{AssistantID: agentID}
	if err := c.doRequest(ctx, http.MethodPost, "/threads/"+threadID+"/runs", nil, payload, &run); err != nil {
		return nil, err
	}
	c.logger.Debug("run created", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
	return &run, nil
}

// GetRun reads the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	if threadID == "" || runID == "" {
		return nil, fmt.Errorf("thread id and run id required")
	}

	var run Run
	if err := c.doRequest(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
