// ABOUTME: Agent lookup against the remote service.
// ABOUTME: Used as the readiness probe during gateway bootstrap.

package foundry

import (
	"context"
	"fmt"
	"net/http"
)

// Agent is a remote-configured conversational entity.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// GetAgent fetches an agent definition. Bootstrap calls this once per
// configured agent id to verify the binding before serving traffic.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id required")
	}

	var agent Agent
	if err := c.doRequest(ctx, http.MethodGet, "/assistants/"+agentID, nil, nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}
