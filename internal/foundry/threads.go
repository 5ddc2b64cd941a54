// ABOUTME: Thread creation against the remote agent service.
// ABOUTME: Threads are opaque remote-owned conversation containers referenced by id.

package foundry

import (
	"context"
	"net/http"
)

// Thread is a remote conversation container. The id is the only field the
// gateway relies on; callers persist it to continue a conversation.
type Thread struct {
	ID string `json:"id"`
}

// CreateThread creates an empty thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.doRequest(ctx, http.MethodPost, "/threads", nil, nil, &thread); err != nil {
		return nil, err
	}
	c.logger.Debug("thread created", "thread_id", thread.ID)
	return &thread, nil
}
