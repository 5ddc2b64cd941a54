// ABOUTME: Message types and the append/list operations on a thread.
// ABOUTME: Carries every creation-time spelling the remote ecosystem has been seen to emit.

package foundry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Message roles used by the gateway.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock is one entry of a structured message body.
type ContentBlock struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// Message is a single thread entry as returned by the remote service.
// Messages are treated as immutable: reconciliation reorders and selects
// them but never rewrites fields.
//
// The remote ecosystem is inconsistent about which key carries the
// creation time and whether it is seconds, milliseconds, or a calendar
// string, so every observed spelling is captured as an untyped field and
// resolved by conversation.CreationTimeMs.
type Message struct {
	ID        string `json:"id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`

	Role   string `json:"role,omitempty"`
	Author string `json:"author,omitempty"`
	From   string `json:"from,omitempty"`

	Text    string         `json:"text,omitempty"`
	Content []ContentBlock `json:"content,omitempty"`

	CreatedAt       any `json:"created_at,omitempty"`
	CreatedAtCamel  any `json:"createdAt,omitempty"`
	CreateTime      any `json:"create_time,omitempty"`
	CreateTimeCamel any `json:"createTime,omitempty"`
	Created         any `json:"created,omitempty"`
	Timestamp       any `json:"timestamp,omitempty"`
}

// BodyText returns the plain-text body: the text field when present,
// otherwise the concatenated text content blocks.
func (m Message) BodyText() string {
	if m.Text != "" {
		return m.Text
	}
	var parts []string
	for _, block := range m.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// appendMessageRequest is the wire shape for posting a message.
type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AppendMessage posts a message to the thread and returns the stored entry.
// There is no idempotency key: retrying after a transport error may
// duplicate the message remotely.
func (c *Client) AppendMessage(ctx context.Context, threadID, role, text string) (*Message, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id required")
	}

	var msg Message
	payload := appendMessageRequest{Role: role, Content: text}
	if err := c.doRequest(ctx, http.MethodPost, "/threads/"+threadID+"/messages", nil, payload, &msg); err != nil {
		return nil, err
	}
	c.logger.Debug("message appended", "thread_id", threadID, "role", role)
	return &msg, nil
}

// messageList is the service's list envelope.
type messageList struct {
	Data []Message `json:"data"`
}

// ListMessages returns the thread history in ascending creation order as
// reported by the remote service.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id required")
	}

	query := url.Values{"order": {"asc"}}
	var list messageList
	if err := c.doRequest(ctx, http.MethodGet, "/threads/"+threadID+"/messages", query, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}
