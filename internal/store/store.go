// ABOUTME: RunLog interface and record types for gateway persistence.
// ABOUTME: Defines the send/outcome ledger the conversation service writes through.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SendRecord is one outbound send, written before the remote append so a
// local trace exists even when the remote call fails.
type SendRecord struct {
	ID        string
	ThreadID  string
	AgentID   string
	Message   string
	CreatedAt time.Time
}

// OutcomeRecord attaches the run result to a previously recorded send.
type OutcomeRecord struct {
	RunID       string
	Status      string
	Error       string
	CompletedAt time.Time
}

// RunRecord is a send joined with its outcome, as listed back out.
type RunRecord struct {
	ID          string
	ThreadID    string
	AgentID     string
	Message     string
	RunID       string
	Status      string
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// RunLog records sends and their outcomes.
type RunLog interface {
	RecordSend(ctx context.Context, rec *SendRecord) error
	RecordOutcome(ctx context.Context, id string, out *OutcomeRecord) error
	RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	Close() error
}

// NopRunLog discards every write. Used when persistence is disabled by
// configuration.
type NopRunLog struct{}

func (NopRunLog) RecordSend(ctx context.Context, rec *SendRecord) error { return nil }

func (NopRunLog) RecordOutcome(ctx context.Context, id string, out *OutcomeRecord) error {
	return nil
}

func (NopRunLog) RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	return nil, nil
}

func (NopRunLog) Close() error { return nil }
