// ABOUTME: Mock RunLog implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockRunLog is an in-memory RunLog implementation for testing.
type MockRunLog struct {
	mu       sync.RWMutex
	sends    map[string]*SendRecord
	outcomes map[string]*OutcomeRecord
}

// NewMockRunLog creates a new MockRunLog.
func NewMockRunLog() *MockRunLog {
	return &MockRunLog{
		sends:    make(map[string]*SendRecord),
		outcomes: make(map[string]*OutcomeRecord),
	}
}

// RecordSend stores a send record.
func (m *MockRunLog) RecordSend(ctx context.Context, rec *SendRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy to avoid external modification
	r := *rec
	m.sends[r.ID] = &r
	return nil
}

// RecordOutcome attaches an outcome to a stored send.
func (m *MockRunLog) RecordOutcome(ctx context.Context, id string, out *OutcomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sends[id]; !ok {
		return ErrNotFound
	}
	o := *out
	m.outcomes[id] = &o
	return nil
}

// RecentRuns lists stored records newest first.
func (m *MockRunLog) RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	records := make([]*RunRecord, 0, len(m.sends))
	for id, send := range m.sends {
		rec := &RunRecord{
			ID:        send.ID,
			ThreadID:  send.ThreadID,
			AgentID:   send.AgentID,
			Message:   send.Message,
			Status:    "pending",
			CreatedAt: send.CreatedAt,
		}
		if out, ok := m.outcomes[id]; ok {
			rec.RunID = out.RunID
			rec.Status = out.Status
			rec.Error = out.Error
			t := out.CompletedAt
			rec.CompletedAt = &t
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close is a no-op.
func (m *MockRunLog) Close() error { return nil }

// Sends returns the recorded send count, for assertions.
func (m *MockRunLog) Sends() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sends)
}
