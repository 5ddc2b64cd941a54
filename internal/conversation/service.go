// ABOUTME: Conversation service orchestrating the append-message, create-run, poll-to-terminal protocol.
// ABOUTME: Sends are recorded to the run ledger before any remote write - record first, then act.

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjwyz/aqpMcp/internal/foundry"
	"github.com/tjwyz/aqpMcp/internal/store"
)

// Poll defaults applied when the config leaves them unset.
const (
	DefaultPollInterval = 1 * time.Second
	DefaultRunTimeout   = 120 * time.Second
)

// ErrEmptyMessage rejects a send whose message is empty or whitespace-only.
// The check runs before any remote call.
var ErrEmptyMessage = errors.New("message must not be empty")

// RunFailedError reports a run that reached the failed terminal state,
// carrying the remote-provided error payload.
type RunFailedError struct {
	RunID   string
	Code    string
	Message string
}

func (e *RunFailedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("run %s failed: %s: %s", e.RunID, e.Code, e.Message)
	}
	return fmt.Sprintf("run %s failed: %s", e.RunID, e.Message)
}

// AgentClient defines what the service needs from the remote agent service.
type AgentClient interface {
	CreateThread(ctx context.Context) (*foundry.Thread, error)
	AppendMessage(ctx context.Context, threadID, role, text string) (*foundry.Message, error)
	CreateRun(ctx context.Context, threadID, agentID string) (*foundry.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*foundry.Run, error)
	ListMessages(ctx context.Context, threadID string) ([]foundry.Message, error)
}

// RunLog defines what the service needs from storage.
type RunLog interface {
	RecordSend(ctx context.Context, rec *store.SendRecord) error
	RecordOutcome(ctx context.Context, id string, out *store.OutcomeRecord) error
}

// PollConfig tunes the run polling loop. Zero values fall back to the
// package defaults.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Service drives conversations against the remote agent service. Each
// AppendAndRun call is strictly ordered internally; concurrent calls
// against the same thread are not coordinated and may interleave remote
// state, which callers have to avoid themselves.
type Service struct {
	client AgentClient
	runLog RunLog
	logger *slog.Logger

	pollInterval time.Duration
	timeout      time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a conversation service.
func New(client AgentClient, runLog RunLog, poll PollConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if poll.Interval <= 0 {
		poll.Interval = DefaultPollInterval
	}
	if poll.Timeout <= 0 {
		poll.Timeout = DefaultRunTimeout
	}
	return &Service{
		client:       client,
		runLog:       runLog,
		logger:       logger.With("component", "conversation"),
		pollInterval: poll.Interval,
		timeout:      poll.Timeout,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// RunOutcome is the result of one append-and-run invocation. Status may be
// non-terminal: when the polling budget runs out the last observed status
// is returned as-is and callers must inspect it.
type RunOutcome struct {
	ThreadID string
	RunID    string
	Status   foundry.RunStatus
}

// EnsureThread returns the given thread id unchanged, or creates a fresh
// remote thread when none is supplied.
func (s *Service) EnsureThread(ctx context.Context, threadID string) (string, error) {
	if threadID != "" {
		return threadID, nil
	}
	thread, err := s.client.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	s.logger.Debug("thread created", "thread_id", thread.ID)
	return thread.ID, nil
}

// AppendAndRun appends message to the thread as a user entry, starts a run
// of the agent, and polls until the run leaves the queued/in_progress
// states or the polling budget elapses.
//
// A timeout is not an error: the outcome carries the last observed
// non-terminal status. A failed run returns *RunFailedError with the
// remote error payload. Neither the append nor the run creation carries an
// idempotency key, so retrying after a transport error may duplicate
// remote side effects.
func (s *Service) AppendAndRun(ctx context.Context, threadID, agentID, message string) (*RunOutcome, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	if agentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}

	// Record the send before touching the remote service so there is a
	// local trace even when the append fails.
	recordID := uuid.New().String()
	s.recordSend(&store.SendRecord{
		ID:        recordID,
		ThreadID:  threadID,
		AgentID:   agentID,
		Message:   message,
		CreatedAt: s.now(),
	})

	start := s.now()

	if _, err := s.client.AppendMessage(ctx, threadID, foundry.RoleUser, message); err != nil {
		s.recordOutcome(recordID, "", "", err)
		return nil, fmt.Errorf("appending message: %w", err)
	}

	run, err := s.client.CreateRun(ctx, threadID, agentID)
	if err != nil {
		s.recordOutcome(recordID, "", "", err)
		return nil, fmt.Errorf("starting run: %w", err)
	}

	s.logger.Debug("run started",
		"thread_id", threadID,
		"run_id", run.ID,
		"agent_id", agentID,
		"status", run.Status)

	run, err = s.pollRun(ctx, threadID, run)
	if err != nil {
		s.recordOutcome(recordID, "", "", err)
		return nil, err
	}

	if run.Status == foundry.RunFailed {
		failure := &RunFailedError{RunID: run.ID}
		if run.LastError != nil {
			failure.Code = run.LastError.Code
			failure.Message = run.LastError.Message
		}
		s.recordOutcome(recordID, run.ID, run.Status, failure)
		return nil, failure
	}

	s.recordOutcome(recordID, run.ID, run.Status, nil)
	s.logger.Info("run finished",
		"thread_id", threadID,
		"run_id", run.ID,
		"status", run.Status,
		"elapsed", s.now().Sub(start).Round(time.Millisecond))
	return &RunOutcome{ThreadID: threadID, RunID: run.ID, Status: run.Status}, nil
}

// pollRun reads run status until it leaves the active states or the
// budget elapses. The active check and the deadline check are kept as two
// separate ordered conditions: a poll landing exactly on the deadline
// still returns the freshest observed status instead of a stale one.
func (s *Service) pollRun(ctx context.Context, threadID string, run *foundry.Run) (*foundry.Run, error) {
	deadline := s.now().Add(s.timeout)

	for run.Status.Active() {
		if !s.now().Before(deadline) {
			s.logger.Warn("run polling budget elapsed",
				"thread_id", threadID,
				"run_id", run.ID,
				"status", run.Status)
			return run, nil
		}

		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return nil, fmt.Errorf("polling interrupted: %w", err)
		}

		next, err := s.client.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, fmt.Errorf("polling run: %w", err)
		}
		run = next
	}

	return run, nil
}

// History returns the thread's messages in the order reported by the
// remote service.
func (s *Service) History(ctx context.Context, threadID string) ([]foundry.Message, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	msgs, err := s.client.ListMessages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// MergedHistory fetches each thread's messages and reconciles them into a
// single time-ordered sequence, truncated to the most recent limit entries
// when limit is positive.
func (s *Service) MergedHistory(ctx context.Context, limit int, threadIDs ...string) ([]foundry.Message, error) {
	lists := make([][]foundry.Message, 0, len(threadIDs))
	for _, id := range threadIDs {
		msgs, err := s.History(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("thread %s: %w", id, err)
		}
		lists = append(lists, msgs)
	}
	return MergeThreads(limit, lists...), nil
}

// recordSend writes the outbound record with a detached timeout context so
// a cancelled request cannot lose the trace. Ledger failures are logged
// and never fail the send itself.
func (s *Service) recordSend(rec *store.SendRecord) {
	if s.runLog == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.runLog.RecordSend(saveCtx, rec); err != nil {
		s.logger.Error("failed to record send",
			"error", err,
			"record_id", rec.ID,
			"thread_id", rec.ThreadID)
	}
}

// recordOutcome attaches the run result to a previously recorded send.
func (s *Service) recordOutcome(recordID, runID string, status foundry.RunStatus, failure error) {
	if s.runLog == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := &store.OutcomeRecord{
		RunID:       runID,
		Status:      string(status),
		CompletedAt: s.now(),
	}
	if failure != nil {
		out.Error = failure.Error()
	}
	if err := s.runLog.RecordOutcome(saveCtx, recordID, out); err != nil {
		s.logger.Error("failed to record outcome",
			"error", err,
			"record_id", recordID,
			"run_id", runID)
	}
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
