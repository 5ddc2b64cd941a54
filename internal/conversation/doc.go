// Package conversation drives conversations against the remote agent
// service and reconciles their message histories.
//
// # Overview
//
// The conversation package sits between the HTTP handlers and the remote
// service client. It owns the two hardest behaviors of the gateway: the
// append-and-run protocol and cross-thread message reconciliation.
//
// # Append and run
//
// AppendAndRun executes one strictly ordered exchange:
//
//  1. Validate the message (empty input never reaches the remote service)
//  2. Record the send in the run ledger
//  3. Append the message to the thread as a user entry
//  4. Start a run of the bound agent
//  5. Poll run status until it leaves queued/in_progress or the budget elapses
//
// A run that is still non-terminal when the budget runs out is returned
// as-is with its last observed status; only a failed run is an error. The
// poll loop has no external cancel beyond the request context, so a
// timed-out remote run keeps executing to its own completion.
//
// # Reconciliation
//
// The reconcilers are pure functions over foundry.Message:
//
//   - CreationTimeMs: infer a creation time from the candidate fields
//   - OrderMessages: stable ascending sort with lexicographic id tie-breaks
//   - MergeThreads: concatenate, order, and optionally keep a recent suffix
//   - LastMessageByRole: most recent entry for a role, scanning from the end
//
// Messages are never mutated; ordering works on copies and selection
// returns references into the input.
//
// # Ledger
//
// Sends are recorded before the first remote write and their outcome
// attached afterwards. Ledger failures are logged, never surfaced: the
// ledger is an audit trail here, not the source of truth the remote
// thread is.
package conversation
