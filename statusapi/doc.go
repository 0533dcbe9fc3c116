// Package statusapi consumes the remote platform's status service and runs
// the polling state machines that decide when a deploy or upgrade has
// actually completed.
//
// The client applies one explicit retry-with-backoff policy to rate-limited
// requests (initial 1s, doubling per attempt, capped at 30s, honoring a
// server-supplied retry hint, at most 5 retries). The watchers keep their
// state in explicit records rather than closure captures, so they can be
// tested in isolation with injected poll sequences. Transient poll failures
// are logged and retried at the fixed interval; only a Failed lifecycle
// report is terminal.
package statusapi
