package domain

import "errors"

// Run-level error taxonomy. Each sentinel maps to one failure kind stored on
// the run row and surfaced through the API.
var (
	// ErrDataUnavailable means no market snapshot exists for the ticker.
	// Terminal and never retried: stale analysis is worse than no analysis.
	ErrDataUnavailable = errors.New("no market snapshot available")

	// ErrAgentTimeout means a role exceeded its deadline. Degrades the slot
	// in the parallel fan-out; terminal for single-point stages.
	ErrAgentTimeout = errors.New("agent deadline exceeded")

	// ErrMalformedOutput means structured-output validation failed. Terminal
	// and never auto-retried: a schema mismatch is systemic, not transient.
	ErrMalformedOutput = errors.New("malformed agent output")

	// ErrConflict means a decision was attempted on an already-decided memo.
	ErrConflict = errors.New("memo already decided")

	// ErrRunCancelled means the run was cancelled externally. No memo is
	// persisted for a cancelled run.
	ErrRunCancelled = errors.New("run cancelled")

	ErrNotFound      = errors.New("not found")
	ErrWatchlistFull = errors.New("watchlist limit reached")
	ErrDuplicate     = errors.New("already exists")
	ErrUnauthorized  = errors.New("invalid credentials")
)

const (
	ErrorKindDataUnavailable = "DataUnavailable"
	ErrorKindAgentTimeout    = "AgentTimeout"
	ErrorKindMalformedOutput = "MalformedOutput"
	ErrorKindCancelled       = "Cancelled"
	ErrorKindStuckRun        = "StuckRun"
	ErrorKindInternal        = "Internal"
)

// ErrorKind classifies a run failure for persistence and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataUnavailable):
		return ErrorKindDataUnavailable
	case errors.Is(err, ErrAgentTimeout):
		return ErrorKindAgentTimeout
	case errors.Is(err, ErrMalformedOutput):
		return ErrorKindMalformedOutput
	case errors.Is(err, ErrRunCancelled):
		return ErrorKindCancelled
	default:
		return ErrorKindInternal
	}
}
