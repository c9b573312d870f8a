package cms

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by every backend. Backends wrap them with context
// using fmt.Errorf("...: %w", ErrX) so callers can branch with errors.Is.
var (
	// ErrNotConfigured means a required store binding is absent.
	ErrNotConfigured = errors.New("store not configured")

	// ErrNotFound means a working item or remote file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRemoteEmpty means a remote directory does not exist. It is a valid
	// empty listing, not a failure.
	ErrRemoteEmpty = errors.New("remote directory empty")

	// ErrConflict means a remote write carried a stale or missing revision token.
	ErrConflict = errors.New("revision conflict")

	// ErrUnauthorized is the only error a permission denial ever returns.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemoteDenied means the remote store refused an authenticated
	// request, typically a token lacking access to the repository. It is
	// never a Permission Gate decision.
	ErrRemoteDenied = errors.New("remote store denied access")

	// ErrTransport means a network call to one of the stores failed or timed out.
	ErrTransport = errors.New("transport error")

	// ErrRateLimited means the remote store asked the caller to back off.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput means the request itself is malformed.
	ErrInvalidInput = errors.New("invalid input")
)

// RateLimitError carries the back-off the remote store asked for. It matches
// ErrRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the back-off recorded in err, or 0.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Kind is a stable, machine-checkable error classification.
type Kind string

const (
	KindNone          Kind = ""
	KindNotConfigured Kind = "not_configured"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindUnauthorized  Kind = "unauthorized"
	KindRemoteDenied  Kind = "remote_denied"
	KindTransport     Kind = "transport"
	KindRateLimited   Kind = "rate_limited"
	KindInvalidInput  Kind = "invalid_input"
	KindInternal      Kind = "internal"
)

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRemoteEmpty):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrRemoteDenied):
		return KindRemoteDenied
	case errors.Is(err, ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransport
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// Retryable reports whether re-invoking the failed operation may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindTransport, KindRateLimited:
		return true
	default:
		return false
	}
}

// Step names one store interaction inside a transition.
type Step string

const (
	StepAuthorize      Step = "authorize"
	StepValidate       Step = "validate"
	StepReadWorking    Step = "read-working"
	StepWriteWorking   Step = "write-working"
	StepDeleteWorking  Step = "delete-working"
	StepReadRemote     Step = "read-remote"
	StepWriteRemote    Step = "write-remote"
	StepDeleteRemote   Step = "delete-remote"
	StepListRemote     Step = "list-remote"
	StepReadMetadata   Step = "read-metadata"
	StepWriteMetadata  Step = "write-metadata"
	StepDeleteMetadata Step = "delete-metadata"
	StepMirror         Step = "mirror"
)

// StepError reports which step of a multi-store operation failed, so the caller
// can judge whether the partial state is safe to leave.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// stepErr wraps err with the failing step. A nil err stays nil.
func stepErr(step Step, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}

// FailedStep returns the step recorded in err, or "" when there is none.
func FailedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
