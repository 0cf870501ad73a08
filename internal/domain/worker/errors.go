package worker

import "fmt"

// FloodWaitError signals an upstream rate-limit; the worker sets
// rate_limit_until and re-enqueues without counting it as a failure.
type FloodWaitError struct {
	RetrySeconds int
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %ds", e.RetrySeconds)
}

// ForbiddenError means the bot lacks permission to post; terminal, no retry.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return "forbidden: " + e.Reason }

// BadRequestError means the request was malformed; the worker attempts one
// degraded resend (no entities, no attributes) before treating it as terminal.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string { return "bad request: " + e.Reason }

// NotFoundError on a delete means the destination message is already gone;
// swallowed as success.
type NotFoundError struct{}

func (e *NotFoundError) Error() string { return "destination message not found" }

// NotModifiedError on an edit means the edit was a no-op; swallowed as success.
type NotModifiedError struct{}

func (e *NotModifiedError) Error() string { return "message not modified" }

// NetworkError is a transient transport hiccup; retried up to MaxRetries.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }
