package services

// Service error taxonomy. Handlers map each type to a stable error code so
// clients can branch on kind rather than message text.

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// InvalidStateError means the operation is not valid for the session's
// current status, e.g. recording a keystroke on a completed session.
type InvalidStateError struct{ Message string }

func (e *InvalidStateError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// FatalError marks a violated invariant the system itself is supposed to
// guarantee, such as a user without a statistics row. It indicates a
// provisioning bug and must not be retried.
type FatalError struct{ Message string }

func (e *FatalError) Error() string { return e.Message }
