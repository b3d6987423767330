package grading

import "errors"

var (
	// ErrInvalidInput reports caller-supplied data that violates a precondition:
	// an empty candidate answer, zero total possible marks or a malformed id list.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable marks a failed provider attempt. It never escapes
	// ProviderRouter.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrPrecondition reports a component called out of sequence, e.g.
	// summarizing a submission that was never graded.
	ErrPrecondition = errors.New("precondition failed")
)
