package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveSession is returned when an operation targets a channel with
	// no active quiz.
	ErrNoActiveSession = errors.New("no active quiz session")
	// ErrAlreadyAttempted is returned in multi mode when a user submits a
	// second answer for the same question.
	ErrAlreadyAttempted = errors.New("user already attempted this question")
	// ErrInvalidQuestionIndex is returned when a submission references a
	// question index outside the session's question list.
	ErrInvalidQuestionIndex = errors.New("invalid question index")
	// ErrNotCreator is returned when a solo-mode pacing operation is invoked
	// by someone other than the session creator.
	ErrNotCreator = errors.New("only the quiz creator may do that")
)

// ValidationError reports bad caller input. The message is safe to return to
// the caller verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failed durable write. Read failures never produce a
// StorageError; they degrade to "no session" semantics instead.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// GenerationErrorKind classifies question-generation failures for user-facing
// messaging and for the retry policy.
type GenerationErrorKind string

const (
	GenerationQuota       GenerationErrorKind = "quota"
	GenerationTimeout     GenerationErrorKind = "timeout"
	GenerationUnavailable GenerationErrorKind = "unavailable"
	GenerationPermission  GenerationErrorKind = "permission"
	GenerationMalformed   GenerationErrorKind = "malformed"
	GenerationUnknown     GenerationErrorKind = "unknown"
)

// GenerationError is a classified failure from the question source. Permanent
// errors are never retried regardless of kind.
type GenerationError struct {
	Kind      GenerationErrorKind
	Cause     string
	Permanent bool
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation %s: %s", e.Kind, e.Cause)
	}
	return fmt.Sprintf("generation %s: %s: %v", e.Kind, e.Cause, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// UserMessage maps the classification to a short message suitable for the
// messaging gateway to render.
func (e *GenerationError) UserMessage() string {
	switch e.Kind {
	case GenerationQuota:
		return "Question service quota exceeded. Please try again later."
	case GenerationTimeout:
		return "Question service took too long to respond. Please try again."
	case GenerationUnavailable:
		return "Question service is temporarily unavailable. Please try again in a few minutes."
	case GenerationPermission:
		return "Question service access denied. Check the API key configuration."
	case GenerationMalformed:
		return "Received an invalid response from the question service. Please try again."
	default:
		return "An unexpected error occurred while generating questions. Please try again."
	}
}
