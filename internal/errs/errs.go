package errs

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Kind categorizes failures of the preview pipeline.
type Kind int

const (
	// Unknown represents an unclassified error.
	Unknown Kind = iota
	// InvalidInput indicates a malformed page path or batch list.
	InvalidInput
	// ConnectionRefused indicates the automation endpoint could not be reached.
	ConnectionRefused
	// ConnectionFailure indicates the endpoint was reached but the connection
	// could not be established, e.g. a rejected WebSocket handshake.
	ConnectionFailure
	// NavigationFailure indicates the page path was rejected by the mini-program.
	NavigationFailure
	// CaptureFailure indicates a screenshot or filesystem error.
	CaptureFailure
	// InspectionFailure indicates page data or element queries failed.
	InspectionFailure
	// CleanupFailure indicates the session could not be released. Logged only.
	CleanupFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case ConnectionRefused:
		return "connection_refused"
	case ConnectionFailure:
		return "connection_failure"
	case NavigationFailure:
		return "navigation_failure"
	case CaptureFailure:
		return "capture_failure"
	case InspectionFailure:
		return "inspection_failure"
	case CleanupFailure:
		return "cleanup_failure"
	default:
		return "unknown"
	}
}

// AppError carries a category, message, original cause and the stack at
// the point the error was classified.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
	Stack   string
}

// New classifies cause under kind and records the caller's stack.
func New(kind Kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Stack:   zap.StackSkip("", 1).String,
	}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the first AppError in err's chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Unknown
}

// StackOf returns the recorded stack of the first AppError in err's chain.
func StackOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Stack
	}
	return ""
}
