// Package fault defines the error taxonomy shared by the workflow engine and
// the activity runner. Every failure surfaced by a processor step is
// normalized into one of these classes before retry decisions are made.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Class identifies the failure category of a pipeline error.
type Class string

const (
	// ClassConfiguration covers missing pipeline entries, unknown handler
	// keys, output schema violations, and out-of-bounds step indexes.
	ClassConfiguration Class = "configuration"
	// ClassDependency covers a required prior step that did not complete.
	ClassDependency Class = "dependency_not_satisfied"
	// ClassInput covers unsupported mime types, invalid files, and document
	// bytes missing from storage.
	ClassInput Class = "input"
	// ClassCredential covers credentials not resolvable for any scope.
	ClassCredential Class = "credential"
	// ClassTransient covers network errors, timeouts, rate limits, and
	// upstream 5xx responses. Only this class is retryable.
	ClassTransient Class = "transient"
	// ClassCancelled marks a workflow that observed a cancel request.
	ClassCancelled Class = "cancelled"
)

// Error is a classified pipeline failure.
type Error struct {
	Class Class
	msg   string
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the failure may be re-attempted within policy.
func (e *Error) Retryable() bool { return e.Class == ClassTransient }

// Message returns the user-visible message without the class prefix.
func (e *Error) Message() string { return e.msg }

// Configuration builds a non-retryable configuration error.
func Configuration(format string, args ...any) *Error {
	return &Error{Class: ClassConfiguration, msg: fmt.Sprintf(format, args...)}
}

// DependencyNotSatisfied builds a non-retryable dependency error.
func DependencyNotSatisfied(format string, args ...any) *Error {
	return &Error{Class: ClassDependency, msg: fmt.Sprintf(format, args...)}
}

// Input builds a non-retryable input error.
func Input(format string, args ...any) *Error {
	return &Error{Class: ClassInput, msg: fmt.Sprintf(format, args...)}
}

// Credential builds a non-retryable credential error.
func Credential(format string, args ...any) *Error {
	return &Error{Class: ClassCredential, msg: fmt.Sprintf(format, args...)}
}

// Transient builds a retryable error wrapping the cause.
func Transient(cause error, format string, args ...any) *Error {
	return &Error{Class: ClassTransient, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Cancelled builds a cancellation marker error.
func Cancelled(reason string) *Error {
	return &Error{Class: ClassCancelled, msg: reason}
}

// nonRetryableHints match the error strings processors report for failures
// that must not be retried.
var nonRetryableHints = []string{
	"unsupported",
	"invalid file",
	"invalid config",
	"not found",
	"missing dependency",
	"missing configuration",
	"schema",
}

// Classify normalizes an arbitrary error into the taxonomy. Already
// classified errors pass through unchanged; otherwise the message is matched
// against the non-retryable hints and everything else is treated as
// transient.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range nonRetryableHints {
		if strings.Contains(msg, hint) {
			return &Error{Class: ClassInput, msg: err.Error(), cause: err}
		}
	}
	return &Error{Class: ClassTransient, msg: err.Error(), cause: err}
}

// IsRetryable reports whether the error, once classified, may be retried.
func IsRetryable(err error) bool {
	fe := Classify(err)
	return fe != nil && fe.Retryable()
}
