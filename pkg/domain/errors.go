package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies mutation failures.
type ErrorKind string

// Mutation failure kinds.
const (
	ErrorInvariantViolation ErrorKind = "InvariantViolation"
	ErrorNetworkFailure     ErrorKind = "NetworkFailure"
	ErrorTimeout            ErrorKind = "Timeout"
	ErrorPartialUpload      ErrorKind = "PartialUploadFailure"
	ErrorNotFound           ErrorKind = "NotFound"
	ErrorUnreadableAsset    ErrorKind = "UnreadableAsset"
)

// Sentinels matched by MutationError.Is.
var (
	ErrInvariantViolation = errors.New("invariant violation")
	ErrNetworkFailure     = errors.New("network failure")
	ErrTimeout            = errors.New("remote call timed out")
	ErrPartialUpload      = errors.New("partial upload failure")
	ErrNotFound           = errors.New("entity not found")
	ErrUnreadableAsset    = errors.New("asset could not be read")
)

var kindSentinels = map[ErrorKind]error{
	ErrorInvariantViolation: ErrInvariantViolation,
	ErrorNetworkFailure:     ErrNetworkFailure,
	ErrorTimeout:            ErrTimeout,
	ErrorPartialUpload:      ErrPartialUpload,
	ErrorNotFound:           ErrNotFound,
	ErrorUnreadableAsset:    ErrUnreadableAsset,
}

// MutationError reports why a mutation or upload did not apply.
type MutationError struct {
	Kind       ErrorKind
	Ref        EntityRef
	Reason     string
	Violations []Violation
	Cause      error
}

func (e *MutationError) Error() string {
	msg := kindSentinels[e.Kind].Error()
	if e.Ref.ID != "" {
		msg += " on " + e.Ref.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *MutationError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of the error's kind.
func (e *MutationError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// UserMessage returns the human readable reason surfaced through a Notifier.
func (e *MutationError) UserMessage() string {
	if e.Reason != "" {
		return e.Reason
	}
	var remote *RemoteError
	if errors.As(e.Cause, &remote) && remote.Message != "" {
		return remote.Message
	}
	switch e.Kind {
	case ErrorTimeout:
		return "The server took too long to respond. Your change was reverted."
	case ErrorNotFound:
		return "That item could not be found."
	case ErrorPartialUpload:
		return "The upload did not complete. Please try again."
	case ErrorUnreadableAsset:
		return "The image could not be read."
	default:
		return "Something went wrong. Try refreshing?"
	}
}

// InvariantViolation builds an invariant error from blocking violations.
func InvariantViolation(ref EntityRef, res Result) *MutationError {
	reason := ""
	for _, v := range res.Violations {
		if v.Severity == SeverityBlock {
			reason = v.Message
			break
		}
	}
	return &MutationError{Kind: ErrorInvariantViolation, Ref: ref, Reason: reason, Violations: res.Violations}
}

// NetworkFailure wraps a remote error.
func NetworkFailure(ref EntityRef, cause error) *MutationError {
	return &MutationError{Kind: ErrorNetworkFailure, Ref: ref, Cause: cause}
}

// Timeout reports a remote call that did not finish in time.
func Timeout(ref EntityRef, cause error) *MutationError {
	return &MutationError{Kind: ErrorTimeout, Ref: ref, Cause: cause}
}

// NotFound reports a missing entity or relation item.
func NotFound(ref EntityRef, reason string) *MutationError {
	return &MutationError{Kind: ErrorNotFound, Ref: ref, Reason: reason}
}

// PartialUpload reports a transfer where not every variant succeeded.
func PartialUpload(ref EntityRef, cause error) *MutationError {
	return &MutationError{Kind: ErrorPartialUpload, Ref: ref, Cause: cause}
}

// UnreadableAsset reports an uploaded file the pipeline could not decode.
func UnreadableAsset(ref EntityRef, cause error) *MutationError {
	return &MutationError{Kind: ErrorUnreadableAsset, Ref: ref, Cause: cause}
}

// KindOf returns the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var merr *MutationError
	if errors.As(err, &merr) {
		return merr.Kind, true
	}
	return "", false
}

// RemoteError is a non-success response from the remote API.
type RemoteError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote returned %d", e.Status)
}
