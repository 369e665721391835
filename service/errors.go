package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of them, so callers can
// branch with errors.Is without knowing individual wire codes.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrHandleExpired        = errors.New("handle expired")
	ErrUnimplemented        = errors.New("unimplemented")
	ErrInvalidIdentityToken = errors.New("invalid identity token")
)

// Wire error codes.
const (
	CodeQueueDoesNotExist            = "QueueDoesNotExist"
	CodeQueueAlreadyExists           = "QueueAlreadyExists"
	CodeUnsupportedAttribute         = "UnsupportedAttribute"
	CodeInvalidAttributeName         = "InvalidAttributeName"
	CodeInvalidAttributeValue        = "InvalidAttributeValue"
	CodeInvalidFifoQueue             = "InvalidFifoQueue"
	CodeMissingParameter             = "MissingParameter"
	CodeInvalidParameterValue        = "InvalidParameterValue"
	CodeReceiptHandleIsInvalid       = "ReceiptHandleIsInvalid"
	CodeMessageHandleExpired         = "MessageHandleExpired"
	CodeEmptyBatchRequest            = "EmptyBatchRequest"
	CodeTooManyEntriesInBatchRequest = "TooManyEntriesInBatchRequest"
	CodeBatchEntryIdsNotDistinct     = "BatchEntryIdsNotDistinct"
	CodeInvalidBatchEntryId          = "InvalidBatchEntryId"
	CodeBatchRequestTooLong          = "BatchRequestTooLong"
	CodeUnimplemented                = "Unimplemented"
	CodeInvalidIdentityToken         = "InvalidIdentityToken"
	CodeInternalFailure              = "InternalFailure"
)

// Error is a domain error that the protocol layer renders as a sender fault.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Unwrap returns the error kind.
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the domain error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func errNoSuchQueue() *Error {
	return newError(ErrNotFound, CodeQueueDoesNotExist, "The specified queue does not exist.")
}

func errQueueAlreadyExists(attr string) *Error {
	return newError(ErrConflict, CodeQueueAlreadyExists,
		"A queue already exists with the same name and a different value for attribute %s", attr)
}

func errUnsupportedAttribute(name string) *Error {
	return newError(ErrInvalidArgument, CodeUnsupportedAttribute, "Unknown Attribute %s.", name)
}

func errInvalidAttributeValue(name string, reason error) *Error {
	return newError(ErrInvalidArgument, CodeInvalidAttributeValue, "Invalid value for the parameter %s: %v", name, reason)
}

func errInvalidFifoQueue(format string, args ...any) *Error {
	return newError(ErrInvalidArgument, CodeInvalidFifoQueue, format, args...)
}

func errMissingParameter(name string) *Error {
	return newError(ErrInvalidArgument, CodeMissingParameter, "The request must contain the parameter %s.", name)
}

func errInvalidParameter(format string, args ...any) *Error {
	return newError(ErrInvalidArgument, CodeInvalidParameterValue, format, args...)
}

func errReceiptHandleInvalid(handle string) *Error {
	return newError(ErrInvalidArgument, CodeReceiptHandleIsInvalid, "The input receipt handle %q is not a valid receipt handle.", handle)
}

func errHandleExpired() *Error {
	return newError(ErrHandleExpired, CodeMessageHandleExpired,
		"The receipt handle has expired: the message was received again or its visibility timeout elapsed.")
}

func errUnimplemented(format string, args ...any) *Error {
	return newError(ErrUnimplemented, CodeUnimplemented, format, args...)
}

func errInvalidIdentityToken(format string, args ...any) *Error {
	return newError(ErrInvalidIdentityToken, CodeInvalidIdentityToken, format, args...)
}
