package domain

import (
	"errors"
	"fmt"
)

// ErrorKind groups failures by where they originate
type ErrorKind string

const (
	KindProtocol   ErrorKind = "protocol"
	KindValidation ErrorKind = "validation"
	KindProvider   ErrorKind = "provider"
	KindAuth       ErrorKind = "auth"
	KindUpstream   ErrorKind = "upstream"
	KindStorage    ErrorKind = "storage"
)

// ErrorCode is the machine-readable code reported to clients
type ErrorCode string

const (
	CodeInvalidEncoding       ErrorCode = "invalid_encoding"
	CodeMissingFields         ErrorCode = "missing_fields"
	CodeUnknownType           ErrorCode = "unknown_type"
	CodeInvalidPayload        ErrorCode = "invalid_payload"
	CodeEmptyMessage          ErrorCode = "empty_message"
	CodeMissingID             ErrorCode = "missing_id"
	CodeBusy                  ErrorCode = "busy"
	CodeRateLimited           ErrorCode = "rate_limited"
	CodeProviderNotConfigured ErrorCode = "provider_not_configured"
	CodeUnknownProvider       ErrorCode = "unknown_provider"
	CodeMissingCredential     ErrorCode = "missing_credential"
	CodeAuthFailed            ErrorCode = "auth_failed"
	CodeUpstream              ErrorCode = "upstream_error"
	CodeCancelled             ErrorCode = "cancelled"
	CodeStorage               ErrorCode = "storage_error"
	CodeNotFound              ErrorCode = "not_found"
	CodeInternal              ErrorCode = "internal"
)

// Error is a typed failure carrying a human-readable message
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidEncoding       = &Error{Kind: KindProtocol, Code: CodeInvalidEncoding, Message: "Invalid message format"}
	ErrMissingFields         = &Error{Kind: KindProtocol, Code: CodeMissingFields, Message: "Missing required fields: type and timestamp"}
	ErrUnknownType           = &Error{Kind: KindProtocol, Code: CodeUnknownType, Message: "Unknown message type"}
	ErrInvalidPayload        = &Error{Kind: KindValidation, Code: CodeInvalidPayload, Message: "Invalid payload"}
	ErrEmptyMessage          = &Error{Kind: KindValidation, Code: CodeEmptyMessage, Message: "Empty message text"}
	ErrMissingID             = &Error{Kind: KindValidation, Code: CodeMissingID, Message: "Missing conversationId"}
	ErrBusy                  = &Error{Kind: KindValidation, Code: CodeBusy, Message: "Request already in progress"}
	ErrRateLimited           = &Error{Kind: KindValidation, Code: CodeRateLimited, Message: "Too many messages, slow down"}
	ErrProviderNotConfigured = &Error{Kind: KindProvider, Code: CodeProviderNotConfigured, Message: "No LLM provider configured"}
	ErrUnknownProvider       = &Error{Kind: KindProvider, Code: CodeUnknownProvider, Message: "Unknown provider"}
	ErrMissingCredential     = &Error{Kind: KindProvider, Code: CodeMissingCredential, Message: "Missing API key"}
	ErrStreamCancelled       = &Error{Kind: KindUpstream, Code: CodeCancelled, Message: "Stream cancelled"}
	ErrNotFound              = &Error{Kind: KindStorage, Code: CodeNotFound, Message: "Not found"}
)

// NewError builds an *Error with a formatted message
func NewError(kind ErrorKind, code ErrorCode, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new *Error
func Wrap(kind ErrorKind, code ErrorCode, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func UnknownType(t string) *Error {
	return NewError(KindProtocol, CodeUnknownType, "Unknown message type: %s", t)
}

func UnknownProvider(id string) *Error {
	return NewError(KindProvider, CodeUnknownProvider, "Unknown provider: %s", id)
}

func MissingCredential(id string) *Error {
	return NewError(KindProvider, CodeMissingCredential, "Missing API key for provider: %s", id)
}

func InvalidPayload(err error) *Error {
	return Wrap(KindValidation, CodeInvalidPayload, "Invalid payload", err)
}

func StorageError(message string, err error) *Error {
	return Wrap(KindStorage, CodeStorage, message, err)
}

func UpstreamError(err error) *Error {
	return Wrap(KindUpstream, CodeUpstream, "Upstream stream failed", err)
}

// AuthError reports a failed bearer-token exchange with the upstream
// response that caused it.
type AuthError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s token exchange failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s token exchange failed: status %d: %s", e.Provider, e.Status, e.Body)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Classify converts any error into an *Error suitable for a client reply.
// AuthError surfaces as a provider failure.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return Wrap(KindAuth, CodeAuthFailed, fmt.Sprintf("Authentication with provider %s failed", authErr.Provider), err)
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(KindUpstream, CodeInternal, "Internal error", err)
}

// ClientMessage is the text shown to the client. Upstream failures include
// their cause; storage and internal failures do not leak details.
func (e *Error) ClientMessage() string {
	switch e.Kind {
	case KindUpstream, KindAuth:
		if e.Err != nil && e.Code != CodeInternal {
			return e.Message + ": " + e.Err.Error()
		}
	}
	return e.Message
}
