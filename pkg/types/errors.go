package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures surfaced to API callers.
type ErrorKind string

const (
	KindUnauthorized            ErrorKind = "unauthorized"
	KindForbidden               ErrorKind = "forbidden"
	KindNotConnected            ErrorKind = "not_connected"
	KindReauthorizationRequired ErrorKind = "reauthorization_required"
	KindTokenRefreshFailed      ErrorKind = "token_refresh_failed"
	KindProviderAPIError        ErrorKind = "provider_api_error"
	KindBotNotInChannel         ErrorKind = "bot_not_in_channel"
	KindEmptyConversation       ErrorKind = "empty_conversation"
	KindEmptyImport             ErrorKind = "empty_import"
	KindProjectNotFound         ErrorKind = "project_not_found"
	KindInvalidRequest          ErrorKind = "invalid_request"
)

// Sentinels for errors.Is. Any *IntegrationError with the same Kind matches.
var (
	ErrUnauthorized            = &IntegrationError{Kind: KindUnauthorized}
	ErrForbidden               = &IntegrationError{Kind: KindForbidden}
	ErrNotConnected            = &IntegrationError{Kind: KindNotConnected}
	ErrReauthorizationRequired = &IntegrationError{Kind: KindReauthorizationRequired}
	ErrTokenRefreshFailed      = &IntegrationError{Kind: KindTokenRefreshFailed}
	ErrProviderAPI             = &IntegrationError{Kind: KindProviderAPIError}
	ErrBotNotInChannel         = &IntegrationError{Kind: KindBotNotInChannel}
	ErrEmptyConversation       = &IntegrationError{Kind: KindEmptyConversation}
	ErrEmptyImport             = &IntegrationError{Kind: KindEmptyImport}
	ErrProjectNotFound         = &IntegrationError{Kind: KindProjectNotFound}
	ErrInvalidRequest          = &IntegrationError{Kind: KindInvalidRequest}
)

// IntegrationError is the structured error returned by the token and import
// paths. Message is safe to show to the end user.
type IntegrationError struct {
	Kind     ErrorKind
	Message  string
	Provider string
	Status   int // Upstream HTTP status for ProviderAPIError, 0 otherwise
	Err      error
}

func (e *IntegrationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

func (e *IntegrationError) Is(target error) bool {
	t, ok := target.(*IntegrationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus maps the error kind to the status returned by the API layer.
func (e *IntegrationError) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized, KindReauthorizationRequired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotConnected, KindProjectNotFound:
		return http.StatusNotFound
	case KindInvalidRequest, KindEmptyConversation, KindEmptyImport, KindBotNotInChannel:
		return http.StatusBadRequest
	case KindTokenRefreshFailed, KindProviderAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewIntegrationError(kind ErrorKind, provider, message string) *IntegrationError {
	return &IntegrationError{Kind: kind, Provider: provider, Message: message}
}

func NewNotConnectedError(provider string) *IntegrationError {
	return &IntegrationError{
		Kind:     KindNotConnected,
		Provider: provider,
		Message:  fmt.Sprintf("%s not connected. Please connect your %s account first.", ProviderDisplayName(provider), ProviderDisplayName(provider)),
	}
}

func NewReauthorizationError(provider string) *IntegrationError {
	return &IntegrationError{
		Kind:     KindReauthorizationRequired,
		Provider: provider,
		Message:  fmt.Sprintf("No refresh token available. Please reconnect your %s account.", ProviderDisplayName(provider)),
	}
}

// NewProviderAPIError wraps a non-2xx upstream response.
func NewProviderAPIError(provider string, status int, message string) *IntegrationError {
	return &IntegrationError{
		Kind:     KindProviderAPIError,
		Provider: provider,
		Status:   status,
		Message:  fmt.Sprintf("%s API error (%d): %s", ProviderDisplayName(provider), status, message),
	}
}

// AsIntegrationError extracts the structured error, if any.
func AsIntegrationError(err error) (*IntegrationError, bool) {
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
