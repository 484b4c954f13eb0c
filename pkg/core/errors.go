package core

import (
	"errors"
	"fmt"
)

// Error is the bridge's typed error value.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors by where they are allowed to propagate.
//
// Configuration and authentication errors are rejected at the boundary,
// before any session exists. Transport and AI-service errors terminate only
// the owning session. Persistence errors are logged and swallowed at the
// call site and never reach the audio path.
type ErrorType string

const (
	ErrConfiguration  ErrorType = "configuration_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrTransport      ErrorType = "transport_error"
	ErrAIService      ErrorType = "ai_service_error"
	ErrPersistence    ErrorType = "persistence_error"
)

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string) *Error {
	return &Error{
		Type:    ErrConfiguration,
		Message: message,
	}
}

// NewConfigurationErrorWithParam creates a configuration error naming the
// missing or invalid setting.
func NewConfigurationErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrConfiguration,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewTransportError creates a transport error.
func NewTransportError(message string) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: message,
	}
}

// NewAIServiceError creates an AI service error.
func NewAIServiceError(message string) *Error {
	return &Error{
		Type:    ErrAIService,
		Message: message,
	}
}

// NewPersistenceError creates a persistence error.
func NewPersistenceError(message string) *Error {
	return &Error{
		Type:    ErrPersistence,
		Message: message,
	}
}

// IsType reports whether err is a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}
