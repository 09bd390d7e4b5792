package utils

import (
	"fmt"
	"net/http"
)

// CustomError represents a custom application error. It is the sole error
// shape that crosses component boundaries; unrecoverable infrastructure
// failures still use plain errors/panics per the propagation policy.
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *CustomError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// NewBadRequestError covers malformed caller input outside the taxonomy below.
func NewBadRequestError(message string) *CustomError {
	return &CustomError{Code: http.StatusBadRequest, Message: message}
}

// NewInternalServerError covers unrecoverable infrastructure failures surfaced to callers.
func NewInternalServerError(message string) *CustomError {
	return &CustomError{Code: http.StatusInternalServerError, Message: message}
}

// NewTimeoutError corresponds to the Timeout taxonomy entry.
func NewTimeoutError(message string) *CustomError {
	return &CustomError{Code: http.StatusRequestTimeout, Message: message}
}

// NewValidationError corresponds to the InvalidInput taxonomy entry.
func NewValidationError(detail string) *CustomError {
	return &CustomError{Code: http.StatusBadRequest, Message: "invalid input", Detail: detail}
}

// NewEmptyContentError corresponds to the EmptyContent taxonomy entry.
func NewEmptyContentError(detail string) *CustomError {
	return &CustomError{Code: http.StatusUnprocessableEntity, Message: "empty content", Detail: detail}
}

// NewNoContentError corresponds to the NoContent taxonomy entry: chat_with_job
// called against a job with no stored text or markdown to answer against.
func NewNoContentError(detail string) *CustomError {
	return &CustomError{Code: http.StatusUnprocessableEntity, Message: "job has no content", Detail: detail}
}

// NewInvalidURLError corresponds to the InvalidUrl taxonomy entry.
func NewInvalidURLError(detail string) *CustomError {
	return &CustomError{Code: http.StatusBadRequest, Message: "invalid url", Detail: detail}
}

// NewDownstreamUnavailableError corresponds to the DownstreamUnavailable taxonomy entry.
func NewDownstreamUnavailableError(detail string) *CustomError {
	return &CustomError{Code: http.StatusServiceUnavailable, Message: "downstream unavailable", Detail: detail}
}

// NewRateLimitedError corresponds to the RateLimited/Overloaded taxonomy entry.
func NewRateLimitedError(detail string) *CustomError {
	return &CustomError{Code: http.StatusTooManyRequests, Message: "rate limited", Detail: detail}
}

// NewCircuitOpenError corresponds to the CircuitOpen taxonomy entry.
func NewCircuitOpenError(detail string) *CustomError {
	return &CustomError{Code: http.StatusServiceUnavailable, Message: "circuit open", Detail: detail}
}

// NewIllegalTransitionError corresponds to the IllegalTransition taxonomy entry.
func NewIllegalTransitionError(detail string) *CustomError {
	return &CustomError{Code: http.StatusConflict, Message: "illegal status transition", Detail: detail}
}

// NewLLMError covers a failed extraction/chat call to the LLM capability.
func NewLLMError(detail string) *CustomError {
	return &CustomError{Code: http.StatusBadGateway, Message: "LLM processing failed", Detail: detail}
}

// IsCode reports whether err is a *CustomError carrying the given HTTP-style code.
func IsCode(err error, code int) bool {
	ce, ok := err.(*CustomError)
	return ok && ce.Code == code
}
