package app

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a DomainError. Its value doubles as the wire code.
type Kind string

const (
	KindForbidden      Kind = "FORBIDDEN"
	KindNotFound       Kind = "NOT_FOUND"
	KindInvalidInput   Kind = "INVALID_INPUT"
	KindQuotaExceeded  Kind = "QUOTA_EXCEEDED"
	KindConflict       Kind = "CONFLICT"
	KindStorageFailure Kind = "STORAGE_FAILURE"
	KindRateLimited    Kind = "RATE_LIMITED"
	KindUnauthorized   Kind = "UNAUTHORIZED"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Kind() Kind {
	return Kind(e.Code)
}

func domainError(status int, kind Kind, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    string(kind),
		Message: message,
		Details: details,
	}
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, KindForbidden, message, nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, KindNotFound, message, nil)
}

func invalidInput(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, KindInvalidInput, message, details)
}

func conflict(message string) *DomainError {
	return domainError(http.StatusConflict, KindConflict, message, nil)
}

func unauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, KindUnauthorized, "Unauthorized", nil)
}

// storageFailure never carries the cause; that goes to the log.
func storageFailure() *DomainError {
	return domainError(http.StatusInternalServerError, KindStorageFailure, "Storage failure", nil)
}

// KindOf returns the kind of the first DomainError in err's chain, or "".
func KindOf(err error) Kind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind()
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
