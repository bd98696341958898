package app

import "fmt"

// DomainError carries a stable machine-readable code alongside the HTTP
// status it maps to. Codes are part of the external interface and are
// never retried automatically by this layer.
type DomainError struct {
	Status int
	Code   string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Code)
}

func domainError(status int, code string) *DomainError {
	return &DomainError{Status: status, Code: code}
}
