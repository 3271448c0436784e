package service

import (
	"errors"
	"fmt"
)

// Synchronous submission gate errors. The API layer maps these onto HTTP
// statuses; anything that happens after the 202 is reported through the
// notification channel instead.
var (
	ErrRateLimited   = errors.New("too many submissions in the last minute")
	ErrUnauthorized  = errors.New("source object not found for this user")
	ErrJobNotDone    = errors.New("job output is not ready to share")
	ErrOutputMissing = errors.New("job output no longer exists")
)

// ValidationError reports a bad submission parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QuotaError reports a source object larger than its owner's byte budget.
type QuotaError struct {
	DeclaredSize  int64
	CapacityBytes int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("declared size %d exceeds upload capacity %d", e.DeclaredSize, e.CapacityBytes)
}
