package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks malformed input: bad code format, count out of range, bad date
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized marks a missing, invalid or expired token
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredential marks a password that does not match
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrNotFound marks a missing coupon, company or operator
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed marks a coupon that was redeemed before
	ErrAlreadyUsed = errors.New("coupon already used")
	// ErrGenerationExhausted marks a code that stayed colliding after every retry
	ErrGenerationExhausted = errors.New("coupon code generation exhausted")
)

// AlreadyUsedError carries the time of the original redemption
type AlreadyUsedError struct {
	Code   string
	UsedAt time.Time
}

func (e *AlreadyUsedError) Error() string {
	return fmt.Sprintf("coupon %s already used at %s", e.Code, e.UsedAt.Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrAlreadyUsed) match
func (e *AlreadyUsedError) Is(target error) bool {
	return target == ErrAlreadyUsed
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
