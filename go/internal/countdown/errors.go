package countdown

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDuration = errors.New("duration must be a non-negative whole number of seconds")
	ErrDurationTooLong = errors.New("duration exceeds maximum")
	ErrRegistryClosed  = errors.New("countdown registry closed")
)

// ValidateDuration checks a requested countdown length. A zero duration is valid and
// completes immediately.
func ValidateDuration(seconds, maxSeconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, seconds)
	}
	if maxSeconds > 0 && seconds > maxSeconds {
		return fmt.Errorf("%w: %d > %d", ErrDurationTooLong, seconds, maxSeconds)
	}
	return nil
}
