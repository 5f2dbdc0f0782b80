package consumer

import (
	"errors"
	"time"
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the runner halts the stream instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryDelay returns the wait before retry attempt n (1-based): one second
// doubled per attempt, capped at five minutes.
func RetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	if attempt > 10 {
		return 5 * time.Minute
	}
	delay := time.Second << (attempt - 1)
	if delay > 5*time.Minute {
		return 5 * time.Minute
	}
	return delay
}
