package queue

import "errors"

var (
	// ErrEmpty is returned when a dead-letter lookup finds nothing.
	ErrEmpty = errors.New("queue: no such task")
	// ErrLeaseHeld reports that another worker owns the key.
	ErrLeaseHeld = errors.New("queue: lease held by another worker")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The task is dead-lettered on
// the first failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
