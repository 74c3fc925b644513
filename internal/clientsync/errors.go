package clientsync

import "errors"

var (
	// ErrBusy is returned while a booking submission is still in flight.
	ErrBusy = errors.New("booking in progress")
	// ErrTransient covers dropped connections and failed fetches. Callers
	// retry with backoff.
	ErrTransient = errors.New("transient failure")

	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

func IsErrBusy(err error) bool      { return errors.Is(err, ErrBusy) }
func IsErrTransient(err error) bool { return errors.Is(err, ErrTransient) }
func IsErrConflict(err error) bool  { return errors.Is(err, ErrConflict) }
