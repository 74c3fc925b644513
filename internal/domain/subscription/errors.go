package subscription

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	// ErrSignature marks a webhook whose signature did not verify.
	ErrSignature = errors.New("signature verification failed")
	// ErrMissingSubscription marks a checkout session that does not carry
	// its subscription yet.
	ErrMissingSubscription = errors.New("subscription not available yet")
)

func IsErrNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsErrUnauthorized(err error) bool        { return errors.Is(err, ErrUnauthorized) }
func IsErrBadRequest(err error) bool          { return errors.Is(err, ErrBadRequest) }
func IsErrSignature(err error) bool           { return errors.Is(err, ErrSignature) }
func IsErrMissingSubscription(err error) bool { return errors.Is(err, ErrMissingSubscription) }
