package modem

import "errors"

var (
	// ErrNoResponse is returned when the modem did not produce a single
	// byte within the line read deadline. The callers treat this as a
	// transient condition and retry.
	ErrNoResponse = errors.New("no response from modem")

	// ErrIdleTimeout is returned by WaitForLine when the watch window
	// elapsed without any inbound traffic.
	ErrIdleTimeout = errors.New("no traffic within the watch window")

	// ErrNoCoverage is returned by SuperviseRegistration after the
	// backoff attempts are exhausted (about 12 hours without a network).
	ErrNoCoverage = errors.New("no network registration after all backoff attempts")

	// ErrClosed is returned when an operation is attempted on a closed
	// session.
	ErrClosed = errors.New("session closed")
)
