package stores

import "errors"

var (
	// ErrUnavailable wraps backend failures (network, timeouts, unexpected replies).
	ErrUnavailable = errors.New("account store unavailable")
	// ErrCorruptRecord reports a stored account that cannot be decoded.
	ErrCorruptRecord = errors.New("account record corrupt")
)
