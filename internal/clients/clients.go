// Package clients holds the shared contract bits for external geodata
// provider adapters. Every adapter returns zero polylines, never an error,
// on timeout or empty result; a rate-limit response surfaces as
// ErrRateLimited so batch jobs can back off.
package clients

import (
	"errors"
	"net"
)

// ErrRateLimited is returned by an adapter when the provider answered with
// a rate-limit response (HTTP 429). Callers treat the tier as empty but may
// pause before the next request.
var ErrRateLimited = errors.New("provider rate limited")

// IsTimeout reports whether an HTTP round-trip error was a timeout.
// Adapters treat timeouts identically to empty result sets.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
