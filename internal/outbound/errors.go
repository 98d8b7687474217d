package outbound

import "errors"

// Domain errors for the outbound package.
var (
	// ErrUnsupportedScheme is returned when no requester handles the URL scheme.
	ErrUnsupportedScheme = errors.New("outbound: unsupported scheme")

	// ErrInvalidURL is returned when the request URL cannot be parsed.
	ErrInvalidURL = errors.New("outbound: invalid url")

	// ErrRequestFailed is returned when the device rejects or does not answer a request.
	ErrRequestFailed = errors.New("outbound: request failed")
)
