package ingest

import "errors"

var (
	// ErrInvalidTopic is returned for a value topic that does not name a channel.
	ErrInvalidTopic = errors.New("ingest: invalid value topic")

	// ErrInvalidPayload is returned when a value payload is not a number
	// or {"value": n}.
	ErrInvalidPayload = errors.New("ingest: invalid value payload")

	// ErrInvalidChannel is returned when device or channel IDs are not alphanumeric.
	ErrInvalidChannel = errors.New("ingest: invalid channel")
)
