package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device ID that is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrChannelNotFound is returned when a device does not declare the channel.
	ErrChannelNotFound = errors.New("device: channel not found")

	// ErrInvalidDevice is returned when a device definition fails validation.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidTemplate is returned when an address template is malformed.
	ErrInvalidTemplate = errors.New("device: invalid address template")
)
