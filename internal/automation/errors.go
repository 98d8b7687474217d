package automation

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrDeviceNotRegistered) {
//	    // rule references an unknown device
//	}
var (
	// ErrAutomationNotFound is returned when an automation ID does not exist.
	ErrAutomationNotFound = errors.New("automation: not found")

	// ErrDeviceNotRegistered is returned when a rule references an unknown device.
	ErrDeviceNotRegistered = errors.New("automation: device not registered")

	// ErrChannelNotRegistered is returned when a rule references a channel the
	// device does not declare.
	ErrChannelNotRegistered = errors.New("automation: channel not registered")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("automation: store closed")
)

// RegistrationError reports the first channel of a rule (or session) that
// could not be resolved against the device registry.
type RegistrationError struct {
	Channel rule.Channel
	Err     error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Channel)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
