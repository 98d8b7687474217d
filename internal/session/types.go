package session

import (
	"errors"
	"strconv"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

var (
	// ErrUnknownChannel is returned on the first turn when the channel's
	// device or channel is not registered.
	ErrUnknownChannel = errors.New("session: unknown device or channel")

	// ErrNoValue is returned when an inbound message carries no value.
	ErrNoValue = errors.New("session: no value provided")

	// ErrClosed is returned by Next after the session reached Closed.
	ErrClosed = errors.New("session: closed")
)

// State is the lifecycle state of a session.
type State string

const (
	StateOpening State = "opening"
	StateActive  State = "active"
	StateClosed  State = "closed"
)

// ResponseKind names a message the hub sends on a session.
type ResponseKind string

const (
	// ResponseNone means nothing is sent this turn.
	ResponseNone ResponseKind = ""
	// ResponseUpdateMe asks the device to send every change of the channel.
	ResponseUpdateMe ResponseKind = "updateMe"
	// ResponseUpdate carries a value an automation set on the channel.
	ResponseUpdate ResponseKind = "update"
	// ResponseNotRequired tells the device the channel can be closed.
	ResponseNotRequired ResponseKind = "notRequired"
	// ResponseReconnect asks the device to reopen the session soon.
	ResponseReconnect ResponseKind = "reconnect"
)

// Response is the outcome of one turn.
type Response struct {
	Kind  ResponseKind
	Value float64
}

// None is the empty response.
var None = Response{}

// Update returns an update(value) response.
func Update(v float64) Response { return Response{Kind: ResponseUpdate, Value: v} }

// IsNone reports whether nothing should be sent.
func (r Response) IsNone() bool { return r.Kind == ResponseNone }

// Terminal reports whether the session ends after this response.
func (r Response) Terminal() bool {
	return r.Kind == ResponseNotRequired || r.Kind == ResponseReconnect
}

// Wire returns the frame payload: the bare number for update, the kind
// name otherwise.
func (r Response) Wire() string {
	if r.Kind == ResponseUpdate {
		return strconv.FormatFloat(r.Value, 'g', -1, 64)
	}
	return string(r.Kind)
}

func (r Response) String() string {
	switch r.Kind {
	case ResponseNone:
		return "none"
	case ResponseUpdate:
		return "update(" + r.Wire() + ")"
	default:
		return string(r.Kind)
	}
}

// EventKind names what happened on a session.
type EventKind string

const (
	// EventOpened is the first turn of a session.
	EventOpened EventKind = "opened"
	// EventMessage is an inbound frame from the device.
	EventMessage EventKind = "message"
	// EventNotified follows a signal on Notify.
	EventNotified EventKind = "notified"
	// EventClosing is delivered once when the peer goes away.
	EventClosing EventKind = "closing"
)

// Event is the input of one turn.
type Event struct {
	Kind     EventKind
	Value    float64
	HasValue bool
}

// Message returns an inbound message event carrying v.
func Message(v float64) Event {
	return Event{Kind: EventMessage, Value: v, HasValue: true}
}

// Store is the part of the automation store a session needs.
// Satisfied by *automation.Store.
type Store interface {
	MustBeSubscribed(ch rule.Channel) bool
	MustBeConnected(ch rule.Channel) bool
	UpdateValue(ch rule.Channel, value float64) bool
	RegisterChannel(o device.Observer, ch rule.Channel) (device.Handle, error)
	UnregisterChannel(ch rule.Channel, h device.Handle)
}

// Logger defines the logging interface used by sessions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
