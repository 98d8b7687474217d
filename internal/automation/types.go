package automation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// Automation is one active rule. It is immutable once added.
type Automation struct {
	ID        string         `json:"id"`
	Statement rule.Statement `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

// Text returns the canonical rule text.
func (a *Automation) Text() string {
	return a.Statement.String()
}

// Requirements is a snapshot of the store's channel requirement sets.
type Requirements struct {
	Registered []rule.Channel `json:"registered"`
	Subscribed []rule.Channel `json:"subscribed"`
	Connected  []rule.Channel `json:"connected"`
}

// Devices resolves channels to device bindings.
// Satisfied by *device.Registry.
type Devices interface {
	Binding(ch rule.Channel) (*device.Binding, error)
}

// Requester sends an outbound request to a device.
// Satisfied by *outbound.Dispatcher.
type Requester interface {
	Do(ctx context.Context, req device.Request) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Hubs fans one event out to several hubs; nil entries are skipped.
type Hubs []WSHub

// Broadcast implements WSHub.
func (hs Hubs) Broadcast(channel string, payload any) {
	for _, h := range hs {
		if h != nil {
			h.Broadcast(channel, payload)
		}
	}
}

// Recorder receives store activity for metrics.
type Recorder interface {
	ValueAccepted(ch rule.Channel)
	ValueRejected(ch rule.Channel)
	AutomationFired()
	RequestDispatched(kind device.RequestKind, err error)
	AutomationsActive(n int)
}

// Event types broadcast to the WSHub.
const (
	EventAutomationAdded   = "automation.added"
	EventAutomationRemoved = "automation.removed"
	EventAutomationFired   = "automation.fired"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) ValueAccepted(rule.Channel)                  {}
func (noopRecorder) ValueRejected(rule.Channel)                  {}
func (noopRecorder) AutomationFired()                            {}
func (noopRecorder) RequestDispatched(device.RequestKind, error) {}
func (noopRecorder) AutomationsActive(int)                       {}

// GenerateID returns a new automation ID.
func GenerateID() string {
	return uuid.New().String()
}
