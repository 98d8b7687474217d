package device

import (
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// Observer receives in-process notifications for a channel while a session
// is attached. Implementations must return promptly and must not call back
// into the Binding.
type Observer interface {
	// PushValue delivers a value the hub wants the device to hold.
	PushValue(value float64)

	// LivenessChanged signals that the hub's requirements for the channel
	// changed (subscribed or connected membership).
	LivenessChanged()
}

// Handle identifies one attachment of an observer. Detach only clears the
// attachment whose handle matches, so a stale session cannot detach its
// successor.
type Handle uint64

// Binding is the per-channel state owned by a device.
type Binding struct {
	channel         rule.Channel
	connectTemplate string
	updateTemplate  string

	mu       sync.Mutex
	value    float64
	hasValue bool
	observer Observer
	handle   Handle
	next     Handle
}

func newBinding(channel rule.Channel, connectTemplate, updateTemplate string) *Binding {
	return &Binding{
		channel:         channel,
		connectTemplate: connectTemplate,
		updateTemplate:  updateTemplate,
	}
}

// Channel returns the channel this binding serves.
func (b *Binding) Channel() rule.Channel { return b.channel }

// Attach sets the observer, replacing any previous one. A cached value is
// pushed to the new observer immediately.
func (b *Binding) Attach(o Observer) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.observer = o
	b.handle = b.next
	if b.hasValue {
		o.PushValue(b.value)
	}
	return b.handle
}

// Detach clears the observer if h is the current attachment.
// It reports whether anything was detached.
func (b *Binding) Detach(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.observer == nil || b.handle != h {
		return false
	}
	b.observer = nil
	return true
}

// Attached reports whether an observer is attached.
func (b *Binding) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observer != nil
}

// Value returns the cached value, if any.
func (b *Binding) Value() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.hasValue
}

// Update caches value and delivers it. With an observer attached the value
// is handed over in-process and nil is returned. Otherwise a pending request
// is returned: an update request when the device declared an update
// template, a connect request if not. The attached session will receive the
// cached value once it opens.
func (b *Binding) Update(value float64) *Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.value = value
	b.hasValue = true

	if b.observer != nil {
		b.observer.PushValue(value)
		return nil
	}

	if b.updateTemplate != "" {
		return &Request{
			Kind:    RequestUpdate,
			Channel: b.channel,
			URL:     ExpandTemplate(b.updateTemplate, b.channel.ChannelID, value),
			Value:   value,
		}
	}
	req := b.connectRequest()
	return &req
}

// Connect returns a request asking the device to open a session.
func (b *Binding) Connect() Request {
	return b.connectRequest()
}

func (b *Binding) connectRequest() Request {
	return Request{
		Kind:    RequestConnect,
		Channel: b.channel,
		URL:     ExpandTemplate(b.connectTemplate, b.channel.ChannelID, 0),
	}
}

// NotifyLiveness forwards a requirement change to the attached observer.
// It reports whether an observer was notified.
func (b *Binding) NotifyLiveness() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.observer == nil {
		return false
	}
	b.observer.LivenessChanged()
	return true
}
