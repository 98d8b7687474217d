package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry holds every registered device for the lifetime of the process.
//
// Register does not deduplicate; callers that must reject duplicates check
// Get first under their own serialisation (see the API handler).
//
// All public methods are thread-safe.
type Registry struct {
	devices map[string]*Device
	mu      sync.RWMutex
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register inserts the device, replacing any device with the same ID.
func (r *Registry) Register(d *Device) {
	r.mu.Lock()
	_, replaced := r.devices[d.ID()]
	r.devices[d.ID()] = d
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("device replaced", "device_id", d.ID())
		return
	}
	r.logger.Info("device registered", "device_id", d.ID(), "channels", d.ChannelIDs())
}

// Get returns the device with the given ID.
func (r *Registry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Binding resolves a channel to its binding.
//
// Returns ErrDeviceNotFound or ErrChannelNotFound (wrapped) on failure.
func (r *Registry) Binding(ch rule.Channel) (*Binding, error) {
	d, ok := r.Get(ch.DeviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, ch.DeviceID)
	}
	b, ok := d.Binding(ch.ChannelID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, ch)
	}
	return b, nil
}

// List returns all devices sorted by ID.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
