package session

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// Session drives one channel session.
//
// Next must be called from a single goroutine (the transport's read loop).
// PushValue and LivenessChanged may be called from any goroutine.
type Session struct {
	channel rule.Channel
	store   Store
	logger  Logger

	// Owned by the Next goroutine.
	state      State
	handle     device.Handle
	registered bool
	subscribed bool

	// Observer side, guarded by mu.
	mu          sync.Mutex
	pending     float64
	hasPending  bool
	livenessDue bool
	notify      chan struct{}
}

// New creates a session in the Opening state.
func New(store Store, ch rule.Channel) *Session {
	return &Session{
		channel: ch,
		store:   store,
		logger:  noopLogger{},
		state:   StateOpening,
		notify:  make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// Channel returns the session's channel.
func (s *Session) Channel() rule.Channel { return s.channel }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Notify is signalled whenever a pushed value or liveness change awaits
// a Next(Event{Kind: EventNotified}) turn.
func (s *Session) Notify() <-chan struct{} { return s.notify }

// Next runs one turn of the transition table and returns what to send.
// A message turn stores its value first and may then carry a queued
// updateMe or update(value). After a terminal response or
// ErrUnknownChannel the session is Closed; ErrNoValue leaves it Active
// with anything queued still pending.
func (s *Session) Next(ev Event) (Response, error) {
	if s.state == StateClosed {
		return None, ErrClosed
	}

	connected := s.store.MustBeConnected(s.channel)

	if ev.Kind == EventClosing && connected {
		s.finish()
		return s.emit(Response{Kind: ResponseReconnect}), nil
	}

	if !connected {
		s.finish()
		return s.emit(Response{Kind: ResponseNotRequired}), nil
	}

	if ev.Kind == EventClosing {
		s.finish()
		return None, nil
	}

	if s.state == StateOpening {
		return s.open()
	}

	// An inbound value is stored before queued work is taken.
	if ev.Kind == EventMessage {
		if !ev.HasValue {
			return None, ErrNoValue
		}
		accepted := s.store.UpdateValue(s.channel, ev.Value)
		s.logger.Debug("channel value received", "channel", s.channel.String(),
			"value", ev.Value, "accepted", accepted)
	}

	pending, hasPending, livenessDue := s.take()

	if livenessDue {
		was := s.subscribed
		s.subscribed = s.store.MustBeSubscribed(s.channel)
		if s.subscribed && !was {
			s.rearm(hasPending, pending)
			return s.emit(Response{Kind: ResponseUpdateMe}), nil
		}
	}

	if hasPending {
		return s.emit(Update(pending)), nil
	}

	return None, nil
}

// open handles the first turn.
func (s *Session) open() (Response, error) {
	h, err := s.store.RegisterChannel(s, s.channel)
	if err != nil {
		s.state = StateClosed
		return None, fmt.Errorf("%w: %w", ErrUnknownChannel, err)
	}
	s.handle = h
	s.registered = true
	s.state = StateActive
	s.logger.Debug("channel session opened", "channel", s.channel.String())

	s.subscribed = s.store.MustBeSubscribed(s.channel)
	if s.subscribed {
		return s.emit(Response{Kind: ResponseUpdateMe}), nil
	}
	return None, nil
}

// Close detaches the session from its binding. It is safe to call more
// than once and after a terminal response.
func (s *Session) Close() {
	s.finish()
}

func (s *Session) finish() {
	if s.registered {
		s.store.UnregisterChannel(s.channel, s.handle)
		s.registered = false
	}
	if s.state != StateClosed {
		s.logger.Debug("channel session closed", "channel", s.channel.String())
	}
	s.state = StateClosed
}

func (s *Session) emit(r Response) Response {
	s.logger.Debug("channel session response", "channel", s.channel.String(), "response", r.String())
	return r
}

// ─── device.Observer ────────────────────────────────────────────────

// PushValue records a value set by an automation. Only the latest
// unsent value is kept.
func (s *Session) PushValue(value float64) {
	s.mu.Lock()
	s.pending = value
	s.hasPending = true
	s.mu.Unlock()
	s.signal()
}

// LivenessChanged records that the channel's requirements changed.
func (s *Session) LivenessChanged() {
	s.mu.Lock()
	s.livenessDue = true
	s.mu.Unlock()
	s.signal()
}

func (s *Session) take() (float64, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, due := s.pending, s.hasPending, s.livenessDue
	s.hasPending = false
	s.livenessDue = false
	return v, ok, due
}

// rearm puts back a pending value that a higher-priority response
// pre-empted, unless a newer one arrived meanwhile.
func (s *Session) rearm(hasPending bool, v float64) {
	if !hasPending {
		return
	}
	s.mu.Lock()
	if !s.hasPending {
		s.pending = v
		s.hasPending = true
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Session) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
