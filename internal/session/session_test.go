package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

type recordingRequester struct {
	mu   sync.Mutex
	reqs []device.Request
}

func (r *recordingRequester) Do(_ context.Context, req device.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return nil
}

func (r *recordingRequester) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

var (
	chAX = rule.NewChannel("a", "x")
	chBY = rule.NewChannel("b", "y")
)

func newStore(t *testing.T) (*automation.Store, *recordingRequester) {
	t.Helper()
	reg := device.NewRegistry()
	for _, def := range []device.Definition{
		{ID: "a", Channels: []string{"x"}, Subscribe: "http://a.local/<CHANNEL>"},
		{ID: "b", Channels: []string{"y"}, Subscribe: "http://b.local/<CHANNEL>"},
	} {
		d, err := device.New(def)
		require.NoError(t, err)
		reg.Register(d)
	}
	req := &recordingRequester{}
	s := automation.NewStore(reg, req)
	t.Cleanup(func() { _ = s.Close() })
	return s, req
}

func openSession(t *testing.T, store Store, ch rule.Channel) (*Session, Response) {
	t.Helper()
	s := New(store, ch)
	resp, err := s.Next(Event{Kind: EventOpened})
	require.NoError(t, err)
	return s, resp
}

func waitNotify(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Notify():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session notification")
	}
}

func TestNext_OpeningNotRequired(t *testing.T) {
	store, _ := newStore(t)

	s, resp := openSession(t, store, chAX)
	assert.Equal(t, ResponseNotRequired, resp.Kind)
	assert.True(t, resp.Terminal())
	assert.Equal(t, StateClosed, s.State())

	_, err := s.Next(Message(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNext_OpeningSubscribed(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.AddAutomationText("a:x > 5 --> b:y = 1")
	require.NoError(t, err)

	s, resp := openSession(t, store, chAX)
	assert.Equal(t, ResponseUpdateMe, resp.Kind)
	assert.Equal(t, StateActive, s.State())
}

func TestNext_OpeningConnectedOnly(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.AddAutomationText("a:x > 5 --> b:y = 1")
	require.NoError(t, err)

	s, resp := openSession(t, store, chBY)
	assert.True(t, resp.IsNone(), "target channels stay open for delivery only")
	assert.Equal(t, StateActive, s.State())
}

func TestNext_UnknownChannel(t *testing.T) {
	// Required by nothing, so the not-required row wins over registration.
	store, _ := newStore(t)
	s := New(store, rule.NewChannel("ghost", "x"))
	resp, err := s.Next(Event{Kind: EventOpened})
	require.NoError(t, err)
	assert.Equal(t, ResponseNotRequired, resp.Kind)

	// A store that requires the channel but cannot resolve it.
	fs := &fakeStore{connected: true, registerErr: automation.ErrDeviceNotRegistered}
	s = New(fs, rule.NewChannel("ghost", "x"))
	_, err = s.Next(Event{Kind: EventOpened})
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.ErrorIs(t, err, automation.ErrDeviceNotRegistered)
	assert.Equal(t, StateClosed, s.State())
}

func TestNext_InboundValue(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.AddAutomationText("a:x > 5 --> b:y = 1")
	require.NoError(t, err)
	s, _ := openSession(t, store, chAX)

	resp, err := s.Next(Message(3))
	require.NoError(t, err)
	assert.True(t, resp.IsNone())

	v, ok := store.Value(chAX)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, err = s.Next(Event{Kind: EventMessage})
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestNext_PushedValue(t *testing.T) {
	store, req := newStore(t)
	_, err := store.AddAutomationText("a:x > 5 --> b:y = a:x")
	require.NoError(t, err)
	store.Wait()
	before := req.count()

	target, resp := openSession(t, store, chBY)
	require.True(t, resp.IsNone())
	source, _ := openSession(t, store, chAX)

	_, err = source.Next(Message(8))
	require.NoError(t, err)
	store.Wait()
	assert.Equal(t, before, req.count(), "delivery to an open session needs no request")

	waitNotify(t, target)
	resp, err = target.Next(Event{Kind: EventNotified})
	require.NoError(t, err)
	assert.Equal(t, Update(8), resp)
	assert.Equal(t, "8", resp.Wire())

	resp, err = target.Next(Event{Kind: EventNotified})
	require.NoError(t, err)
	assert.True(t, resp.IsNone())
}

func TestNext_CachedValuePushedOnOpen(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.AddAutomationText("1 < 2 --> b:y = 4")
	require.NoError(t, err)

	s, resp := openSession(t, store, chBY)
	require.True(t, resp.IsNone())

	waitNotify(t, s)
	resp, err = s.Next(Event{Kind: EventNotified})
	require.NoError(t, err)
	assert.Equal(t, Update(4), resp)
}

func TestNext_LivenessEscalation(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.AddAutomationText("a:x > 5 --> b:y = 1")
	require.NoError(t, err)

	s, resp := openSession(t, store, chBY)
	require.True(t, resp.IsNone())

	_, err = store.AddAutomationText("b:y > 0 --> a:x = 0")
	require.NoError(t, err)

	waitNotify(t, s)
	resp, err = s.Next(Event{Kind: EventNotified})
	require.NoError(t, err)
	assert.Equal(t, ResponseUpdateMe, resp.Kind)
}

func TestNext_LivenessRelease(t *testing.T) {
	store, _ := newStore(t)
	a, err := store.AddAutomationText("a:x > 5 --> b:y = 1")
	require.NoError(t, err)
	s, _ := openSession(t, store, chAX)

	_, err = store.RemoveAutomation(a.ID)
	require.NoError(t, err)

	waitNotify(t, s)
	resp, err := s.Next(Event{Kind: EventNotified})
	require.NoError(t, err)
	assert.Equal(t, ResponseNotRequired, resp.Kind)
	assert.Equal(t, StateClosed, s.State())
}

func TestNext_ClosingStillRequired(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.AddAutomationText("a:x > 5 --> b:y = 1")
	require.NoError(t, err)
	s, _ := openSession(t, store, chAX)

	resp, err := s.Next(Event{Kind: EventClosing})
	require.NoError(t, err)
	assert.Equal(t, ResponseReconnect, resp.Kind)
	assert.Equal(t, StateClosed, s.State())
}

func TestNext_PriorityOrder(t *testing.T) {
	fs := &fakeStore{connected: true, subscribed: false}
	s := New(fs, chAX)
	resp, err := s.Next(Event{Kind: EventOpened})
	require.NoError(t, err)
	require.True(t, resp.IsNone())

	// Liveness flip and a pushed value arrive together: updateMe first,
	// the value on the following turn.
	fs.subscribed = true
	s.PushValue(2)
	s.LivenessChanged()

	resp, err = s.Next(Event{Kind: EventNotified})
	require.NoError(t, err)
	assert.Equal(t, ResponseUpdateMe, resp.Kind)

	waitNotify(t, s)
	resp, err = s.Next(Event{Kind: EventNotified})
	require.NoError(t, err)
	assert.Equal(t, Update(2), resp)
}

// TestNext_MessageWithQueuedWork interleaves an inbound value with work the
// store queued for the session. The value is always stored, and the queued
// response goes out on the same turn.
func TestNext_MessageWithQueuedWork(t *testing.T) {
	tests := []struct {
		name       string
		automation []string
		channel    rule.Channel
		wantOpen   ResponseKind
		after      []string // added once the session is open
		value      float64
		want       Response
	}{
		{
			name:       "message alone",
			automation: []string{"a:x > 5 --> b:y = 1"},
			channel:    chAX,
			wantOpen:   ResponseUpdateMe,
			value:      7,
			want:       None,
		},
		{
			name:       "message with pushed value",
			automation: []string{"a:x > 5 --> b:y = 1", "1 < 2 --> a:x = 4"},
			channel:    chAX,
			wantOpen:   ResponseUpdateMe,
			value:      9,
			want:       Update(4),
		},
		{
			name:       "message with liveness flip",
			automation: []string{"a:x > 5 --> b:y = 1"},
			channel:    chBY,
			wantOpen:   ResponseNone,
			after:      []string{"b:y > 0 --> a:x = 0"},
			value:      3,
			want:       Response{Kind: ResponseUpdateMe},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newStore(t)
			for _, text := range tt.automation {
				_, err := store.AddAutomationText(text)
				require.NoError(t, err)
			}

			s, resp := openSession(t, store, tt.channel)
			require.Equal(t, tt.wantOpen, resp.Kind)

			for _, text := range tt.after {
				_, err := store.AddAutomationText(text)
				require.NoError(t, err)
			}

			resp, err := s.Next(Message(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp)

			v, ok := store.Value(tt.channel)
			require.True(t, ok, "inbound value must be stored")
			assert.Equal(t, tt.value, v)

			resp, err = s.Next(Event{Kind: EventNotified})
			require.NoError(t, err)
			assert.True(t, resp.IsNone(), "nothing left queued, got %s", resp)
		})
	}
}

func TestNext_MessageWithoutValueKeepsQueuedPush(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.AddAutomationText("a:x > 5 --> b:y = 1")
	require.NoError(t, err)
	_, err = store.AddAutomationText("1 < 2 --> a:x = 4")
	require.NoError(t, err)

	s, resp := openSession(t, store, chAX)
	require.Equal(t, ResponseUpdateMe, resp.Kind)

	_, err = s.Next(Event{Kind: EventMessage})
	require.ErrorIs(t, err, ErrNoValue)
	assert.Equal(t, StateActive, s.State())

	waitNotify(t, s)
	resp, err = s.Next(Event{Kind: EventNotified})
	require.NoError(t, err)
	assert.Equal(t, Update(4), resp)
}

func TestClose_Detaches(t *testing.T) {
	fs := &fakeStore{connected: true}
	s := New(fs, chAX)
	_, err := s.Next(Event{Kind: EventOpened})
	require.NoError(t, err)

	s.Close()
	s.Close()
	assert.Equal(t, 1, fs.unregistered)
	assert.Equal(t, StateClosed, s.State())
}

func TestResponseWire(t *testing.T) {
	tests := []struct {
		resp Response
		want string
	}{
		{Response{Kind: ResponseUpdateMe}, "updateMe"},
		{Response{Kind: ResponseNotRequired}, "notRequired"},
		{Response{Kind: ResponseReconnect}, "reconnect"},
		{Update(1.5), "1.5"},
		{Update(-3), "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resp.Wire())
		})
	}
}

func TestReceptionFor(t *testing.T) {
	assert.Equal(t, ReceptionOK, ReceptionFor(true, true))
	assert.Equal(t, ReceptionOK, ReceptionFor(true, false))
	assert.Equal(t, ReceptionReconnect, ReceptionFor(false, true))
	assert.Equal(t, ReceptionNotRequired, ReceptionFor(false, false))
}

// fakeStore lets tests drive requirement answers directly.
type fakeStore struct {
	connected    bool
	subscribed   bool
	registerErr  error
	unregistered int
	values       []float64
}

func (f *fakeStore) MustBeSubscribed(rule.Channel) bool { return f.subscribed }
func (f *fakeStore) MustBeConnected(rule.Channel) bool  { return f.connected }

func (f *fakeStore) UpdateValue(_ rule.Channel, v float64) bool {
	f.values = append(f.values, v)
	return f.subscribed
}

func (f *fakeStore) RegisterChannel(device.Observer, rule.Channel) (device.Handle, error) {
	if f.registerErr != nil {
		return 0, f.registerErr
	}
	return 1, nil
}

func (f *fakeStore) UnregisterChannel(rule.Channel, device.Handle) { f.unregistered++ }
