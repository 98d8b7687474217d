package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// defaultRequestTimeout bounds a single outbound request.
const defaultRequestTimeout = 10 * time.Second

// Store holds the active automations and the channel value table.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	devices   Devices
	requester Requester

	mu          sync.Mutex
	automations map[string]*Automation
	order       []string
	values      rule.Values
	subscribed  map[rule.Channel]int
	connected   map[rule.Channel]int
	closed      bool

	hub            WSHub
	metrics        Recorder
	logger         Logger
	requestTimeout time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithHub broadcasts automation events to hub.
func WithHub(hub WSHub) Option {
	return func(s *Store) { s.hub = hub }
}

// WithRecorder reports store activity to r.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.metrics = r }
}

// WithLogger sets the store logger.
func WithLogger(l Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRequestTimeout bounds each outbound request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// NewStore creates an empty store.
//
// Parameters:
//   - devices: Registry used to validate rules and reach channel bindings
//   - requester: Sends connect/update requests produced by evaluation
//   - opts: Optional hub, recorder, logger and timeout
func NewStore(devices Devices, requester Requester, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		devices:        devices,
		requester:      requester,
		automations:    make(map[string]*Automation),
		values:         make(rule.Values),
		subscribed:     make(map[rule.Channel]int),
		connected:      make(map[rule.Channel]int),
		metrics:        noopRecorder{},
		logger:         noopLogger{},
		requestTimeout: defaultRequestTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// AddAutomationText parses text and adds the resulting automation.
// Parse errors are returned unchanged (they wrap rule.ErrInvalidStatement).
func (s *Store) AddAutomationText(text string) (*Automation, error) {
	stmt, err := rule.Parse(text)
	if err != nil {
		return nil, err
	}
	return s.AddAutomation(stmt)
}

// AddAutomation validates every channel the statement mentions, inserts the
// automation and evaluates it once.
//
// Returns a *RegistrationError (wrapping ErrDeviceNotRegistered or
// ErrChannelNotRegistered) for the first unresolvable channel. Nothing is
// changed when validation fails.
func (s *Store) AddAutomation(stmt rule.Statement) (*Automation, error) {
	if err := s.validate(stmt); err != nil {
		return nil, err
	}

	a := &Automation{
		ID:        GenerateID(),
		Statement: stmt,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.automations[a.ID] = a
	s.order = append(s.order, a.ID)
	changed := s.retain(stmt)
	pending, fired := s.evaluate([]*Automation{a})
	count := len(s.automations)
	s.mu.Unlock()

	s.logger.Info("automation added", "id", a.ID, "automation", a.Text())
	s.metrics.AutomationsActive(count)
	s.broadcast(EventAutomationAdded, automationEvent(a))
	s.react(pending, fired)
	s.notifyLiveness(changed)

	return a, nil
}

// validate resolves every registered channel of stmt. It takes no store
// lock: devices are never unregistered, so a successful check stays valid.
func (s *Store) validate(stmt rule.Statement) error {
	for _, ch := range orderedChannels(stmt) {
		if _, err := s.devices.Binding(ch); err != nil {
			return registrationError(ch, err)
		}
	}
	return nil
}

// RemoveAutomation removes an automation by ID.
//
// Returns ErrAutomationNotFound if the ID does not exist.
func (s *Store) RemoveAutomation(id string) (*Automation, error) {
	s.mu.Lock()
	a, ok := s.automations[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAutomationNotFound, id)
	}
	delete(s.automations, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	changed := s.release(a.Statement)
	count := len(s.automations)
	s.mu.Unlock()

	s.logger.Info("automation removed", "id", id)
	s.metrics.AutomationsActive(count)
	s.broadcast(EventAutomationRemoved, automationEvent(a))
	s.notifyLiveness(changed)

	return a, nil
}

// Get returns an automation by ID.
func (s *Store) Get(id string) (*Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.automations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAutomationNotFound, id)
	}
	return a, nil
}

// List returns all automations in insertion order.
func (s *Store) List() []*Automation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Automation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.automations[id])
	}
	return out
}

// Count returns the number of active automations.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.automations)
}

// UpdateValue records an inbound value and re-evaluates every automation.
//
// Values for channels no automation subscribes to are rejected: it returns
// false and the value table is left unchanged.
func (s *Store) UpdateValue(ch rule.Channel, value float64) bool {
	s.mu.Lock()
	if s.subscribed[ch] == 0 {
		s.mu.Unlock()
		s.metrics.ValueRejected(ch)
		s.logger.Debug("value rejected, channel not subscribed", "channel", ch.String())
		return false
	}
	s.values[ch] = value

	all := make([]*Automation, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.automations[id])
	}
	pending, fired := s.evaluate(all)
	s.mu.Unlock()

	s.metrics.ValueAccepted(ch)
	s.react(pending, fired)
	return true
}

// Value returns the last accepted value of a channel.
func (s *Store) Value(ch rule.Channel) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[ch]
	return v, ok
}

// MustBeSubscribed reports whether some active automation's condition reads ch.
func (s *Store) MustBeSubscribed(ch rule.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed[ch] > 0
}

// MustBeConnected reports whether ch is subscribed or the target of an
// active automation.
func (s *Store) MustBeConnected(ch rule.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected[ch] > 0
}

// Requirements returns a snapshot of the three requirement sets.
func (s *Store) Requirements() Requirements {
	s.mu.Lock()
	registered := rule.ChannelSet{}
	for _, a := range s.automations {
		registered.Union(a.Statement.Registered())
	}
	subscribed := rule.ChannelSet{}
	for ch := range s.subscribed {
		subscribed.Add(ch)
	}
	connected := rule.ChannelSet{}
	for ch := range s.connected {
		connected.Add(ch)
	}
	s.mu.Unlock()

	return Requirements{
		Registered: registered.Sorted(),
		Subscribed: subscribed.Sorted(),
		Connected:  connected.Sorted(),
	}
}

// RegisterChannel attaches a session observer to the channel's binding.
// The binding pushes its cached value to the observer immediately.
func (s *Store) RegisterChannel(o device.Observer, ch rule.Channel) (device.Handle, error) {
	b, err := s.devices.Binding(ch)
	if err != nil {
		return 0, registrationError(ch, err)
	}
	return b.Attach(o), nil
}

// UnregisterChannel detaches the observer identified by h.
func (s *Store) UnregisterChannel(ch rule.Channel, h device.Handle) {
	b, err := s.devices.Binding(ch)
	if err != nil {
		return
	}
	b.Detach(h)
}

// Close stops accepting automations, cancels in-flight requests and waits
// for them to finish.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.inflight.Wait()
	return nil
}

// Wait blocks until every dispatched request has completed.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// ─── Internals (called with s.mu held unless noted) ──────────────────

// firedAutomation records an automation whose condition held.
type firedAutomation struct {
	automation *Automation
	update     rule.Update
}

// evaluate runs evaluate-and-react for the given automations and returns
// the outbound requests to send once the lock is released.
func (s *Store) evaluate(automations []*Automation) ([]device.Request, []firedAutomation) {
	var pending []device.Request
	var fired []firedAutomation

	for _, a := range automations {
		update, ok, err := a.Statement.Evaluate(s.values)

		var missing *rule.MissingChannelError
		switch {
		case err == nil && ok:
			b := s.mustBinding(update.Channel)
			if req := b.Update(update.Value); req != nil {
				pending = appendUnique(pending, *req)
			}
			fired = append(fired, firedAutomation{automation: a, update: update})

		case err == nil:
			// condition false

		case errors.As(err, &missing):
			b := s.mustBinding(missing.Channel)
			pending = appendUnique(pending, b.Connect())

		default:
			panic(fmt.Sprintf("automation: unexpected evaluation error for %s: %v", a.ID, err))
		}
	}

	return pending, fired
}

// mustBinding resolves a channel that was validated when its automation was
// added. Devices are never unregistered, so failure is a broken invariant.
func (s *Store) mustBinding(ch rule.Channel) *device.Binding {
	b, err := s.devices.Binding(ch)
	if err != nil {
		panic(fmt.Sprintf("automation: binding for validated channel %s: %v", ch, err))
	}
	return b
}

// retain adds stmt's channels to the reference counts and returns the
// channels whose membership changed.
func (s *Store) retain(stmt rule.Statement) []rule.Channel {
	var changed []rule.Channel
	for ch := range stmt.Subscribed() {
		s.subscribed[ch]++
		if s.subscribed[ch] == 1 {
			changed = append(changed, ch)
		}
	}
	for ch := range stmt.Connected() {
		s.connected[ch]++
		if s.connected[ch] == 1 && !stmt.Subscribed().Contains(ch) {
			changed = append(changed, ch)
		}
	}
	return changed
}

// release removes stmt's channels from the reference counts and returns
// the channels whose membership changed. Known values are kept.
func (s *Store) release(stmt rule.Statement) []rule.Channel {
	var changed []rule.Channel
	for ch := range stmt.Subscribed() {
		s.subscribed[ch]--
		if s.subscribed[ch] <= 0 {
			delete(s.subscribed, ch)
			changed = append(changed, ch)
		}
	}
	for ch := range stmt.Connected() {
		s.connected[ch]--
		if s.connected[ch] <= 0 {
			delete(s.connected, ch)
			if !stmt.Subscribed().Contains(ch) {
				changed = append(changed, ch)
			}
		}
	}
	return changed
}

// react sends pending requests and broadcasts fired events. Called without
// the lock.
func (s *Store) react(pending []device.Request, fired []firedAutomation) {
	for _, f := range fired {
		s.metrics.AutomationFired()
		s.logger.Debug("automation fired", "id", f.automation.ID,
			"channel", f.update.Channel.String(), "value", f.update.Value)
		s.broadcast(EventAutomationFired, map[string]any{
			"id":      f.automation.ID,
			"channel": f.update.Channel.String(),
			"value":   f.update.Value,
		})
	}
	for _, req := range pending {
		s.dispatch(req)
	}
}

// dispatch sends req asynchronously and logs the outcome.
func (s *Store) dispatch(req device.Request) {
	if s.requester == nil {
		s.logger.Warn("no requester configured, dropping request", "request", req.String())
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("store closed, dropping request", "request", req.String())
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.requestTimeout)
		defer cancel()

		err := s.requester.Do(ctx, req)
		s.metrics.RequestDispatched(req.Kind, err)
		if err != nil {
			s.logger.Warn("error sending "+string(req.Kind)+" message",
				"channel", req.Channel.String(), "error", err)
			return
		}
		s.logger.Info("requested channel to "+string(req.Kind),
			"channel", req.Channel.String())
	}()
}

// notifyLiveness tells attached sessions their requirements changed.
// Called without the store lock.
func (s *Store) notifyLiveness(channels []rule.Channel) {
	for _, ch := range channels {
		b, err := s.devices.Binding(ch)
		if err != nil {
			continue
		}
		b.NotifyLiveness()
	}
}

func (s *Store) broadcast(event string, payload any) {
	if s.hub != nil {
		s.hub.Broadcast(event, payload)
	}
}

func automationEvent(a *Automation) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"automation": a.Text(),
	}
}

// registrationError maps a registry lookup failure onto the store's errors.
func registrationError(ch rule.Channel, err error) error {
	if errors.Is(err, device.ErrChannelNotFound) {
		return &RegistrationError{Channel: ch, Err: ErrChannelNotRegistered}
	}
	return &RegistrationError{Channel: ch, Err: ErrDeviceNotRegistered}
}

// orderedChannels lists the registered channels of stmt in the order they
// appear in the text, so validation reports the leftmost failure.
func orderedChannels(stmt rule.Statement) []rule.Channel {
	var out []rule.Channel
	out = append(out, rule.ChannelsOf(stmt.Condition.LHS)...)
	out = append(out, rule.ChannelsOf(stmt.Condition.RHS)...)
	out = append(out, stmt.Action.Target)
	out = append(out, rule.ChannelsOf(stmt.Action.Value)...)
	return out
}

func appendUnique(reqs []device.Request, req device.Request) []device.Request {
	for _, r := range reqs {
		if r == req {
			return reqs
		}
	}
	return append(reqs, req)
}
