package outbound

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
)

// Requester sends one request to a device.
type Requester interface {
	Do(ctx context.Context, req device.Request) error
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, req device.Request) error

// Do calls f.
func (f RequesterFunc) Do(ctx context.Context, req device.Request) error {
	return f(ctx, req)
}

// Dispatcher routes requests to a Requester by URL scheme and applies the
// per-host rate limit.
//
// Thread Safety: safe for concurrent use.
type Dispatcher struct {
	schemes map[string]Requester

	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	limMu    sync.Mutex
}

// NewDispatcher creates a dispatcher with the configured rate limit and no
// schemes registered.
func NewDispatcher(cfg config.OutboundConfig) *Dispatcher {
	d := &Dispatcher{
		schemes:  make(map[string]Requester),
		limit:    rate.Inf,
		burst:    cfg.Burst,
		limiters: make(map[string]*rate.Limiter),
	}
	if cfg.RateLimit > 0 {
		d.limit = rate.Limit(cfg.RateLimit)
	}
	if d.burst <= 0 {
		d.burst = 1
	}
	return d
}

// Handle registers a requester for a URL scheme, replacing any previous one.
// Must be called before the dispatcher is shared.
func (d *Dispatcher) Handle(scheme string, r Requester) {
	d.schemes[scheme] = r
}

// Do sends the request using the requester registered for its scheme.
func (d *Dispatcher) Do(ctx context.Context, req device.Request) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	r, ok := d.schemes[u.Scheme]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	if err := d.limiter(u.Host).Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %w", ErrRequestFailed, err)
	}

	return r.Do(ctx, req)
}

// limiter returns the token bucket for a host, creating it on first use.
func (d *Dispatcher) limiter(host string) *rate.Limiter {
	d.limMu.Lock()
	defer d.limMu.Unlock()

	l, ok := d.limiters[host]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[host] = l
	}
	return l
}

// Timeout returns the configured per-request timeout.
func Timeout(cfg config.OutboundConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.Timeout) * time.Second
}
