package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// defaultConnectParallelism bounds concurrent startup connect requests.
const defaultConnectParallelism = 8

// ConnectStatic asks every channel of devices to open a session, sending
// the requests in parallel. A failed request does not stop the others; all
// failures are returned joined.
func ConnectStatic(ctx context.Context, devices []*device.Device, requester automation.Requester, logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}

	var (
		mu       sync.Mutex
		failures []error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConnectParallelism)

	for _, d := range devices {
		for _, id := range d.ChannelIDs() {
			b, ok := d.Binding(id)
			if !ok {
				continue
			}
			req := b.Connect()

			g.Go(func() error {
				if err := requester.Do(ctx, req); err != nil {
					logger.Warn("error sending connect message",
						"channel", req.Channel.String(), "error", err)
					mu.Lock()
					failures = append(failures, fmt.Errorf("%s: %w", req.Channel, err))
					mu.Unlock()
					return nil
				}
				logger.Info("requested channel to connect", "channel", req.Channel.String())
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(failures...)
}
