// Package workers ties long-running background tasks to the host process
// lifecycle. A Controller is started from the host's startup hook and
// stopped from its shutdown hook; no global task registry exists.
package workers

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStarted is returned by Start on a running controller.
var ErrAlreadyStarted = errors.New("workers: controller already started")

// Worker is one long-running background task. It must honor ctx
// cancellation at its suspension points and return once ctx is done;
// returning ctx.Err() counts as a clean stop.
type Worker func(ctx context.Context) error

// Controller runs a set of workers as independently cancellable tasks.
// The zero value is ready to use.
type Controller struct {
	mu     sync.Mutex
	group  *errgroup.Group
	cancel context.CancelFunc
}

// Start launches each worker in its own goroutine under a context derived
// from ctx. It returns ErrAlreadyStarted if the controller is running.
func (c *Controller) Start(ctx context.Context, ws ...Worker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group != nil {
		return ErrAlreadyStarted
	}

	gctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(gctx)
	for _, w := range ws {
		group.Go(func() error {
			// Cancellation is a clean stop and must be discarded here:
			// the group keeps only the first non-nil error, and a
			// sibling's ctx.Err() racing ahead of a real failure would
			// otherwise mask it.
			if err := w(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	c.group = group
	c.cancel = cancel
	return nil
}

// Stop cancels all workers, waits for them to finish, and returns the first
// failure that was not plain cancellation. Stopping an idle controller is a
// no-op, so Stop may be called more than once.
func (c *Controller) Stop() error {
	c.mu.Lock()
	group, cancel := c.group, c.cancel
	c.group, c.cancel = nil, nil
	c.mu.Unlock()

	if group == nil {
		return nil
	}
	cancel()
	return group.Wait()
}
