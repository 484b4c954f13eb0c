// Package duplex runs the paired inbound/outbound loops that make up one
// media bridge connection.
package duplex

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Run spawns the two directional loops of a bridge pair and waits for both.
// The first loop to exit, normally or with an error, cancels the other
// through the derived context, and Run returns the terminating cause
// (nil for a clean stop, the first real error otherwise).
//
// This is the sole cancellation trigger for a pair; there is no external
// cancel-by-id control plane.
func Run(ctx context.Context, inbound, outbound func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	// errgroup cancels on error only; a clean exit (carrier stop event)
	// must stop the peer loop just the same.
	run := func(loop func(context.Context) error) func() error {
		return func() error {
			defer cancel()
			return loop(gctx)
		}
	}
	g.Go(run(inbound))
	g.Go(run(outbound))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
