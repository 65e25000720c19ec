package geocode

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// ResolveAll geocodes every address, preserving input order in the result
// slice. In concurrent mode one task per address fans out under the shared
// limiter; in serial mode requests go out one at a time with a fixed delay.
// The whole batch completes even when individual lookups fail; only context
// cancellation aborts it.
func (g *geocoder) ResolveAll(ctx context.Context, addresses []string) ([]Result, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	if g.serial {
		return g.resolveSerial(ctx, addresses)
	}

	results := make([]Result, len(addresses))

	eg, gCtx := errgroup.WithContext(ctx)
	if g.concurrency > 0 {
		eg.SetLimit(g.concurrency)
	}

	for i, addr := range addresses {
		i, addr := i, addr
		eg.Go(func() error {
			r, err := g.Resolve(gCtx, addr)
			if err != nil {
				return err // cancellation only; lookup failures are unmatched results
			}
			results[i] = *r
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, eris.Wrap(err, "geocode: batch aborted")
	}
	return results, nil
}

// resolveSerial is the one-at-a-time variant. The delay sits between
// consecutive provider requests; short-circuited addresses consume none.
func (g *geocoder) resolveSerial(ctx context.Context, addresses []string) ([]Result, error) {
	results := make([]Result, len(addresses))

	dispatched := false
	for i, addr := range addresses {
		if skipLookup(addr) {
			results[i] = Result{Address: addr, Matched: false}
			continue
		}

		if dispatched && g.serialDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "geocode: batch aborted")
			case <-time.After(g.serialDelay):
			}
		}
		dispatched = true

		r, err := g.Resolve(ctx, addr)
		if err != nil {
			return nil, err
		}
		results[i] = *r
	}

	return results, nil
}
