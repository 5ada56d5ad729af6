package blockchain

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/logging"
	"src.d10.dev/taxcount/internal/normalize"
)

// Resolver is the normalize.BlockchainClient the rest of the program talks
// to: it checks the on-disk cache first, collapses concurrent requests for
// the same txid into one network call (a hand-rolled singleflight, since
// the corpus doesn't pull in golang.org/x/sync/singleflight directly), and
// only then falls through to the underlying client.
type Resolver struct {
	client normalize.BlockchainClient
	cache  *Cache

	mu       sync.Mutex
	inFlight map[ids.TxID]*inFlightCall
}

type inFlightCall struct {
	done chan struct{}
	raw  normalize.RawTx
	err  error
}

// NewResolver wires a concrete client to an on-disk cache.
func NewResolver(client normalize.BlockchainClient, cache *Cache) *Resolver {
	return &Resolver{client: client, cache: cache, inFlight: make(map[ids.TxID]*inFlightCall)}
}

// ResolveTx implements normalize.BlockchainClient.
func (r *Resolver) ResolveTx(ctx context.Context, txid ids.TxID) (normalize.RawTx, error) {
	if raw, found, err := r.cache.Get(txid); err != nil {
		return normalize.RawTx{}, err
	} else if found {
		return raw, nil
	}

	r.mu.Lock()
	if call, ok := r.inFlight[txid]; ok {
		r.mu.Unlock()
		<-call.done
		return call.raw, call.err
	}
	call := &inFlightCall{done: make(chan struct{})}
	r.inFlight[txid] = call
	r.mu.Unlock()

	call.raw, call.err = r.client.ResolveTx(ctx, txid)
	if call.err == nil {
		if err := r.cache.Put(txid, call.raw); err != nil {
			logging.Component("blockchain").Warn("failed to cache resolved tx", "txid", txid, "error", err)
		}
	}
	close(call.done)

	r.mu.Lock()
	delete(r.inFlight, txid)
	r.mu.Unlock()

	return call.raw, call.err
}

// ResolveMany resolves every txid in txids concurrently, bounded by
// maxConcurrency in-flight network calls at once, and returns the results
// in the same order as the input. A single failure cancels the remaining
// resolutions and is returned to the caller; the simulator requires every
// referenced transaction to resolve, so a partial result set would be
// silently wrong.
func (r *Resolver) ResolveMany(ctx context.Context, txids []ids.TxID, maxConcurrency int) ([]normalize.RawTx, error) {
	results := make([]normalize.RawTx, len(txids))
	g, ctx := errgroup.WithContext(ctx)
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}
	for i, txid := range txids {
		i, txid := i, txid
		g.Go(func() error {
			raw, err := r.ResolveTx(ctx, txid)
			if err != nil {
				return err
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
