package objectstore

import (
	"context"

	"go.uber.org/multierr"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// PrefetchRequest names one dynamic-field child to warm into the store ahead
// of execution.
type PrefetchRequest struct {
	Parent movetypes.AccountAddress
	Child  movetypes.AccountAddress
}

// Prefetch resolves every request through the store's versioned fetcher up
// front and installs the results as preloads, so the VM's sequential command
// execution never blocks on a one-at-a-time fetch for a child the caller
// already expects to be touched. The replay Engine does not call Prefetch.
//
// Generalized from a batch account-preload pass before block execution
// ("preload account state" becomes "preload predicted dynamic-field
// children"), bounded by limit the same way a large-transaction gas limit
// bounds speculative prefetch work.
func (s *Store) Prefetch(ctx context.Context, requests []PrefetchRequest, versionBound uint64, limit int) (int, error) {
	if s.versioned == nil {
		return 0, nil
	}
	if limit <= 0 || limit > len(requests) {
		limit = len(requests)
	}

	var errs error
	loaded := 0
	for _, req := range requests[:limit] {
		if _, ok := s.preloadedByChild[preloadKey{req.Parent, req.Child}]; ok {
			continue
		}
		entry, ok, err := s.versioned(ctx, req.Parent, req.Child, versionBound)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		s.PreloadChild(req.Parent, req.Child, *entry)
		loaded++
	}
	return loaded, errs
}
