// Package source defines the single outward capability the replay core
// consumes: StateSource. No network transport lives here — only the
// interface, caching decorators over it, and an in-memory fixture used by
// tests. Concrete RPC/GraphQL/archive-backed sources are the caller's
// responsibility.
package source

import (
	"context"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// FetchedTransaction bundles the programmable transaction with its
// authoritative on-chain effects and checkpoint context, as returned by
// StateSource.FetchTransaction.
type FetchedTransaction struct {
	Transaction *movetypes.TransactionRecord
	Checkpoint  uint64
	TimestampMs uint64
}

// DynamicFieldEntry is the result of a key-based dynamic field lookup.
type DynamicFieldEntry struct {
	ChildID   movetypes.AccountAddress
	ValueType movetypes.TypeTag
	ValueBCS  []byte
	Version   uint64
}

// StateSource is the one trait the core consumes. Every method is
// synchronous: a caller that wants async I/O drives its own tasks and
// presents blocking results here.
type StateSource interface {
	// FetchTransaction returns the transaction record (including on-chain
	// effects) for digest.
	FetchTransaction(ctx context.Context, digest string) (*FetchedTransaction, error)

	// FetchPackage returns the package at id, at version if given, else the
	// latest known to the source. A nil, nil return means "not found".
	FetchPackage(ctx context.Context, id movetypes.AccountAddress, version *uint64) (*movetypes.PackageData, error)

	// FetchObject returns the object at id, honoring versionBound as an
	// upper bound if given. A nil, nil return means "not found".
	FetchObject(ctx context.Context, id movetypes.AccountAddress, versionBound *uint64) (*movetypes.Object, error)

	// FindDynamicField resolves a dynamic field of parent by its raw BCS key
	// bytes, optionally bounded by versionBound.
	FindDynamicField(ctx context.Context, parent movetypes.AccountAddress, keyBytes []byte, versionBound *uint64) (*DynamicFieldEntry, error)
}

// PackageFetcher is the narrower capability core/resolver needs: fetching a
// package by id and optional version. Every StateSource trivially satisfies
// it via the adapter below, but resolver tests can supply a bare closure
// instead of a full StateSource.
type PackageFetcher interface {
	FetchPackage(ctx context.Context, id movetypes.AccountAddress, version *uint64) (*movetypes.PackageData, error)
}

// AsPackageFetcher narrows a StateSource down to a PackageFetcher.
func AsPackageFetcher(s StateSource) PackageFetcher { return s }

// PackageFetcherFunc adapts a plain function to a PackageFetcher, following
// a callback-fetcher pattern so unit tests avoid hand-rolled fetcher structs.
type PackageFetcherFunc func(ctx context.Context, id movetypes.AccountAddress, version *uint64) (*movetypes.PackageData, error)

func (f PackageFetcherFunc) FetchPackage(ctx context.Context, id movetypes.AccountAddress, version *uint64) (*movetypes.PackageData, error) {
	return f(ctx, id, version)
}
