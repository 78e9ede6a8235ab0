// Package diskcache provides an optional, persistent on-disk cache that sits
// in front of a source.StateSource, so repeated replays of the same
// checkpoint (common during development of a reconciliation policy, or when
// iterating on the reconstructor's patch rules) don't re-fetch the same
// historical packages and objects every run.
//
// Built on github.com/cockroachdb/pebble as an embedded KV store; here it
// plays the role of a replay-local archive cache rather than a chain
// database.
package diskcache

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/source"
)

const (
	prefixPackage byte = 'P'
	prefixObject  byte = 'O'
)

// Source wraps an inner source.StateSource with a pebble-backed persistent
// cache for packages and objects. Dynamic field lookups and transaction
// fetches pass through uncached: they are either one-shot (the transaction
// itself) or too numerous/low-value to persist (dynamic fields preloaded into
// the Object Store are served from its in-memory map; fields it fetches
// through its keyed fetcher are not retained there).
type Source struct {
	inner source.StateSource
	db    *pebble.DB
}

// Open opens (or creates) a pebble database at dir and wraps inner with it.
func Open(dir string, inner source.StateSource) (*Source, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "diskcache: open %s", dir)
	}
	return &Source{inner: inner, db: db}, nil
}

// Close releases the underlying pebble handle.
func (s *Source) Close() error {
	return s.db.Close()
}

func packageCacheKey(id movetypes.AccountAddress, version uint64) []byte {
	k := make([]byte, 1+movetypes.AddressLength+8)
	k[0] = prefixPackage
	copy(k[1:], id[:])
	binary.BigEndian.PutUint64(k[1+movetypes.AddressLength:], version)
	return k
}

func objectCacheKey(id movetypes.AccountAddress, version uint64) []byte {
	k := make([]byte, 1+movetypes.AddressLength+8)
	k[0] = prefixObject
	copy(k[1:], id[:])
	binary.BigEndian.PutUint64(k[1+movetypes.AddressLength:], version)
	return k
}

func (s *Source) FetchTransaction(ctx context.Context, digest string) (*source.FetchedTransaction, error) {
	return s.inner.FetchTransaction(ctx, digest)
}

func (s *Source) FetchPackage(ctx context.Context, id movetypes.AccountAddress, version *uint64) (*movetypes.PackageData, error) {
	// A disk cache can only serve a request pinned to a concrete version;
	// "latest" requests always go to the inner source so they observe
	// subsequent upgrades.
	if version != nil {
		if raw, closer, err := s.db.Get(packageCacheKey(id, *version)); err == nil {
			defer closer.Close()
			var data movetypes.PackageData
			if jsonErr := json.Unmarshal(raw, &data); jsonErr == nil {
				return &data, nil
			}
		}
	}
	data, err := s.inner.FetchPackage(ctx, id, version)
	if err != nil || data == nil {
		return data, err
	}
	if raw, err := json.Marshal(data); err == nil {
		_ = s.db.Set(packageCacheKey(id, data.Version), raw, pebble.NoSync)
	}
	return data, nil
}

func (s *Source) FetchObject(ctx context.Context, id movetypes.AccountAddress, versionBound *uint64) (*movetypes.Object, error) {
	if versionBound != nil {
		if raw, closer, err := s.db.Get(objectCacheKey(id, *versionBound)); err == nil {
			defer closer.Close()
			var obj movetypes.Object
			if jsonErr := json.Unmarshal(raw, &obj); jsonErr == nil {
				return &obj, nil
			}
		}
	}
	obj, err := s.inner.FetchObject(ctx, id, versionBound)
	if err != nil || obj == nil {
		return obj, err
	}
	if raw, err := json.Marshal(obj); err == nil {
		_ = s.db.Set(objectCacheKey(id, obj.Version), raw, pebble.NoSync)
	}
	return obj, nil
}

func (s *Source) FindDynamicField(ctx context.Context, parent movetypes.AccountAddress, keyBytes []byte, versionBound *uint64) (*source.DynamicFieldEntry, error) {
	return s.inner.FindDynamicField(ctx, parent, keyBytes, versionBound)
}

var _ source.StateSource = (*Source)(nil)
