package source

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// packageKey and objectKey are only used to size the LRU for metadata
// (decoded PackageData/Object); the raw bytes backing each live in the
// fastcache byte store so large payload blobs don't thrash the LRU.
type packageKey struct {
	id      movetypes.AccountAddress
	version uint64 // 0 means "latest requested", cached separately
}

type objectKey struct {
	id           movetypes.AccountAddress
	versionBound uint64
}

// CachingSource wraps an underlying StateSource with:
//   - an LRU of decoded PackageData/Object values (hashicorp/golang-lru/v2),
//   - a byte-addressed cache of raw payload blobs (VictoriaMetrics/fastcache),
//     sized independently since payloads can be large and short-lived, and
//   - request coalescing (golang.org/x/sync/singleflight) so that many
//     replays driven in parallel over the same StateSource never issue two
//     concurrent fetches for the same (id, version).
//
// CachingSource is the shared, thread-safe boundary that makes running many
// replays in parallel over one StateSource safe: everything downstream of it
// (Harness, ObjectStore) stays single-threaded per replay.
type CachingSource struct {
	inner StateSource
	log   *zap.Logger

	packages *lru.Cache[packageKey, *movetypes.PackageData]
	objects  *lru.Cache[objectKey, *movetypes.Object]
	blobs    *fastcache.Cache

	group singleflight.Group
}

// NewCachingSource wraps inner. metaEntries bounds the LRU of decoded
// metadata; blobBytes bounds the fastcache byte store (0 picks a 64MiB
// default, the same small-footprint fastcache sizing used for trie nodes
// elsewhere).
func NewCachingSource(inner StateSource, metaEntries int, blobBytes int, log *zap.Logger) *CachingSource {
	if metaEntries <= 0 {
		metaEntries = 4096
	}
	if blobBytes <= 0 {
		blobBytes = 64 * 1024 * 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	pkgs, _ := lru.New[packageKey, *movetypes.PackageData](metaEntries)
	objs, _ := lru.New[objectKey, *movetypes.Object](metaEntries)
	return &CachingSource{
		inner:    inner,
		log:      log,
		packages: pkgs,
		objects:  objs,
		blobs:    fastcache.New(blobBytes),
	}
}

func blobKey(prefix byte, id movetypes.AccountAddress, version uint64) []byte {
	k := make([]byte, 1+movetypes.AddressLength+8)
	k[0] = prefix
	copy(k[1:], id[:])
	binary.BigEndian.PutUint64(k[1+movetypes.AddressLength:], version)
	return k
}

func (c *CachingSource) FetchTransaction(ctx context.Context, digest string) (*FetchedTransaction, error) {
	// Transactions are fetched at most once per replay; caching them would
	// only help repeated replays of the identical digest, which the LRU for
	// packages/objects already covers indirectly via warm package/object
	// caches. Pass through.
	return c.inner.FetchTransaction(ctx, digest)
}

func (c *CachingSource) FetchPackage(ctx context.Context, id movetypes.AccountAddress, version *uint64) (*movetypes.PackageData, error) {
	v := uint64(0)
	if version != nil {
		v = *version
	}
	key := packageKey{id: id, version: v}
	if cached, ok := c.packages.Get(key); ok {
		return cached, nil
	}

	sfKey := fmt.Sprintf("pkg:%s:%d", id.Hex(), v)
	result, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		data, err := c.inner.FetchPackage(ctx, id, version)
		if err != nil || data == nil {
			return data, err
		}
		c.packages.Add(key, data)
		for i, mod := range data.Modules {
			c.blobs.Set(append(blobKey('m', id, v), []byte(fmt.Sprintf(":%d", i))...), mod.Bytecode)
		}
		return data, nil
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*movetypes.PackageData), nil
}

func (c *CachingSource) FetchObject(ctx context.Context, id movetypes.AccountAddress, versionBound *uint64) (*movetypes.Object, error) {
	vb := uint64(0)
	if versionBound != nil {
		vb = *versionBound
	}
	key := objectKey{id: id, versionBound: vb}
	if cached, ok := c.objects.Get(key); ok {
		return cached, nil
	}

	sfKey := fmt.Sprintf("obj:%s:%d", id.Hex(), vb)
	result, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		obj, err := c.inner.FetchObject(ctx, id, versionBound)
		if err != nil || obj == nil {
			return obj, err
		}
		c.objects.Add(key, obj)
		c.blobs.Set(blobKey('o', id, obj.Version), obj.Payload)
		return obj, nil
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*movetypes.Object), nil
}

func (c *CachingSource) FindDynamicField(ctx context.Context, parent movetypes.AccountAddress, keyBytes []byte, versionBound *uint64) (*DynamicFieldEntry, error) {
	// Dynamic field lookups are keyed by arbitrary BCS bytes per call site;
	// caching them would require hashing keyBytes into the cache key, which
	// is cheap but the hit rate within a single replay is low (each dynamic
	// field is normally touched once). Pass through; the Object Store's own
	// preloaded-fields map (core/objectstore) is the real within-replay cache.
	return c.inner.FindDynamicField(ctx, parent, keyBytes, versionBound)
}

var _ StateSource = (*CachingSource)(nil)
