package vm

import (
	"context"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/objectstore"
)

// ChildObjectResolver is the native-extension seam a NativeVM consults to
// resolve a dynamic-field child during execution. Implemented by
// storeResolver below, backed by the harness's objectstore.Store.
type ChildObjectResolver interface {
	ReadChild(ctx context.Context, parent, child movetypes.AccountAddress, versionBound uint64) (*objectstore.ChildEntry, bool, error)
	ReadKeyedChild(ctx context.Context, parent movetypes.AccountAddress, keyType movetypes.TypeTag, keyBytes []byte) (*objectstore.KeyedChildEntry, bool, error)
}

type storeResolver struct {
	store *objectstore.Store
}

func (r storeResolver) ReadChild(ctx context.Context, parent, child movetypes.AccountAddress, versionBound uint64) (*objectstore.ChildEntry, bool, error) {
	return r.store.ResolveChild(ctx, parent, child, versionBound)
}

func (r storeResolver) ReadKeyedChild(ctx context.Context, parent movetypes.AccountAddress, keyType movetypes.TypeTag, keyBytes []byte) (*objectstore.KeyedChildEntry, bool, error) {
	return r.store.ResolveKeyed(ctx, parent, keyType, keyBytes)
}

// TxContext is the subset of transaction-scoped data natives can read
// (sender, digest, epoch, time, gas).
type TxContext struct {
	Sender      movetypes.AccountAddress
	Digest      string
	Epoch       uint64
	TimestampMs uint64
	GasPrice    uint64
}

// Extensions bundles everything a NativeVM needs installed before it can
// execute commands: the child-object resolver, the
// transaction context, and the natives cost table.
type Extensions struct {
	Resolver          ChildObjectResolver
	TxContext         TxContext
	NativesCostTable  map[string]uint64
	NativeGasMetering bool
}

// newExtensions builds the Extensions bundle for a harness execution.
func newExtensions(store *objectstore.Store, tx TxContext, costTable map[string]uint64, meterNativeGas bool) *Extensions {
	return &Extensions{
		Resolver:          storeResolver{store: store},
		TxContext:         tx,
		NativesCostTable:  costTable,
		NativeGasMetering: meterNativeGas,
	}
}
