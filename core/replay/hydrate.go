package replay

import (
	"context"

	"go.uber.org/zap"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/resolver"
	"github.com/sui-sandbox/replaycore/core/source"
)

// HydrateResult is the engine's first step output:
// the assembled ReplayState plus the input ids the source could not produce
// (fed into the recovery step when synthesize_missing is set).
type HydrateResult struct {
	State          *movetypes.ReplayState
	MissingObjects []movetypes.AccountAddress
}

// Hydrate fetches digest's transaction, every object it references at its
// historical version, and the transitive package closure for every package
// the transaction's commands reference.
func Hydrate(ctx context.Context, src source.StateSource, digest string, resolverCfg resolver.Config, framework resolver.FrameworkLoader, inspector resolver.BytecodeInspector, log *zap.Logger) (*HydrateResult, error) {
	ft, err := src.FetchTransaction(ctx, digest)
	if err != nil {
		return nil, &SourceError{Op: "FetchTransaction", Err: err}
	}
	if ft == nil || ft.Transaction == nil {
		return nil, &MissingObjectError{}
	}
	tx := ft.Transaction

	versions := collectObjectVersions(tx)
	objects := make(map[movetypes.AccountAddress]*movetypes.Object, len(versions))
	var missing []movetypes.AccountAddress
	for id, v := range versions {
		version := v
		obj, err := src.FetchObject(ctx, id, &version)
		if err != nil {
			return nil, &SourceError{Op: "FetchObject", Err: err}
		}
		if obj == nil {
			missing = append(missing, id)
			continue
		}
		objects[id] = obj
	}

	seeds := collectPackageSeeds(tx)
	res, err := resolver.New(source.AsPackageFetcher(src), framework, resolverCfg, inspector, log).Resolve(ctx, seeds, nil)
	if err != nil {
		return nil, &SourceError{Op: "ResolvePackages", Err: err}
	}

	state := &movetypes.ReplayState{
		Packages:          res.Packages,
		Objects:           objects,
		Transaction:       tx,
		ReferenceGasPrice: tx.GasPrice,
		Checkpoint:        ft.Checkpoint,
		LinkageUpgrades:   res.LinkageUpgrades,
	}
	return &HydrateResult{State: state, MissingObjects: missing}, nil
}

// collectObjectVersions gathers every object id the transaction references
// together with the historical version it should be fetched at: the inputs'
// own declared versions, plus the pinned versions of shared objects the
// on-chain effects recorded.
func collectObjectVersions(tx *movetypes.TransactionRecord) map[movetypes.AccountAddress]uint64 {
	versions := make(map[movetypes.AccountAddress]uint64)
	for _, in := range tx.Inputs {
		switch in.Kind {
		case movetypes.InputOwned, movetypes.InputImmutable, movetypes.InputReceiving:
			versions[in.ID] = in.Version
		case movetypes.InputShared:
			versions[in.ID] = in.InitialVersion
		}
	}
	for id, v := range tx.Effects.SharedObjectVersions {
		versions[id] = v
	}
	return versions
}

// collectPackageSeeds gathers the package addresses directly named by the
// transaction's commands. Type-argument references are not parsed: TypeTag
// is kept opaque by design (movetypes.TypeTag), so packages reachable only
// through a type argument surface later as missing-package failures during
// linkage resolution rather than being preemptively seeded here.
func collectPackageSeeds(tx *movetypes.TransactionRecord) []movetypes.AccountAddress {
	seen := make(map[movetypes.AccountAddress]bool)
	var out []movetypes.AccountAddress
	add := func(id movetypes.AccountAddress) {
		if id.IsZero() || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, cmd := range tx.Commands {
		switch cmd.Kind {
		case movetypes.CommandMoveCall:
			add(cmd.Package)
		case movetypes.CommandUpgrade:
			add(cmd.UpgradePackage)
		case movetypes.CommandPublish:
			for _, dep := range cmd.PublishDeps {
				add(dep)
			}
		}
	}
	return out
}
