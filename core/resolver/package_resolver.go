// Package resolver implements the Historical Package Resolver and the Module Registry: following on-chain linkage
// tables through arbitrary upgrade chains to load the exact bytecode that
// executed at a given checkpoint, including self-upgrade detection.
//
// Reworked into Go using a small constructor-returned struct plus
// golang-set frontiers instead of a BFS over raw HashSets.
package resolver

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/source"
)

// Config tunes the BFS closure.
type Config struct {
	// MaxDependencyDepth caps the transitive package-closure BFS.
	MaxDependencyDepth int
	// SkipFramework avoids fetching framework packages over the source,
	// loading them from the bundled copy instead.
	SkipFramework bool
	// BestEffort, if true, continues past fetch errors (aggregating them)
	// rather than aborting the whole resolution on the first one.
	BestEffort bool
}

// DefaultConfig returns the resolver's stated defaults.
func DefaultConfig() Config {
	return Config{MaxDependencyDepth: 10, SkipFramework: true}
}

// Resolver is the Historical Package Resolver.
type Resolver struct {
	fetcher   source.PackageFetcher
	framework FrameworkLoader
	inspector BytecodeInspector
	config    Config
	log       *zap.Logger
}

// FrameworkLoader returns the bundled copy of a framework package, never
// touching the StateSource.
type FrameworkLoader interface {
	LoadFramework(id movetypes.AccountAddress) (*movetypes.Package, bool)
}

// New constructs a Resolver. inspector may be nil to use JSONBytecodeInspector.
func New(fetcher source.PackageFetcher, framework FrameworkLoader, config Config, inspector BytecodeInspector, log *zap.Logger) *Resolver {
	if inspector == nil {
		inspector = JSONBytecodeInspector{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if config.MaxDependencyDepth <= 0 {
		config.MaxDependencyDepth = 10
	}
	return &Resolver{fetcher: fetcher, framework: framework, inspector: inspector, config: config, log: log}
}

// Result is the resolver's output: the transitive package closure keyed by
// the address the VM will reference, plus the discovered linkage redirects.
type Result struct {
	Packages        map[movetypes.AccountAddress]*movetypes.Package
	LinkageUpgrades map[movetypes.AccountAddress]movetypes.AccountAddress
}

// fetchRecord remembers, for a package we've accepted, which address it was
// actually fetched from — needed by the refetch pass.
type fetchRecord struct {
	fetchedFrom movetypes.AccountAddress
}

// Resolve runs the BFS closure over seedIDs. knownVersions maps an address
// to the historical version the on-chain effects pinned it at; a package
// absent from the map is fetched at "latest at source".
func (r *Resolver) Resolve(ctx context.Context, seedIDs []movetypes.AccountAddress, knownVersions map[movetypes.AccountAddress]uint64) (*Result, error) {
	packages := make(map[movetypes.AccountAddress]*movetypes.Package)
	linkageUpgrades := make(map[movetypes.AccountAddress]movetypes.AccountAddress)
	linkageOriginals := make(map[movetypes.AccountAddress]movetypes.AccountAddress)
	fetchedFrom := make(map[movetypes.AccountAddress]fetchRecord)

	fetched := mapset.NewThreadUnsafeSet[movetypes.AccountAddress]()
	frontier := mapset.NewThreadUnsafeSet(seedIDs...)

	var errs error

	for depth := 0; depth < r.config.MaxDependencyDepth && frontier.Cardinality() > 0; depth++ {
		next := mapset.NewThreadUnsafeSet[movetypes.AccountAddress]()

		for id := range frontier.Iter() {
			if fetched.Contains(id) {
				continue
			}

			if r.config.SkipFramework && movetypes.IsFrameworkPackage(id) {
				fetched.Add(id)
				if pkg, ok := r.framework.LoadFramework(id); ok {
					packages[id] = pkg
				}
				continue
			}

			fetchID := id
			if upgraded, ok := linkageUpgrades[id]; ok {
				fetchID = upgraded
			}

			var version *uint64
			if v, ok := knownVersions[fetchID]; ok {
				version = &v
			}

			data, err := r.fetcher.FetchPackage(ctx, fetchID, version)
			if err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "resolver: fetch %s", fetchID.Hex()))
				fetched.Add(id)
				fetched.Add(fetchID)
				if !r.config.BestEffort {
					return nil, errs
				}
				continue
			}
			if data == nil {
				// Missing package: record as visited, let downstream execution
				// fail with a clear "missing package" error.
				fetched.Add(id)
				fetched.Add(fetchID)
				continue
			}

			// Self-upgrade detection: a linkage entry whose original_id equals
			// the address we just fetched from, but whose upgraded_id differs.
			if selfUpgraded, ok := findSelfUpgrade(data.Linkage, fetchID); ok {
				linkageUpgrades[fetchID] = selfUpgraded
				linkageOriginals[selfUpgraded] = fetchID
				next.Add(selfUpgraded)
				// Discard this payload (it's the stale v1); re-fetch will happen
				// either later in this loop (selfUpgraded in next frontier) or in
				// the refetch pass below.
				continue
			}

			// Process the rest of the linkage table for redirects.
			for _, entry := range data.Linkage {
				if r.config.SkipFramework && movetypes.IsFrameworkPackage(entry.OriginalID) {
					continue
				}
				if entry.OriginalID == entry.UpgradedID {
					continue
				}
				linkageUpgrades[entry.OriginalID] = entry.UpgradedID
				linkageOriginals[entry.UpgradedID] = entry.OriginalID
				if !fetched.Contains(entry.UpgradedID) {
					if _, exists := packages[entry.UpgradedID]; !exists {
						next.Add(entry.UpgradedID)
					}
				}
			}

			// Decide the storage key: if this was a redirected fetch, key by the
			// original id; otherwise key by id itself unless a previously seen
			// redirect points here.
			storageKey := id
			if id != fetchID {
				storageKey = id
			} else if orig, ok := linkageOriginals[id]; ok {
				storageKey = orig
			}

			pkg := materializePackage(storageKey, fetchID, data)
			packages[storageKey] = pkg
			fetchedFrom[storageKey] = fetchRecord{fetchedFrom: fetchID}

			deps, depErr := r.moduleDependencies(pkg)
			if depErr != nil {
				errs = multierr.Append(errs, depErr)
			}
			for _, dep := range deps {
				target := dep
				if upgraded, ok := linkageUpgrades[dep]; ok {
					target = upgraded
				}
				if !fetched.Contains(target) {
					if _, exists := packages[target]; !exists {
						next.Add(target)
					}
				}
			}

			fetched.Add(storageKey)
			fetched.Add(fetchID)
			fetched.Add(id)
		}

		frontier = next
	}

	if frontier.Cardinality() > 0 {
		r.log.Warn("resolver: max dependency depth exceeded, returning best-effort closure",
			zap.Int("max_depth", r.config.MaxDependencyDepth),
			zap.Int("remaining", frontier.Cardinality()))
	}

	if err := r.refetchUpgraded(ctx, packages, linkageUpgrades, knownVersions); err != nil {
		errs = multierr.Append(errs, err)
	}

	return &Result{Packages: packages, LinkageUpgrades: linkageUpgrades}, errs
}

// findSelfUpgrade scans linkage for an entry whose original_id equals
// fetchedFrom but whose upgraded_id differs.
func findSelfUpgrade(linkage []movetypes.LinkageEntry, fetchedFrom movetypes.AccountAddress) (movetypes.AccountAddress, bool) {
	for _, entry := range linkage {
		if entry.OriginalID == fetchedFrom && entry.UpgradedID != fetchedFrom {
			return entry.UpgradedID, true
		}
	}
	return movetypes.AccountAddress{}, false
}

func materializePackage(storageKey, fetchedFrom movetypes.AccountAddress, data *movetypes.PackageData) *movetypes.Package {
	return &movetypes.Package{
		StorageID:       fetchedFrom,
		OriginalID:      storageKey,
		Version:         data.Version,
		Modules:         data.Modules,
		Linkage:         data.Linkage,
		TypeOriginTable: map[string]movetypes.AccountAddress{},
	}
}

// moduleDependencies extracts the transitive import-table references for
// every module in pkg, deduplicated.
func (r *Resolver) moduleDependencies(pkg *movetypes.Package) ([]movetypes.AccountAddress, error) {
	seen := map[movetypes.AccountAddress]bool{}
	var out []movetypes.AccountAddress
	var errs error
	for _, mod := range pkg.Modules {
		deps, err := ExtractDependencies(r.inspector, mod)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, dep := range deps {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
			}
		}
	}
	return out, errs
}

// refetchUpgraded re-fetches, at the upgraded address, any package whose
// cache entry still holds v1 bytecode fetched before the upgrade was
// discovered via another package's linkage table, and replaces the entry at
// the original key with the upgraded payload.
func (r *Resolver) refetchUpgraded(ctx context.Context, packages map[movetypes.AccountAddress]*movetypes.Package, linkageUpgrades map[movetypes.AccountAddress]movetypes.AccountAddress, knownVersions map[movetypes.AccountAddress]uint64) error {
	var errs error
	for original, upgraded := range linkageUpgrades {
		existing, haveOriginal := packages[original]
		if haveOriginal && existing.StorageID == upgraded {
			continue // already holds the upgraded payload
		}
		if _, haveUpgraded := packages[upgraded]; haveUpgraded && !haveOriginal {
			continue
		}

		var version *uint64
		if v, ok := knownVersions[upgraded]; ok {
			version = &v
		}
		data, err := r.fetcher.FetchPackage(ctx, upgraded, version)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "resolver: refetch %s", upgraded.Hex()))
			continue
		}
		if data == nil {
			continue
		}
		packages[original] = materializePackage(original, upgraded, data)
	}
	return errs
}
