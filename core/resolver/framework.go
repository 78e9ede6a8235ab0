package resolver

import "github.com/sui-sandbox/replaycore/core/movetypes"

// BundledFrameworkLoader serves framework packages from an in-memory
// constant rather than a StateSource: framework ids are never fetched
// through the historical state path, only loaded from a snapshot bundled
// with the build. Callers populate it once at process startup (e.g. by
// embedding the framework snapshot shipped with a given protocol version)
// and share one instance across every Resolver/Registry.
type BundledFrameworkLoader struct {
	packages map[movetypes.AccountAddress]*movetypes.Package
}

// NewBundledFrameworkLoader returns a loader seeded with packages.
func NewBundledFrameworkLoader(packages map[movetypes.AccountAddress]*movetypes.Package) *BundledFrameworkLoader {
	if packages == nil {
		packages = map[movetypes.AccountAddress]*movetypes.Package{}
	}
	return &BundledFrameworkLoader{packages: packages}
}

func (b *BundledFrameworkLoader) LoadFramework(id movetypes.AccountAddress) (*movetypes.Package, bool) {
	pkg, ok := b.packages[id]
	return pkg, ok
}

var _ FrameworkLoader = (*BundledFrameworkLoader)(nil)
