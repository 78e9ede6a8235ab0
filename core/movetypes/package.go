package movetypes

// Module is a single named bytecode unit inside a Package. The concrete
// bit-level encoding of Bytecode is out of scope: the core
// treats it as an opaque payload plus whatever semantic fields a given
// operation needs (import table, declared self-address, declared constants),
// which are extracted on demand by a core/resolver.BytecodeInspector.
type Module struct {
	Name     string
	Bytecode []byte
}

// LinkageEntry is one row of a package's linkage table: a mapping from the
// original (type-identity) address of a dependency to the storage address
// the VM should actually load it from.
type LinkageEntry struct {
	OriginalID AccountAddress
	UpgradedID AccountAddress
	Version    uint64
}

// Package is a unit of published bytecode. OriginalID, StorageID and the
// linkage table together track it across upgrades: OriginalID never changes,
// StorageID is wherever the current bytecode for that original lives, and
// the linkage table records each dependency's original-to-storage mapping
// as of this package's own publish/upgrade.
type Package struct {
	// StorageID is the address the package lives at today.
	StorageID AccountAddress
	// OriginalID is the address its types are defined at; invariant across
	// upgrades.
	OriginalID AccountAddress
	// Version is the monotonically increasing publish/upgrade counter.
	Version uint64
	// Modules is the insertion-ordered list of named bytecode payloads.
	// Module names are unique within a package.
	Modules []Module
	// Linkage is this package's own linkage table: the set of
	// {original, upgraded, version} triples it declares for its
	// dependencies (and, for a self-upgraded package, for itself).
	Linkage []LinkageEntry
	// TypeOriginTable tracks, per fully-qualified struct name, which package
	// version first declared that type. The resolver sets it to an empty map;
	// nothing in this module reads it when resolving type arguments.
	TypeOriginTable map[string]AccountAddress
}

// IsSelfUpgradeV1 reports whether this package is a v1 package, i.e. its
// storage and original addresses coincide.
func (p *Package) IsSelfUpgradeV1() bool {
	return p.OriginalID == p.StorageID
}

// Module looks up a module by name, returning (nil, false) on miss.
func (p *Package) Module(name string) (*Module, bool) {
	for i := range p.Modules {
		if p.Modules[i].Name == name {
			return &p.Modules[i], true
		}
	}
	return nil, false
}

// PackageData is the raw form returned by a PackageFetcher / StateSource
// before resolver bookkeeping (storage-key decisions, alias recording) has
// been applied.
type PackageData struct {
	ID      AccountAddress
	Version uint64
	Modules []Module
	Linkage []LinkageEntry
}
