package resolver

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// Registry is the Module Registry: a map from
// AccountAddress to its named modules, keyed by the address the VM will
// see *at runtime* — which, for an upgraded package, is the package's
// original address even though the bytecode was fetched from its storage
// address. The separate aliases map records runtime -> storage so the VM
// Harness can translate bytecode-internal references.
type Registry struct {
	modules   map[movetypes.AccountAddress]map[string]*movetypes.Module
	aliases   map[movetypes.AccountAddress]movetypes.AccountAddress // runtime -> storage
	inspector BytecodeInspector
	bootstrapped bool
}

// NewRegistry returns an empty registry. inspector may be nil to use
// JSONBytecodeInspector.
func NewRegistry(inspector BytecodeInspector) *Registry {
	if inspector == nil {
		inspector = JSONBytecodeInspector{}
	}
	return &Registry{
		modules:   make(map[movetypes.AccountAddress]map[string]*movetypes.Module),
		aliases:   make(map[movetypes.AccountAddress]movetypes.AccountAddress),
		inspector: inspector,
	}
}

// LoadPackageAt inspects each module and registers it under address. It does
// not compare a module's declared self-address with address: the
// self-address AddPackageModulesAt reports is discarded. It rejects
// re-registration of an already-present (address, module name) pair, with
// the exception of framework bootstrap, which is idempotent.
func (r *Registry) LoadPackageAt(modules []movetypes.Module, address movetypes.AccountAddress, isFrameworkBootstrap bool) error {
	_, _, err := r.AddPackageModulesAt(modules, address, isFrameworkBootstrap)
	return err
}

// AddPackageModulesAt registers modules under target, returning the number
// of modules loaded and the address the bytecode itself declares as its
// self-address (so the caller can register the runtime->storage alias when
// the two differ).
func (r *Registry) AddPackageModulesAt(modules []movetypes.Module, target movetypes.AccountAddress, isFrameworkBootstrap bool) (int, movetypes.AccountAddress, error) {
	if r.modules[target] == nil {
		r.modules[target] = make(map[string]*movetypes.Module)
	}

	actualSource := target
	loaded := 0
	for i := range modules {
		mod := &modules[i]
		meta, err := r.inspector.Inspect(mod.Bytecode)
		if err != nil {
			return loaded, target, errors.Wrapf(err, "registry: inspect module %s", mod.Name)
		}
		if !meta.SelfAddress.IsZero() {
			actualSource = meta.SelfAddress
		}

		if existing, ok := r.modules[target][mod.Name]; ok {
			if isFrameworkBootstrap {
				continue // idempotent re-registration
			}
			return loaded, actualSource, errors.Errorf(
				"registry: module %s already registered at %s (existing bytecode %d bytes, new %d bytes)",
				mod.Name, target.Hex(), len(existing.Bytecode), len(mod.Bytecode))
		}
		r.modules[target][mod.Name] = mod
		loaded++
	}
	return loaded, actualSource, nil
}

// AddAlias records that the runtime address resolves, for loading purposes,
// to storage. Both ends must ultimately resolve to the same module set
//; callers register the alias after confirming the
// storage address's modules have been loaded.
func (r *Registry) AddAlias(runtime, storage movetypes.AccountAddress) {
	if runtime == storage {
		return
	}
	r.aliases[runtime] = storage
}

// ResolveAlias returns the storage address runtime maps to, if any.
func (r *Registry) ResolveAlias(runtime movetypes.AccountAddress) (movetypes.AccountAddress, bool) {
	storage, ok := r.aliases[runtime]
	return storage, ok
}

// GetModule answers "give me module name for package address", accepting
// either the runtime or storage address.
func (r *Registry) GetModule(address movetypes.AccountAddress, name string) (*movetypes.Module, bool) {
	if mods, ok := r.modules[address]; ok {
		if mod, ok := mods[name]; ok {
			return mod, true
		}
	}
	if storage, ok := r.aliases[address]; ok {
		if mods, ok := r.modules[storage]; ok {
			if mod, ok := mods[name]; ok {
				return mod, true
			}
		}
	}
	return nil, false
}

// RuntimeAddressFor returns the runtime (original) address that aliases to
// storage, or storage itself if no alias points to it. Used by the VM
// Harness to decide which address to publish a package's bytecode at
//.
func (r *Registry) RuntimeAddressFor(storage movetypes.AccountAddress) movetypes.AccountAddress {
	for runtime, strg := range r.aliases {
		if strg == storage {
			return runtime
		}
	}
	return storage
}

// IterModules returns every (address, module) pair currently registered,
// keyed by the address they were registered under (not resolved through
// aliases).
func (r *Registry) IterModules() map[movetypes.AccountAddress][]*movetypes.Module {
	out := make(map[movetypes.AccountAddress][]*movetypes.Module, len(r.modules))
	for addr, mods := range r.modules {
		list := make([]*movetypes.Module, 0, len(mods))
		for _, mod := range mods {
			list = append(list, mod)
		}
		out[addr] = list
	}
	return out
}

// LoadResolved registers every package produced by a Resolver.Result,
// aliasing each runtime (original) address to its storage address whenever
// they differ. This is the bridge between package resolution and the
// module registry.
func (r *Registry) LoadResolved(result *Result) error {
	for storageKey, pkg := range result.Packages {
		isFramework := movetypes.IsFrameworkPackage(storageKey)
		count, actualSource, err := r.AddPackageModulesAt(pkg.Modules, storageKey, isFramework)
		if err != nil {
			return errors.Wrapf(err, "registry: load package %s", storageKey.Hex())
		}
		if count == 0 && len(pkg.Modules) > 0 && !isFramework {
			return errors.Errorf("registry: invariant violation: %s loaded zero modules from %d", storageKey.Hex(), len(pkg.Modules))
		}
		if actualSource != storageKey {
			r.AddAlias(actualSource, storageKey)
		}
		if upgraded, ok := result.LinkageUpgrades[storageKey]; ok && upgraded != storageKey {
			r.AddAlias(storageKey, upgraded)
		}
	}
	return nil
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry{packages:%d aliases:%d}", len(r.modules), len(r.aliases))
}
