package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

func TestAddPackageModulesAtRejectsReRegistration(t *testing.T) {
	reg := NewRegistry(nil)
	target := movetypes.HexToAddress("0x10")
	mods := []movetypes.Module{{Name: "m"}}

	_, _, err := reg.AddPackageModulesAt(mods, target, false)
	require.NoError(t, err)

	_, _, err = reg.AddPackageModulesAt(mods, target, false)
	require.Error(t, err)
}

func TestAddPackageModulesAtFrameworkBootstrapIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	target := movetypes.HexToAddress("0x2")
	mods := []movetypes.Module{{Name: "coin"}}

	_, _, err := reg.AddPackageModulesAt(mods, target, true)
	require.NoError(t, err)

	_, _, err = reg.AddPackageModulesAt(mods, target, true)
	require.NoError(t, err)
}

func TestGetModuleResolvesThroughAlias(t *testing.T) {
	reg := NewRegistry(nil)
	storage := movetypes.HexToAddress("0x20")
	runtime := movetypes.HexToAddress("0x21")

	_, _, err := reg.AddPackageModulesAt([]movetypes.Module{{Name: "m"}}, storage, false)
	require.NoError(t, err)
	reg.AddAlias(runtime, storage)

	mod, ok := reg.GetModule(runtime, "m")
	require.True(t, ok)
	require.Equal(t, "m", mod.Name)

	require.Equal(t, runtime, reg.RuntimeAddressFor(storage))
}

func TestLoadResolvedAliasesSelfDeclaredAddress(t *testing.T) {
	reg := NewRegistry(JSONBytecodeInspector{})
	storageKey := movetypes.HexToAddress("0x30")
	declared := movetypes.HexToAddress("0x31")

	meta := metaBytes(t, ModuleMeta{SelfAddress: declared})
	result := &Result{
		Packages: map[movetypes.AccountAddress]*movetypes.Package{
			storageKey: {
				StorageID:  storageKey,
				OriginalID: storageKey,
				Modules:    []movetypes.Module{{Name: "m", Bytecode: meta}},
			},
		},
		LinkageUpgrades: map[movetypes.AccountAddress]movetypes.AccountAddress{},
	}

	require.NoError(t, reg.LoadResolved(result))
	mod, ok := reg.GetModule(declared, "m")
	require.True(t, ok)
	require.Equal(t, "m", mod.Name)
}
