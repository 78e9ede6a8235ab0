package resolver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/source"
)

type noFramework struct{}

func (noFramework) LoadFramework(movetypes.AccountAddress) (*movetypes.Package, bool) {
	return nil, false
}

func metaBytes(t *testing.T, meta ModuleMeta) []byte {
	t.Helper()
	b, err := json.Marshal(meta)
	require.NoError(t, err)
	return b
}

func fetcherFromFixture(fs *source.FixtureSource) source.PackageFetcher {
	return source.AsPackageFetcher(fs)
}

func TestResolveFollowsLinkageClosure(t *testing.T) {
	fs := source.NewFixtureSource()

	root := movetypes.HexToAddress("0x10")
	dep := movetypes.HexToAddress("0x11")

	fs.PutPackage(dep, &movetypes.PackageData{
		ID: dep, Version: 1,
		Modules: []movetypes.Module{{Name: "d", Bytecode: metaBytes(t, ModuleMeta{SelfAddress: dep})}},
	})
	fs.PutPackage(root, &movetypes.PackageData{
		ID: root, Version: 1,
		Modules: []movetypes.Module{{
			Name:     "m",
			Bytecode: metaBytes(t, ModuleMeta{SelfAddress: root, Imports: []movetypes.AccountAddress{dep}}),
		}},
	})

	r := New(fetcherFromFixture(fs), noFramework{}, DefaultConfig(), JSONBytecodeInspector{}, nil)
	result, err := r.Resolve(context.Background(), []movetypes.AccountAddress{root}, nil)
	require.NoError(t, err)
	require.Contains(t, result.Packages, root)
	require.Contains(t, result.Packages, dep)
}

func TestResolveSkipsFrameworkPackages(t *testing.T) {
	fs := source.NewFixtureSource()
	fw := movetypes.HexToAddress("0x2")

	r := New(fetcherFromFixture(fs), noFramework{}, DefaultConfig(), JSONBytecodeInspector{}, nil)
	result, err := r.Resolve(context.Background(), []movetypes.AccountAddress{fw}, nil)
	require.NoError(t, err)
	// noFramework never supplies a bundled copy, so the framework seed
	// resolves to nothing rather than a source fetch.
	require.NotContains(t, result.Packages, fw)
	require.Empty(t, fs.Calls)
}

func TestResolveDetectsSelfUpgrade(t *testing.T) {
	fs := source.NewFixtureSource()

	v1 := movetypes.HexToAddress("0x20")
	v2 := movetypes.HexToAddress("0x21")

	fs.PutPackage(v1, &movetypes.PackageData{
		ID: v1, Version: 1,
		Modules: []movetypes.Module{{Name: "m", Bytecode: metaBytes(t, ModuleMeta{SelfAddress: v1})}},
		Linkage: []movetypes.LinkageEntry{{OriginalID: v1, UpgradedID: v2, Version: 2}},
	})
	fs.PutPackage(v2, &movetypes.PackageData{
		ID: v2, Version: 2,
		Modules: []movetypes.Module{{Name: "m", Bytecode: metaBytes(t, ModuleMeta{SelfAddress: v2})}},
	})

	r := New(fetcherFromFixture(fs), noFramework{}, DefaultConfig(), JSONBytecodeInspector{}, nil)
	result, err := r.Resolve(context.Background(), []movetypes.AccountAddress{v1}, nil)
	require.NoError(t, err)
	require.Equal(t, v2, result.LinkageUpgrades[v1])
	pkg, ok := result.Packages[v1]
	require.True(t, ok)
	require.Equal(t, v2, pkg.StorageID)
}

func TestResolveMissingPackageIsTolerated(t *testing.T) {
	fs := source.NewFixtureSource()
	missing := movetypes.HexToAddress("0x30")

	r := New(fetcherFromFixture(fs), noFramework{}, DefaultConfig(), JSONBytecodeInspector{}, nil)
	result, err := r.Resolve(context.Background(), []movetypes.AccountAddress{missing}, nil)
	require.NoError(t, err)
	require.NotContains(t, result.Packages, missing)
}
