package replay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sui-sandbox/replaycore/core/callgraph"
	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/reconstruct"
	"github.com/sui-sandbox/replaycore/core/replay/config"
	"github.com/sui-sandbox/replaycore/core/resolver"
	"github.com/sui-sandbox/replaycore/core/source"
	"github.com/sui-sandbox/replaycore/core/tagging"
	"github.com/sui-sandbox/replaycore/core/vm"
)

type noFramework struct{}

func (noFramework) LoadFramework(movetypes.AccountAddress) (*movetypes.Package, bool) { return nil, false }

// fakeVM creates one new object per CallFunction invocation, deterministically
// from the command index, mirroring the double used in core/vm's own tests.
type fakeVM struct {
	calls []vm.CallMetadata
}

func (f *fakeVM) Install(ext *vm.Extensions) error { return nil }
func (f *fakeVM) PublishModule(runtimeAddr movetypes.AccountAddress, mod movetypes.Module) error {
	return nil
}
func (f *fakeVM) RegisterInput(obj *movetypes.Object, ownership movetypes.Ownership, containedIDs []movetypes.AccountAddress) error {
	return nil
}
func (f *fakeVM) CallFunction(ctx context.Context, call vm.CallMetadata, args []vm.Value) (vm.CallOutcome, error) {
	f.calls = append(f.calls, call)
	created := movetypes.HexToAddress("0x" + string(rune('a'+call.CommandIndex)))
	return vm.CallOutcome{
		Returns: []vm.Value{{ObjectID: &created}},
		Mutations: []vm.MutationRecord{
			{ObjectID: created, Kind: tagging.MutationCreated, NewType: "0x2::coin::Coin", NewBytes: []byte{1, 2, 3}},
		},
		GasUsed: 10,
	}, nil
}

func baseEngineConfig() EngineConfig {
	return EngineConfig{
		Resolver:    resolver.DefaultConfig(),
		Reconstruct: reconstruct.DefaultConfig(),
		Replay:      config.Config{ChildResolutionMode: "sandbox"},
	}
}

func seedSimpleTransaction(fs *source.FixtureSource, digest string, pkgID movetypes.AccountAddress) {
	fs.PutPackage(pkgID, &movetypes.PackageData{ID: pkgID, Version: 1, Modules: []movetypes.Module{{Name: "m"}}})
	fs.Transactions[digest] = &source.FetchedTransaction{
		Transaction: &movetypes.TransactionRecord{
			Digest: digest,
			Sender: movetypes.HexToAddress("0x1"),
			Commands: []movetypes.Command{
				{Kind: movetypes.CommandMoveCall, Package: pkgID, ModuleName: "m", FunctionName: "f"},
			},
		},
	}
}

func TestEngineReplaySuccess(t *testing.T) {
	fs := source.NewFixtureSource()
	pkgID := movetypes.HexToAddress("0x10")
	seedSimpleTransaction(fs, "deadbeef", pkgID)

	fvm := &fakeVM{}
	engine := NewEngine(fs, noFramework{}, resolver.JSONBytecodeInspector{}, func() vm.NativeVM { return fvm }, nil, nil, zap.NewNop(), baseEngineConfig())

	result, err := engine.Replay(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotEmpty(t, result.ReplayID)
	require.NotNil(t, result.EffectsLocal)
	require.Len(t, result.EffectsLocal.Created, 1)
	require.Len(t, fvm.calls, 1)
}

func TestEngineReplayMissingTransactionFails(t *testing.T) {
	fs := source.NewFixtureSource()
	engine := NewEngine(fs, noFramework{}, resolver.JSONBytecodeInspector{}, func() vm.NativeVM { return &fakeVM{} }, nil, nil, zap.NewNop(), baseEngineConfig())

	result, err := engine.Replay(context.Background(), "unknown-digest")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
}

func TestEngineReplayReconciliationMismatch(t *testing.T) {
	fs := source.NewFixtureSource()
	pkgID := movetypes.HexToAddress("0x10")
	seedSimpleTransaction(fs, "deadbeef", pkgID)
	// on-chain effects record no created objects, but the VM double always
	// creates one, so a strict comparison must flag it.
	fs.Transactions["deadbeef"].Transaction.Effects = movetypes.Effects{Status: movetypes.StatusSuccess}

	cfg := baseEngineConfig()
	cfg.Replay.Compare = true
	cfg.Replay.Reconciliation = config.ReconciliationStrict
	engine := NewEngine(fs, noFramework{}, resolver.JSONBytecodeInspector{}, func() vm.NativeVM { return &fakeVM{} }, nil, nil, zap.NewNop(), cfg)

	result, err := engine.Replay(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Comparison)
	require.False(t, result.Comparison.Match)
}

func TestAnalyzeOnlyReportsMissingPackage(t *testing.T) {
	fs := source.NewFixtureSource()
	digest := "deadbeef"
	pkgID := movetypes.HexToAddress("0x10")
	// Transaction references pkgID, but no package is registered for it.
	fs.Transactions[digest] = &source.FetchedTransaction{
		Transaction: &movetypes.TransactionRecord{
			Digest: digest,
			Commands: []movetypes.Command{
				{Kind: movetypes.CommandMoveCall, Package: pkgID, ModuleName: "m", FunctionName: "f"},
			},
		},
	}

	engine := NewEngine(fs, noFramework{}, resolver.JSONBytecodeInspector{}, func() vm.NativeVM { return &fakeVM{} }, nil, nil, zap.NewNop(), baseEngineConfig())

	result, err := engine.AnalyzeOnly(context.Background(), digest)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.MissingPackages, pkgID)
}

func TestAnalyzeOnlySucceedsWhenFullyResolvable(t *testing.T) {
	fs := source.NewFixtureSource()
	pkgID := movetypes.HexToAddress("0x10")
	seedSimpleTransaction(fs, "deadbeef", pkgID)

	engine := NewEngine(fs, noFramework{}, resolver.JSONBytecodeInspector{}, func() vm.NativeVM { return &fakeVM{} }, nil, nil, zap.NewNop(), baseEngineConfig())

	result, err := engine.AnalyzeOnly(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.MissingPackages)
	require.Empty(t, result.MissingInputs)
}

// fixtureCallEdge/fixtureModuleCalls mirror the JSON wire shape
// callgraph.JSONCallExtractor reads, since its own jsonCallEdge type is
// unexported.
type fixtureCallEdge struct {
	CalleePackage  string   `json:"callee_package"`
	CalleeModule   string   `json:"callee_module"`
	CalleeFunction string   `json:"callee_function"`
	TypeArgs       []string `json:"type_args"`
}

type fixtureModuleCalls map[string][]fixtureCallEdge

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// blockingVM blocks command 0's CallFunction until release is closed, so a
// test can cancel the engine's session while execution is mid-flight and
// observe the next command boundary honor it.
type blockingVM struct {
	release chan struct{}
}

func (b *blockingVM) Install(ext *vm.Extensions) error { return nil }
func (b *blockingVM) PublishModule(runtimeAddr movetypes.AccountAddress, mod movetypes.Module) error {
	return nil
}
func (b *blockingVM) RegisterInput(obj *movetypes.Object, ownership movetypes.Ownership, containedIDs []movetypes.AccountAddress) error {
	return nil
}
func (b *blockingVM) CallFunction(ctx context.Context, call vm.CallMetadata, args []vm.Value) (vm.CallOutcome, error) {
	if call.CommandIndex == 0 {
		<-b.release
	}
	return vm.CallOutcome{}, nil
}

func TestEngineReplayCancelledViaSessionRegistry(t *testing.T) {
	fs := source.NewFixtureSource()
	pkgID := movetypes.HexToAddress("0x10")
	fs.PutPackage(pkgID, &movetypes.PackageData{ID: pkgID, Version: 1, Modules: []movetypes.Module{{Name: "m"}}})
	fs.Transactions["deadbeef"] = &source.FetchedTransaction{
		Transaction: &movetypes.TransactionRecord{
			Digest: "deadbeef",
			Sender: movetypes.HexToAddress("0x1"),
			Commands: []movetypes.Command{
				{Kind: movetypes.CommandMoveCall, Package: pkgID, ModuleName: "m", FunctionName: "f"},
				{Kind: movetypes.CommandMoveCall, Package: pkgID, ModuleName: "m", FunctionName: "g"},
			},
		},
	}

	bvm := &blockingVM{release: make(chan struct{})}
	cfg := baseEngineConfig()

	var sessionID SessionID
	captured := make(chan struct{})
	cfg.OnSession = func(id SessionID) {
		sessionID = id
		close(captured)
	}

	engine := NewEngine(fs, noFramework{}, resolver.JSONBytecodeInspector{}, func() vm.NativeVM { return bvm }, nil, nil, zap.NewNop(), cfg)

	go func() {
		<-captured
		engine.Cancel(sessionID)
		close(bvm.release)
	}()

	result, err := engine.Replay(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	require.Contains(t, *result.Error, "cancelled")
}

func TestEnginePredictedAccessesPopulatedFromCallGraph(t *testing.T) {
	fs := source.NewFixtureSource()
	pkgID := movetypes.HexToAddress("0x10")
	seedSimpleTransaction(fs, "deadbeef", pkgID)

	fieldPkg := &movetypes.Package{
		OriginalID: movetypes.HexToAddress("0x2"),
		StorageID:  movetypes.HexToAddress("0x2"),
		Modules: []movetypes.Module{{
			Name:     "dynamic_field",
			Bytecode: mustMarshal(t, fixtureModuleCalls{"borrow": nil}),
		}},
	}
	userPkg := &movetypes.Package{
		OriginalID: pkgID,
		StorageID:  pkgID,
		Modules: []movetypes.Module{{
			Name: "m",
			Bytecode: mustMarshal(t, fixtureModuleCalls{
				"f": {{CalleePackage: movetypes.HexToAddress("0x2").Hex(), CalleeModule: "dynamic_field", CalleeFunction: "borrow", TypeArgs: []string{"T0", "T1"}}},
			}),
		}},
	}

	graph := callgraph.New(nil)
	require.NoError(t, graph.LoadPackage(fieldPkg))
	require.NoError(t, graph.LoadPackage(userPkg))
	graph.Propagate()

	cfg := baseEngineConfig()
	cfg.CallGraph = graph
	fvm := &fakeVM{}
	engine := NewEngine(fs, noFramework{}, resolver.JSONBytecodeInspector{}, func() vm.NativeVM { return fvm }, nil, nil, zap.NewNop(), cfg)

	result, err := engine.Replay(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.PredictedAccesses, 1)
	require.Equal(t, 0, result.PredictedAccesses[0].CommandIndex)
	require.NotEmpty(t, result.PredictedAccesses[0].Accesses)
}
