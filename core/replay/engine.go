// Package replay implements the Replay Engine: the
// orchestrator that hydrates a transaction's historical state, reconstructs
// patched object payloads, registers everything with a VM Harness, executes,
// optionally recovers from missing inputs/dynamic fields, reconciles against
// on-chain effects, and reports a stable ReplayResult document.
//
// Shaped like a block processor's fetch -> preload -> execute -> collect
// pipeline, generalized from "process one block of Ethereum transactions" to
// "replay one historical Move transaction".
package replay

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sui-sandbox/replaycore/core/callgraph"
	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/objectstore"
	"github.com/sui-sandbox/replaycore/core/reconstruct"
	"github.com/sui-sandbox/replaycore/core/replay/config"
	"github.com/sui-sandbox/replaycore/core/replay/telemetry"
	"github.com/sui-sandbox/replaycore/core/resolver"
	"github.com/sui-sandbox/replaycore/core/source"
	"github.com/sui-sandbox/replaycore/core/tagging"
	"github.com/sui-sandbox/replaycore/core/vm"
)

// EngineConfig bundles everything an Engine needs beyond the StateSource.
type EngineConfig struct {
	Resolver    resolver.Config
	Reconstruct reconstruct.Config
	Replay      config.Config

	// InputTypeHints declares the Move type of inputs the source might be
	// unable to produce, so the recovery step can synthesize a minimum-valid
	// payload for them. Populated by a caller that has
	// out-of-band knowledge of the transaction's expected input types (e.g.
	// from a prior successful replay, or from AnalyzeOnly's command summary).
	InputTypeHints map[movetypes.AccountAddress]movetypes.TypeTag

	// DynamicFieldHints declares dynamic fields the transaction is predicted
	// to touch, so SelfHealDynamicFields can synthesize them proactively
	// rather than depend on a lazy callback from inside the VM.
	DynamicFieldHints []DynamicFieldHint

	// CallGraph, if set, is consulted to populate ReplayResult.PredictedAccesses
	// for every MoveCall command in the transaction before execution.
	CallGraph *callgraph.Graph

	VMConfig func(tx *movetypes.TransactionRecord) vm.Config

	// OnSession, if set, is called synchronously with the SessionID opened
	// for each Execute call, before that call blocks. A caller running
	// Replay in its own goroutine can capture the ID and later call
	// Engine.Cancel with it to request cooperative cancellation.
	OnSession func(SessionID)
}

// DynamicFieldHint names one dynamic field the self-heal recovery path may
// need to fabricate.
type DynamicFieldHint struct {
	Parent    movetypes.AccountAddress
	KeyType   movetypes.TypeTag
	KeyBytes  []byte
	ValueType movetypes.TypeTag
}

// Engine is the Replay Engine.
type Engine struct {
	source    source.StateSource
	framework resolver.FrameworkLoader
	inspector resolver.BytecodeInspector
	newVM     func() vm.NativeVM
	layouts   LayoutResolver
	metrics   *telemetry.Metrics
	log       *zap.Logger
	cfg       EngineConfig
	sessions  *SessionRegistry
}

// NewEngine constructs an Engine. metrics/log may be nil.
func NewEngine(src source.StateSource, framework resolver.FrameworkLoader, inspector resolver.BytecodeInspector, newVM func() vm.NativeVM, layouts LayoutResolver, metrics *telemetry.Metrics, log *zap.Logger, cfg EngineConfig) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewNop()
	}
	if inspector == nil {
		inspector = resolver.JSONBytecodeInspector{}
	}
	if cfg.VMConfig == nil {
		cfg.VMConfig = func(tx *movetypes.TransactionRecord) vm.Config {
			return vm.Config{Sender: tx.Sender, TimestampMs: tx.TimestampMs, GasPrice: tx.GasPrice, GasBudget: tx.GasBudget}
		}
	}
	return &Engine{source: src, framework: framework, inspector: inspector, newVM: newVM, layouts: layouts, metrics: metrics, log: log, cfg: cfg, sessions: NewSessionRegistry()}
}

// Sessions exposes the engine's live session registry, so a caller can look
// up or cancel a session it learned about via EngineConfig.OnSession.
func (e *Engine) Sessions() *SessionRegistry { return e.sessions }

// Cancel requests cooperative cancellation of the session id, if still open.
// The running Execute call observes it at the next command boundary.
func (e *Engine) Cancel(id SessionID) bool { return e.sessions.Cancel(id) }

// runExecute opens a session wrapping h, deriving a cancellable context from
// ctx, drives h.Execute through it, and releases the session before
// returning.
func (e *Engine) runExecute(ctx context.Context, h *vm.Harness, tx *movetypes.TransactionRecord) (*movetypes.Effects, *vm.AbortInfo, error, SessionID) {
	session, execCtx := e.sessions.Open(ctx, h)
	defer e.sessions.Close(session.ID)
	if e.cfg.OnSession != nil {
		e.cfg.OnSession(session.ID)
	}
	effects, abort, err := h.Execute(execCtx, tx)
	return effects, abort, err, session.ID
}

// Replay runs the full hydrate -> reconstruct -> register -> execute ->
// recover -> reconcile -> report pipeline for digest.
func (e *Engine) Replay(ctx context.Context, digest string) (*ReplayResult, error) {
	replayID := uuid.NewString()
	log := e.log.With(zap.String("replay_id", replayID), zap.String("digest", digest))

	hr, err := Hydrate(ctx, e.source, digest, e.cfg.Resolver, e.framework, e.inspector, log)
	if err != nil {
		e.metrics.ReplaysTotal.WithLabelValues("hydrate_error").Inc()
		return &ReplayResult{ReplayID: replayID, Success: false, Error: errorString(err)}, nil
	}
	state := hr.State
	tx := state.Transaction

	modulesByAddr := modulesFromPackages(state.Packages)
	var recon []reconstruct.Input
	for id, obj := range state.Objects {
		recon = append(recon, reconstruct.Input{ObjectID: id, Type: obj.Type, Bytes: obj.Payload})
	}
	reconResult, err := reconstruct.New(e.cfg.Reconstruct, e.inspector, log).Reconstruct(recon, tx.TimestampMs, modulesByAddr)
	if err != nil {
		log.Warn("replay: reconstruction failed, proceeding with unpatched payloads", zap.Error(&ReconstructError{Err: err}))
	} else {
		for id, patched := range reconResult.Patched {
			state.Objects[id].Payload = patched
		}
	}

	registry := resolver.NewRegistry(e.inspector)
	if err := registry.LoadResolved(&resolver.Result{Packages: state.Packages, LinkageUpgrades: state.LinkageUpgrades}); err != nil {
		e.metrics.ReplaysTotal.WithLabelValues("registry_error").Inc()
		return &ReplayResult{ReplayID: replayID, Success: false, Error: errorString(&InternalInvariantViolation{Detail: err.Error()})}, nil
	}

	mode := objectstore.Sandbox
	if e.cfg.Replay.ChildResolutionMode == "replay" {
		mode = objectstore.Replay
	}
	store := objectstore.New(mode, state.Objects)
	store.SetVersionedFetcher(e.childFetcher())
	store.SetKeyedFetcher(e.keyedFetcher())

	if e.cfg.Replay.AutoSystemObjects {
		injectSystemObjects(store, tx.TimestampMs)
	}

	recovery := Recovery{}
	if e.cfg.Replay.SelfHealDynamicFields {
		recovery.SelfHealedFields += e.selfHealDynamicFields(ctx, store)
	}

	vmCfg := e.cfg.VMConfig(tx)
	vmCfg.ChildResolution = mode
	vmCfg.Epoch = state.Epoch

	harness := vm.NewHarness(e.newVM(), store, registry, vmCfg, log)
	if err := harness.Build(ctx, state.Packages); err != nil {
		e.metrics.ReplaysTotal.WithLabelValues("build_error").Inc()
		return &ReplayResult{ReplayID: replayID, Success: false, Error: errorString(err), Recovery: recovery}, nil
	}
	if err := harness.RegisterInputs(inputRegistrations(tx, state.Objects)); err != nil {
		e.metrics.ReplaysTotal.WithLabelValues("register_error").Inc()
		return &ReplayResult{ReplayID: replayID, Success: false, Error: errorString(err), Recovery: recovery}, nil
	}

	effects, abort, err, sessionID := e.runExecute(ctx, harness, tx)
	if err != nil {
		e.metrics.ReplaysTotal.WithLabelValues("internal_error").Inc()
		return &ReplayResult{ReplayID: replayID, Success: false, Error: errorString(err), Recovery: recovery}, nil
	}

	if abort != nil && abort.Reason != tagging.AbortCancelled && e.cfg.Replay.SynthesizeMissing && len(hr.MissingObjects) > 0 {
		n := e.synthesizeMissingInputs(hr.MissingObjects, store)
		recovery.SynthesizedInputs += n
		if n > 0 {
			harness = vm.NewHarness(e.newVM(), store, registry, vmCfg, log)
			if err := harness.Build(ctx, state.Packages); err == nil {
				if err := harness.RegisterInputs(inputRegistrations(tx, state.Objects)); err == nil {
					effects, abort, err, sessionID = e.runExecute(ctx, harness, tx)
					if err != nil {
						return &ReplayResult{ReplayID: replayID, Success: false, Error: errorString(err), Recovery: recovery}, nil
					}
				}
			}
		}
	}

	result := &ReplayResult{ReplayID: replayID, Recovery: recovery}
	if abort != nil && abort.Reason == tagging.AbortCancelled {
		result.Success = false
		result.Error = errorString(&CancelledError{SessionID: sessionID})
		e.metrics.ReplaysTotal.WithLabelValues("cancelled").Inc()
	} else if abort != nil {
		result.Success = false
		result.Error = errorString(&ExecutionAbortError{Abort: abort})
		e.metrics.ReplaysTotal.WithLabelValues("execution_abort").Inc()
	} else {
		result.Success = true
		result.EffectsLocal = effects
		e.metrics.ReplaysTotal.WithLabelValues("success").Inc()
	}

	if e.cfg.Replay.Compare && e.cfg.Replay.Reconciliation != config.ReconciliationOff && !e.cfg.Replay.VMOnly {
		result.EffectsOnChain = &tx.Effects
		var local movetypes.Effects
		if effects != nil {
			local = *effects
		} else {
			local.Status = movetypes.StatusFailure
		}
		cmp := Reconcile(local, tx.Effects, e.cfg.Replay.Reconciliation)
		result.Comparison = &cmp
		if !cmp.Match {
			e.metrics.ReconcileMismatches.WithLabelValues(string(e.cfg.Replay.Reconciliation)).Inc()
		}
	}

	if effects != nil {
		result.Gas = &effects.Gas
	}
	result.PredictedAccesses = e.predictAccesses(tx)
	return result, nil
}

// predictAccesses runs CallGraph.PredictAccesses for every MoveCall command
// in tx, skipping commands of any other kind. Returns nil if no CallGraph is
// configured.
func (e *Engine) predictAccesses(tx *movetypes.TransactionRecord) []CommandAccesses {
	if e.cfg.CallGraph == nil {
		return nil
	}
	var out []CommandAccesses
	for i, cmd := range tx.Commands {
		if cmd.Kind != movetypes.CommandMoveCall {
			continue
		}
		typeArgs := make([]string, len(cmd.TypeArgs))
		for j, t := range cmd.TypeArgs {
			typeArgs[j] = string(t)
		}
		accesses := e.cfg.CallGraph.PredictAccesses(cmd.Package, cmd.ModuleName, cmd.FunctionName, typeArgs)
		if len(accesses) == 0 {
			continue
		}
		out = append(out, CommandAccesses{
			CommandIndex: i,
			Function:     cmd.Package.Hex() + "::" + cmd.ModuleName + "::" + cmd.FunctionName,
			Accesses:     accesses,
		})
	}
	return out
}

func modulesFromPackages(packages map[movetypes.AccountAddress]*movetypes.Package) map[movetypes.AccountAddress]map[string]*movetypes.Module {
	out := make(map[movetypes.AccountAddress]map[string]*movetypes.Module, len(packages))
	for addr, pkg := range packages {
		mods := make(map[string]*movetypes.Module, len(pkg.Modules))
		for i := range pkg.Modules {
			mods[pkg.Modules[i].Name] = &pkg.Modules[i]
		}
		out[addr] = mods
	}
	return out
}

func inputRegistrations(tx *movetypes.TransactionRecord, objects map[movetypes.AccountAddress]*movetypes.Object) []vm.InputRegistration {
	var regs []vm.InputRegistration
	for _, in := range tx.Inputs {
		if in.Kind == movetypes.InputPure {
			continue
		}
		obj, ok := objects[in.ID]
		if !ok {
			continue
		}
		own := obj.Ownership
		if in.Kind == movetypes.InputShared {
			own = movetypes.Ownership{Kind: movetypes.OwnershipShared, InitialVersion: in.InitialVersion}
		}
		regs = append(regs, vm.InputRegistration{Object: obj, Ownership: own})
	}
	return regs
}

func (e *Engine) childFetcher() objectstore.VersionedChildFetcher {
	return func(ctx context.Context, parent, child movetypes.AccountAddress, versionBound uint64) (*objectstore.ChildEntry, bool, error) {
		bound := versionBound
		obj, err := e.source.FetchObject(ctx, child, &bound)
		if err != nil || obj == nil {
			return nil, false, err
		}
		return &objectstore.ChildEntry{Type: obj.Type, Bytes: obj.Payload, Version: obj.Version}, true, nil
	}
}

func (e *Engine) keyedFetcher() objectstore.KeyedChildFetcher {
	return func(ctx context.Context, parent movetypes.AccountAddress, keyType movetypes.TypeTag, keyBytes []byte) (*objectstore.KeyedChildEntry, bool, error) {
		entry, err := e.source.FindDynamicField(ctx, parent, keyBytes, nil)
		if err != nil || entry == nil {
			return nil, false, err
		}
		return &objectstore.KeyedChildEntry{ChildID: entry.ChildID, Type: entry.ValueType, Bytes: entry.ValueBCS}, true, nil
	}
}

// selfHealDynamicFields proactively synthesizes every hinted dynamic field
// the store cannot currently resolve, so execution never blocks on a native
// callback miss.
func (e *Engine) selfHealDynamicFields(ctx context.Context, store *objectstore.Store) int {
	if e.layouts == nil {
		return 0
	}
	healed := 0
	for _, hint := range e.cfg.DynamicFieldHints {
		if _, ok, _ := store.ResolveKeyed(ctx, hint.Parent, hint.KeyType, hint.KeyBytes); ok {
			continue
		}
		payload, err := SynthesizeMinimumValid(e.layouts, hint.ValueType)
		if err != nil {
			e.log.Warn("replay: could not self-heal dynamic field", zap.String("parent", hint.Parent.Hex()), zap.Error(err))
			continue
		}
		store.PreloadKeyed(hint.Parent, hint.KeyType, hint.KeyBytes, objectstore.KeyedChildEntry{Type: hint.ValueType, Bytes: payload})
		healed++
	}
	return healed
}

// synthesizeMissingInputs fabricates a minimum-valid payload for every
// missing input id we have a type hint for, registering it with store.
func (e *Engine) synthesizeMissingInputs(missing []movetypes.AccountAddress, store *objectstore.Store) int {
	if e.layouts == nil {
		return 0
	}
	n := 0
	for _, id := range missing {
		t, ok := e.cfg.InputTypeHints[id]
		if !ok {
			continue
		}
		payload, err := SynthesizeMinimumValid(e.layouts, t)
		if err != nil {
			e.log.Warn("replay: could not synthesize missing input", zap.String("id", id.Hex()), zap.Error(err))
			continue
		}
		store.Put(&movetypes.Object{ID: id, Type: t, Payload: payload})
		n++
	}
	return n
}

// injectSystemObjects installs well-known zero-valued clock/randomness
// objects whenever the store holds none at their addresses; it does not check
// whether the transaction references them.
func injectSystemObjects(store *objectstore.Store, timestampMs uint64) {
	clockID := movetypes.HexToAddress("0x6")
	if _, ok := store.Get(clockID); !ok {
		payload := make([]byte, 24)
		store.Put(&movetypes.Object{ID: clockID, Type: "0x2::clock::Clock", Payload: payload, Ownership: movetypes.Ownership{Kind: movetypes.OwnershipShared}})
	}
	randomID := movetypes.HexToAddress("0x8")
	if _, ok := store.Get(randomID); !ok {
		payload := make([]byte, 24)
		store.Put(&movetypes.Object{ID: randomID, Type: "0x2::random::Random", Payload: payload, Ownership: movetypes.Ownership{Kind: movetypes.OwnershipShared}})
	}
}
