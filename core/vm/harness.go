// Package vm implements the VM Harness & Object Runtime: the
// orchestration layer between a replayed transaction and a black-box
// NativeVM, covering module publication, input registration, sequential
// command execution with argument resolution, and effects computation.
//
// Follows a dispatcher/adapter split: a small Executor-shaped interface the
// orchestration layer drives without knowing which concrete backend answers
// it, here generalized from "apply one Ethereum transaction" to "execute one
// programmable transaction's commands against a Move VM".
package vm

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/objectstore"
	"github.com/sui-sandbox/replaycore/core/resolver"
	"github.com/sui-sandbox/replaycore/core/tagging"
)

func newUint256(v uint64) *uint256.Int { return uint256.NewInt(v) }

// Config configures a Harness.
type Config struct {
	Sender            movetypes.AccountAddress
	Epoch             uint64
	TimestampMs       uint64
	GasPrice          uint64
	GasBudget         uint64
	Sponsor           *movetypes.AccountAddress
	NativeGasMetering bool
	ChildResolution   objectstore.Mode
	NativesCostTable  map[string]uint64
}

// Harness drives one transaction's execution through a NativeVM.
type Harness struct {
	vm       NativeVM
	store    *objectstore.Store
	registry *resolver.Registry
	config   Config
	log      *zap.Logger

	state State
	abort *AbortInfo
}

// NewHarness constructs a Harness in state Built.
func NewHarness(engine NativeVM, store *objectstore.Store, registry *resolver.Registry, config Config, log *zap.Logger) *Harness {
	if log == nil {
		log = zap.NewNop()
	}
	return &Harness{vm: engine, store: store, registry: registry, config: config, log: log, state: StateBuilt}
}

// State reports the harness's current state-machine position.
func (h *Harness) State() State { return h.state }

// Build installs native extensions and publishes every package's modules at
// their runtime (alias-resolved) address.
func (h *Harness) Build(ctx context.Context, packages map[movetypes.AccountAddress]*movetypes.Package) error {
	if h.state != StateBuilt {
		return errors.Errorf("vm: Build called in state %s, want built", h.state)
	}

	ext := newExtensions(h.store, TxContext{
		Sender:      h.config.Sender,
		Epoch:       h.config.Epoch,
		TimestampMs: h.config.TimestampMs,
		GasPrice:    h.config.GasPrice,
	}, h.config.NativesCostTable, h.config.NativeGasMetering)
	if err := h.vm.Install(ext); err != nil {
		return errors.Wrap(err, "vm: install extensions")
	}

	for storageAddr, pkg := range packages {
		runtimeAddr := storageAddr
		if h.registry != nil {
			runtimeAddr = h.registry.RuntimeAddressFor(storageAddr)
		}
		for _, mod := range pkg.Modules {
			if err := h.vm.PublishModule(runtimeAddr, mod); err != nil {
				return errors.Wrapf(err, "vm: publish %s::%s", runtimeAddr.Hex(), mod.Name)
			}
		}
	}
	return nil
}

// inputRegistration is what RegisterInputs needs per input object, computed
// by the caller (the replay engine) from the hydrated ReplayState, since only
// it knows an object's full transitive containment set.
type InputRegistration struct {
	Object       *movetypes.Object
	Ownership    movetypes.Ownership
	ContainedIDs []movetypes.AccountAddress
}

// RegisterInputs registers every input object with the VM and mirrors them into the Object Store so later ResolveChild calls see
// them too.
func (h *Harness) RegisterInputs(regs []InputRegistration) error {
	if h.state != StateBuilt {
		return errors.Errorf("vm: RegisterInputs called in state %s, want built", h.state)
	}
	for _, r := range regs {
		h.store.Put(r.Object)
		if err := h.vm.RegisterInput(r.Object, r.Ownership, r.ContainedIDs); err != nil {
			return errors.Wrapf(err, "vm: register input %s", r.Object.ID.Hex())
		}
	}
	return nil
}

// Execute runs tx's commands sequentially,
// returning the computed Effects on success. Terminal states are set on the
// Harness and reported verbatim to the orchestrator; a VM panic is recovered
// and converted to an ExecutionAbort with the vm_panic reason. ctx is checked
// at the boundary before each command; a cancelled ctx aborts with the
// cancelled reason rather than running the remaining commands.
func (h *Harness) Execute(ctx context.Context, tx *movetypes.TransactionRecord) (effects *movetypes.Effects, abort *AbortInfo, err error) {
	if h.state != StateBuilt {
		return nil, nil, errors.Errorf("vm: Execute called in state %s, want built", h.state)
	}
	h.state = StateExecuting

	defer func() {
		if r := recover(); r != nil {
			abort = &AbortInfo{
				CommandIndex: -1,
				Location:     fmt.Sprintf("vm panic: %v", r),
				Reason:       tagging.AbortVMPanic,
			}
			h.abort = abort
			h.state = StateFailure
			effects = nil
			err = nil
		}
	}()

	results := make([][]Value, len(tx.Commands))
	var mutations []MutationRecord
	var gasUsed uint64

	for i, cmd := range tx.Commands {
		if ctxErr := ctx.Err(); ctxErr != nil {
			info := &AbortInfo{CommandIndex: i, Location: ctxErr.Error(), Reason: tagging.AbortCancelled}
			h.abort = info
			h.state = StateFailure
			return nil, info, nil
		}

		args, resolveErr := h.resolveArgs(cmd, tx, results[:i])
		if resolveErr != nil {
			info := &AbortInfo{CommandIndex: i, Location: resolveErr.Error(), Reason: tagging.AbortMissingDependency}
			h.abort = info
			h.state = StateFailure
			return nil, info, nil
		}

		pkgAddr := cmd.Package
		if h.registry != nil {
			pkgAddr = h.registry.RuntimeAddressFor(cmd.Package)
		}
		call := CallMetadata{
			Sender:       tx.Sender,
			Package:      pkgAddr,
			Module:       cmd.ModuleName,
			Function:     cmd.FunctionName,
			TypeArgs:     cmd.TypeArgs,
			CommandIndex: i,
			GasBudget:    tx.GasBudget,
		}
		outcome, callErr := h.vm.CallFunction(ctx, call, args)
		if callErr != nil {
			info, ok := callErr.(*AbortInfo)
			if !ok {
				info = &AbortInfo{CommandIndex: i, Location: callErr.Error(), Reason: tagging.AbortMoveAbort}
			}
			h.abort = info
			h.state = StateFailure
			return nil, info, nil
		}

		results[i] = outcome.Returns
		mutations = append(mutations, outcome.Mutations...)
		gasUsed += outcome.GasUsed
	}

	effects = h.classifyEffects(mutations, gasUsed)
	h.state = StateSuccess
	return effects, nil, nil
}

// resolveArgs resolves cmd's Arg list against tx.Inputs and the results of
// already-executed commands.
func (h *Harness) resolveArgs(cmd movetypes.Command, tx *movetypes.TransactionRecord, priorResults [][]Value) ([]Value, error) {
	out := make([]Value, 0, len(cmd.Args))
	for _, arg := range cmd.Args {
		v, err := h.resolveArg(arg, tx, priorResults)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *Harness) resolveArg(arg movetypes.Arg, tx *movetypes.TransactionRecord, priorResults [][]Value) (Value, error) {
	switch arg.Kind {
	case movetypes.ArgInput:
		if arg.Index < 0 || arg.Index >= len(tx.Inputs) {
			return Value{}, errors.Errorf("input index %d out of range (%d inputs)", arg.Index, len(tx.Inputs))
		}
		in := tx.Inputs[arg.Index]
		if in.Kind == movetypes.InputPure {
			return Value{Bytes: in.PureBytes}, nil
		}
		id := in.ID
		return Value{ObjectID: &id}, nil

	case movetypes.ArgResult:
		if arg.Index < 0 || arg.Index >= len(priorResults) {
			return Value{}, errors.Errorf("result index %d out of range (%d commands executed)", arg.Index, len(priorResults))
		}
		rs := priorResults[arg.Index]
		if len(rs) != 1 {
			return Value{}, errors.Errorf("command %d produced %d results, Result() requires exactly one", arg.Index, len(rs))
		}
		return rs[0], nil

	case movetypes.ArgNestedResult:
		if arg.CmdIndex < 0 || arg.CmdIndex >= len(priorResults) {
			return Value{}, errors.Errorf("nested-result command index %d out of range", arg.CmdIndex)
		}
		rs := priorResults[arg.CmdIndex]
		if arg.ResultIndex < 0 || arg.ResultIndex >= len(rs) {
			return Value{}, errors.Errorf("nested-result index %d out of range (command %d produced %d)", arg.ResultIndex, arg.CmdIndex, len(rs))
		}
		return rs[arg.ResultIndex], nil

	case movetypes.ArgGasCoin:
		gasCoinID := movetypes.ZeroAddress
		return Value{ObjectID: &gasCoinID}, nil

	default:
		return Value{}, errors.Errorf("unknown arg kind %d", arg.Kind)
	}
}

// classifyEffects folds the command-level mutation log into transaction-wide
// Effects, applying each mutation to the Object Store
// as it goes so the store reflects post-execution state.
func (h *Harness) classifyEffects(mutations []MutationRecord, gasUsed uint64) *movetypes.Effects {
	eff := &movetypes.Effects{
		Status:               movetypes.StatusSuccess,
		SharedObjectVersions: map[movetypes.AccountAddress]uint64{},
	}

	seen := map[movetypes.AccountAddress]tagging.ObjectMutationReason{}
	for _, m := range mutations {
		seen[m.ObjectID] = m.Kind
		switch m.Kind {
		case tagging.MutationCreated:
			eff.Created = append(eff.Created, m.ObjectID)
			h.store.Put(&movetypes.Object{ID: m.ObjectID, Type: m.NewType, Payload: m.NewBytes, Ownership: m.NewOwnership})
		case tagging.MutationDeleted:
			eff.Deleted = append(eff.Deleted, m.ObjectID)
			h.store.Delete(m.ObjectID)
		case tagging.MutationWrapped:
			eff.Wrapped = append(eff.Wrapped, m.ObjectID)
			h.store.Delete(m.ObjectID)
		case tagging.MutationUnwrapped:
			eff.Unwrapped = append(eff.Unwrapped, m.ObjectID)
			h.store.Put(&movetypes.Object{ID: m.ObjectID, Type: m.NewType, Payload: m.NewBytes, Ownership: m.NewOwnership})
		default:
			eff.Mutated = append(eff.Mutated, m.ObjectID)
			if existing, ok := h.store.Get(m.ObjectID); ok {
				updated := existing.Clone()
				updated.Type = m.NewType
				updated.Payload = m.NewBytes
				updated.Ownership = m.NewOwnership
				updated.Version++
				h.store.Put(updated)
			}
		}
	}

	eff.Gas.ComputationCost = newUint256(gasUsed)
	eff.Gas.StorageCost = newUint256(0)
	eff.Gas.StorageRebate = newUint256(0)
	eff.Gas.NonRefundableStorageFee = newUint256(0)
	return eff
}
