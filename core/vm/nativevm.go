package vm

import (
	"context"
	"fmt"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/tagging"
)

// NativeVM is the black-box Move execution engine the Harness drives. This
// package never implements Move bytecode interpretation itself; production
// callers wire in the actual VM (e.g. the reference sui-execution crate via
// FFI), the same way an Executor interface can abstract over one native
// backend vs. a cgo-bridged alternative.
type NativeVM interface {
	// Install wires the native extensions (object resolution, tx context,
	// cost table) for the execution about to begin.
	Install(ext *Extensions) error

	// PublishModule makes mod available for lookup at runtimeAddr.
	PublishModule(runtimeAddr movetypes.AccountAddress, mod movetypes.Module) error

	// RegisterInput tells the VM about one transaction input object, its
	// ownership, and the set of object ids it transitively contains
	//. ownership.InitialVersion is only meaningful when
	// ownership.Kind == movetypes.OwnershipShared.
	RegisterInput(obj *movetypes.Object, ownership movetypes.Ownership, containedIDs []movetypes.AccountAddress) error

	// CallFunction executes one Move function call and reports the objects
	// it touched, so the Harness can fold the per-command mutation logs into
	// the transaction-level Effects.
	CallFunction(ctx context.Context, call CallMetadata, args []Value) (CallOutcome, error)
}

// CallOutcome is what one CallFunction invocation reports back to the
// Harness: its typed return values plus the objects it mutated.
type CallOutcome struct {
	Returns   []Value
	Mutations []MutationRecord
	GasUsed   uint64
}

// MutationRecord is one entry of the VM's mutation log for a single command
//.
type MutationRecord struct {
	ObjectID     movetypes.AccountAddress
	Kind         tagging.ObjectMutationReason
	NewType      movetypes.TypeTag
	NewBytes     []byte // nil for Deleted
	NewOwnership movetypes.Ownership
}

// AbortInfo captures why a call failed.
type AbortInfo struct {
	Code         uint64
	CommandIndex int
	Location     string
	Reason       tagging.AbortReason
}

func (a AbortInfo) Error() string {
	return fmt.Sprintf("abort at command %d (%s): code %d [%s]", a.CommandIndex, a.Location, a.Code, a.Reason)
}
