package replay

import (
	"fmt"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/vm"
)

// SourceError wraps a StateSource failure, surfaced unchanged to the caller
//.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string { return fmt.Sprintf("replay: source error during %s: %v", e.Op, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// MissingPackageError names every transitively required package that could
// not be resolved.
type MissingPackageError struct {
	IDs []movetypes.AccountAddress
}

func (e *MissingPackageError) Error() string {
	return fmt.Sprintf("replay: missing %d package(s)", len(e.IDs))
}

// MissingObjectError names the declared input objects absent from the
// hydrated state.
type MissingObjectError struct {
	IDs []movetypes.AccountAddress
}

func (e *MissingObjectError) Error() string {
	return fmt.Sprintf("replay: missing %d object(s)", len(e.IDs))
}

// ReconstructError records that a patch target's layout did not match
// expectations; the caller logs it and proceeds with the payload unpatched
//.
type ReconstructError struct {
	ObjectID movetypes.AccountAddress
	Err      error
}

func (e *ReconstructError) Error() string {
	return fmt.Sprintf("replay: reconstruct %s: %v", e.ObjectID.Hex(), e.Err)
}
func (e *ReconstructError) Unwrap() error { return e.Err }

// ExecutionAbortError wraps the VM's AbortInfo in the engine's error
// taxonomy.
type ExecutionAbortError struct {
	Abort *vm.AbortInfo
}

func (e *ExecutionAbortError) Error() string { return e.Abort.Error() }

// CancelledError reports that a session's context was cancelled before
// execution finished; the transaction was not fully applied.
type CancelledError struct {
	SessionID SessionID
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("replay: session %d cancelled", e.SessionID)
}

// ReconcileMismatchError carries the effects diff for a comparison that
// failed the active policy's tolerance.
type ReconcileMismatchError struct {
	Comparison movetypes.EffectsComparison
}

func (e *ReconcileMismatchError) Error() string {
	return "replay: local effects do not reconcile with on-chain effects"
}

// InternalInvariantViolation marks a broken contract between components
// (e.g. a registered alias points to a missing module). These are bugs:
// reported verbatim and the replay is aborted.
type InternalInvariantViolation struct {
	Detail string
}

func (e *InternalInvariantViolation) Error() string {
	return "replay: internal invariant violated: " + e.Detail
}
