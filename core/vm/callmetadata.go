package vm

import "github.com/sui-sandbox/replaycore/core/movetypes"

// CallMetadata carries the minimal fields an adapter needs to invoke one
// Move function call and obtain its outcome. Deliberately tag-free and
// engine-agnostic, the way a VM-adapter boundary stays free of
// backend-specific types.
type CallMetadata struct {
	Sender       movetypes.AccountAddress
	Package      movetypes.AccountAddress // runtime address, after alias resolution
	Module       string
	Function     string
	TypeArgs     []movetypes.TypeTag
	CommandIndex int
	GasBudget    uint64
}
