package resolver

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// ModuleMeta is the slice of a deserialized module the resolver and
// reconstructor actually need: its declared self-address, the package
// addresses its import table references, and any named integer constants
// (version guards compiled into the module, e.g. CURRENT_VERSION).
//
// The concrete bit-level bytecode format is out of scope here: ModuleMeta is
// the semantic slice this core needs without re-deriving BCS layouts. No
// available Go library parses Move bytecode, so extraction is delegated to a
// BytecodeInspector the caller injects — production callers wire in a real
// Move bytecode deserializer (external to this module, like the VM itself);
// JSONBytecodeInspector below is the in-repo stand-in used by fixtures and
// tests (see DESIGN.md).
type ModuleMeta struct {
	SelfAddress movetypes.AccountAddress          `json:"self_address"`
	Imports     []movetypes.AccountAddress        `json:"imports"`
	Constants   map[string]uint64                 `json:"constants"`
}

// BytecodeInspector extracts ModuleMeta from a module's raw bytecode.
type BytecodeInspector interface {
	Inspect(bytecode []byte) (ModuleMeta, error)
}

// JSONBytecodeInspector treats Module.Bytecode as a JSON encoding of
// ModuleMeta. This is not a real bytecode format — it is the fixture
// encoding used by tests and by any caller that has already extracted
// module metadata out-of-band and just needs the resolver/reconstructor to
// consume it without linking a full Move bytecode deserializer.
type JSONBytecodeInspector struct{}

func (JSONBytecodeInspector) Inspect(bytecode []byte) (ModuleMeta, error) {
	var meta ModuleMeta
	if len(bytecode) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(bytecode, &meta); err != nil {
		return meta, errors.Wrap(err, "resolver: inspect module bytecode")
	}
	return meta, nil
}

// ExtractDependencies returns the set of package addresses referenced by
// mod's import table, deduplicated.
func ExtractDependencies(insp BytecodeInspector, mod movetypes.Module) ([]movetypes.AccountAddress, error) {
	meta, err := insp.Inspect(mod.Bytecode)
	if err != nil {
		return nil, err
	}
	seen := make(map[movetypes.AccountAddress]bool, len(meta.Imports))
	out := make([]movetypes.AccountAddress, 0, len(meta.Imports))
	for _, dep := range meta.Imports {
		if !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}
	return out, nil
}

// DeclaredVersionConstant returns the value of constName if mod declares it
// (e.g. "CURRENT_VERSION"), for the State Reconstructor to patch against the
// actual expected value rather than a guess.
func DeclaredVersionConstant(insp BytecodeInspector, mod movetypes.Module, constName string) (uint64, bool, error) {
	meta, err := insp.Inspect(mod.Bytecode)
	if err != nil {
		return 0, false, err
	}
	v, ok := meta.Constants[constName]
	return v, ok, nil
}
