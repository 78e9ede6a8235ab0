// Package reconstruct implements the Historical State Reconstructor
//: adjusting a small number of fields in historically-fetched
// object payloads so that Move code comparing them against constants
// compiled into the executing bytecode does not spuriously abort.
//
// There are two independent patch classes:
//
//   - version-guard patches, for mutable shared config objects whose stored
//     "current version" field must match a constant the bytecode aborts
//     against;
//   - structural patches, for clock/randomness/system-state objects whose
//     timestamp or epoch field must reflect the replayed transaction's own
//     timestamp rather than whatever the archive happened to store.
//
// Shaped like a Config-parameterized processor with a small counters struct
// returned alongside the result, generalized from "process a block of
// transactions" to "patch a batch of historical object payloads".
package reconstruct

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/resolver"
)

// VersionGuardRule locates a "current version" u64 field within objects of
// Type by a structural rule, and names the bytecode constant that
// holds the value the field should carry.
type VersionGuardRule struct {
	Type            movetypes.TypeTag
	OffsetFromEnd   int
	DefaultVersion  uint64 // used when the constant can't be found in the loaded bytecode
	ModuleAddress   movetypes.AccountAddress
	ModuleName      string
	ConstantName    string // e.g. "CURRENT_VERSION"
}

// StructuralRule locates a timestamp/epoch field within objects of Type,
// always overwritten with the replayed transaction's own timestamp.
type StructuralRule struct {
	Type          movetypes.TypeTag
	OffsetFromEnd int
}

// Config is the reconstructor's patch table.
type Config struct {
	VersionGuards     []VersionGuardRule
	StructuralPatches []StructuralRule
}

// DefaultConfig seeds the well-known clock, randomness and system-state
// entries. Callers append or override entries for protocol-specific config
// objects.
func DefaultConfig() Config {
	return Config{
		StructuralPatches: []StructuralRule{
			{Type: "0x2::clock::Clock", OffsetFromEnd: 8},
			{Type: "0x2::random::Random", OffsetFromEnd: 8},
			{Type: "0x3::sui_system_state_inner::SuiSystemStateInnerV2", OffsetFromEnd: 8},
		},
	}
}

// Counters tallies how many objects fell into each patch class, returned
// alongside the patched payloads for caller-side logging.
type Counters struct {
	StructPatched   int // structural (clock/randomness/system-state) patches applied
	RawPatched      int // version-guard patches applied using the configured default
	OverridePatched int // version-guard patches applied using a bytecode-declared constant
}

// Input is one object awaiting reconstruction.
type Input struct {
	ObjectID movetypes.AccountAddress
	Type     movetypes.TypeTag
	Bytes    []byte
}

// Reconstructor applies Config's patch table to a batch of fetched objects.
type Reconstructor struct {
	config    Config
	inspector resolver.BytecodeInspector
	log       *zap.Logger
}

// New constructs a Reconstructor. inspector may be nil to use
// resolver.JSONBytecodeInspector.
func New(config Config, inspector resolver.BytecodeInspector, log *zap.Logger) *Reconstructor {
	if inspector == nil {
		inspector = resolver.JSONBytecodeInspector{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconstructor{config: config, inspector: inspector, log: log}
}

// Result is the reconstructor's output.
type Result struct {
	Patched           map[movetypes.AccountAddress][]byte
	Counters          Counters
	DetectedConstants map[string]uint64 // "address::module::CONST" -> value, for logging
}

// Reconstruct patches every object in objects against timestampMs and the
// loaded modules. An object whose type matches no
// rule is passed through unchanged; this is not an error.
func (r *Reconstructor) Reconstruct(objects []Input, timestampMs uint64, modules map[movetypes.AccountAddress]map[string]*movetypes.Module) (*Result, error) {
	out := &Result{
		Patched:           make(map[movetypes.AccountAddress][]byte, len(objects)),
		DetectedConstants: make(map[string]uint64),
	}

	versionGuards := make(map[movetypes.TypeTag]VersionGuardRule, len(r.config.VersionGuards))
	for _, rule := range r.config.VersionGuards {
		versionGuards[rule.Type] = rule
	}
	structural := make(map[movetypes.TypeTag]StructuralRule, len(r.config.StructuralPatches))
	for _, rule := range r.config.StructuralPatches {
		structural[rule.Type] = rule
	}

	for _, obj := range objects {
		patched := make([]byte, len(obj.Bytes))
		copy(patched, obj.Bytes)

		switch {
		case structural[obj.Type].Type != "":
			rule := structural[obj.Type]
			if err := patchU64FromEnd(patched, rule.OffsetFromEnd, timestampMs); err != nil {
				return nil, errors.Wrapf(err, "reconstruct: structural patch %s", obj.ObjectID.Hex())
			}
			out.Counters.StructPatched++

		case versionGuards[obj.Type].Type != "":
			rule := versionGuards[obj.Type]
			expected := rule.DefaultVersion
			isOverride := false
			if mods, ok := modules[rule.ModuleAddress]; ok {
				if mod, ok := mods[rule.ModuleName]; ok {
					if v, found, err := resolver.DeclaredVersionConstant(r.inspector, *mod, rule.ConstantName); err == nil && found {
						expected = v
						isOverride = true
						out.DetectedConstants[rule.ModuleAddress.Hex()+"::"+rule.ModuleName+"::"+rule.ConstantName] = v
					}
				}
			}
			if err := patchU64FromEnd(patched, rule.OffsetFromEnd, expected); err != nil {
				return nil, errors.Wrapf(err, "reconstruct: version-guard patch %s", obj.ObjectID.Hex())
			}
			if isOverride {
				out.Counters.OverridePatched++
			} else {
				out.Counters.RawPatched++
			}

		default:
			// Unrecognized type: pass through unchanged.
		}

		out.Patched[obj.ObjectID] = patched
	}

	return out, nil
}

// patchU64FromEnd overwrites the 8 bytes starting offsetFromEnd bytes before
// the end of buf, in place, with value encoded little-endian (BCS's fixed
// integer encoding). The write never changes len(buf): a patch must never
// change the BCS length of a field.
func patchU64FromEnd(buf []byte, offsetFromEnd int, value uint64) error {
	if offsetFromEnd < 8 || offsetFromEnd > len(buf) {
		return errors.Errorf("reconstruct: offset %d out of range for %d-byte payload", offsetFromEnd, len(buf))
	}
	start := len(buf) - offsetFromEnd
	binary.LittleEndian.PutUint64(buf[start:start+8], value)
	return nil
}
