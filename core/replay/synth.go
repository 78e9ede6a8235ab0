package replay

import (
	"github.com/pkg/errors"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// LayoutKind tags the variants of Layout, mirroring Move's structural type
// system.
type LayoutKind int

const (
	LayoutBool LayoutKind = iota
	LayoutU8
	LayoutU16
	LayoutU32
	LayoutU64
	LayoutU128
	LayoutU256
	LayoutAddress
	LayoutVector
	LayoutStruct
)

// Layout is a recursive description of a Move value's structural shape, deep
// enough to synthesize a minimum-valid BCS encoding but shallow enough to
// not require a real Move type-layout resolver.
type Layout struct {
	Kind    LayoutKind
	Element *Layout  // populated iff Kind == LayoutVector
	Fields  []Layout // populated iff Kind == LayoutStruct
}

// LayoutResolver looks up the structural layout for a fully-qualified Move
// type, extracted from the loaded bytecode (or supplied out-of-band by a
// caller that already has one).
type LayoutResolver interface {
	ResolveLayout(t movetypes.TypeTag) (Layout, bool, error)
}

// StaticLayoutResolver serves layouts from a fixed map, for callers (and
// tests) that already know the declared type shapes rather than extracting
// them live from bytecode.
type StaticLayoutResolver map[movetypes.TypeTag]Layout

func (m StaticLayoutResolver) ResolveLayout(t movetypes.TypeTag) (Layout, bool, error) {
	l, ok := m[t]
	return l, ok, nil
}

// SynthesizeMinimumValid produces the "minimum-valid" BCS encoding for t
// using resolver.
func SynthesizeMinimumValid(resolver LayoutResolver, t movetypes.TypeTag) ([]byte, error) {
	layout, ok, err := resolver.ResolveLayout(t)
	if err != nil {
		return nil, errors.Wrapf(err, "synth: resolve layout for %s", t)
	}
	if !ok {
		return nil, errors.Errorf("synth: no layout known for %s", t)
	}
	return minimumValidBytes(layout), nil
}

func minimumValidBytes(l Layout) []byte {
	switch l.Kind {
	case LayoutBool:
		return []byte{0}
	case LayoutU8:
		return []byte{0}
	case LayoutU16:
		return make([]byte, 2)
	case LayoutU32:
		return make([]byte, 4)
	case LayoutU64:
		return make([]byte, 8)
	case LayoutU128:
		return make([]byte, 16)
	case LayoutU256:
		return make([]byte, 32)
	case LayoutAddress:
		return make([]byte, movetypes.AddressLength) // the zero UID
	case LayoutVector:
		return []byte{0} // ULEB128-encoded length 0: an empty vector
	case LayoutStruct:
		out := make([]byte, 0, len(l.Fields)*8)
		for _, f := range l.Fields {
			out = append(out, minimumValidBytes(f)...)
		}
		return out
	default:
		return nil
	}
}
