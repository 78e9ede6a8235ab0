package movetypes

// OwnershipKind tags the variants of Object.Ownership.
type OwnershipKind uint8

const (
	OwnershipShared OwnershipKind = iota
	OwnershipAddressOwned
	OwnershipObjectOwned
	OwnershipImmutable
	OwnershipReceiving
)

func (k OwnershipKind) String() string {
	switch k {
	case OwnershipShared:
		return "shared"
	case OwnershipAddressOwned:
		return "address_owned"
	case OwnershipObjectOwned:
		return "object_owned"
	case OwnershipImmutable:
		return "immutable"
	case OwnershipReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// Ownership is a tagged variant over an object's ownership kind. Exactly the
// fields relevant to Kind are populated; the rest are zero.
type Ownership struct {
	Kind OwnershipKind
	// InitialVersion is set for OwnershipShared: the version at which the
	// object first became shared.
	InitialVersion uint64
	// Addr is set for OwnershipAddressOwned.
	Addr AccountAddress
	// ParentID is set for OwnershipObjectOwned.
	ParentID AccountAddress
}

// TypeTag is a fully-qualified structural type name, e.g.
// "0x2::coin::Coin<0x2::sui::SUI>". Kept as an opaque string: the core never
// parses type-tag structure itself, it only compares and forwards it (the
// reconstructor's well-known-type table and the synthesizer's layout lookup
// key off this string verbatim).
type TypeTag string

// Object is a single on-chain addressable value at a point in its version
// history.
type Object struct {
	ID        AccountAddress
	Version   uint64
	Digest    string // opaque content hash
	Type      TypeTag
	Payload   []byte // BCS bytes conforming to Type
	Ownership Ownership

	// PreviousTransaction is the digest of the transaction that last mutated
	// this object, carried for diagnostics only. Reconciliation does not read
	// it, and reconcile diffs do not include it.
	PreviousTransaction string
}

// Clone returns a deep copy of o, so that callers (e.g. the Object Store's
// what-if snapshot clone, core/objectstore) can mutate a copy without
// aliasing the original payload slice.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Payload != nil {
		cp.Payload = make([]byte, len(o.Payload))
		copy(cp.Payload, o.Payload)
	}
	return &cp
}
