package vm

import "github.com/sui-sandbox/replaycore/core/movetypes"

// Value is one typed slot flowing between commands: either raw BCS bytes (a
// pure value) or a handle to a registered object. Both fields may be set
// simultaneously for an owned-object argument the VM also needs to read the
// serialized form of.
type Value struct {
	Bytes    []byte
	ObjectID *movetypes.AccountAddress
}

// AsObjectID returns the object id this value refers to, if any.
func (v Value) AsObjectID() (movetypes.AccountAddress, bool) {
	if v.ObjectID == nil {
		return movetypes.AccountAddress{}, false
	}
	return *v.ObjectID, true
}
