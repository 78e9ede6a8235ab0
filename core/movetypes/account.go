// Package movetypes holds the core data model shared by every replay
// component: addresses, packages, objects, transactions and effects.
package movetypes

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressLength is the width, in bytes, of an AccountAddress on the host
// chain. It doubles as a package id, an object id and a signer address.
const AddressLength = 32

// AccountAddress is a fixed-width byte identifier used interchangeably for a
// signer, a package, or an object.
type AccountAddress [AddressLength]byte

// ZeroAddress is the all-zero address, used as a sentinel in tests and by the
// BCS synthesizer (see core/replay/synth.go) for "minimum valid" UIDs.
var ZeroAddress = AccountAddress{}

// HexToAddress parses a "0x"-prefixed (or bare) hex string into an
// AccountAddress, left-padding with zeros if the input is shorter than
// AddressLength bytes. Malformed input yields the zero address, the same
// lenient parsing commonly applied to header fields on ingestion.
func HexToAddress(s string) AccountAddress {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return AccountAddress{}
	}
	var a AccountAddress
	if len(raw) > AddressLength {
		raw = raw[len(raw)-AddressLength:]
	}
	copy(a[AddressLength-len(raw):], raw)
	return a
}

// Hex returns the canonical "0x"-prefixed lowercase hex encoding.
func (a AccountAddress) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AccountAddress) String() string { return a.Hex() }

// IsZero reports whether a is the all-zero address.
func (a AccountAddress) IsZero() bool { return a == AccountAddress{} }

// frameworkAddresses are the well-known, low-numbered addresses the chain
// itself owns. They are never upgraded by user transactions and are resolved
// from a bundled copy rather than fetched through a StateSource.
var frameworkAddresses = map[AccountAddress]string{
	HexToAddress("0x1"): "move-stdlib",
	HexToAddress("0x2"): "framework",
	HexToAddress("0x3"): "system",
	HexToAddress("0x5"): "system-state",
	HexToAddress("0x6"): "clock",
	HexToAddress("0x8"): "randomness",
	HexToAddress("0xdee9"): "deepbook",
}

// IsFrameworkPackage reports whether id names one of the bundled framework
// packages. Skip-framework policy consults this.
func IsFrameworkPackage(id AccountAddress) bool {
	_, ok := frameworkAddresses[id]
	return ok
}

// FrameworkName returns the human label for a framework address, or "" if id
// is not a framework address. Used only for logging.
func FrameworkName(id AccountAddress) string {
	return frameworkAddresses[id]
}

func (a AccountAddress) GoString() string {
	return fmt.Sprintf("movetypes.AccountAddress(%s)", a.Hex())
}

// MarshalJSON renders a as its canonical hex string, so every JSON document
// this core produces (ReplayResult included) reads as addresses an engineer
// can paste straight into a block explorer rather than a raw byte array.
func (a AccountAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Hex())
}

// UnmarshalJSON accepts either a hex string or a bare JSON array of bytes,
// so fixture files written either way still load.
func (a *AccountAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = HexToAddress(s)
		return nil
	}
	var bytes [AddressLength]byte
	if err := json.Unmarshal(data, &bytes); err != nil {
		return err
	}
	*a = AccountAddress(bytes)
	return nil
}
