package reconstruct

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/resolver"
)

func payloadWithU64Suffix(prefixLen int, v uint64) []byte {
	buf := make([]byte, prefixLen+8)
	binary.LittleEndian.PutUint64(buf[prefixLen:], v)
	return buf
}

func TestReconstructStructuralPatch(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)

	clockID := movetypes.HexToAddress("0x6")
	in := []Input{{ObjectID: clockID, Type: "0x2::clock::Clock", Bytes: payloadWithU64Suffix(16, 100)}}

	res, err := r.Reconstruct(in, 999, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Counters.StructPatched)
	require.Equal(t, uint64(999), binary.LittleEndian.Uint64(res.Patched[clockID][16:24]))
	require.Len(t, res.Patched[clockID], 24)
}

func TestReconstructVersionGuardDefault(t *testing.T) {
	cfg := Config{VersionGuards: []VersionGuardRule{
		{Type: "0x1::config::Config", OffsetFromEnd: 8, DefaultVersion: 3},
	}}
	r := New(cfg, nil, nil)

	id := movetypes.HexToAddress("0x42")
	in := []Input{{ObjectID: id, Type: "0x1::config::Config", Bytes: payloadWithU64Suffix(4, 1)}}

	res, err := r.Reconstruct(in, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Counters.RawPatched)
	require.Equal(t, 0, res.Counters.OverridePatched)
	require.Equal(t, uint64(3), binary.LittleEndian.Uint64(res.Patched[id][4:12]))
}

func TestReconstructVersionGuardBytecodeOverride(t *testing.T) {
	cfg := Config{VersionGuards: []VersionGuardRule{
		{
			Type: "0x1::config::Config", OffsetFromEnd: 8, DefaultVersion: 1,
			ModuleAddress: movetypes.HexToAddress("0x1"), ModuleName: "config", ConstantName: "CURRENT_VERSION",
		},
	}}

	meta := resolver.ModuleMeta{Constants: map[string]uint64{"CURRENT_VERSION": 7}}
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	modules := map[movetypes.AccountAddress]map[string]*movetypes.Module{
		movetypes.HexToAddress("0x1"): {"config": {Name: "config", Bytecode: raw}},
	}

	r := New(cfg, nil, nil)
	id := movetypes.HexToAddress("0x42")
	in := []Input{{ObjectID: id, Type: "0x1::config::Config", Bytes: payloadWithU64Suffix(4, 1)}}

	res, err := r.Reconstruct(in, 0, modules)
	require.NoError(t, err)
	require.Equal(t, 0, res.Counters.RawPatched)
	require.Equal(t, 1, res.Counters.OverridePatched)
	require.Equal(t, uint64(7), binary.LittleEndian.Uint64(res.Patched[id][4:12]))
	require.Equal(t, uint64(7), res.DetectedConstants["0x0000000000000000000000000000000000000000000000000000000000000001::config::CURRENT_VERSION"])
}

func TestReconstructUnrecognizedTypePassesThrough(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	id := movetypes.HexToAddress("0x99")
	payload := []byte{1, 2, 3, 4}
	in := []Input{{ObjectID: id, Type: "0x99::thing::Thing", Bytes: payload}}

	res, err := r.Reconstruct(in, 123, nil)
	require.NoError(t, err)
	require.Equal(t, Counters{}, res.Counters)
	require.Equal(t, payload, res.Patched[id])
}

func TestReconstructIdempotent(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	id := movetypes.HexToAddress("0x6")
	in := []Input{{ObjectID: id, Type: "0x2::clock::Clock", Bytes: payloadWithU64Suffix(16, 5)}}

	first, err := r.Reconstruct(in, 42, nil)
	require.NoError(t, err)

	second, err := r.Reconstruct([]Input{{ObjectID: id, Type: "0x2::clock::Clock", Bytes: first.Patched[id]}}, 42, nil)
	require.NoError(t, err)
	require.Equal(t, first.Patched[id], second.Patched[id])
}
