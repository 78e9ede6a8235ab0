package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

func TestCompareVersionsNoDiffs(t *testing.T) {
	id := addr("0x1")
	fetched := map[movetypes.AccountAddress]*movetypes.Object{id: {ID: id, Version: 5}}
	expected := map[movetypes.AccountAddress]uint64{id: 5}
	require.Empty(t, CompareVersions(fetched, expected))
}

func TestCompareVersionsReportsStaleAndMissing(t *testing.T) {
	stale := addr("0x1")
	missing := addr("0x2")
	fetched := map[movetypes.AccountAddress]*movetypes.Object{stale: {ID: stale, Version: 4}}
	expected := map[movetypes.AccountAddress]uint64{stale: 5, missing: 1}

	diffs := CompareVersions(fetched, expected)
	require.Len(t, diffs, 2)
	require.Contains(t, diffs, stale.Hex()+": fetched version 4, expected 5")
	require.Contains(t, diffs, missing.Hex()+": expected version 1, not fetched")
}
