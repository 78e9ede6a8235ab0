package testutil

import (
	"fmt"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// CompareVersions reports every object whose fetched version differs from
// the version the on-chain effects' shared-object-version table expected,
// for diagnosing a reconciliation mismatch down to a specific stale read.
func CompareVersions(fetched map[movetypes.AccountAddress]*movetypes.Object, expected map[movetypes.AccountAddress]uint64) []string {
	var diffs []string
	for id, want := range expected {
		obj, ok := fetched[id]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: expected version %d, not fetched", id.Hex(), want))
			continue
		}
		if obj.Version != want {
			diffs = append(diffs, fmt.Sprintf("%s: fetched version %d, expected %d", id.Hex(), obj.Version, want))
		}
	}
	return diffs
}
