// Package testutil holds comparison helpers shared by this module's own test
// suites: thin wrappers over core/replay.Reconcile and plain set-diff logic
// that report a human-readable mismatch description instead of a bool,
// favoring a descriptive failure over a bare assertion.
package testutil

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/replay"
	"github.com/sui-sandbox/replaycore/core/replay/config"
)

// CompareEffects reconciles local against onChain under policy and returns a
// human-readable description of every mismatch found, or nil if they
// reconcile. Intended for use in test assertions:
//
//	if diff := testutil.CompareEffects(got, want, config.ReconciliationStrict); diff != nil {
//	    t.Fatal(diff)
//	}
func CompareEffects(local, onChain movetypes.Effects, policy config.ReconciliationPolicy) []string {
	cmp := replay.Reconcile(local, onChain, policy)
	if cmp.Match {
		return nil
	}

	var diffs []string
	if !cmp.StatusMatch {
		diffs = append(diffs, fmt.Sprintf("status: local=%s on_chain=%s", local.Status, onChain.Status))
	}
	diffs = append(diffs, describeDiff("created", cmp.Created)...)
	diffs = append(diffs, describeDiff("mutated", cmp.Mutated)...)
	diffs = append(diffs, describeDiff("deleted", cmp.Deleted)...)
	diffs = append(diffs, describeDiff("wrapped", cmp.Wrapped)...)
	diffs = append(diffs, describeDiff("unwrapped", cmp.Unwrapped)...)
	return diffs
}

func describeDiff(label string, d movetypes.SetDiff) []string {
	var out []string
	if len(d.MissingFromLocal) > 0 {
		out = append(out, fmt.Sprintf("%s: missing from local: %s", label, joinAddrs(d.MissingFromLocal)))
	}
	if len(d.ExtraInLocal) > 0 {
		out = append(out, fmt.Sprintf("%s: extra in local: %s", label, joinAddrs(d.ExtraInLocal)))
	}
	return out
}

func joinAddrs(ids []movetypes.AccountAddress) string {
	hexes := make([]string, len(ids))
	for i, id := range ids {
		hexes[i] = id.Hex()
	}
	sort.Strings(hexes)
	return strings.Join(hexes, ", ")
}
