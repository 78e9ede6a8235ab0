package replay

import (
	"bytes"
	"sort"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/replay/config"
)

// mutatedTolerance is the number of on-chain-only mutated objects (gas coin,
// gas-split coin) a reconciliation never penalizes, under either non-off
// policy.
const mutatedTolerance = 2

// Reconcile compares local against onChain under policy, producing an
// EffectsComparison. A stricter policy only ever shrinks the match set: a
// strict match implies a lenient match implies an off match.
func Reconcile(local, onChain movetypes.Effects, policy config.ReconciliationPolicy) movetypes.EffectsComparison {
	cmp := movetypes.EffectsComparison{
		StatusMatch: local.Status == onChain.Status,
		Created:     diffSet(local.Created, onChain.Created),
		Mutated:     diffSet(local.Mutated, onChain.Mutated),
		Deleted:     diffSet(local.Deleted, onChain.Deleted),
		Wrapped:     diffSet(local.Wrapped, onChain.Wrapped),
		Unwrapped:   diffSet(local.Unwrapped, onChain.Unwrapped),
	}

	if policy == config.ReconciliationOff {
		cmp.Match = true
		return cmp
	}

	match := cmp.StatusMatch
	match = match && evalDiff(cmp.Created, 0)
	match = match && evalDiff(cmp.Mutated, mutatedTolerance)
	match = match && evalDiff(cmp.Deleted, 0)
	match = match && evalDiff(cmp.Wrapped, 0)
	match = match && evalDiff(cmp.Unwrapped, 0)
	cmp.Match = match
	return cmp
}

// evalDiff reports whether diff satisfies a policy's tolerance: at most
// missingTolerance ids present on-chain but absent locally, and zero ids
// present locally but absent on-chain under any non-off policy — the VM
// must never invent mutations regardless of strictness.
func evalDiff(diff movetypes.SetDiff, missingTolerance int) bool {
	if len(diff.MissingFromLocal) > missingTolerance {
		return false
	}
	if len(diff.ExtraInLocal) > 0 {
		return false
	}
	return true
}

func diffSet(local, onChain []movetypes.AccountAddress) movetypes.SetDiff {
	localSet := toSet(local)
	onChainSet := toSet(onChain)

	var missing, extra []movetypes.AccountAddress
	for id := range onChainSet {
		if !localSet[id] {
			missing = append(missing, id)
		}
	}
	for id := range localSet {
		if !onChainSet[id] {
			extra = append(extra, id)
		}
	}
	sortAddresses(missing)
	sortAddresses(extra)
	return movetypes.SetDiff{MissingFromLocal: missing, ExtraInLocal: extra}
}

func toSet(ids []movetypes.AccountAddress) map[movetypes.AccountAddress]bool {
	set := make(map[movetypes.AccountAddress]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// sortAddresses imposes a deterministic order on diff output so two replays
// of the same transaction produce byte-identical ReplayResult JSON.
func sortAddresses(ids []movetypes.AccountAddress) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}
