package replay

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// AnalyzeOnly hydrates and resolves digest exactly as Replay does, but stops
// before touching the VM: it reports what the transaction would need (missing
// packages, missing inputs, linkage upgrades actually in play) without
// executing anything. Useful for a readiness check before committing to a
// full replay, and as the cheap half of the "analyze/replay agreement"
// property: AnalyzeOnly's missing_packages is always a subset of what a full
// Replay of the same digest would report, since Replay performs the same
// hydrate step and never discovers fewer missing dependencies than analysis
// did.
func (e *Engine) AnalyzeOnly(ctx context.Context, digest string) (*ReplayResult, error) {
	replayID := uuid.NewString()
	log := e.log.With(zap.String("replay_id", replayID), zap.String("digest", digest))

	hr, err := Hydrate(ctx, e.source, digest, e.cfg.Resolver, e.framework, e.inspector, log)
	if err != nil {
		return &ReplayResult{ReplayID: replayID, Success: false, Error: errorString(err)}, nil
	}
	state := hr.State

	seeds := collectPackageSeeds(state.Transaction)
	have := make(map[movetypes.AccountAddress]bool, len(state.Packages))
	for id := range state.Packages {
		have[id] = true
	}
	var missingPackages []movetypes.AccountAddress
	for _, id := range seeds {
		if !have[id] {
			missingPackages = append(missingPackages, id)
		}
	}

	upgrades := make(map[string]string, len(state.LinkageUpgrades))
	for orig, upgraded := range state.LinkageUpgrades {
		upgrades[orig.Hex()] = upgraded.Hex()
	}

	return &ReplayResult{
		ReplayID:          replayID,
		Success:           len(missingPackages) == 0 && len(hr.MissingObjects) == 0,
		MissingPackages:   missingPackages,
		MissingInputs:     hr.MissingObjects,
		LinkageUpgrades:   upgrades,
		PredictedAccesses: e.predictAccesses(state.Transaction),
	}, nil
}
