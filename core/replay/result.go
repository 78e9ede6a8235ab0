package replay

import (
	"github.com/sui-sandbox/replaycore/core/callgraph"
	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// VersionSummary reports, per object, the version it was fetched at versus
// the version the on-chain effects expected — useful diagnostic context when
// a replay disagrees with reality.
type VersionSummary struct {
	ObjectID      movetypes.AccountAddress `json:"object_id"`
	FetchedAt     uint64                   `json:"fetched_at"`
	OnChainExpect uint64                   `json:"on_chain_expected"`
}

// Recovery tallies how many recovery actions the engine took.
type Recovery struct {
	SynthesizedInputs int `json:"synthesized_inputs"`
	SelfHealedFields  int `json:"self_healed_fields"`
}

// ReplayResult is the stable JSON document returned by Replay and
// AnalyzeOnly.
type ReplayResult struct {
	// ReplayID correlates this result with the log lines the engine emitted
	// while producing it; stamped fresh on every Replay/AnalyzeOnly call.
	ReplayID string  `json:"replay_id"`
	Success  bool    `json:"success"`
	Error    *string `json:"error,omitempty"`

	EffectsLocal   *movetypes.Effects `json:"effects_local,omitempty"`
	EffectsOnChain *movetypes.Effects `json:"effects_on_chain,omitempty"`

	Comparison *movetypes.EffectsComparison `json:"comparison,omitempty"`

	VersionSummary []VersionSummary `json:"version_summary,omitempty"`
	Gas            *movetypes.GasSummary `json:"gas,omitempty"`
	Recovery       Recovery              `json:"recovery"`

	// Analyze-only fields, populated iff produced by AnalyzeOnly.
	MissingPackages []movetypes.AccountAddress `json:"missing_packages,omitempty"`
	MissingInputs   []movetypes.AccountAddress `json:"missing_inputs,omitempty"`
	LinkageUpgrades map[string]string          `json:"linkage_upgrades,omitempty"`

	// PredictedAccesses is populated when EngineConfig.CallGraph is set: one
	// entry per MoveCall command that has at least one predicted access (other
	// commands get no entry), listing the dynamic fields static analysis
	// predicts that call will transitively touch. Diagnostic only — it never
	// changes what the VM actually does, only what a caller can prefetch.
	PredictedAccesses []CommandAccesses `json:"predicted_accesses,omitempty"`
}

// CommandAccesses is one MoveCall command's predicted dynamic-field touches.
type CommandAccesses struct {
	CommandIndex int                        `json:"command_index"`
	Function     string                     `json:"function"`
	Accesses     []callgraph.ResolvedAccess `json:"accesses"`
}

func errorString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
