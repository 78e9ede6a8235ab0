package replay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sui-sandbox/replaycore/core/movetypes"
	"github.com/sui-sandbox/replaycore/core/replay/config"
)

func addr(hex string) movetypes.AccountAddress { return movetypes.HexToAddress(hex) }

func TestReconcileOffAlwaysMatches(t *testing.T) {
	local := movetypes.Effects{Status: movetypes.StatusSuccess}
	onChain := movetypes.Effects{Status: movetypes.StatusFailure, Mutated: []movetypes.AccountAddress{addr("0x1")}}
	cmp := Reconcile(local, onChain, config.ReconciliationOff)
	require.True(t, cmp.Match)
}

func TestReconcileE5SingleGasCoinExtraTolerated(t *testing.T) {
	a, b, g := addr("0xa"), addr("0xb"), addr("0x0")
	local := movetypes.Effects{Status: movetypes.StatusSuccess, Mutated: []movetypes.AccountAddress{a, b}}
	onChain := movetypes.Effects{Status: movetypes.StatusSuccess, Mutated: []movetypes.AccountAddress{g, a, b}}

	lenient := Reconcile(local, onChain, config.ReconciliationLenient)
	require.True(t, lenient.Match)

	strict := Reconcile(local, onChain, config.ReconciliationStrict)
	require.True(t, strict.Match)
}

func TestReconcileThreeExtrasBreaksTolerance(t *testing.T) {
	a := addr("0xa")
	local := movetypes.Effects{Status: movetypes.StatusSuccess, Mutated: []movetypes.AccountAddress{a}}
	onChain := movetypes.Effects{Status: movetypes.StatusSuccess, Mutated: []movetypes.AccountAddress{a, addr("0x1"), addr("0x2"), addr("0x3")}}

	strict := Reconcile(local, onChain, config.ReconciliationStrict)
	require.False(t, strict.Match)
	require.Len(t, strict.Mutated.MissingFromLocal, 3)
}

func TestReconcileExtraLocalMutationIsHardMismatchUnderStrict(t *testing.T) {
	a, phantom := addr("0xa"), addr("0xdead")
	local := movetypes.Effects{Status: movetypes.StatusSuccess, Mutated: []movetypes.AccountAddress{a, phantom}}
	onChain := movetypes.Effects{Status: movetypes.StatusSuccess, Mutated: []movetypes.AccountAddress{a}}

	strict := Reconcile(local, onChain, config.ReconciliationStrict)
	require.False(t, strict.Match)
}

func TestReconcileExtraLocalMutationIsHardMismatchUnderLenient(t *testing.T) {
	a, phantom := addr("0xa"), addr("0xdead")
	local := movetypes.Effects{Status: movetypes.StatusSuccess, Mutated: []movetypes.AccountAddress{a, phantom}}
	onChain := movetypes.Effects{Status: movetypes.StatusSuccess, Mutated: []movetypes.AccountAddress{a}}

	lenient := Reconcile(local, onChain, config.ReconciliationLenient)
	require.False(t, lenient.Match)
}

func TestReconcileMonotonicity(t *testing.T) {
	a := addr("0xa")
	local := movetypes.Effects{Status: movetypes.StatusSuccess, Created: []movetypes.AccountAddress{a}, Mutated: []movetypes.AccountAddress{a}}
	onChain := movetypes.Effects{Status: movetypes.StatusSuccess, Created: []movetypes.AccountAddress{a}, Mutated: []movetypes.AccountAddress{a, addr("0x1")}}

	strict := Reconcile(local, onChain, config.ReconciliationStrict)
	lenient := Reconcile(local, onChain, config.ReconciliationLenient)
	off := Reconcile(local, onChain, config.ReconciliationOff)

	if strict.Match {
		require.True(t, lenient.Match)
	}
	if lenient.Match {
		require.True(t, off.Match)
	}
}

func TestReconcileMissingCreatedIsHardMismatch(t *testing.T) {
	local := movetypes.Effects{Status: movetypes.StatusSuccess}
	onChain := movetypes.Effects{Status: movetypes.StatusSuccess, Created: []movetypes.AccountAddress{addr("0x1")}}

	lenient := Reconcile(local, onChain, config.ReconciliationLenient)
	require.False(t, lenient.Match)
	require.Len(t, lenient.Created.MissingFromLocal, 1)
}
