package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionRegistryOpenGetCancel(t *testing.T) {
	reg := NewSessionRegistry()

	session, ctx := reg.Open(context.Background(), nil)
	require.NotZero(t, session.ID)
	require.NoError(t, ctx.Err())

	got, ok := reg.Get(session.ID)
	require.True(t, ok)
	require.Same(t, session, got)

	require.True(t, reg.Cancel(session.ID))
	require.Error(t, ctx.Err())
}

func TestSessionRegistryCancelUnknownIDReturnsFalse(t *testing.T) {
	reg := NewSessionRegistry()
	require.False(t, reg.Cancel(SessionID(999)))
}

func TestSessionRegistryCloseRemovesEntryAndCancels(t *testing.T) {
	reg := NewSessionRegistry()
	session, ctx := reg.Open(context.Background(), nil)

	reg.Close(session.ID)

	require.Error(t, ctx.Err())
	_, ok := reg.Get(session.ID)
	require.False(t, ok)
}

func TestSessionRegistryAssignsDistinctIDs(t *testing.T) {
	reg := NewSessionRegistry()
	s1, _ := reg.Open(context.Background(), nil)
	s2, _ := reg.Open(context.Background(), nil)
	require.NotEqual(t, s1.ID, s2.ID)
}
