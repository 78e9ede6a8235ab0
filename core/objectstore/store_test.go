package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

func TestStoreGetPutDelete(t *testing.T) {
	id := movetypes.HexToAddress("0x10")
	s := New(Sandbox, map[movetypes.AccountAddress]*movetypes.Object{
		id: {ID: id, Version: 1},
	})

	obj, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, uint64(1), obj.Version)

	s.Put(&movetypes.Object{ID: id, Version: 2})
	obj, ok = s.Get(id)
	require.True(t, ok)
	require.Equal(t, uint64(2), obj.Version)

	s.Delete(id)
	_, ok = s.Get(id)
	require.False(t, ok)
}

func TestResolveChildPreloadTakesPrecedence(t *testing.T) {
	parent := movetypes.HexToAddress("0x1")
	child := movetypes.HexToAddress("0x2")
	s := New(Sandbox, nil)

	called := false
	s.SetVersionedFetcher(func(ctx context.Context, p, c movetypes.AccountAddress, bound uint64) (*ChildEntry, bool, error) {
		called = true
		return &ChildEntry{Type: "fetcher", Bytes: []byte("from-fetcher"), Version: 1}, true, nil
	})
	s.PreloadChild(parent, child, ChildEntry{Type: "preload", Bytes: []byte("from-preload"), Version: 1})

	entry, ok, err := s.ResolveChild(context.Background(), parent, child, 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "from-preload", string(entry.Bytes))
	require.False(t, called)
}

func TestResolveChildReplayModeEnforcesVersionBound(t *testing.T) {
	parent := movetypes.HexToAddress("0x1")
	child := movetypes.HexToAddress("0x2")
	s := New(Replay, nil)
	s.SetVersionedFetcher(func(ctx context.Context, p, c movetypes.AccountAddress, bound uint64) (*ChildEntry, bool, error) {
		return &ChildEntry{Type: "t", Bytes: []byte("x"), Version: 50}, true, nil
	})

	_, ok, err := s.ResolveChild(context.Background(), parent, child, 10)
	require.NoError(t, err)
	require.False(t, ok, "version above bound must be rejected in replay mode")

	entry, ok, err := s.ResolveChild(context.Background(), parent, child, 50)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, entry)
}

func TestResolveChildSandboxModeIgnoresVersionBound(t *testing.T) {
	parent := movetypes.HexToAddress("0x1")
	child := movetypes.HexToAddress("0x2")
	s := New(Sandbox, nil)
	s.SetVersionedFetcher(func(ctx context.Context, p, c movetypes.AccountAddress, bound uint64) (*ChildEntry, bool, error) {
		return &ChildEntry{Type: "t", Bytes: []byte("x"), Version: 999}, true, nil
	})

	entry, ok, err := s.ResolveChild(context.Background(), parent, child, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, entry)
}

func TestResolveKeyedPreloadTakesPrecedence(t *testing.T) {
	parent := movetypes.HexToAddress("0x1")
	s := New(Sandbox, nil)
	s.SetKeyedFetcher(func(ctx context.Context, p movetypes.AccountAddress, kt movetypes.TypeTag, kb []byte) (*KeyedChildEntry, bool, error) {
		t.Fatal("fetcher should not be called when preload is present")
		return nil, false, nil
	})
	s.PreloadKeyed(parent, "0x2::table::Key", []byte("key-bytes"), KeyedChildEntry{ChildID: movetypes.HexToAddress("0x5"), Type: "val", Bytes: []byte("v")})

	entry, ok, err := s.ResolveKeyed(context.Background(), parent, "0x2::table::Key", []byte("key-bytes"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(entry.Bytes))
}

func TestPrefetchInstallsPreloads(t *testing.T) {
	parent := movetypes.HexToAddress("0x1")
	child1 := movetypes.HexToAddress("0x2")
	child2 := movetypes.HexToAddress("0x3")
	s := New(Replay, nil)
	calls := 0
	s.SetVersionedFetcher(func(ctx context.Context, p, c movetypes.AccountAddress, bound uint64) (*ChildEntry, bool, error) {
		calls++
		return &ChildEntry{Type: "t", Bytes: []byte("v"), Version: 1}, true, nil
	})

	loaded, err := s.Prefetch(context.Background(), []PrefetchRequest{{Parent: parent, Child: child1}, {Parent: parent, Child: child2}}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, loaded)
	require.Equal(t, 2, calls)

	// Second prefetch of the same children should not re-call the fetcher.
	loaded, err = s.Prefetch(context.Background(), []PrefetchRequest{{Parent: parent, Child: child1}}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 0, loaded)
	require.Equal(t, 2, calls)
}

func TestCloneIsIndependent(t *testing.T) {
	id := movetypes.HexToAddress("0x1")
	s := New(Sandbox, map[movetypes.AccountAddress]*movetypes.Object{
		id: {ID: id, Version: 1, Payload: []byte{1, 2, 3}},
	})

	clone := s.Clone()
	clone.Get(id)
	obj, _ := clone.Get(id)
	obj.Payload[0] = 99

	original, _ := s.Get(id)
	require.Equal(t, byte(1), original.Payload[0], "clone must not alias the original payload")
}
