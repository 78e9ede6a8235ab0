package objectstore

import "github.com/sui-sandbox/replaycore/core/movetypes"

// Clone returns a deep copy of the store's registered objects and preload
// maps, sharing the same fetcher callbacks, so a "what-if" re-execution
// (e.g. the replay engine's analyze-only pass, or a caller probing an
// alternate gas budget) can mutate freely without perturbing the original.
//
// Follows the usual snapshot/clone-before-mutate pattern for speculative
// execution: a handle-scoped snapshot clone, generalized here from a
// VM-instance snapshot to an object-store snapshot.
func (s *Store) Clone() *Store {
	objects := make(map[movetypes.AccountAddress]*movetypes.Object, len(s.objects))
	for id, obj := range s.objects {
		objects[id] = obj.Clone()
	}
	clone := &Store{
		mode:             s.mode,
		objects:          objects,
		preloadedByChild: make(map[preloadKey]ChildEntry, len(s.preloadedByChild)),
		preloadedByKey:   make(map[preloadKey]KeyedChildEntry, len(s.preloadedByKey)),
		versioned:        s.versioned,
		keyed:            s.keyed,
	}
	for k, v := range s.preloadedByChild {
		clone.preloadedByChild[k] = v
	}
	for k, v := range s.preloadedByKey {
		clone.preloadedByKey[k] = v
	}
	return clone
}
