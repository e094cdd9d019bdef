package token

import (
	"sort"
	"sync"

	"github.com/opal-lang/substrate/internal/invariant"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
)

// GlobalStore is the two-level namespace → key → Value mapping gated by
// state-domain tokens (spec.md §4.5). It is process-wide but guarded by the
// single-writer discipline documented in spec.md §5; the mutex here is
// defensive, matching the teacher's habit of guarding shared maps even under a
// nominal single-writer model.
type GlobalStore struct {
	mu   sync.Mutex
	data map[string]map[string]objects.Value
}

func NewGlobalStore() *GlobalStore {
	return &GlobalStore{data: make(map[string]map[string]objects.Value)}
}

// Read returns the value at (ns, key). Callers must already hold a state read
// token; the store itself does not check tokens - that is the interpreter's
// job at the graph level (spec.md §4.5: "so 'global' is structural, not
// ambient").
func (g *GlobalStore) Read(ns, key string) (objects.Value, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	bucket, ok := g.data[ns]
	if !ok {
		return objects.Value{}, substraterr.Newf(substraterr.KindGlobalNotFound, "no namespace %q", ns)
	}
	v, ok := bucket[key]
	if !ok {
		return objects.Value{}, substraterr.Newf(substraterr.KindGlobalNotFound, "no key %q in namespace %q", key, ns)
	}
	return v.DeepCopy(), nil
}

// Write replaces the value at (ns, key), deep-copying it first.
func (g *GlobalStore) Write(ns, key string, v objects.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	bucket, ok := g.data[ns]
	if !ok {
		bucket = make(map[string]objects.Value)
		g.data[ns] = bucket
	}
	bucket[key] = v.DeepCopy()
}

// Snapshot is a stable-ordered view: namespaces sorted lexicographically, keys
// within each namespace sorted lexicographically.
type Snapshot struct {
	Namespaces []NamespaceSnapshot
}

type NamespaceSnapshot struct {
	Namespace string
	Entries   []KeyValue
}

type KeyValue struct {
	Key   string
	Value objects.Value
}

// Equal reports whether two snapshots are structurally identical - the
// property spec.md §4.5 requires ("equal snapshots imply equal state").
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s.Namespaces) != len(o.Namespaces) {
		return false
	}
	for i := range s.Namespaces {
		a, b := s.Namespaces[i], o.Namespaces[i]
		if a.Namespace != b.Namespace || len(a.Entries) != len(b.Entries) {
			return false
		}
		for j := range a.Entries {
			if a.Entries[j].Key != b.Entries[j].Key || !a.Entries[j].Value.Equal(b.Entries[j].Value) {
				return false
			}
		}
	}
	return true
}

// Snapshot serializes the entire store in stable order, used by the CLI's
// `state snapshot` admin command.
func (g *GlobalStore) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	nsNames := make([]string, 0, len(g.data))
	for ns := range g.data {
		nsNames = append(nsNames, ns)
	}
	sort.Strings(nsNames)

	out := Snapshot{Namespaces: make([]NamespaceSnapshot, 0, len(nsNames))}
	for _, ns := range nsNames {
		bucket := g.data[ns]
		keys := make([]string, 0, len(bucket))
		for k := range bucket {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]KeyValue, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, KeyValue{Key: k, Value: bucket[k].DeepCopy()})
		}
		out.Namespaces = append(out.Namespaces, NamespaceSnapshot{Namespace: ns, Entries: entries})
	}
	invariant.Invariant(sort.SliceIsSorted(out.Namespaces, func(i, j int) bool {
		return out.Namespaces[i].Namespace < out.Namespaces[j].Namespace
	}), "snapshot namespaces not sorted")
	return out
}

// Reset clears every key in every namespace, used by the CLI's `state reset`
// admin command.
func (g *GlobalStore) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data = make(map[string]map[string]objects.Value)
}
