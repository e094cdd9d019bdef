package interp

import (
	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
	"github.com/opal-lang/substrate/token"
)

// PrimFunc is a native implementation of one primitive operator. args holds
// the prim's value arguments in declared-parameter order (token inputs are
// stripped before a PrimFunc ever sees them - effect bookkeeping lives in
// evalPrim, not in the registered function). ns is the namespace in effect
// for the enclosing call, used by state-domain prims.
type PrimFunc func(args []objects.Value, ns string, globals *token.GlobalStore) ([]objects.Value, error)

// Registry maps a prim's content-address to its native implementation. The
// canonical Prim object carries only a type signature and an effect list, not
// behavior, so every primitive substrate can actually run needs an entry here
// (spec.md never assigns opcode semantics to a Prim - that binding lives in
// the host; NewBuiltinRegistry supplies the built-in set).
type Registry struct {
	byCID map[cid.CID]PrimFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byCID: make(map[cid.CID]PrimFunc)}
}

// Bind registers fn under the prim named name in st's prim scope. A missing
// name is not an error: catalogs may import only a subset of the builtin
// table, and binding is best-effort per name.
func (r *Registry) Bind(st *store.Store, name string, fn PrimFunc) error {
	c, err := st.NameGet(store.ScopePrim, name)
	if err != nil {
		return nil
	}
	r.byCID[c] = fn
	return nil
}

// BindCID registers fn directly under a known prim CID, for callers that
// already hold the CID (tests, or a catalog importer resolving as it goes).
func (r *Registry) BindCID(c cid.CID, fn PrimFunc) {
	r.byCID[c] = fn
}

// Lookup returns the implementation bound to c, if any.
func (r *Registry) Lookup(c cid.CID) (PrimFunc, bool) {
	fn, ok := r.byCID[c]
	return fn, ok
}
