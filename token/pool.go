// Package token implements the effect-token pool (SPEC_FULL.md §4.5): the
// builder-time capability map threaded through compilation, its runtime
// mirror used by the interpreter, and the namespaced global value store both
// gate on.
package token

import (
	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/invariant"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
)

// HandleKind distinguishes the three token handle shapes a pool slot can hold.
type HandleKind int

const (
	HandleSingle HandleKind = iota // baseline linear token
	HandleRead                    // R(node_cid): duplicable
	HandleWrite                   // W(node_cid, tid): linear
)

// Handle is a token pool value: a reference to the node and output port that
// produced it (the node's trailing synthetic token port - see objects' node
// payload docs), plus the transaction id for write handles (zero for
// Single/Read).
type Handle struct {
	Kind HandleKind
	Node cid.CID
	Port int
	TID  int
}

// Key identifies a pool slot.
type Key struct {
	Domain objects.EffectDomain
	Perm   objects.Permission
	TID    int
}

// Pool is the builder-time token map keyed by (domain, permission, tid). Write
// handles are removed on acquisition and reinserted under the producing node,
// enforcing linearity by construction (spec.md §9 "Token linearity").
type Pool struct {
	slots map[Key]Handle
}

func NewPool() *Pool {
	return &Pool{slots: make(map[Key]Handle)}
}

// Seed installs a synthetic TOKEN ("enter") handle for domain, called once per
// declared effect domain at the start of a word body. A TOKEN node has a
// single output port, always 0.
func (p *Pool) Seed(domain objects.EffectDomain, node cid.CID) {
	key := Key{Domain: domain, Perm: objects.PermRead, TID: 0}
	p.slots[key] = Handle{Kind: HandleSingle, Node: node, Port: 0}
}

// AcquireRead returns the duplicable read handle for domain without removing
// it - reads never consume.
func (p *Pool) AcquireRead(domain objects.EffectDomain) (Handle, bool) {
	h, ok := p.slots[Key{Domain: domain, Perm: objects.PermRead, TID: 0}]
	return h, ok
}

// AcquireWrite removes and returns the write handle for (domain, tid); the
// caller must call Release with the new producing node once the consuming
// node has been emitted, to reinsert it under the new key.
func (p *Pool) AcquireWrite(domain objects.EffectDomain, tid int) (Handle, bool) {
	key := Key{Domain: domain, Perm: objects.PermWrite, TID: tid}
	h, ok := p.slots[key]
	if ok {
		delete(p.slots, key)
	}
	return h, ok
}

// Release reinserts a write handle under (domain, tid) after the consuming
// node has produced a fresh token output at the given port.
func (p *Pool) Release(domain objects.EffectDomain, tid int, node cid.CID, port int) {
	key := Key{Domain: domain, Perm: objects.PermWrite, TID: tid}
	invariant.Precondition(!p.hasLive(key), "write token for %s/%d released while still live", domain, tid)
	p.slots[key] = Handle{Kind: HandleWrite, Node: node, Port: port, TID: tid}
}

func (p *Pool) hasLive(key Key) bool {
	_, ok := p.slots[key]
	return ok
}

// SeedWrite installs the initial write handle for (domain, tid), used the
// first time a word declares a write effect in that domain.
func (p *Pool) SeedWrite(domain objects.EffectDomain, tid int, node cid.CID) {
	p.slots[Key{Domain: domain, Perm: objects.PermWrite, TID: tid}] = Handle{Kind: HandleWrite, Node: node, Port: 0, TID: tid}
}

// Has reports whether a token handle for domain/perm/tid currently exists.
func (p *Pool) Has(domain objects.EffectDomain, perm objects.Permission, tid int) bool {
	_, ok := p.slots[Key{Domain: domain, Perm: perm, TID: tid}]
	return ok
}

// RequireToken implements the builder's token acquisition rule: an absent
// token for a required domain is a compile-time MissingToken error, except for
// optional domains in release mode, which the caller elides instead of calling
// this function at all.
func (p *Pool) RequireToken(domain objects.EffectDomain, perm objects.Permission, tid int) error {
	if !p.Has(domain, perm, tid) {
		return substraterr.Newf(substraterr.KindMissingToken, "no %v token available for effect domain %q", perm, domain).
			With("domain", string(domain))
	}
	return nil
}

// VerifyWriteLinearity walks the final pool state and asserts every write slot
// holds a write-kind handle; it inspects the pool only, not the graph's
// token edges. The pool's
// map structure makes "more than one live instance" structurally impossible by
// construction, so this is a defensive invariant check rather than a real scan
// target - it exists to catch a future bug in AcquireWrite/Release pairing.
func (p *Pool) VerifyWriteLinearity() {
	for k, h := range p.slots {
		if k.Perm == objects.PermWrite {
			invariant.Invariant(h.Kind == HandleWrite, "write slot %v holds non-write handle", k)
		}
	}
}
