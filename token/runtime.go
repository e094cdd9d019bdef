package token

import (
	"github.com/opal-lang/substrate/internal/invariant"
	"github.com/opal-lang/substrate/objects"
)

// RuntimePool mirrors Pool for the interpreter: it instantiates one live
// token per declared effect domain at call entry and tracks liveness, the
// same acquire/release pairing token.Pool enforces at build time
// (AcquireWrite removes, Release reinserts). A chain of N effectful nodes in
// one domain is expected: each consuming node's own output is the domain's
// fresh token instance, so Consume and Release pair around every effectful
// node's evaluation (SPEC_FULL.md §8's "single write token through a chain of
// state.write calls" property). The panic this guards against is a token used
// while not live - i.e. consumed twice with no intervening re-instantiation -
// not a second use of the domain per call, which is the expected common case.
type RuntimePool struct {
	live     map[objects.EffectDomain]bool
	declared map[objects.EffectDomain]bool
}

// NewRuntimePool instantiates tokens for every domain the current word
// declares in its effect list.
func NewRuntimePool(domains []objects.EffectDomain) *RuntimePool {
	rp := &RuntimePool{
		live:     make(map[objects.EffectDomain]bool, len(domains)),
		declared: make(map[objects.EffectDomain]bool, len(domains)),
	}
	for _, d := range domains {
		rp.declared[d] = true
		rp.live[d] = true
	}
	return rp
}

// Consume marks domain's current token instance as used, panicking via
// invariant if it isn't currently live. Pair every Consume with a Release once
// the consuming node has produced its own fresh token output.
func (rp *RuntimePool) Consume(domain objects.EffectDomain) {
	invariant.Precondition(rp.declared[domain], "consuming undeclared effect domain %q", domain)
	invariant.Invariant(rp.live[domain], "effect domain %q consumed while not live (token reused or never released)", domain)
	rp.live[domain] = false
}

// Release re-instantiates domain's token as live, called once the node that
// consumed it has produced its own trailing token output - that output port
// is the domain's next live instance.
func (rp *RuntimePool) Release(domain objects.EffectDomain) {
	invariant.Precondition(rp.declared[domain], "releasing undeclared effect domain %q", domain)
	rp.live[domain] = true
}

// Declared reports whether domain is among this call's declared effects.
func (rp *RuntimePool) Declared(domain objects.EffectDomain) bool {
	return rp.declared[domain]
}
