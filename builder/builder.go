// Package builder implements the stack-machine graph builder (SPEC_FULL.md
// §4.3): it compiles a linear sequence of stack operations into a set of
// canonical nodes plus a RETURN root, threading per-domain effect tokens as it
// goes.
package builder

import (
	"sort"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/invariant"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
	"github.com/opal-lang/substrate/token"
)

// StackItem is one data stack entry: a reference to a producer's output port
// plus its static type, used for TypeMismatch checking before a node is emitted.
type StackItem struct {
	Producer cid.CID
	Port     int
	Type     objects.TypeAtom
}

// Mode controls whether optional effect domains (test, metric) may be elided
// when no token is available.
type Mode int

const (
	ModeDebug   Mode = iota // strict: missing token in any domain is fatal
	ModeRelease             // optional domains may be erased
)

// Builder compiles one word or guard body. Create a fresh Builder per body.
type Builder struct {
	st   *store.Store
	pool *token.Pool
	mode Mode

	stack    []StackItem
	frontier map[objects.EffectDomain]token.Handle // last effectful producer per domain
	argNodes map[int]cid.CID                       // ARG node emitted once per index
	effects  []cid.CID                             // declared effects for the word under construction
	guard    cid.CID                                // set by AttachGuard, in guard-builder mode
}

// New starts a builder for a word/guard declaring the given effect domains.
// One TOKEN node is seeded per domain (the "enter" token).
func New(st *store.Store, mode Mode, declaredEffects []cid.CID) (*Builder, error) {
	b := &Builder{
		st:       st,
		pool:     token.NewPool(),
		mode:     mode,
		frontier: make(map[objects.EffectDomain]token.Handle),
		argNodes: make(map[int]cid.CID),
		effects:  declaredEffects,
	}
	for _, effCID := range declaredEffects {
		domain, err := b.domainOf(effCID)
		if err != nil {
			return nil, err
		}
		tokNode := objects.Node{
			Kind:    objects.KindToken,
			Outs:    []objects.TypeAtom{objects.TypeUnit},
			Payload: objects.TokenPayload{Domain: domain},
		}
		tokCID, err := b.emit(tokNode)
		if err != nil {
			return nil, err
		}
		// The enter token seeds both the read slot (duplicable) and the write
		// slot (tid 0) for this domain: until the first write commits, a write
		// consumer takes the same node a read consumer would.
		h := token.Handle{Kind: token.HandleSingle, Node: tokCID, Port: 0}
		b.pool.Seed(domain, tokCID)
		b.pool.SeedWrite(domain, 0, tokCID)
		b.frontier[domain] = h
	}
	return b, nil
}

func (b *Builder) domainOf(effCID cid.CID) (objects.EffectDomain, error) {
	kind, bytes, err := b.st.Get(effCID)
	if err != nil {
		return "", err
	}
	if kind != "effect" {
		return "", substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not an effect", effCID)
	}
	eff, err := objects.DecodeEffect(bytes, "")
	if err != nil {
		return "", err
	}
	return eff.Domain, nil
}

// emit canonicalizes n, stores it, and returns its CID.
func (b *Builder) emit(n objects.Node) (cid.CID, error) {
	c, bytes, err := n.CID()
	if err != nil {
		return cid.CID{}, err
	}
	if err := b.st.Put(c, "node", bytes); err != nil {
		return cid.CID{}, err
	}
	return c, nil
}

func (b *Builder) pop() (StackItem, error) {
	if len(b.stack) == 0 {
		return StackItem{}, substraterr.New(substraterr.KindStackUnderflow, "pop on empty stack")
	}
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return top, nil
}

func (b *Builder) push(item StackItem) {
	b.stack = append(b.stack, item)
}

// Lit emits a LIT node and pushes its value.
func (b *Builder) Lit(t objects.TypeAtom, v objects.Value) error {
	n := objects.Node{
		Kind:    objects.KindLit,
		Outs:    []objects.TypeAtom{t},
		Payload: objects.LitPayload{Type: t, Value: v},
	}
	c, err := b.emit(n)
	if err != nil {
		return err
	}
	b.push(StackItem{Producer: c, Port: 0, Type: t})
	return nil
}

// PushArg pushes argument i, emitting its ARG node the first time i is referenced.
func (b *Builder) PushArg(i int, t objects.TypeAtom) error {
	if i < 0 {
		return substraterr.Newf(substraterr.KindInvalidCanonicalForm, "negative arg index %d", i)
	}
	c, ok := b.argNodes[i]
	if !ok {
		n := objects.Node{
			Kind:    objects.KindArg,
			Outs:    []objects.TypeAtom{t},
			Payload: objects.ArgPayload{Index: i},
		}
		var err error
		c, err = b.emit(n)
		if err != nil {
			return err
		}
		b.argNodes[i] = c
	}
	b.push(StackItem{Producer: c, Port: 0, Type: t})
	return nil
}

// requiredTokenInputs computes, for the given effect CIDs and caller-supplied
// permissions, the ordered list of token input ports to attach to a node, and
// the handles to release afterward for write domains. perms maps each
// declared domain to the permission this particular call site needs (the
// emask information the catalog importer derives from the YAML schema).
func (b *Builder) requiredTokenInputs(effects []cid.CID, perms map[objects.EffectDomain]objects.Permission) ([]objects.Port, []tokenRelease, error) {
	domains := make([]objects.EffectDomain, 0, len(effects))
	for _, e := range effects {
		d, err := b.domainOf(e)
		if err != nil {
			return nil, nil, err
		}
		domains = append(domains, d)
	}

	var inputs []objects.Port
	var releases []tokenRelease
	for i, d := range domains {
		perm := perms[d]
		if perm == objects.PermWrite {
			h, ok := b.pool.AcquireWrite(d, 0)
			if !ok {
				if err := b.elideOrFail(d); err != nil {
					return nil, nil, err
				}
				continue
			}
			inputs = append(inputs, objects.Port{Producer: h.Node, Port: h.Port})
			releases = append(releases, tokenRelease{domain: d, domainIndex: i})
		} else {
			h, ok := b.pool.AcquireRead(d)
			if !ok {
				if err := b.elideOrFail(d); err != nil {
					return nil, nil, err
				}
				continue
			}
			inputs = append(inputs, objects.Port{Producer: h.Node, Port: h.Port})
		}
	}
	return inputs, releases, nil
}

type tokenRelease struct {
	domain      objects.EffectDomain
	domainIndex int
}

func (b *Builder) elideOrFail(d objects.EffectDomain) error {
	if b.mode == ModeRelease && objects.OptionalDomains[d] {
		return nil
	}
	return substraterr.Newf(substraterr.KindMissingToken, "no token available for effect domain %q", d).With("domain", string(d))
}

// Prim emits a PRIM node invoking primCID, popping its params and pushing its
// results, threading tokens per perms.
func (b *Builder) Prim(primCID cid.CID, perms map[objects.EffectDomain]objects.Permission) error {
	kind, bytes, err := b.st.Get(primCID)
	if err != nil {
		return err
	}
	if kind != "prim" {
		return substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a prim", primCID)
	}
	prim, err := objects.DecodePrim(bytes)
	if err != nil {
		return err
	}
	return b.invoke(prim.Params, prim.Results, prim.Effects, perms, objects.KindPrim, objects.PrimPayload{Prim: primCID})
}

// Call emits a CALL node invoking wordCID, with the same token discipline as Prim.
func (b *Builder) Call(wordCID cid.CID, perms map[objects.EffectDomain]objects.Permission) error {
	kind, bytes, err := b.st.Get(wordCID)
	if err != nil {
		return err
	}
	if kind != "word" {
		return substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a word", wordCID)
	}
	w, err := objects.DecodeWord(bytes)
	if err != nil {
		return err
	}
	return b.invoke(w.Params, w.Results, w.Effects, perms, objects.KindCall, objects.CallPayload{Word: wordCID})
}

// Dispatch emits a DISPATCH node routing to one of cases by guard, falling
// back to deopt. Not one of the front-end stack ops in spec.md §4.3's table -
// the catalog importer calls this directly when synthesizing an overloaded
// word's routing body, after compiling each candidate under its own derived
// name (spec.md §4.6).
func (b *Builder) Dispatch(params, results []objects.TypeAtom, unionEffects []cid.CID, perms map[objects.EffectDomain]objects.Permission, cases []objects.DispatchCase, deopt cid.CID) error {
	return b.invoke(params, results, unionEffects, perms, objects.KindDispatch, objects.DispatchPayload{Cases: cases, Deopt: deopt})
}

func (b *Builder) invoke(params, results []objects.TypeAtom, effects []cid.CID, perms map[objects.EffectDomain]objects.Permission, kind objects.NodeKind, payload interface{}) error {
	if len(b.stack) < len(params) {
		return substraterr.Newf(substraterr.KindStackUnderflow, "need %d args, have %d", len(params), len(b.stack))
	}
	args := make([]StackItem, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		item, err := b.pop()
		if err != nil {
			return err
		}
		args[i] = item
	}
	for i, want := range params {
		if args[i].Type != want {
			return substraterr.Newf(substraterr.KindTypeMismatch, "arg %d: want %s, got %s", i, want, args[i].Type)
		}
	}

	tokenInputs, releases, err := b.requiredTokenInputs(effects, perms)
	if err != nil {
		return err
	}

	// Inputs preserve call order: value args first in declared parameter
	// order, then token inputs in declared-effects order (already sorted,
	// since effects are sorted). Neither sub-list is resorted by
	// (port, producer_cid) - that would scramble argument position, since a
	// binary op's two args both expose their own port 0 and sort only by
	// producer CID, which is unrelated to parameter order.
	inputs := make([]objects.Port, 0, len(args)+len(tokenInputs))
	for _, a := range args {
		inputs = append(inputs, objects.Port{Producer: a.Producer, Port: a.Port})
	}
	inputs = append(inputs, tokenInputs...)

	outs := make([]objects.TypeAtom, 0, len(results)+len(effects))
	outs = append(outs, results...)
	for range effects {
		outs = append(outs, objects.TypeUnit)
	}

	n := objects.Node{Kind: kind, Inputs: inputs, Outs: outs, Effects: objects.SortEffects(effects), Payload: payload}
	c, err := b.emit(n)
	if err != nil {
		return err
	}

	// Only write domains advance the frontier: read handles are duplicable and
	// reused without replacement (spec.md §4.3), so the last write per domain is
	// the only producer RETURN's deps ever needs to pin.
	for _, rel := range releases {
		port := len(results) + rel.domainIndex
		b.pool.Release(rel.domain, 0, c, port)
		b.frontier[rel.domain] = token.Handle{Kind: token.HandleWrite, Node: c, Port: port}
	}

	for i, r := range results {
		b.push(StackItem{Producer: c, Port: i, Type: r})
	}
	return nil
}

func compareCIDLess(a, b cid.CID) bool {
	ab, bb := a.Bytes(), b.Bytes()
	for i := range ab {
		if ab[i] != bb[i] {
			return ab[i] < bb[i]
		}
	}
	return false
}

// Quote emits a QUOTE node and pushes a quote value referencing wordCID.
func (b *Builder) Quote(wordCID cid.CID) error {
	n := objects.Node{
		Kind:    objects.KindQuote,
		Outs:    []objects.TypeAtom{objects.TypeQuote},
		Payload: objects.QuotePayload{Word: wordCID},
	}
	c, err := b.emit(n)
	if err != nil {
		return err
	}
	b.push(StackItem{Producer: c, Port: 0, Type: objects.TypeQuote})
	return nil
}

// LoadGlobal emits a LOAD_GLOBAL node reading globalCID's constant value list
// and pushes one stack item per value, typed from the global's own Types.
func (b *Builder) LoadGlobal(globalCID cid.CID) error {
	kind, bytes, err := b.st.Get(globalCID)
	if err != nil {
		return err
	}
	if kind != "global" {
		return substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a global", globalCID)
	}
	g, err := objects.DecodeGlobal(bytes)
	if err != nil {
		return err
	}
	n := objects.Node{
		Kind:    objects.KindLoadGlobal,
		Outs:    g.Types,
		Payload: objects.LoadGlobalPayload{Global: globalCID},
	}
	c, err := b.emit(n)
	if err != nil {
		return err
	}
	for i, t := range g.Types {
		b.push(StackItem{Producer: c, Port: i, Type: t})
	}
	return nil
}

// If pops a condition (i64), emits an IF node, and pushes its outs.
func (b *Builder) If(trueWord, falseWord cid.CID, outs []objects.TypeAtom) error {
	cond, err := b.pop()
	if err != nil {
		return err
	}
	if cond.Type != objects.TypeI64 {
		return substraterr.Newf(substraterr.KindTypeMismatch, "if condition must be i64, got %s", cond.Type)
	}
	n := objects.Node{
		Kind:    objects.KindIf,
		Inputs:  []objects.Port{{Producer: cond.Producer, Port: cond.Port}},
		Outs:    outs,
		Payload: objects.IfPayload{True: trueWord, False: falseWord},
	}
	c, err := b.emit(n)
	if err != nil {
		return err
	}
	for i, t := range outs {
		b.push(StackItem{Producer: c, Port: i, Type: t})
	}
	return nil
}

// Dup, Swap, Over, Drop rewire the stack only - no nodes are emitted.

func (b *Builder) Dup() error {
	top, err := b.pop()
	if err != nil {
		return err
	}
	b.push(top)
	b.push(top)
	return nil
}

func (b *Builder) Swap() error {
	if len(b.stack) < 2 {
		return substraterr.New(substraterr.KindStackUnderflow, "swap needs 2 items")
	}
	n := len(b.stack)
	b.stack[n-1], b.stack[n-2] = b.stack[n-2], b.stack[n-1]
	return nil
}

func (b *Builder) Over() error {
	if len(b.stack) < 2 {
		return substraterr.New(substraterr.KindStackUnderflow, "over needs 2 items")
	}
	item := b.stack[len(b.stack)-2]
	b.push(item)
	return nil
}

func (b *Builder) Drop() error {
	_, err := b.pop()
	return err
}

// AttachGuard records wordCID as the guard for this builder, valid only when
// this builder is being used in guard-attachment mode (a guard's own body is
// built with a plain Builder; AttachGuard is called on the *caller's* builder
// to wire the guard onto a DISPATCH case under construction).
func (b *Builder) AttachGuard(wordCID cid.CID) {
	b.guard = wordCID
}

// Guard returns the most recently attached guard CID, or cid.Zero if none.
func (b *Builder) Guard() cid.CID {
	return b.guard
}

// StackLen reports the current data stack depth, for Finish's arity check.
func (b *Builder) StackLen() int {
	return len(b.stack)
}

// Finish asserts the stack holds exactly resultCount items, emits the RETURN
// node and WORD object, and returns the word's CID.
func (b *Builder) Finish(params, results []objects.TypeAtom) (cid.CID, error) {
	if len(b.stack) != len(results) {
		return cid.CID{}, substraterr.Newf(substraterr.KindStackUnderflow, "expected %d results on stack, found %d", len(results), len(b.stack))
	}
	vals := make([]objects.Port, len(b.stack))
	for i, item := range b.stack {
		if item.Type != results[i] {
			return cid.CID{}, substraterr.Newf(substraterr.KindTypeMismatch, "result %d: want %s, got %s", i, results[i], item.Type)
		}
		vals[i] = objects.Port{Producer: item.Producer, Port: item.Port}
	}

	deps := b.collectDeps(vals)

	ret := objects.Node{
		Kind:    objects.KindReturn,
		Outs:    results,
		Payload: objects.ReturnPayload{Vals: vals, Deps: deps},
	}
	retCID, err := b.emit(ret)
	if err != nil {
		return cid.CID{}, err
	}

	b.pool.VerifyWriteLinearity()

	word := objects.Word{Root: retCID, Params: params, Results: results, Effects: objects.SortEffects(b.effects)}
	wordCID, bytes, err := word.CID()
	if err != nil {
		return cid.CID{}, err
	}
	if err := b.st.Put(wordCID, "word", bytes); err != nil {
		return cid.CID{}, err
	}
	return wordCID, nil
}

// collectDeps builds RETURN's sorted+deduped deps list: the frontier's last
// effectful producer per domain, excluding any already present among vals.
func (b *Builder) collectDeps(vals []objects.Port) []objects.Port {
	inVals := make(map[objects.Port]bool, len(vals))
	for _, v := range vals {
		inVals[v] = true
	}
	var deps []objects.Port
	for _, h := range b.frontier {
		p := objects.Port{Producer: h.Node, Port: h.Port}
		if !inVals[p] {
			deps = append(deps, p)
		}
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Port != deps[j].Port {
			return deps[i].Port < deps[j].Port
		}
		return compareCIDLess(deps[i].Producer, deps[j].Producer)
	})
	out := deps[:0]
	for i, d := range deps {
		if i == 0 || d != deps[i-1] {
			out = append(out, d)
		}
	}
	invariant.Invariant(sort.SliceIsSorted(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		return compareCIDLess(out[i].Producer, out[j].Producer)
	}), "collected deps not sorted")
	return out
}
