// Package interp implements the recursive demand-driven graph interpreter
// (SPEC_FULL.md §4.4): given a word CID and argument values, it walks the
// word's RETURN node backward through its producers, memoizing each node's
// output values per call and threading effect tokens through the runtime
// mirror of the builder's token pool (package token).
package interp

import (
	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/invariant"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
	"github.com/opal-lang/substrate/token"
)

// Interpreter evaluates words against a shared object store, a process-wide
// global value store, and a registry of native primitive implementations.
type Interpreter struct {
	st       *store.Store
	globals  *token.GlobalStore
	registry *Registry
}

// New returns an Interpreter wired to st, globals, and reg.
func New(st *store.Store, globals *token.GlobalStore, reg *Registry) *Interpreter {
	return &Interpreter{st: st, globals: globals, registry: reg}
}

// call is one activation's scratch state: the memoization cache keyed by node
// CID (a node is evaluated at most once per call, per spec.md §4.4), the
// caller-supplied argument values, the namespace in effect for state prims,
// and a runtime token-consumption tracker per effect domain.
type call struct {
	memo    map[cid.CID][]objects.Value
	args    []objects.Value
	ns      string
	runtime *token.RuntimePool
}

// Run evaluates wordCID with args in namespace ns (the implicit namespace
// state-domain prims read and write under) and returns its result values in
// RETURN's Vals order.
func (in *Interpreter) Run(wordCID cid.CID, args []objects.Value, ns string) ([]objects.Value, error) {
	kind, bytes, err := in.st.Get(wordCID)
	if err != nil {
		return nil, err
	}
	if kind != "word" {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a word", wordCID)
	}
	w, err := objects.DecodeWord(bytes)
	if err != nil {
		return nil, err
	}
	return in.runWord(w, args, ns)
}

func (in *Interpreter) runWord(w objects.Word, args []objects.Value, ns string) ([]objects.Value, error) {
	if len(args) != len(w.Params) {
		return nil, substraterr.Newf(substraterr.KindArgumentCountMismatch, "want %d args, got %d", len(w.Params), len(args))
	}
	for i, p := range w.Params {
		if args[i].Type != p {
			return nil, substraterr.Newf(substraterr.KindTypeMismatch, "arg %d: want %s, got %s", i, p, args[i].Type)
		}
	}

	domains := make([]objects.EffectDomain, 0, len(w.Effects))
	for _, e := range w.Effects {
		d, err := in.domainOf(e)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}

	c := &call{
		memo:    make(map[cid.CID][]objects.Value),
		args:    args,
		ns:      ns,
		runtime: token.NewRuntimePool(domains),
	}

	retKind, retBytes, err := in.st.Get(w.Root)
	if err != nil {
		return nil, err
	}
	if retKind != "node" {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a node", w.Root)
	}
	ret, err := objects.DecodeNode(retBytes)
	if err != nil {
		return nil, err
	}
	if ret.Kind != objects.KindReturn {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "word root %s is not a RETURN node", w.Root)
	}
	payload, ok := ret.Payload.(objects.ReturnPayload)
	invariant.Invariant(ok, "RETURN node has non-ReturnPayload payload")

	// deps are forced purely for their effect-sequencing side effects; their
	// values are discarded.
	for _, d := range payload.Deps {
		if _, err := in.evalNode(c, d.Producer); err != nil {
			return nil, err
		}
	}

	results := make([]objects.Value, len(payload.Vals))
	for i, v := range payload.Vals {
		outs, err := in.evalNode(c, v.Producer)
		if err != nil {
			return nil, err
		}
		if v.Port < 0 || v.Port >= len(outs) {
			return nil, substraterr.Newf(substraterr.KindCorruptObject, "RETURN val port %d out of range for node %s", v.Port, v.Producer)
		}
		results[i] = outs[v.Port]
	}
	return results, nil
}

func (in *Interpreter) domainOf(effCID cid.CID) (objects.EffectDomain, error) {
	kind, bytes, err := in.st.Get(effCID)
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

// domainsOf resolves a node's effect CID list to domains in the same order,
// so a node's Consume/Release pairing covers exactly the domains it declared.
func (in *Interpreter) domainsOf(effs []cid.CID) ([]objects.EffectDomain, error) {
	domains := make([]objects.EffectDomain, len(effs))
	for i, e := range effs {
		d, err := in.domainOf(e)
		if err != nil {
			return nil, err
		}
		domains[i] = d
	}
	return domains, nil
}

// evalNode returns nodeCID's full output value list (real results followed by
// one synthetic unit per declared effect domain - see DESIGN.md on token
// output ports), evaluating it at most once per call via c.memo.
func (in *Interpreter) evalNode(c *call, nodeCID cid.CID) ([]objects.Value, error) {
	if v, ok := c.memo[nodeCID]; ok {
		return v, nil
	}

	kind, bytes, err := in.st.Get(nodeCID)
	if err != nil {
		return nil, err
	}
	if kind != "node" {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a node", nodeCID)
	}
	n, err := objects.DecodeNode(bytes)
	if err != nil {
		return nil, err
	}

	// Evaluate every producer this node reads from before doing its own
	// work: this is what makes effect order follow data order (spec.md
	// §4.4's "recursively evaluate each input producer first").
	inputs := make([]objects.Value, len(n.Inputs))
	for i, p := range n.Inputs {
		outs, err := in.evalNode(c, p.Producer)
		if err != nil {
			return nil, err
		}
		if p.Port < 0 || p.Port >= len(outs) {
			return nil, substraterr.Newf(substraterr.KindCorruptObject, "input port %d out of range for node %s", p.Port, p.Producer)
		}
		inputs[i] = outs[p.Port]
	}

	outs, err := in.evalKind(c, n, inputs)
	if err != nil {
		return nil, err
	}
	c.memo[nodeCID] = outs
	return outs, nil
}

func (in *Interpreter) evalKind(c *call, n objects.Node, inputs []objects.Value) ([]objects.Value, error) {
	switch n.Kind {
	case objects.KindLit:
		p := n.Payload.(objects.LitPayload)
		return []objects.Value{p.Value}, nil

	case objects.KindArg:
		p := n.Payload.(objects.ArgPayload)
		if p.Index < 0 || p.Index >= len(c.args) {
			return nil, substraterr.Newf(substraterr.KindArgumentCountMismatch, "arg index %d out of range", p.Index)
		}
		return []objects.Value{c.args[p.Index]}, nil

	case objects.KindLoadGlobal:
		p := n.Payload.(objects.LoadGlobalPayload)
		kind, bytes, err := in.st.Get(p.Global)
		if err != nil {
			return nil, err
		}
		if kind != "global" {
			return nil, substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a global", p.Global)
		}
		g, err := objects.DecodeGlobal(bytes)
		if err != nil {
			return nil, err
		}
		return g.Values, nil

	case objects.KindQuote:
		p := n.Payload.(objects.QuotePayload)
		return []objects.Value{objects.Quote(p.Word)}, nil

	case objects.KindToken:
		return []objects.Value{objects.Unit()}, nil

	case objects.KindPrim:
		return in.evalPrim(c, n, inputs)

	case objects.KindCall:
		return in.evalCall(c, n, inputs)

	case objects.KindApply:
		return in.evalApply(c, n, inputs)

	case objects.KindIf:
		return in.evalIf(c, n, inputs)

	case objects.KindDispatch:
		return in.evalDispatch(c, n, inputs)

	case objects.KindDeopt:
		p := n.Payload.(objects.DeoptPayload)
		if p.Target.IsZero() {
			return nil, substraterr.New(substraterr.KindGuardFailedNoDeopt, "no deopt target and no case matched")
		}
		return in.callWordValues(p.Target, inputs, c.ns)

	default:
		return nil, substraterr.Newf(substraterr.KindExecutionTrap, "node kind %q cannot be evaluated directly", n.Kind)
	}
}

// splitArgsTokens returns the value arguments among a node's evaluated inputs
// and drops the trailing token inputs, using paramCount (recovered from the
// callee's own declared signature, per DESIGN.md's note on input-list
// ordering: value args occupy the first paramCount input slots in call order,
// token inputs the rest in declared-effects order).
func splitArgsTokens(inputs []objects.Value, paramCount int) []objects.Value {
	if paramCount > len(inputs) {
		paramCount = len(inputs)
	}
	return inputs[:paramCount]
}

func (in *Interpreter) evalPrim(c *call, n objects.Node, inputs []objects.Value) ([]objects.Value, error) {
	p := n.Payload.(objects.PrimPayload)
	kind, bytes, err := in.st.Get(p.Prim)
	if err != nil {
		return nil, err
	}
	if kind != "prim" {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a prim", p.Prim)
	}
	prim, err := objects.DecodePrim(bytes)
	if err != nil {
		return nil, err
	}
	args := splitArgsTokens(inputs, len(prim.Params))

	domains, err := in.domainsOf(prim.Effects)
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		c.runtime.Consume(d)
	}

	fn, ok := in.registry.Lookup(p.Prim)
	if !ok {
		return nil, substraterr.Newf(substraterr.KindExecutionTrap, "no implementation registered for prim %s", p.Prim)
	}
	results, err := fn(args, c.ns, in.globals)
	if err != nil {
		return nil, err
	}
	// This node's own trailing token outputs re-instantiate each domain it
	// just consumed, so a later node in the same chain can consume it again.
	for _, d := range domains {
		c.runtime.Release(d)
	}
	return appendTokenOuts(results, len(prim.Effects)), nil
}

func (in *Interpreter) evalCall(c *call, n objects.Node, inputs []objects.Value) ([]objects.Value, error) {
	p := n.Payload.(objects.CallPayload)
	kind, bytes, err := in.st.Get(p.Word)
	if err != nil {
		return nil, err
	}
	if kind != "word" {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a word", p.Word)
	}
	w, err := objects.DecodeWord(bytes)
	if err != nil {
		return nil, err
	}
	args := splitArgsTokens(inputs, len(w.Params))

	domains, err := in.domainsOf(w.Effects)
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		c.runtime.Consume(d)
	}

	results, err := in.runWord(w, args, c.ns)
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		c.runtime.Release(d)
	}
	return appendTokenOuts(results, len(w.Effects)), nil
}

// callWordValues runs a word by CID with already-evaluated argument values,
// used by APPLY/IF/DEOPT/DISPATCH which reach a callee word directly rather
// than through a CALL node.
func (in *Interpreter) callWordValues(wordCID cid.CID, args []objects.Value, ns string) ([]objects.Value, error) {
	kind, bytes, err := in.st.Get(wordCID)
	if err != nil {
		return nil, err
	}
	if kind != "word" {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "cid %s is not a word", wordCID)
	}
	w, err := objects.DecodeWord(bytes)
	if err != nil {
		return nil, err
	}
	if len(args) > len(w.Params) {
		args = args[:len(w.Params)]
	}
	return in.runWord(w, args, ns)
}

func (in *Interpreter) evalApply(c *call, n objects.Node, inputs []objects.Value) ([]objects.Value, error) {
	p := n.Payload.(objects.ApplyPayload)
	if p.QuotePort < 0 || p.QuotePort >= len(inputs) {
		return nil, substraterr.New(substraterr.KindCorruptObject, "APPLY quote port out of range")
	}
	quote := inputs[p.QuotePort]
	if quote.Type != objects.TypeQuote {
		return nil, substraterr.Newf(substraterr.KindTypeMismatch, "APPLY quote port holds %s, not quote", quote.Type)
	}
	var args []objects.Value
	for i, v := range inputs {
		if i != p.QuotePort {
			args = append(args, v)
		}
	}
	return in.callWordValues(quote.Quote, args, c.ns)
}

func (in *Interpreter) evalIf(c *call, n objects.Node, inputs []objects.Value) ([]objects.Value, error) {
	p := n.Payload.(objects.IfPayload)
	if len(inputs) == 0 {
		return nil, substraterr.New(substraterr.KindCorruptObject, "IF node has no condition input")
	}
	cond := inputs[0]
	target := p.False
	if cond.I64 != 0 {
		target = p.True
	}
	return in.callWordValues(target, nil, c.ns)
}

func (in *Interpreter) evalDispatch(c *call, n objects.Node, inputs []objects.Value) ([]objects.Value, error) {
	p := n.Payload.(objects.DispatchPayload)
	for _, cs := range p.Cases {
		args := splitArgsTokens(inputs, len(cs.Params))
		guardResult, err := in.callWordValues(cs.Guard, args, c.ns)
		if err != nil {
			return nil, err
		}
		if len(guardResult) == 0 {
			return nil, substraterr.New(substraterr.KindCorruptObject, "guard word returned no value")
		}
		if guardResult[0].I64 != 0 {
			results, err := in.callWordValues(cs.Candidate, args, c.ns)
			if err != nil {
				return nil, err
			}
			return appendTokenOuts(results, len(n.Effects)), nil
		}
	}
	if p.Deopt.IsZero() {
		return nil, substraterr.New(substraterr.KindGuardFailedNoDeopt, "no dispatch case matched and no deopt target")
	}
	args := splitArgsTokens(inputs, len(inputs)-len(n.Effects))
	results, err := in.callWordValues(p.Deopt, args, c.ns)
	if err != nil {
		return nil, err
	}
	return appendTokenOuts(results, len(n.Effects)), nil
}

// appendTokenOuts pads results with n synthetic unit values, mirroring the
// builder's one-trailing-unit-per-effect-domain convention on a node's outs.
func appendTokenOuts(results []objects.Value, n int) []objects.Value {
	out := make([]objects.Value, 0, len(results)+n)
	out = append(out, results...)
	for i := 0; i < n; i++ {
		out = append(out, objects.Unit())
	}
	return out
}
