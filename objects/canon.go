package objects

import (
	"sort"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/substraterr"
)

// Object tag integers, emitted first in every canonical array (SPEC_FULL.md §4.1).
const (
	tagPrim      = 0
	tagWord      = 1
	tagGlobal    = 2
	tagIface     = 3
	tagNamespace = 4
	tagProgram   = 5
	tagNode      = 6
	tagEffect    = 7
)

func bytesOf(c cid.CID) []byte { return c.Bytes() }

func bytesList(cs []cid.CID) []interface{} {
	out := make([]interface{}, len(cs))
	for i, c := range cs {
		out[i] = bytesOf(c)
	}
	return out
}

func typeList(ts []TypeAtom) []interface{} {
	out := make([]interface{}, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

// sortedEffects validates that effects are already sorted lexicographically by
// CID bytes and contain no duplicates, returning the canonical array form.
func sortedEffects(effects []cid.CID) ([]interface{}, error) {
	for _, e := range effects {
		if len(e) != cid.Size {
			return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "effect CID has wrong length")
		}
	}
	for i := 1; i < len(effects); i++ {
		if compareCIDs(effects[i-1], effects[i]) >= 0 {
			return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "effects list is not strictly sorted")
		}
	}
	return bytesList(effects), nil
}

func compareCIDs(a, b cid.CID) int {
	ab, bb := a.Bytes(), b.Bytes()
	for i := range ab {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// SortEffects returns a new, sorted, deduplicated copy of effects - used by
// builders assembling a declared effect list before canonicalization.
func SortEffects(effects []cid.CID) []cid.CID {
	out := make([]cid.CID, len(effects))
	copy(out, effects)
	sort.Slice(out, func(i, j int) bool { return compareCIDs(out[i], out[j]) < 0 })
	deduped := out[:0]
	for i, c := range out {
		if i == 0 || c != out[i-1] {
			deduped = append(deduped, c)
		}
	}
	return deduped
}

// --- Effect ---

func (e Effect) canonicalForm() []interface{} {
	return []interface{}{tagEffect, string(e.Domain)}
}

// CID hashes e's canonical form. Doc is intentionally excluded.
func (e Effect) CID() (cid.CID, []byte, error) {
	return cid.Of(e.canonicalForm())
}

// --- Prim ---

func (p Prim) canonicalForm() ([]interface{}, error) {
	effects, err := sortedEffects(p.Effects)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		tagPrim,
		bytesOf(cid.Zero),
		typeList(p.Params),
		typeList(p.Results),
		effects,
	}, nil
}

func (p Prim) CID() (cid.CID, []byte, error) {
	form, err := p.canonicalForm()
	if err != nil {
		return cid.CID{}, nil, err
	}
	return cid.Of(form)
}

// --- Word ---

func (w Word) canonicalForm() ([]interface{}, error) {
	if w.Root.IsZero() {
		return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "word root must not be zero")
	}
	effects, err := sortedEffects(w.Effects)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		tagWord,
		bytesOf(w.Root),
		typeList(w.Params),
		typeList(w.Results),
		effects,
	}, nil
}

func (w Word) CID() (cid.CID, []byte, error) {
	form, err := w.canonicalForm()
	if err != nil {
		return cid.CID{}, nil, err
	}
	return cid.Of(form)
}

// --- Global ---

func valueForm(v Value) interface{} {
	switch v.Type {
	case TypeI64:
		return []interface{}{string(TypeI64), v.I64}
	case TypeF64:
		return []interface{}{string(TypeF64), v.F64}
	case TypeText:
		return []interface{}{string(TypeText), v.Text}
	case TypeQuote:
		return []interface{}{string(TypeQuote), bytesOf(v.Quote)}
	case TypeUnit:
		return []interface{}{string(TypeUnit)}
	case TypeTuple:
		elems := make([]interface{}, len(v.Tuple))
		for i, e := range v.Tuple {
			elems[i] = valueForm(e)
		}
		return []interface{}{string(TypeTuple), elems}
	default:
		return []interface{}{string(v.Type)}
	}
}

func (g Global) canonicalForm() ([]interface{}, error) {
	if len(g.Types) != len(g.Values) {
		return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "global type/value list length mismatch")
	}
	values := make([]interface{}, len(g.Values))
	for i, v := range g.Values {
		values[i] = valueForm(v)
	}
	return []interface{}{tagGlobal, typeList(g.Types), values}, nil
}

func (g Global) CID() (cid.CID, []byte, error) {
	form, err := g.canonicalForm()
	if err != nil {
		return cid.CID{}, nil, err
	}
	return cid.Of(form)
}

// --- Interface ---

func (iface Interface) canonicalForm() ([]interface{}, error) {
	for i := 1; i < len(iface.Entries); i++ {
		if iface.Entries[i-1].Name >= iface.Entries[i].Name {
			return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "interface entries not strictly sorted by name")
		}
	}
	entries := make([]interface{}, len(iface.Entries))
	for i, e := range iface.Entries {
		effects, err := sortedEffects(e.Effects)
		if err != nil {
			return nil, err
		}
		entries[i] = []interface{}{e.Name, typeList(e.Params), typeList(e.Results), effects}
	}
	return []interface{}{tagIface, entries}, nil
}

func (iface Interface) CID() (cid.CID, []byte, error) {
	form, err := iface.canonicalForm()
	if err != nil {
		return cid.CID{}, nil, err
	}
	return cid.Of(form)
}

// --- Namespace ---

func (ns Namespace) canonicalForm() ([]interface{}, error) {
	for i := 1; i < len(ns.Bindings); i++ {
		if ns.Bindings[i-1].Name >= ns.Bindings[i].Name {
			return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "namespace bindings not sorted by name")
		}
	}
	seen := make(map[string]bool, len(ns.Exports))
	for i := 1; i < len(ns.Exports); i++ {
		if ns.Exports[i-1].Name >= ns.Exports[i].Name {
			return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "namespace exports not sorted by name")
		}
	}
	for _, e := range ns.Exports {
		if seen[e.Name] {
			return nil, substraterr.Newf(substraterr.KindDuplicateExport, "duplicate export name %q", e.Name)
		}
		seen[e.Name] = true
	}

	bindings := make([]interface{}, len(ns.Bindings))
	for i, b := range ns.Bindings {
		bindings[i] = []interface{}{b.Name, bytesOf(b.CID)}
	}
	exports := make([]interface{}, len(ns.Exports))
	for i, e := range ns.Exports {
		exports[i] = []interface{}{e.Name, bytesOf(e.Word)}
	}
	return []interface{}{tagNamespace, bytesOf(ns.Interface), bindings, exports}, nil
}

func (ns Namespace) CID() (cid.CID, []byte, error) {
	form, err := ns.canonicalForm()
	if err != nil {
		return cid.CID{}, nil, err
	}
	return cid.Of(form)
}

// --- Program ---

func (p Program) canonicalForm() []interface{} {
	return []interface{}{tagProgram, bytesOf(p.Entry), bytesOf(p.RootNamespace)}
}

func (p Program) CID() (cid.CID, []byte, error) {
	return cid.Of(p.canonicalForm())
}

// --- Node ---

func portForm(p Port) []interface{} {
	return []interface{}{bytesOf(p.Producer), p.Port}
}

func portsForm(ps []Port) []interface{} {
	out := make([]interface{}, len(ps))
	for i, p := range ps {
		out[i] = portForm(p)
	}
	return out
}

// validateInputs enforces unique (producer, port) pairs and non-negative
// indices (a port past the end of the producer's outs is not checked here,
// since that needs a store lookup; the interpreter rejects it when it
// evaluates the consuming node). Order is NOT required to be
// sorted: inputs carry positional meaning for PRIM/CALL/DISPATCH/APPLY
// arguments (the Nth input is the Nth declared parameter), so the list
// preserves call order rather than a canonical sort - see DESIGN.md on input
// ordering. Only RETURN's deps list (a derived set with no call-order
// meaning) is required to be sorted, via validateReturnDeps.
func validateInputs(inputs []Port) error {
	seen := make(map[Port]bool, len(inputs))
	for _, p := range inputs {
		if p.Port < 0 {
			return substraterr.New(substraterr.KindInvalidCanonicalForm, "negative port index")
		}
		if seen[p] {
			return substraterr.New(substraterr.KindInvalidCanonicalForm, "duplicate input port with identical producer")
		}
		seen[p] = true
	}
	return nil
}

func payloadForm(n Node) (interface{}, error) {
	switch n.Kind {
	case KindLit:
		p, ok := n.Payload.(LitPayload)
		if !ok {
			return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "LIT payload has wrong shape")
		}
		return []interface{}{string(p.Type), valueForm(p.Value)}, nil
	case KindPrim:
		p := n.Payload.(PrimPayload)
		return bytesOf(p.Prim), nil
	case KindCall:
		p := n.Payload.(CallPayload)
		return bytesOf(p.Word), nil
	case KindApply:
		p := n.Payload.(ApplyPayload)
		return []interface{}{p.QuotePort, p.TypeKey}, nil
	case KindArg:
		p := n.Payload.(ArgPayload)
		if p.Index < 0 {
			return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "negative arg index")
		}
		return p.Index, nil
	case KindLoadGlobal:
		p := n.Payload.(LoadGlobalPayload)
		return bytesOf(p.Global), nil
	case KindQuote:
		p := n.Payload.(QuotePayload)
		return bytesOf(p.Word), nil
	case KindIf:
		p := n.Payload.(IfPayload)
		return []interface{}{bytesOf(p.True), bytesOf(p.False)}, nil
	case KindToken:
		p := n.Payload.(TokenPayload)
		return string(p.Domain), nil
	case KindDeopt:
		p := n.Payload.(DeoptPayload)
		return bytesOf(p.Target), nil
	case KindDispatch:
		p := n.Payload.(DispatchPayload)
		cases := make([]interface{}, len(p.Cases))
		for i, c := range p.Cases {
			effects, err := sortedEffects(c.Effects)
			if err != nil {
				return nil, err
			}
			cases[i] = []interface{}{bytesOf(c.Guard), bytesOf(c.Candidate), typeList(c.Params), effects}
		}
		return []interface{}{cases, bytesOf(p.Deopt)}, nil
	case KindReturn:
		p := n.Payload.(ReturnPayload)
		if err := validateReturnDeps(p.Deps); err != nil {
			return nil, err
		}
		return []interface{}{portsForm(p.Vals), portsForm(p.Deps)}, nil
	case KindTxnBegin, KindTxnCommit, KindTxnAbort:
		return nil, substraterr.Newf(substraterr.KindInvalidCanonicalForm, "node kind %s is reserved and cannot be encoded", n.Kind)
	default:
		return nil, substraterr.Newf(substraterr.KindUnknownKind, "unknown node kind %q", n.Kind)
	}
}

func validateReturnDeps(deps []Port) error {
	for i := 1; i < len(deps); i++ {
		a, b := deps[i-1], deps[i]
		if a.Port > b.Port || (a.Port == b.Port && compareCIDs(a.Producer, b.Producer) >= 0) {
			return substraterr.New(substraterr.KindInvalidCanonicalForm, "RETURN deps not sorted+deduped")
		}
	}
	return nil
}

func (n Node) canonicalForm() ([]interface{}, error) {
	if n.Kind == KindReturn && len(n.Inputs) != 0 {
		return nil, substraterr.New(substraterr.KindInvalidCanonicalForm, "RETURN node must have empty inputs")
	}
	if err := validateInputs(n.Inputs); err != nil {
		return nil, err
	}
	effects, err := sortedEffects(n.Effects)
	if err != nil {
		return nil, err
	}
	payload, err := payloadForm(n)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		tagNode,
		string(n.Kind),
		portsForm(n.Inputs),
		typeList(n.Outs),
		effects,
		payload,
	}, nil
}

// CID canonicalizes n, validates its structural invariants, and hashes the
// result. The returned bytes are what the store persists under the CID.
func (n Node) CID() (cid.CID, []byte, error) {
	form, err := n.canonicalForm()
	if err != nil {
		return cid.CID{}, nil, err
	}
	return cid.Of(form)
}
