// Package objects defines the data model: the closed set of canonical object
// kinds (prim, node, word, interface, namespace, program, global, effect) and
// the small closed set of runtime values and type atoms they carry. Objects in
// this package are created once and never mutated; canonicalization and CID
// hashing live in the sibling cid package plus this package's canon.go.
package objects

import "github.com/opal-lang/substrate/cid"

// TypeAtom is a ground type tag. Carried as a short string today; reserved for
// promotion to a CID later without changing array shape (SPEC_FULL.md §3).
type TypeAtom string

const (
	TypeI64   TypeAtom = "i64"
	TypeF64   TypeAtom = "f64"
	TypeUnit  TypeAtom = "unit"
	TypePtr   TypeAtom = "ptr"
	TypeText  TypeAtom = "text"
	TypeTuple TypeAtom = "tuple"
	TypeQuote TypeAtom = "quote"
)

// EffectDomain names a category of side effect.
type EffectDomain string

const (
	DomainIO     EffectDomain = "io"
	DomainState  EffectDomain = "state"
	DomainFS     EffectDomain = "fs"
	DomainNet    EffectDomain = "net"
	DomainTest   EffectDomain = "test"
	DomainMetric EffectDomain = "metric"
)

// OptionalDomains may be elided by the builder in release mode when no token is
// available: the call's token input for that domain is omitted, and the call
// node itself is still emitted unchanged with its declared effects (no pure
// stand-in replaces it).
var OptionalDomains = map[EffectDomain]bool{
	DomainTest:   true,
	DomainMetric: true,
}

// Permission is the capability a token grants: read (duplicable) or write
// (linear per domain/transaction).
type Permission int

const (
	PermRead Permission = iota
	PermWrite
)

// Effect is an effect domain descriptor. Doc is documentation text that lives
// outside the canonical payload and is not hashed.
type Effect struct {
	Domain EffectDomain
	Doc    string
}

// NodeKind is the closed set of IR node kinds.
type NodeKind string

const (
	KindLit         NodeKind = "LIT"
	KindPrim        NodeKind = "PRIM"
	KindCall        NodeKind = "CALL"
	KindApply       NodeKind = "APPLY"
	KindArg         NodeKind = "ARG"
	KindLoadGlobal  NodeKind = "LOAD_GLOBAL"
	KindQuote       NodeKind = "QUOTE"
	KindIf          NodeKind = "IF"
	KindToken       NodeKind = "TOKEN"
	KindDeopt       NodeKind = "DEOPT"
	KindDispatch    NodeKind = "DISPATCH"
	KindReturn      NodeKind = "RETURN"

	// Reserved ABI-level node kinds (SPEC_FULL.md §9 open question 3): the
	// decoder recognizes these tags but the encoder refuses to emit them since
	// no builder operation constructs one - they fail fast rather than silently
	// producing a graph the interpreter cannot run.
	KindTxnBegin  NodeKind = "TXN_BEGIN"
	KindTxnCommit NodeKind = "TXN_COMMIT"
	KindTxnAbort  NodeKind = "TXN_ABORT"
)

// Port is an input edge: a reference to output port Port of the node identified
// by Producer.
type Port struct {
	Producer cid.CID
	Port     int
}

// Node is the core IR unit. Payload is kind-specific; see the *Payload types
// below.
type Node struct {
	Kind    NodeKind
	Inputs  []Port
	Outs    []TypeAtom
	Effects []cid.CID
	Payload interface{}
}

// Kind-specific payload types.

type LitPayload struct {
	Type  TypeAtom
	Value Value
}

type PrimPayload struct {
	Prim cid.CID
}

type CallPayload struct {
	Word cid.CID
}

// ApplyPayload identifies which input port carries the quote being applied and
// an optional dispatch type-key hint (empty string if absent).
type ApplyPayload struct {
	QuotePort int
	TypeKey   string
}

type ArgPayload struct {
	Index int
}

type LoadGlobalPayload struct {
	Global cid.CID
}

type QuotePayload struct {
	Word cid.CID
}

type IfPayload struct {
	True  cid.CID
	False cid.CID
}

// TokenPayload marks a synthetic "enter" token seeded at the start of a word
// body for the given domain.
type TokenPayload struct {
	Domain EffectDomain
}

// DeoptPayload names the fallback word to invoke, or is empty (Target.IsZero())
// for a terminal error.
type DeoptPayload struct {
	Target cid.CID
}

// DispatchCase is one ordered guard-then-call entry.
type DispatchCase struct {
	Guard     cid.CID
	Candidate cid.CID
	Params    []TypeAtom
	Effects   []cid.CID
}

// DispatchPayload encodes an ordered list of guarded candidates plus a DEOPT
// fallback. Legacy is true when the payload was decoded from a legacy
// three-field payload that predates lowered guard graphs (SPEC_FULL.md §4.4);
// its inline guard is then Cases[0].Guard. Legacy is false for payloads built
// by this module's own builder.
type DispatchPayload struct {
	Cases  []DispatchCase
	Deopt  cid.CID
	Legacy bool
}

// ReturnPayload carries a RETURN node's two edge lists: Vals (ordered by return
// position) and Deps (sorted+deduped effect-sequencing pins).
type ReturnPayload struct {
	Vals []Port
	Deps []Port
}

// Word is a callable entry: a root RETURN node plus its signature.
type Word struct {
	Root    cid.CID
	Params  []TypeAtom
	Results []TypeAtom
	Effects []cid.CID
}

// Prim is a primitive operator descriptor.
type Prim struct {
	Params  []TypeAtom
	Results []TypeAtom
	Effects []cid.CID
}

// InterfaceEntry is one exported entry of an Interface.
type InterfaceEntry struct {
	Name    string
	Params  []TypeAtom
	Results []TypeAtom
	Effects []cid.CID
}

// Interface is an ordered, name-sorted list of exported entries.
type Interface struct {
	Entries []InterfaceEntry
}

// NamespaceExport binds a display name to a word CID within a namespace.
type NamespaceExport struct {
	Name string
	Word cid.CID
}

// NamespaceBinding is an opaque sorted binding entry (reserved for future
// namespace-internal wiring; SPEC_FULL.md carries the slot forward unchanged).
type NamespaceBinding struct {
	Name string
	CID  cid.CID
}

type Namespace struct {
	Interface cid.CID
	Bindings  []NamespaceBinding
	Exports   []NamespaceExport
}

type Program struct {
	Entry         cid.CID
	RootNamespace cid.CID
}

// Global is a small scalar/tuple value bound under a (namespace, key) pair in
// the token store. Large blobs are referenced by a blob CID, out of core scope.
type Global struct {
	Types  []TypeAtom
	Values []Value
}

// Value is a runtime value: one of i64, f64, text, tuple, quote, unit.
type Value struct {
	Type  TypeAtom
	I64   int64
	F64   float64
	Text  string
	Tuple []Value
	Quote cid.CID
}

func I64(v int64) Value   { return Value{Type: TypeI64, I64: v} }
func F64(v float64) Value { return Value{Type: TypeF64, F64: v} }
func Text(v string) Value { return Value{Type: TypeText, Text: v} }
func Unit() Value         { return Value{Type: TypeUnit} }
func Quote(w cid.CID) Value {
	return Value{Type: TypeQuote, Quote: w}
}
func Tuple(vs ...Value) Value {
	return Value{Type: TypeTuple, Tuple: vs}
}

// DeepCopy returns a value with no shared mutable state, used by the global
// store on every write (SPEC_FULL.md §4.5: "values are deep-copied on write").
func (v Value) DeepCopy() Value {
	cp := v
	if v.Tuple != nil {
		cp.Tuple = make([]Value, len(v.Tuple))
		for i, e := range v.Tuple {
			cp.Tuple[i] = e.DeepCopy()
		}
	}
	return cp
}

// Equal reports deep value equality, used by interpreter-purity tests.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeI64:
		return v.I64 == o.I64
	case TypeF64:
		return v.F64 == o.F64
	case TypeText:
		return v.Text == o.Text
	case TypeQuote:
		return v.Quote == o.Quote
	case TypeUnit:
		return true
	case TypeTuple:
		if len(v.Tuple) != len(o.Tuple) {
			return false
		}
		for i := range v.Tuple {
			if !v.Tuple[i].Equal(o.Tuple[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
