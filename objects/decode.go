package objects

import (
	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/substraterr"
)

// decode.go reconstructs typed objects from canonical bytes. Every function
// here is the mirror image of the corresponding canonicalForm in canon.go;
// keep them in lockstep or round-trip tests will fail.

func decodeArray(data []byte) ([]interface{}, error) {
	var arr []interface{}
	if err := cidDecode(data, &arr); err != nil {
		return nil, substraterr.Wrap(substraterr.KindCorruptObject, "not a canonical array", err)
	}
	return arr, nil
}

// cidDecode is a thin indirection so this file only ever imports the cid
// package's Decode, kept as a separate symbol for readability at call sites.
func cidDecode(data []byte, v interface{}) error {
	return cid.Decode(data, v)
}

func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case uint64:
		return int(n), nil
	case int64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, substraterr.Newf(substraterr.KindCorruptObject, "expected integer, got %T", v)
	}
}

func asFloat(v interface{}) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, substraterr.Newf(substraterr.KindCorruptObject, "expected float, got %T", v)
	}
	return f, nil
}

func asString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", substraterr.Newf(substraterr.KindCorruptObject, "expected string, got %T", v)
	}
	return s, nil
}

func asBytes(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "expected bytes, got %T", v)
	}
	return b, nil
}

func asArray(v interface{}) ([]interface{}, error) {
	a, ok := v.([]interface{})
	if !ok {
		return nil, substraterr.Newf(substraterr.KindCorruptObject, "expected array, got %T", v)
	}
	return a, nil
}

func asCID(v interface{}) (cid.CID, error) {
	b, err := asBytes(v)
	if err != nil {
		return cid.CID{}, err
	}
	if len(b) != cid.Size {
		return cid.CID{}, substraterr.New(substraterr.KindCorruptObject, "CID has wrong length")
	}
	return cid.FromBytes(b), nil
}

func decodeTypeList(v interface{}) ([]TypeAtom, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	out := make([]TypeAtom, len(arr))
	for i, e := range arr {
		s, err := asString(e)
		if err != nil {
			return nil, err
		}
		out[i] = TypeAtom(s)
	}
	return out, nil
}

func decodeCIDList(v interface{}) ([]cid.CID, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	out := make([]cid.CID, len(arr))
	for i, e := range arr {
		c, err := asCID(e)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func decodeValue(v interface{}) (Value, error) {
	arr, err := asArray(v)
	if err != nil {
		return Value{}, err
	}
	if len(arr) == 0 {
		return Value{}, substraterr.New(substraterr.KindCorruptObject, "empty value form")
	}
	typeName, err := asString(arr[0])
	if err != nil {
		return Value{}, err
	}
	switch TypeAtom(typeName) {
	case TypeI64:
		n, err := asInt(arr[1])
		if err != nil {
			return Value{}, err
		}
		return I64(int64(n)), nil
	case TypeF64:
		f, err := asFloat(arr[1])
		if err != nil {
			return Value{}, err
		}
		return F64(f), nil
	case TypeText:
		s, err := asString(arr[1])
		if err != nil {
			return Value{}, err
		}
		return Text(s), nil
	case TypeQuote:
		c, err := asCID(arr[1])
		if err != nil {
			return Value{}, err
		}
		return Quote(c), nil
	case TypeUnit:
		return Unit(), nil
	case TypeTuple:
		elems, err := asArray(arr[1])
		if err != nil {
			return Value{}, err
		}
		vals := make([]Value, len(elems))
		for i, e := range elems {
			vals[i], err = decodeValue(e)
			if err != nil {
				return Value{}, err
			}
		}
		return Tuple(vals...), nil
	default:
		return Value{}, substraterr.Newf(substraterr.KindCorruptObject, "unknown value type %q", typeName)
	}
}

func decodePort(v interface{}) (Port, error) {
	arr, err := asArray(v)
	if err != nil {
		return Port{}, err
	}
	if len(arr) != 2 {
		return Port{}, substraterr.New(substraterr.KindCorruptObject, "port form must have 2 elements")
	}
	producer, err := asCID(arr[0])
	if err != nil {
		return Port{}, err
	}
	port, err := asInt(arr[1])
	if err != nil {
		return Port{}, err
	}
	return Port{Producer: producer, Port: port}, nil
}

func decodePorts(v interface{}) ([]Port, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	out := make([]Port, len(arr))
	for i, e := range arr {
		p, err := decodePort(e)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func expectTag(arr []interface{}, want int, what string) error {
	if len(arr) == 0 {
		return substraterr.Newf(substraterr.KindCorruptObject, "empty %s form", what)
	}
	got, err := asInt(arr[0])
	if err != nil {
		return err
	}
	if got != want {
		return substraterr.Newf(substraterr.KindUnknownKind, "expected %s tag %d, got %d", what, want, got)
	}
	return nil
}

// DecodeEffect reconstructs an Effect from canonical bytes. doc is supplied by
// the caller (e.g. from the name index or a side table) since it never lives
// in the canonical payload.
func DecodeEffect(data []byte, doc string) (Effect, error) {
	arr, err := decodeArray(data)
	if err != nil {
		return Effect{}, err
	}
	if err := expectTag(arr, tagEffect, "effect"); err != nil {
		return Effect{}, err
	}
	domain, err := asString(arr[1])
	if err != nil {
		return Effect{}, err
	}
	return Effect{Domain: EffectDomain(domain), Doc: doc}, nil
}

func DecodePrim(data []byte) (Prim, error) {
	arr, err := decodeArray(data)
	if err != nil {
		return Prim{}, err
	}
	if err := expectTag(arr, tagPrim, "prim"); err != nil {
		return Prim{}, err
	}
	if len(arr) != 5 {
		return Prim{}, substraterr.New(substraterr.KindCorruptObject, "prim form must have 5 elements")
	}
	params, err := decodeTypeList(arr[2])
	if err != nil {
		return Prim{}, err
	}
	results, err := decodeTypeList(arr[3])
	if err != nil {
		return Prim{}, err
	}
	effects, err := decodeCIDList(arr[4])
	if err != nil {
		return Prim{}, err
	}
	return Prim{Params: params, Results: results, Effects: effects}, nil
}

func DecodeWord(data []byte) (Word, error) {
	arr, err := decodeArray(data)
	if err != nil {
		return Word{}, err
	}
	if err := expectTag(arr, tagWord, "word"); err != nil {
		return Word{}, err
	}
	if len(arr) != 5 {
		return Word{}, substraterr.New(substraterr.KindCorruptObject, "word form must have 5 elements")
	}
	root, err := asCID(arr[1])
	if err != nil {
		return Word{}, err
	}
	params, err := decodeTypeList(arr[2])
	if err != nil {
		return Word{}, err
	}
	results, err := decodeTypeList(arr[3])
	if err != nil {
		return Word{}, err
	}
	effects, err := decodeCIDList(arr[4])
	if err != nil {
		return Word{}, err
	}
	return Word{Root: root, Params: params, Results: results, Effects: effects}, nil
}

func DecodeGlobal(data []byte) (Global, error) {
	arr, err := decodeArray(data)
	if err != nil {
		return Global{}, err
	}
	if err := expectTag(arr, tagGlobal, "global"); err != nil {
		return Global{}, err
	}
	if len(arr) != 3 {
		return Global{}, substraterr.New(substraterr.KindCorruptObject, "global form must have 3 elements")
	}
	types, err := decodeTypeList(arr[1])
	if err != nil {
		return Global{}, err
	}
	valArr, err := asArray(arr[2])
	if err != nil {
		return Global{}, err
	}
	values := make([]Value, len(valArr))
	for i, v := range valArr {
		values[i], err = decodeValue(v)
		if err != nil {
			return Global{}, err
		}
	}
	return Global{Types: types, Values: values}, nil
}

func DecodeInterface(data []byte) (Interface, error) {
	arr, err := decodeArray(data)
	if err != nil {
		return Interface{}, err
	}
	if err := expectTag(arr, tagIface, "iface"); err != nil {
		return Interface{}, err
	}
	entries, err := asArray(arr[1])
	if err != nil {
		return Interface{}, err
	}
	out := make([]InterfaceEntry, len(entries))
	for i, e := range entries {
		ea, err := asArray(e)
		if err != nil {
			return Interface{}, err
		}
		if len(ea) != 4 {
			return Interface{}, substraterr.New(substraterr.KindCorruptObject, "interface entry must have 4 elements")
		}
		name, err := asString(ea[0])
		if err != nil {
			return Interface{}, err
		}
		params, err := decodeTypeList(ea[1])
		if err != nil {
			return Interface{}, err
		}
		results, err := decodeTypeList(ea[2])
		if err != nil {
			return Interface{}, err
		}
		effects, err := decodeCIDList(ea[3])
		if err != nil {
			return Interface{}, err
		}
		out[i] = InterfaceEntry{Name: name, Params: params, Results: results, Effects: effects}
	}
	return Interface{Entries: out}, nil
}

func DecodeNamespace(data []byte) (Namespace, error) {
	arr, err := decodeArray(data)
	if err != nil {
		return Namespace{}, err
	}
	if err := expectTag(arr, tagNamespace, "namespace"); err != nil {
		return Namespace{}, err
	}
	if len(arr) != 4 {
		return Namespace{}, substraterr.New(substraterr.KindCorruptObject, "namespace form must have 4 elements")
	}
	ifaceCID, err := asCID(arr[1])
	if err != nil {
		return Namespace{}, err
	}
	bindingsArr, err := asArray(arr[2])
	if err != nil {
		return Namespace{}, err
	}
	bindings := make([]NamespaceBinding, len(bindingsArr))
	for i, b := range bindingsArr {
		ba, err := asArray(b)
		if err != nil {
			return Namespace{}, err
		}
		name, err := asString(ba[0])
		if err != nil {
			return Namespace{}, err
		}
		c, err := asCID(ba[1])
		if err != nil {
			return Namespace{}, err
		}
		bindings[i] = NamespaceBinding{Name: name, CID: c}
	}
	exportsArr, err := asArray(arr[3])
	if err != nil {
		return Namespace{}, err
	}
	exports := make([]NamespaceExport, len(exportsArr))
	for i, e := range exportsArr {
		ea, err := asArray(e)
		if err != nil {
			return Namespace{}, err
		}
		name, err := asString(ea[0])
		if err != nil {
			return Namespace{}, err
		}
		c, err := asCID(ea[1])
		if err != nil {
			return Namespace{}, err
		}
		exports[i] = NamespaceExport{Name: name, Word: c}
	}
	return Namespace{Interface: ifaceCID, Bindings: bindings, Exports: exports}, nil
}

func DecodeProgram(data []byte) (Program, error) {
	arr, err := decodeArray(data)
	if err != nil {
		return Program{}, err
	}
	if err := expectTag(arr, tagProgram, "program"); err != nil {
		return Program{}, err
	}
	if len(arr) != 3 {
		return Program{}, substraterr.New(substraterr.KindCorruptObject, "program form must have 3 elements")
	}
	entry, err := asCID(arr[1])
	if err != nil {
		return Program{}, err
	}
	root, err := asCID(arr[2])
	if err != nil {
		return Program{}, err
	}
	return Program{Entry: entry, RootNamespace: root}, nil
}

// DecodeNode reconstructs a Node, including legacy three-field DISPATCH
// payloads that predate lowered guard graphs: a shape of
// [guard_cid, candidate_cid, params] rather than [cases, deopt] is detected by
// element count and decoded with DispatchPayload.Legacy set, folding the
// inline guard into a single case with no Deopt target.
func DecodeNode(data []byte) (Node, error) {
	arr, err := decodeArray(data)
	if err != nil {
		return Node{}, err
	}
	if err := expectTag(arr, tagNode, "node"); err != nil {
		return Node{}, err
	}
	if len(arr) != 6 {
		return Node{}, substraterr.New(substraterr.KindCorruptObject, "node form must have 6 elements")
	}
	kindStr, err := asString(arr[1])
	if err != nil {
		return Node{}, err
	}
	kind := NodeKind(kindStr)
	inputs, err := decodePorts(arr[2])
	if err != nil {
		return Node{}, err
	}
	outs, err := decodeTypeList(arr[3])
	if err != nil {
		return Node{}, err
	}
	effects, err := decodeCIDList(arr[4])
	if err != nil {
		return Node{}, err
	}
	payload, err := decodePayload(kind, arr[5])
	if err != nil {
		return Node{}, err
	}
	return Node{Kind: kind, Inputs: inputs, Outs: outs, Effects: effects, Payload: payload}, nil
}

func decodePayload(kind NodeKind, v interface{}) (interface{}, error) {
	switch kind {
	case KindLit:
		arr, err := asArray(v)
		if err != nil {
			return nil, err
		}
		t, err := asString(arr[0])
		if err != nil {
			return nil, err
		}
		val, err := decodeValue(arr[1])
		if err != nil {
			return nil, err
		}
		return LitPayload{Type: TypeAtom(t), Value: val}, nil
	case KindPrim:
		c, err := asCID(v)
		if err != nil {
			return nil, err
		}
		return PrimPayload{Prim: c}, nil
	case KindCall:
		c, err := asCID(v)
		if err != nil {
			return nil, err
		}
		return CallPayload{Word: c}, nil
	case KindApply:
		arr, err := asArray(v)
		if err != nil {
			return nil, err
		}
		qp, err := asInt(arr[0])
		if err != nil {
			return nil, err
		}
		tk, err := asString(arr[1])
		if err != nil {
			return nil, err
		}
		return ApplyPayload{QuotePort: qp, TypeKey: tk}, nil
	case KindArg:
		idx, err := asInt(v)
		if err != nil {
			return nil, err
		}
		return ArgPayload{Index: idx}, nil
	case KindLoadGlobal:
		c, err := asCID(v)
		if err != nil {
			return nil, err
		}
		return LoadGlobalPayload{Global: c}, nil
	case KindQuote:
		c, err := asCID(v)
		if err != nil {
			return nil, err
		}
		return QuotePayload{Word: c}, nil
	case KindIf:
		arr, err := asArray(v)
		if err != nil {
			return nil, err
		}
		t, err := asCID(arr[0])
		if err != nil {
			return nil, err
		}
		f, err := asCID(arr[1])
		if err != nil {
			return nil, err
		}
		return IfPayload{True: t, False: f}, nil
	case KindToken:
		d, err := asString(v)
		if err != nil {
			return nil, err
		}
		return TokenPayload{Domain: EffectDomain(d)}, nil
	case KindDeopt:
		c, err := asCID(v)
		if err != nil {
			return nil, err
		}
		return DeoptPayload{Target: c}, nil
	case KindDispatch:
		return decodeDispatchPayload(v)
	case KindReturn:
		arr, err := asArray(v)
		if err != nil {
			return nil, err
		}
		vals, err := decodePorts(arr[0])
		if err != nil {
			return nil, err
		}
		deps, err := decodePorts(arr[1])
		if err != nil {
			return nil, err
		}
		return ReturnPayload{Vals: vals, Deps: deps}, nil
	default:
		return nil, substraterr.Newf(substraterr.KindUnknownKind, "unknown node kind %q", kind)
	}
}

// decodeDispatchPayload distinguishes the current [cases, deopt] shape from the
// legacy three-field shape [guard_cid, candidate_cid, params] by element count:
// the current encoder always emits exactly two elements.
func decodeDispatchPayload(v interface{}) (interface{}, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	if len(arr) == 2 {
		casesArr, err := asArray(arr[0])
		if err != nil {
			return nil, err
		}
		cases := make([]DispatchCase, len(casesArr))
		for i, c := range casesArr {
			ca, err := asArray(c)
			if err != nil {
				return nil, err
			}
			guard, err := asCID(ca[0])
			if err != nil {
				return nil, err
			}
			candidate, err := asCID(ca[1])
			if err != nil {
				return nil, err
			}
			params, err := decodeTypeList(ca[2])
			if err != nil {
				return nil, err
			}
			effects, err := decodeCIDList(ca[3])
			if err != nil {
				return nil, err
			}
			cases[i] = DispatchCase{Guard: guard, Candidate: candidate, Params: params, Effects: effects}
		}
		deopt, err := asCID(arr[1])
		if err != nil {
			return nil, err
		}
		return DispatchPayload{Cases: cases, Deopt: deopt}, nil
	}
	if len(arr) == 3 {
		guard, err := asCID(arr[0])
		if err != nil {
			return nil, err
		}
		candidate, err := asCID(arr[1])
		if err != nil {
			return nil, err
		}
		params, err := decodeTypeList(arr[2])
		if err != nil {
			return nil, err
		}
		return DispatchPayload{
			Cases:  []DispatchCase{{Guard: guard, Candidate: candidate, Params: params}},
			Legacy: true,
		}, nil
	}
	return nil, substraterr.New(substraterr.KindCorruptObject, "dispatch payload has unrecognized shape")
}
