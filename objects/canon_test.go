package objects

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/substrate/cid"
)

// TestHelloWordCID builds the worked example from the reference data - a word
// hello() -> i64 with body lit(i64, 42) - twice from the same literal struct
// values and checks both encodings agree. The wire format is
// implementation-defined (spec.md §9), so this pins determinism of this
// encoder rather than equality with some other implementation's byte format.
func TestHelloWordCID(t *testing.T) {
	build := func() cid.CID {
		lit := Node{
			Kind:    KindLit,
			Inputs:  nil,
			Outs:    []TypeAtom{TypeI64},
			Effects: nil,
			Payload: LitPayload{Type: TypeI64, Value: I64(42)},
		}
		litCID, _, err := lit.CID()
		require.NoError(t, err)

		ret := Node{
			Kind:    KindReturn,
			Outs:    []TypeAtom{TypeI64},
			Payload: ReturnPayload{Vals: []Port{{Producer: litCID, Port: 0}}},
		}
		retCID, _, err := ret.CID()
		require.NoError(t, err)

		word := Word{Root: retCID, Results: []TypeAtom{TypeI64}}
		wordCID, _, err := word.CID()
		require.NoError(t, err)
		return wordCID
	}

	first := build()
	second := build()
	require.Equal(t, first, second)
	require.NotEqual(t, cid.CID{}, first)
}

func TestNodeRoundTrip(t *testing.T) {
	n := Node{
		Kind:    KindLit,
		Outs:    []TypeAtom{TypeText},
		Payload: LitPayload{Type: TypeText, Value: Text("hi")},
	}
	_, bytes, err := n.CID()
	require.NoError(t, err)

	got, err := DecodeNode(bytes)
	require.NoError(t, err)
	// A nil list and an empty list encode to the same canonical bytes, so the
	// decoder's empty Inputs/Effects slices count as equal to the nil ones.
	if diff := cmp.Diff(n, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round-tripped node mismatch (-want +got):\n%s", diff)
	}
}

func TestPrimRoundTrip(t *testing.T) {
	eff := Effect{Domain: DomainIO}
	effCID, _, err := eff.CID()
	require.NoError(t, err)

	p := Prim{
		Params:  []TypeAtom{TypeI64, TypeI64},
		Results: []TypeAtom{TypeI64},
		Effects: []cid.CID{effCID},
	}
	_, bytes, err := p.CID()
	require.NoError(t, err)

	got, err := DecodePrim(bytes)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("round-tripped prim mismatch (-want +got):\n%s", diff)
	}
}

func TestDeterminism(t *testing.T) {
	p := Prim{Params: []TypeAtom{TypeI64}, Results: []TypeAtom{TypeI64}}
	c1, b1, err := p.CID()
	require.NoError(t, err)
	c2, b2, err := p.CID()
	require.NoError(t, err)
	require.Equal(t, c1, c2)
	require.Equal(t, b1, b2)
}

func TestUnsortedEffectsRejected(t *testing.T) {
	a := cid.FromBytes(bytesN(1))
	b := cid.FromBytes(bytesN(2))
	p := Prim{Effects: []cid.CID{b, a}}
	_, _, err := p.CID()
	require.Error(t, err)
}

func TestDuplicateExportRejected(t *testing.T) {
	ns := Namespace{
		Exports: []NamespaceExport{
			{Name: "dup", Word: cid.FromBytes(bytesN(1))},
			{Name: "dup", Word: cid.FromBytes(bytesN(2))},
		},
	}
	_, _, err := ns.CID()
	require.Error(t, err)
}

func TestNegativePortIndexRejected(t *testing.T) {
	n := Node{
		Kind:    KindArg,
		Inputs:  []Port{{Producer: cid.FromBytes(bytesN(1)), Port: -1}},
		Payload: ArgPayload{Index: 0},
	}
	_, _, err := n.CID()
	require.Error(t, err)
}

func TestLegacyDispatchPayloadDecodes(t *testing.T) {
	guard := cid.FromBytes(bytesN(1))
	candidate := cid.FromBytes(bytesN(2))
	legacyForm := []interface{}{
		tagNode,
		string(KindDispatch),
		[]interface{}{},
		[]interface{}{},
		[]interface{}{},
		[]interface{}{guard.Bytes(), candidate.Bytes(), []interface{}{string(TypeI64)}},
	}
	encoded, err := cid.Encode(legacyForm)
	require.NoError(t, err)

	n, err := DecodeNode(encoded)
	require.NoError(t, err)
	dp := n.Payload.(DispatchPayload)
	require.True(t, dp.Legacy)
	require.Len(t, dp.Cases, 1)
	require.Equal(t, guard, dp.Cases[0].Guard)
	require.Equal(t, candidate, dp.Cases[0].Candidate)
}

func bytesN(n byte) []byte {
	b := make([]byte, cid.Size)
	b[cid.Size-1] = n
	return b
}
