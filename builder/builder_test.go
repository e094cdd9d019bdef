package builder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestHelloWord builds word hello() -> i64 with body lit(i64, 42) and checks
// that building it twice from scratch yields the identical CID - the encoding
// itself is implementation-defined (spec.md §9), so the property worth
// pinning is determinism of this encoder, not equality with some other
// implementation's byte format.
func TestHelloWord(t *testing.T) {
	build := func() cid.CID {
		s := openStore(t)
		b, err := New(s, ModeDebug, nil)
		require.NoError(t, err)

		require.NoError(t, b.Lit(objects.TypeI64, objects.I64(42)))
		wordCID, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
		require.NoError(t, err)
		return wordCID
	}

	first := build()
	second := build()
	require.Equal(t, first, second)
	require.NotEqual(t, cid.CID{}, first)
}

// TestAddConst builds word add_const(i64) -> i64, body arg(0) lit(i64,5) prim(add_i64).
func TestAddConst(t *testing.T) {
	s := openStore(t)

	addPrim := objects.Prim{Params: []objects.TypeAtom{objects.TypeI64, objects.TypeI64}, Results: []objects.TypeAtom{objects.TypeI64}}
	primCID, bytes, err := addPrim.CID()
	require.NoError(t, err)
	require.NoError(t, s.Put(primCID, "prim", bytes))

	b, err := New(s, ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b.PushArg(0, objects.TypeI64))
	require.NoError(t, b.Lit(objects.TypeI64, objects.I64(5)))
	require.NoError(t, b.Prim(primCID, nil))

	wordCID, err := b.Finish([]objects.TypeAtom{objects.TypeI64}, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)
	require.False(t, wordCID.IsZero())
}

// TestDeterministicRebuild: building the same program twice yields equal CIDs.
func TestDeterministicRebuild(t *testing.T) {
	build := func(s *store.Store) string {
		b, err := New(s, ModeDebug, nil)
		require.NoError(t, err)
		require.NoError(t, b.Lit(objects.TypeI64, objects.I64(9)))
		wordCID, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
		require.NoError(t, err)
		return wordCID.String()
	}
	s1 := openStore(t)
	s2 := openStore(t)
	require.Equal(t, build(s1), build(s2))
}

func TestStackUnderflowOnEmptyFinish(t *testing.T) {
	s := openStore(t)
	b, err := New(s, ModeDebug, nil)
	require.NoError(t, err)
	_, err = b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.Error(t, err)
}

func TestMissingTokenFailsCompile(t *testing.T) {
	s := openStore(t)

	ioEff := objects.Effect{Domain: objects.DomainIO}
	ioCID, ioBytes, err := ioEff.CID()
	require.NoError(t, err)
	require.NoError(t, s.Put(ioCID, "effect", ioBytes))

	prim := objects.Prim{Results: []objects.TypeAtom{objects.TypeUnit}, Effects: []cid.CID{ioCID}}
	primCID, primBytes, err := prim.CID()
	require.NoError(t, err)
	require.NoError(t, s.Put(primCID, "prim", primBytes))

	// word declares no effects, so the nested prim's io effect has no seeded token
	b, err := New(s, ModeDebug, nil)
	require.NoError(t, err)
	err = b.Prim(primCID, map[objects.EffectDomain]objects.Permission{objects.DomainIO: objects.PermWrite})
	require.Error(t, err)
}

func TestDedupSameLiteralBuildsOneNode(t *testing.T) {
	s := openStore(t)

	b1, err := New(s, ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b1.Lit(objects.TypeI64, objects.I64(9)))
	w1, err := b1.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)
	require.NoError(t, s.NamePut(store.ScopeWord, "nine_a", w1))

	b2, err := New(s, ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b2.Lit(objects.TypeI64, objects.I64(9)))
	w2, err := b2.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)
	require.NoError(t, s.NamePut(store.ScopeWord, "nine_b", w2))

	require.Equal(t, w1, w2)
	rows, err := s.LoadAll("word")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
