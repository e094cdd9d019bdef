package interp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opal-lang/substrate/builder"
	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
	"github.com/opal-lang/substrate/token"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putPrim(t *testing.T, s *store.Store, name string, p objects.Prim) cid.CID {
	t.Helper()
	c, bytes, err := p.CID()
	require.NoError(t, err)
	require.NoError(t, s.Put(c, "prim", bytes))
	require.NoError(t, s.NamePut(store.ScopePrim, name, c))
	return c
}

// TestHelloWordRuns evaluates the reference hello() -> i64 word end-to-end.
func TestHelloWordRuns(t *testing.T) {
	s := openStore(t)
	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b.Lit(objects.TypeI64, objects.I64(42)))
	wordCID, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	vals, err := in.Run(wordCID, nil, "")
	require.NoError(t, err)
	require.Len(t, vals, 1)
	require.Equal(t, int64(42), vals[0].I64)
}

// TestAddConstRuns covers spec.md §8 scenario 2: arg(0) lit(i64,5) add_i64.
func TestAddConstRuns(t *testing.T) {
	s := openStore(t)
	addCID := putPrim(t, s, "add_i64", objects.Prim{
		Params:  []objects.TypeAtom{objects.TypeI64, objects.TypeI64},
		Results: []objects.TypeAtom{objects.TypeI64},
	})

	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b.PushArg(0, objects.TypeI64))
	require.NoError(t, b.Lit(objects.TypeI64, objects.I64(5)))
	require.NoError(t, b.Prim(addCID, nil))
	wordCID, err := b.Finish([]objects.TypeAtom{objects.TypeI64}, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	vals, err := in.Run(wordCID, []objects.Value{objects.I64(10)}, "")
	require.NoError(t, err)
	require.Equal(t, int64(15), vals[0].I64)
}

// TestSubConstPreservesArgOrder catches a regression where input ordering was
// scrambled by a canonical sort: sub_i64(10, 3) must compute 10-3, not 3-10.
func TestSubConstPreservesArgOrder(t *testing.T) {
	s := openStore(t)
	subCID := putPrim(t, s, "sub_i64", objects.Prim{
		Params:  []objects.TypeAtom{objects.TypeI64, objects.TypeI64},
		Results: []objects.TypeAtom{objects.TypeI64},
	})

	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b.Lit(objects.TypeI64, objects.I64(10)))
	require.NoError(t, b.Lit(objects.TypeI64, objects.I64(3)))
	require.NoError(t, b.Prim(subCID, nil))
	wordCID, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	vals, err := in.Run(wordCID, nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(7), vals[0].I64)
}

// TestDivByZeroTraps covers the DIV_BY_ZERO runtime failure.
func TestDivByZeroTraps(t *testing.T) {
	s := openStore(t)
	divCID := putPrim(t, s, "div_i64", objects.Prim{
		Params:  []objects.TypeAtom{objects.TypeI64, objects.TypeI64},
		Results: []objects.TypeAtom{objects.TypeI64},
	})

	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b.Lit(objects.TypeI64, objects.I64(1)))
	require.NoError(t, b.Lit(objects.TypeI64, objects.I64(0)))
	require.NoError(t, b.Prim(divCID, nil))
	wordCID, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	_, err = in.Run(wordCID, nil, "")
	require.Error(t, err)
}

// declareStateEffect installs a state-domain effect and returns its CID.
func declareStateEffect(t *testing.T, s *store.Store) cid.CID {
	t.Helper()
	eff := objects.Effect{Domain: objects.DomainState}
	c, bytes, err := eff.CID()
	require.NoError(t, err)
	require.NoError(t, s.Put(c, "effect", bytes))
	return c
}

// TestStateRoundTrip covers spec.md §8 scenario 3: write then read the same
// global key round-trips through the GlobalStore.
func TestStateRoundTrip(t *testing.T) {
	s := openStore(t)
	stateCID := declareStateEffect(t, s)

	writeCID := putPrim(t, s, "state.write_i64", objects.Prim{
		Params:  []objects.TypeAtom{objects.TypeI64, objects.TypeText},
		Results: []objects.TypeAtom{objects.TypeUnit},
		Effects: []cid.CID{stateCID},
	})
	readCID := putPrim(t, s, "state.read_i64", objects.Prim{
		Params:  []objects.TypeAtom{objects.TypeText},
		Results: []objects.TypeAtom{objects.TypeI64},
		Effects: []cid.CID{stateCID},
	})
	perms := map[objects.EffectDomain]objects.Permission{objects.DomainState: objects.PermWrite}

	writeWord := func() cid.CID {
		b, err := builder.New(s, builder.ModeDebug, []cid.CID{stateCID})
		require.NoError(t, err)
		require.NoError(t, b.Lit(objects.TypeI64, objects.I64(7)))
		require.NoError(t, b.Lit(objects.TypeText, objects.Text("counter")))
		require.NoError(t, b.Prim(writeCID, perms))
		require.NoError(t, b.Drop()) // the write's unit result
		c, err := b.Finish(nil, nil)
		require.NoError(t, err)
		return c
	}()

	readWord := func() cid.CID {
		b, err := builder.New(s, builder.ModeDebug, []cid.CID{stateCID})
		require.NoError(t, err)
		require.NoError(t, b.Lit(objects.TypeText, objects.Text("counter")))
		require.NoError(t, b.Prim(readCID, perms))
		c, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
		require.NoError(t, err)
		return c
	}()

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	globals := token.NewGlobalStore()
	in := New(s, globals, reg)

	_, err = in.Run(writeWord, nil, "demo")
	require.NoError(t, err)

	vals, err := in.Run(readWord, nil, "demo")
	require.NoError(t, err)
	require.Equal(t, int64(7), vals[0].I64)
}

// TestChainedWritesInOneCallDoNotPanic covers spec.md §8's "single write token
// threaded through a chain of state.write calls" property: a word issuing two
// state.write calls in sequence must not trip RuntimePool's per-token-instance
// linearity check, since each write's own output re-instantiates the domain's
// token for the next write to consume.
func TestChainedWritesInOneCallDoNotPanic(t *testing.T) {
	s := openStore(t)
	stateCID := declareStateEffect(t, s)

	writeCID := putPrim(t, s, "state.write_i64", objects.Prim{
		Params:  []objects.TypeAtom{objects.TypeI64, objects.TypeText},
		Results: []objects.TypeAtom{objects.TypeUnit},
		Effects: []cid.CID{stateCID},
	})
	readCID := putPrim(t, s, "state.read_i64", objects.Prim{
		Params:  []objects.TypeAtom{objects.TypeText},
		Results: []objects.TypeAtom{objects.TypeI64},
		Effects: []cid.CID{stateCID},
	})
	perms := map[objects.EffectDomain]objects.Permission{objects.DomainState: objects.PermWrite}

	writeTwiceWord := func() cid.CID {
		b, err := builder.New(s, builder.ModeDebug, []cid.CID{stateCID})
		require.NoError(t, err)
		require.NoError(t, b.Lit(objects.TypeI64, objects.I64(1)))
		require.NoError(t, b.Lit(objects.TypeText, objects.Text("counter")))
		require.NoError(t, b.Prim(writeCID, perms))
		require.NoError(t, b.Drop()) // the first write's unit result
		require.NoError(t, b.Lit(objects.TypeI64, objects.I64(2)))
		require.NoError(t, b.Lit(objects.TypeText, objects.Text("counter")))
		require.NoError(t, b.Prim(writeCID, perms))
		require.NoError(t, b.Drop()) // the second write's unit result
		c, err := b.Finish(nil, nil)
		require.NoError(t, err)
		return c
	}()

	readWord := func() cid.CID {
		b, err := builder.New(s, builder.ModeDebug, []cid.CID{stateCID})
		require.NoError(t, err)
		require.NoError(t, b.Lit(objects.TypeText, objects.Text("counter")))
		require.NoError(t, b.Prim(readCID, perms))
		c, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
		require.NoError(t, err)
		return c
	}()

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	globals := token.NewGlobalStore()
	in := New(s, globals, reg)

	require.NotPanics(t, func() {
		_, err = in.Run(writeTwiceWord, nil, "demo")
	})
	require.NoError(t, err)

	vals, err := in.Run(readWord, nil, "demo")
	require.NoError(t, err)
	require.Equal(t, int64(2), vals[0].I64, "second write must win, not panic on the first")
}

// wordReturningConst builds a nullary word that returns a fixed i64.
func wordReturningConst(t *testing.T, s *store.Store, v int64) cid.CID {
	t.Helper()
	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b.Lit(objects.TypeI64, objects.I64(v)))
	c, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)
	return c
}

// guardWord builds a nullary guard returning a fixed truthiness.
func guardWord(t *testing.T, s *store.Store, truthy bool) cid.CID {
	t.Helper()
	n := int64(0)
	if truthy {
		n = 1
	}
	return wordReturningConst(t, s, n)
}

// TestGuardFailedNoDeopt covers spec.md §8 scenario 5: every case's guard
// rejects and there is no deopt target, so evaluation traps.
func TestGuardFailedNoDeopt(t *testing.T) {
	s := openStore(t)
	falseGuard := guardWord(t, s, false)
	candidate := wordReturningConst(t, s, 99)

	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	err = b.Dispatch(nil, []objects.TypeAtom{objects.TypeI64}, nil, nil,
		[]objects.DispatchCase{{Guard: falseGuard, Candidate: candidate}}, cid.CID{})
	require.NoError(t, err)
	wordCID, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	_, err = in.Run(wordCID, nil, "")
	require.Error(t, err)
}

// TestDispatchFallsBackToDeopt covers spec.md §8 scenario 5's positive half:
// no case guard accepts, but a deopt target is present and runs instead.
func TestDispatchFallsBackToDeopt(t *testing.T) {
	s := openStore(t)
	falseGuard := guardWord(t, s, false)
	candidate := wordReturningConst(t, s, 99)
	deopt := wordReturningConst(t, s, -1)

	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	err = b.Dispatch(nil, []objects.TypeAtom{objects.TypeI64}, nil, nil,
		[]objects.DispatchCase{{Guard: falseGuard, Candidate: candidate}}, deopt)
	require.NoError(t, err)
	wordCID, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	vals, err := in.Run(wordCID, nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(-1), vals[0].I64)
}

// TestDispatchPicksMatchingCase: first guard rejects, second accepts.
func TestDispatchPicksMatchingCase(t *testing.T) {
	s := openStore(t)
	falseGuard := guardWord(t, s, false)
	trueGuard := guardWord(t, s, true)
	firstCandidate := wordReturningConst(t, s, 1)
	secondCandidate := wordReturningConst(t, s, 2)

	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	err = b.Dispatch(nil, []objects.TypeAtom{objects.TypeI64}, nil, nil, []objects.DispatchCase{
		{Guard: falseGuard, Candidate: firstCandidate},
		{Guard: trueGuard, Candidate: secondCandidate},
	}, cid.CID{})
	require.NoError(t, err)
	wordCID, err := b.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	vals, err := in.Run(wordCID, nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(2), vals[0].I64)
}

// TestArgumentCountMismatch covers the ARGUMENT_COUNT_MISMATCH runtime failure.
func TestArgumentCountMismatch(t *testing.T) {
	s := openStore(t)
	b, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, b.PushArg(0, objects.TypeI64))
	wordCID, err := b.Finish([]objects.TypeAtom{objects.TypeI64}, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	_, err = in.Run(wordCID, nil, "")
	require.Error(t, err)
}

// TestNestedCallSharesUnderlyingWord builds a word that calls a shared
// add_const word from two distinct call sites (different literal arguments,
// so the two CALL nodes are structurally distinct) feeding a final add_i64,
// checking the interpreter can reuse one Word object across two independent
// activations within the same top-level run.
func TestNestedCallSharesUnderlyingWord(t *testing.T) {
	s := openStore(t)
	addCID := putPrim(t, s, "add_i64", objects.Prim{
		Params:  []objects.TypeAtom{objects.TypeI64, objects.TypeI64},
		Results: []objects.TypeAtom{objects.TypeI64},
	})

	innerB, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, innerB.PushArg(0, objects.TypeI64))
	require.NoError(t, innerB.Lit(objects.TypeI64, objects.I64(1)))
	require.NoError(t, innerB.Prim(addCID, nil))
	innerWord, err := innerB.Finish([]objects.TypeAtom{objects.TypeI64}, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	outerB, err := builder.New(s, builder.ModeDebug, nil)
	require.NoError(t, err)
	require.NoError(t, outerB.Lit(objects.TypeI64, objects.I64(10)))
	require.NoError(t, outerB.Call(innerWord, nil))
	require.NoError(t, outerB.Lit(objects.TypeI64, objects.I64(20)))
	require.NoError(t, outerB.Call(innerWord, nil))
	require.NoError(t, outerB.Prim(addCID, nil))
	outerWord, err := outerB.Finish(nil, []objects.TypeAtom{objects.TypeI64})
	require.NoError(t, err)

	reg, err := NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := New(s, token.NewGlobalStore(), reg)

	vals, err := in.Run(outerWord, nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(32), vals[0].I64) // (10+1) + (20+1)
}
