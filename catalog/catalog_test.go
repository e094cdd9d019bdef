package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opal-lang/substrate/interp"
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

const doc = `
namespace: demo
entries:
  io: !effect { doc: "io effect" }
  add_i64: !prim
    params: [i64, i64]
    results: [i64]
    effects: []
    emask: {}
  hello: !word
    params: []
    results: [i64]
    stack:
      - !i64 42
  add_const: !word
    params: [i64]
    results: [i64]
    stack:
      - !arg 0
      - !i64 5
      - !prim add_i64
`

func TestImportBasicCatalog(t *testing.T) {
	s := openStore(t)
	res, err := Import(s, []byte(doc))
	require.NoError(t, err)
	require.Equal(t, "demo", res.Namespace)
	require.Empty(t, res.InitWords)

	helloCID, err := s.NameGet(store.ScopeWord, "hello")
	require.NoError(t, err)

	reg, err := interp.NewBuiltinRegistry(s)
	require.NoError(t, err)
	in := interp.New(s, token.NewGlobalStore(), reg)
	vals, err := in.Run(helloCID, nil, "demo")
	require.NoError(t, err)
	require.Equal(t, int64(42), vals[0].I64)

	addConstCID, err := s.NameGet(store.ScopeWord, "add_const")
	require.NoError(t, err)
	vals, err = in.Run(addConstCID, []objects.Value{objects.I64(10)}, "demo")
	require.NoError(t, err)
	require.Equal(t, int64(15), vals[0].I64)
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	s := openStore(t)
	_, err := Import(s, []byte("not-a-valid-catalog"))
	require.Error(t, err)
}

func TestImportUnknownStackTagFails(t *testing.T) {
	s := openStore(t)
	bad := `
namespace: demo
entries:
  hello: !word
    params: []
    results: [i64]
    stack:
      - !bogus 1
`
	_, err := Import(s, []byte(bad))
	require.Error(t, err)
}

const overloadDoc = `
namespace: demo
entries:
  is_one: !word
    params: [i64]
    results: [i64]
    stack:
      - !arg 0
      - !i64 1
      - !prim eq_i64
  is_other: !word
    params: [i64]
    results: [i64]
    stack:
      - !i64 1
  on_one: !word
    params: [i64]
    results: [text]
    stack:
      - !text "one"
  on_other: !word
    params: [i64]
    results: [text]
    stack:
      - !text "other"
  eq_i64: !prim
    params: [i64, i64]
    results: [i64]
    effects: []
    emask: {}
  describe: !overloads
    - params: [i64]
      results: [text]
      guard: is_one
      stack:
        - !text "one"
    - params: [i64]
      results: [text]
      guard: is_other
      stack:
        - !text "other"
`

func TestImportOverloadsForwardPrimReferenceFails(t *testing.T) {
	s := openStore(t)
	// is_one's stack references eq_i64, but this document declares eq_i64
	// after is_one. Entries are compiled in declaration order with no
	// forward-reference pass, so Import fails before any DISPATCH is built.
	_, err := Import(s, []byte(overloadDoc))
	require.Error(t, err) // eq_i64 not yet declared when is_one compiles
}
