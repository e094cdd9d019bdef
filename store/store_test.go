package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/substraterr"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTest(t)
	c, bytes, err := cid.Of([]interface{}{0, 1, 2})
	require.NoError(t, err)

	require.NoError(t, s.Put(c, "prim", bytes))
	kind, got, err := s.Get(c)
	require.NoError(t, err)
	require.Equal(t, "prim", kind)
	require.Equal(t, bytes, got)
}

func TestPutIsIdempotent(t *testing.T) {
	s := openTest(t)
	c, bytes, err := cid.Of([]interface{}{0, 1, 2})
	require.NoError(t, err)

	require.NoError(t, s.Put(c, "prim", bytes))
	require.NoError(t, s.Put(c, "prim", bytes))

	rows, err := s.LoadAll("prim")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTest(t)
	_, _, err := s.Get(cid.CID{})
	require.Error(t, err)
	require.True(t, substraterr.Is(err, substraterr.KindNotFound))
}

func TestNamePutGetList(t *testing.T) {
	s := openTest(t)
	c, _, err := cid.Of([]interface{}{0})
	require.NoError(t, err)

	require.NoError(t, s.NamePut(ScopeWord, "hello", c))
	got, err := s.NameGet(ScopeWord, "hello")
	require.NoError(t, err)
	require.Equal(t, c, got)

	names, err := s.NameList(ScopeWord, "hel")
	require.NoError(t, err)
	require.Equal(t, []string{"hello"}, names)
}

func TestNameGetMissingSuggestsNearMiss(t *testing.T) {
	s := openTest(t)
	c, _, err := cid.Of([]interface{}{0})
	require.NoError(t, err)
	require.NoError(t, s.NamePut(ScopeWord, "hello", c))

	_, err = s.NameGet(ScopeWord, "helo")
	require.Error(t, err)
	require.True(t, substraterr.Is(err, substraterr.KindUnknownSymbol))
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, []string{"hello"}, se.Context["suggestions"])
}

func TestDedupSameLiteralTwoNames(t *testing.T) {
	s := openTest(t)
	c, bytes, err := cid.Of([]interface{}{0, "lit", 9})
	require.NoError(t, err)
	require.NoError(t, s.Put(c, "node", bytes))
	require.NoError(t, s.NamePut(ScopeWord, "nine_a", c))
	require.NoError(t, s.NamePut(ScopeWord, "nine_b", c))

	rows, err := s.LoadAll("node")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	a, err := s.NameGet(ScopeWord, "nine_a")
	require.NoError(t, err)
	b, err := s.NameGet(ScopeWord, "nine_b")
	require.NoError(t, err)
	require.Equal(t, a, b)
}
