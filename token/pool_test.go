package token

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/objects"
)

func node(n byte) cid.CID {
	var b [cid.Size]byte
	b[cid.Size-1] = n
	return cid.FromBytes(b[:])
}

func TestSeedAndAcquireRead(t *testing.T) {
	p := NewPool()
	p.Seed(objects.DomainIO, node(1))
	h, ok := p.AcquireRead(objects.DomainIO)
	require.True(t, ok)
	require.Equal(t, node(1), h.Node)

	// read is duplicable: acquiring again still succeeds
	h2, ok := p.AcquireRead(objects.DomainIO)
	require.True(t, ok)
	require.Equal(t, h, h2)
}

func TestWriteTokenLinearity(t *testing.T) {
	p := NewPool()
	p.SeedWrite(objects.DomainState, 0, node(1))

	h, ok := p.AcquireWrite(objects.DomainState, 0)
	require.True(t, ok)
	require.Equal(t, node(1), h.Node)

	// removed: a second acquire before release fails
	_, ok = p.AcquireWrite(objects.DomainState, 0)
	require.False(t, ok)

	p.Release(objects.DomainState, 0, node(2), 0)
	h2, ok := p.AcquireWrite(objects.DomainState, 0)
	require.True(t, ok)
	require.Equal(t, node(2), h2.Node)
}

func TestRequireTokenMissing(t *testing.T) {
	p := NewPool()
	err := p.RequireToken(objects.DomainNet, objects.PermRead, 0)
	require.Error(t, err)
}

func TestRuntimePoolDoubleConsumePanics(t *testing.T) {
	rp := NewRuntimePool([]objects.EffectDomain{objects.DomainIO})
	require.NotPanics(t, func() { rp.Consume(objects.DomainIO) })
	require.Panics(t, func() { rp.Consume(objects.DomainIO) })
}

// TestRuntimePoolChainedConsumeRelease documents the expected shape of a
// chain of N effectful nodes in the same domain (a word with several
// state.write calls, e.g.): each consuming node pairs its Consume with a
// Release once it has produced its own fresh token output, so the next node
// in the chain can consume again.
func TestRuntimePoolChainedConsumeRelease(t *testing.T) {
	rp := NewRuntimePool([]objects.EffectDomain{objects.DomainState})
	for i := 0; i < 5; i++ {
		require.NotPanics(t, func() { rp.Consume(objects.DomainState) })
		require.Panics(t, func() { rp.Consume(objects.DomainState) }, "round %d: token reused without a Release", i)
		require.NotPanics(t, func() { rp.Release(objects.DomainState) })
	}
}

func TestGlobalStoreWriteReadSnapshot(t *testing.T) {
	g := NewGlobalStore()
	g.Write("ns", "counter", objects.I64(7))

	v, err := g.Read("ns", "counter")
	require.NoError(t, err)
	require.Equal(t, int64(7), v.I64)

	snap := g.Snapshot()
	require.Len(t, snap.Namespaces, 1)
	require.Equal(t, "ns", snap.Namespaces[0].Namespace)
	require.Equal(t, "counter", snap.Namespaces[0].Entries[0].Key)
}

func TestGlobalStoreResetClears(t *testing.T) {
	g := NewGlobalStore()
	g.Write("ns", "k", objects.I64(1))
	g.Reset()
	_, err := g.Read("ns", "k")
	require.Error(t, err)
}

func TestGlobalStoreDeepCopyOnWrite(t *testing.T) {
	g := NewGlobalStore()
	v := objects.Tuple(objects.I64(1), objects.I64(2))
	g.Write("ns", "t", v)

	v.Tuple[0] = objects.I64(999)

	got, err := g.Read("ns", "t")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Tuple[0].I64)
}
