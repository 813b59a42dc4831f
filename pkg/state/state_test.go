package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreApplyBatchAtomicVersionBump(t *testing.T) {
	s := NewMemoryStore()
	require.Equal(t, uint64(0), s.Version())

	v, err := s.ApplyBatch([]Change{
		{Key: []byte("account:a"), Value: []byte("100")},
		{Key: []byte("account:b"), Value: []byte("0")},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)
	require.Equal(t, uint64(1), s.Version())

	val, ok, err := s.Get([]byte("account:a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("100"), val)
}

func TestMemoryStoreEmptyRootIsAllZero(t *testing.T) {
	s := NewMemoryStore()
	root, err := s.ComputeRoot()
	require.NoError(t, err)
	require.Equal(t, [32]byte{}, root)
}

func TestMemoryStoreRootIndependentOfInsertionOrder(t *testing.T) {
	s1 := NewMemoryStore()
	_, err := s1.ApplyBatch([]Change{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	})
	require.NoError(t, err)

	s2 := NewMemoryStore()
	_, err = s2.ApplyBatch([]Change{{Key: []byte("c"), Value: []byte("3")}})
	require.NoError(t, err)
	_, err = s2.ApplyBatch([]Change{{Key: []byte("a"), Value: []byte("1")}})
	require.NoError(t, err)
	_, err = s2.ApplyBatch([]Change{{Key: []byte("b"), Value: []byte("2")}})
	require.NoError(t, err)

	r1, err := s1.ComputeRoot()
	require.NoError(t, err)
	r2, err := s2.ComputeRoot()
	require.NoError(t, err)
	require.Equal(t, r1, r2)
}

func TestMemoryStoreReservedKeysHiddenFromAllEntries(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.ApplyBatch([]Change{
		{Key: []byte("__internal"), Value: []byte("x")},
		{Key: []byte("visible"), Value: []byte("y")},
	})
	require.NoError(t, err)

	entries, err := s.AllEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte("visible"), entries[0].Key)
}

func TestMemoryStoreDeleteRemovesKey(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.ApplyBatch([]Change{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)

	require.NoError(t, s.Delete([]byte("k")))
	ok, err := s.Exists([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreDiffAccumulatesAcrossVersions(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.ApplyBatch([]Change{{Key: []byte("a"), Value: []byte("1")}})
	require.NoError(t, err)
	_, err = s.ApplyBatch([]Change{{Key: []byte("b"), Value: []byte("2")}})
	require.NoError(t, err)
	_, err = s.ApplyBatch([]Change{{Key: []byte("a"), Value: nil}})
	require.NoError(t, err)

	d, err := s.Diff(0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), d.FromVersion)
	require.Equal(t, uint64(3), d.ToVersion)
	require.Equal(t, []byte("2"), d.Added["b"])
	require.NotContains(t, d.Added, "a")
	require.Contains(t, d.Removed, "a")
}

func TestMemoryStoreDiffUnknownVersionErrors(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Diff(5)
	require.ErrorIs(t, err, ErrVersionNotFound)
}

func TestMemoryStoreSnapshotIsIndependent(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.ApplyBatch([]Change{{Key: []byte("k"), Value: []byte("v1")}})
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)

	_, err = s.ApplyBatch([]Change{{Key: []byte("k"), Value: []byte("v2")}})
	require.NoError(t, err)

	v, _, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
}

// fakeKV is a minimal in-memory stand-in for kvdb.KVAdapter, used to
// exercise PersistentStore without a real CometBFT database.
type fakeKV struct {
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Get(key []byte) ([]byte, error) { return f.data[string(key)], nil }

func (f *fakeKV) Set(key, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	f.data[string(key)] = v
	return nil
}

func (f *fakeKV) Delete(key []byte) error {
	delete(f.data, string(key))
	return nil
}

func (f *fakeKV) Has(key []byte) (bool, error) {
	_, ok := f.data[string(key)]
	return ok, nil
}

func (f *fakeKV) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	for k, v := range f.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			if !fn([]byte(k), v) {
				break
			}
		}
	}
	return nil
}

func TestPersistentStoreRecoversVersionOnReopen(t *testing.T) {
	backing := newFakeKV()

	s1, err := NewPersistentStore(backing)
	require.NoError(t, err)
	v, err := s1.ApplyBatch([]Change{{Key: []byte("account:a"), Value: []byte("100")}})
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	s2, err := NewPersistentStore(backing)
	require.NoError(t, err)
	require.Equal(t, uint64(1), s2.Version())

	val, ok, err := s2.Get([]byte("account:a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("100"), val)
}

func TestPersistentStoreMatchesMemoryStoreRoot(t *testing.T) {
	mem := NewMemoryStore()
	_, err := mem.ApplyBatch([]Change{
		{Key: []byte("account:a"), Value: []byte("100")},
		{Key: []byte("account:b"), Value: []byte("200")},
	})
	require.NoError(t, err)

	ps, err := NewPersistentStore(newFakeKV())
	require.NoError(t, err)
	_, err = ps.ApplyBatch([]Change{
		{Key: []byte("account:a"), Value: []byte("100")},
		{Key: []byte("account:b"), Value: []byte("200")},
	})
	require.NoError(t, err)

	memRoot, err := mem.ComputeRoot()
	require.NoError(t, err)
	psRoot, err := ps.ComputeRoot()
	require.NoError(t, err)
	require.Equal(t, memRoot, psRoot)
}

func TestPersistentStoreDiffReplaysHistory(t *testing.T) {
	ps, err := NewPersistentStore(newFakeKV())
	require.NoError(t, err)
	_, err = ps.ApplyBatch([]Change{{Key: []byte("a"), Value: []byte("1")}})
	require.NoError(t, err)
	_, err = ps.ApplyBatch([]Change{{Key: []byte("b"), Value: []byte("2")}})
	require.NoError(t, err)

	d, err := ps.Diff(0)
	require.NoError(t, err)
	require.Equal(t, []byte("1"), d.Added["a"])
	require.Equal(t, []byte("2"), d.Added["b"])
}
