package store

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

type seqClock struct {
	t, src uint64
}

func (c *seqClock) Time() uint64 { c.t++; return c.t }
func (c *seqClock) Src() uint64  { return c.src }

func newTestRegistry(src uint64) *collections.Registry {
	next := uint64(0)
	return collections.NewRegistry(&collections.RegistryOptions{
		Clock: &seqClock{src: src},
		HandleFunc: func() (h collections.Handle) {
			next++
			h[0] = byte(src)
			binary.BigEndian.PutUint64(h[24:], next)
			return
		},
	})
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreLoadMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load(collections.Handle{1})
	assert.ErrorIs(t, err, state_errors.ErrNotFound)
}

func TestStoreMergeConverges(t *testing.T) {
	s := openTestStore(t)
	r := newTestRegistry(1)
	c := r.NewCounter()
	c.Increment(2)
	base := collections.EncodeState(c)
	c.Increment(3)
	newer := collections.EncodeState(c)

	// two writers race the same handle; the merge operator keeps the
	// monotonic total no matter the arrival order
	require.NoError(t, s.Merge(c.Handle(), newer))
	require.NoError(t, s.Merge(c.Handle(), base))

	stored, err := s.Load(c.Handle())
	require.NoError(t, err)
	got, err := collections.DecodeState(newTestRegistry(2), stored)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.(*collections.Counter).Value())
}

func TestStoreMergeSetUnion(t *testing.T) {
	s := openTestStore(t)
	a := newTestRegistry(1)
	sa := a.NewSet()
	require.NoError(t, sa.Add("k1"))
	require.NoError(t, sa.Add("k2"))

	b := newTestRegistry(2)
	sb, err := collections.DecodeState(b, collections.EncodeState(sa))
	require.NoError(t, err)
	require.NoError(t, sb.(*collections.Set).Add("k3"))

	require.NoError(t, s.Merge(sa.Handle(), collections.EncodeState(sa)))
	require.NoError(t, s.Merge(sa.Handle(), collections.EncodeState(sb)))

	stored, err := s.Load(sa.Handle())
	require.NoError(t, err)
	got, err := collections.DecodeState(newTestRegistry(3), stored)
	require.NoError(t, err)
	set := got.(*collections.Set)
	assert.Equal(t, 3, set.Len())
	for _, k := range []string{"k1", "k2", "k3"} {
		assert.True(t, set.Has(k), k)
	}
}

func TestStoreMergeBatchAndRange(t *testing.T) {
	s := openTestStore(t)
	r := newTestRegistry(1)
	m := r.NewMap()
	inner := r.NewSet()
	require.NoError(t, m.Set("s", inner))
	require.NoError(t, inner.Add("x"))

	entries := r.FlushState()
	require.NoError(t, s.MergeBatch(entries))

	seen := map[collections.Handle]bool{}
	require.NoError(t, s.Range(func(h collections.Handle, state []byte) bool {
		seen[h] = true
		return true
	}))
	assert.True(t, seen[m.Handle()])
	assert.True(t, seen[inner.Handle()])
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	r := newTestRegistry(1)
	c := r.NewCounter()
	c.Increment(7)
	require.NoError(t, s.Merge(c.Handle(), collections.EncodeState(c)))
	require.NoError(t, s.Close())

	s2, err := Open(dir, nil)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	stored, err := s2.Load(c.Handle())
	require.NoError(t, err)
	got, err := collections.DecodeState(newTestRegistry(2), stored)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.(*collections.Counter).Value())
}

func TestStoreClosed(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Merge(collections.Handle{}, nil), state_errors.ErrClosed)
	_, err = s.Load(collections.Handle{})
	assert.ErrorIs(t, err, state_errors.ErrClosed)
	assert.NoError(t, s.Close(), "double close is a no-op")
}
