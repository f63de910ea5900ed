package collections

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock hands out increasing stamps under test control.
type manualClock struct {
	t   uint64
	src uint64
}

func (c *manualClock) Time() uint64 { c.t++; return c.t }
func (c *manualClock) Src() uint64  { return c.src }

// testRegistry allocates deterministic handles so state encodings are
// reproducible across the two "replicas" a merge test sets up.
func testRegistry(src uint64) *Registry {
	next := uint64(0)
	return NewRegistry(&RegistryOptions{
		Clock: &manualClock{src: src},
		Executor: PrincipalID{byte(src)},
		HandleFunc: func() (h Handle) {
			next++
			h[0] = byte(src)
			binary.BigEndian.PutUint64(h[24:], next)
			return
		},
	})
}

func TestMapBasics(t *testing.T) {
	r := testRegistry(1)
	m := r.NewMap()
	require.NoError(t, m.Set("a", int64(1)))
	require.NoError(t, m.Set("b", "two"))

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	assert.True(t, m.Remove("a"))
	assert.False(t, m.Remove("a"))
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Dirty())

	assert.Error(t, m.Set("bad", struct{}{}))
}

func TestSetUniqueness(t *testing.T) {
	r := testRegistry(1)
	s := r.NewSet()
	require.NoError(t, s.Add("x"))
	require.NoError(t, s.Add("x"))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Has("x"))

	// int widths normalize to one identity
	require.NoError(t, s.Add(int32(5)))
	require.NoError(t, s.Add(int64(5)))
	assert.Equal(t, 2, s.Len())

	assert.True(t, s.Remove("x"))
	assert.False(t, s.Has("x"))
}

func TestListOrdering(t *testing.T) {
	r := testRegistry(1)
	l := r.NewList()
	require.NoError(t, l.Push("b"))
	require.NoError(t, l.Insert(0, "a"))
	require.NoError(t, l.Push("c"))

	assert.Equal(t, []any{"a", "b", "c"}, l.Snapshot())

	v, ok := l.Remove(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, l.Len())

	assert.Error(t, l.Insert(9, "z"))
}

func TestCounterSnapshotIsHandle(t *testing.T) {
	r := testRegistry(1)
	c := r.NewCounter()
	c.Increment(3)
	c.Increment(4)
	assert.Equal(t, uint64(7), c.Value())
	// the wire form is the identity, not the total
	assert.Equal(t, c.Handle(), c.Snapshot())

	got, ok := r.Get(c.Handle())
	assert.True(t, ok)
	assert.Same(t, Collection(c), got)
}

func TestRegisterStamps(t *testing.T) {
	r := testRegistry(7)
	w := r.NewRegister()
	_, present := w.Value()
	assert.False(t, present)

	require.NoError(t, w.Set("hello"))
	v, present := w.Value()
	assert.True(t, present)
	assert.Equal(t, "hello", v)
	ts, src := w.Stamp()
	assert.Equal(t, uint64(1), ts)
	assert.Equal(t, uint64(7), src)

	w.Clear()
	_, present = w.Value()
	assert.False(t, present)
	ts, _ = w.Stamp()
	assert.Equal(t, uint64(2), ts, "clear is a stamped write")
}

func TestBlobsIdempotentAdd(t *testing.T) {
	r := testRegistry(1)
	b := r.NewBlobs()
	h1 := b.Add([]byte("hello"))
	h2 := b.Add([]byte("hello"))
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, b.Len())

	content, ok := b.Get(h1)
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), content)

	_, ok = b.Get(Handle{0xFF})
	assert.False(t, ok, "missing hash is a normal outcome")
}

func TestUserStoreSlots(t *testing.T) {
	r := testRegistry(1)
	u := r.NewUserStore()
	_, ok := u.Get()
	assert.False(t, ok)

	require.NoError(t, u.Insert("mine"))
	v, ok := u.Get()
	assert.True(t, ok)
	assert.Equal(t, "mine", v)

	other := PrincipalID{9}
	_, ok = u.GetFor(other)
	assert.False(t, ok, "reading never creates a slot")
	assert.Equal(t, 1, u.Len())
}

func TestNestedPropagation(t *testing.T) {
	r := testRegistry(1)
	outer := r.NewMap()
	inner := r.NewMap()
	leaf := r.NewSet()

	require.NoError(t, outer.Set("a", inner))
	require.NoError(t, inner.Set("b", leaf))
	// settle the structural dirtiness, then mutate only the leaf
	r.FlushState()
	assert.False(t, outer.Dirty())

	require.NoError(t, leaf.Add("x"))
	assert.True(t, leaf.Dirty())
	assert.True(t, inner.Dirty(), "ancestors re-marked")
	assert.True(t, outer.Dirty())

	entries := r.FlushState()
	require.Len(t, entries, 3)
	// children flush before the parents that embed them
	assert.Equal(t, leaf.Handle(), entries[0].Handle)
	assert.Equal(t, inner.Handle(), entries[1].Handle)
	assert.Equal(t, outer.Handle(), entries[2].Handle)

	// the outer capture reflects the leaf mutation without any
	// explicit re-set of the intermediate containers
	r2 := testRegistry(2)
	back, err := DecodeState(r2, entries[2].State)
	require.NoError(t, err)
	snap := back.Snapshot().(map[string]any)
	innerSnap := snap["a"].(map[string]any)
	assert.Equal(t, []any{"x"}, innerSnap["b"])
}

func TestPropagationDeduplicates(t *testing.T) {
	r := testRegistry(1)
	parent1 := r.NewMap()
	parent2 := r.NewMap()
	child := r.NewSet()
	require.NoError(t, parent1.Set("c", child))
	require.NoError(t, parent2.Set("c", child))
	r.FlushState()

	// shared child: one mutation marks both parents exactly once
	require.NoError(t, child.Add(int64(1)))
	require.NoError(t, child.Add(int64(2)))
	assert.Equal(t, 3, r.PendingCount())

	entries := r.FlushState()
	assert.Len(t, entries, 3)
	assert.Equal(t, child.Handle(), entries[0].Handle)
	assert.Equal(t, 0, r.PendingCount())
}

func TestDiscardDropsPending(t *testing.T) {
	r := testRegistry(1)
	m := r.NewMap()
	require.NoError(t, m.Set("k", int64(1)))
	assert.True(t, m.Dirty())

	dropped := r.Discard()
	assert.Len(t, dropped, 1)
	assert.False(t, m.Dirty())
	assert.Empty(t, r.FlushState())
}

func TestStateRoundTrip(t *testing.T) {
	r := testRegistry(1)
	m := r.NewMap()
	c := r.NewCounter()
	c.Increment(5)
	w := r.NewRegister()
	require.NoError(t, w.Set(int64(-3)))
	require.NoError(t, m.Set("count", c))
	require.NoError(t, m.Set("reg", w))
	require.NoError(t, m.Set("flag", true))
	require.NoError(t, m.Set("raw", []byte{1, 2}))
	require.NoError(t, m.Set("pi", 3.14))

	state := EncodeState(m)
	// deterministic: same logical state, same bytes
	assert.Equal(t, state, EncodeState(m))

	r2 := testRegistry(2)
	back, err := DecodeState(r2, state)
	require.NoError(t, err)
	assert.Equal(t, m.Handle(), back.Handle())
	assert.False(t, back.Dirty())

	m2 := back.(*Map)
	v, _ := m2.Get("count")
	c2 := v.(*Counter)
	assert.Equal(t, uint64(5), c2.Value())
	assert.Equal(t, c.Handle(), c2.Handle())

	// nested collections registered in the target registry
	got, ok := r2.Get(c.Handle())
	assert.True(t, ok)
	assert.Same(t, Collection(c2), got)
}
