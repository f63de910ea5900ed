package sdk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/host"
	"github.com/calimero-network/calimero-sdk-go/schema"
	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

const appManifest = `{
  "schema_version": "1",
  "types": {
    "Tags": {"kind": "map", "key": {"kind": "string"}, "value": {"kind": "vector", "elem": {"kind": "string"}}}
  },
  "methods": [
    {"name": "tag", "args": [
      {"name": "key", "type": {"kind": "string"}},
      {"name": "count", "type": {"kind": "u64"}}
    ], "returns": {"kind": "bool"}},
    {"name": "touch", "args": []}
  ],
  "events": [
    {"name": "tagged", "payload": {"kind": "string"}}
  ]
}`

func testEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	m, err := schema.ParseManifest([]byte(appManifest))
	require.NoError(t, err)
	e, err := New(m, host.NewLocalHost(nil), &Options{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCommitCapturesNestedOnce(t *testing.T) {
	e := testEngine(t, "")
	r := e.Registry()

	outer := r.NewMap()
	inner := r.NewList()
	require.NoError(t, outer.Set("a", inner))
	require.NoError(t, e.Bind(outer, "Tags"))
	_, err := e.Begin().Commit()
	require.NoError(t, err)

	// only the leaf is touched; the whole chain is captured anyway
	call := e.Begin()
	require.NoError(t, inner.Push("x"))
	require.NoError(t, inner.Push("y"))
	entries, err := call.Commit()
	require.NoError(t, err)
	require.Len(t, entries, 2, "one entry per dirty collection, not per mutation")

	// the bound root comes out in canonical form: a map of vectors
	last := entries[len(entries)-1]
	assert.Equal(t, outer.Handle(), last.Handle)
	want := []byte{
		1, 0, 0, 0, // one entry
		1, 0, 0, 0, 'a', // key "a"
		2, 0, 0, 0, // two elements
		1, 0, 0, 0, 'x',
		1, 0, 0, 0, 'y',
	}
	assert.Equal(t, want, last.Bytes)

	// clean call flushes nothing
	entries, err = e.Begin().Commit()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCallDoubleFinish(t *testing.T) {
	e := testEngine(t, "")
	call := e.Begin()
	_, err := call.Commit()
	require.NoError(t, err)
	_, err = call.Commit()
	assert.ErrorIs(t, err, state_errors.ErrClosed)
	assert.NoError(t, call.Abort(), "abort after finish is a no-op")
}

func TestAbortRewindsToPersisted(t *testing.T) {
	e := testEngine(t, t.TempDir())
	r := e.Registry()

	m := r.NewMap()
	require.NoError(t, m.Set("k", int64(1)))
	_, err := e.Begin().Commit()
	require.NoError(t, err)

	call := e.Begin()
	require.NoError(t, m.Set("k", int64(2)))
	require.NoError(t, m.Set("extra", "junk"))
	require.NoError(t, call.Abort())

	cur, err := e.Deref(m.Handle())
	require.NoError(t, err)
	back := cur.(*collections.Map)
	v, _ := back.Get("k")
	assert.Equal(t, int64(1), v)
	_, ok := back.Get("extra")
	assert.False(t, ok)
}

func TestAbortLeavesNewOrphaned(t *testing.T) {
	e := testEngine(t, t.TempDir())
	r := e.Registry()

	call := e.Begin()
	c := r.NewCounter()
	c.Increment(5)
	require.NoError(t, call.Abort())

	entries, err := e.Begin().Commit()
	require.NoError(t, err)
	assert.Empty(t, entries, "aborted work never reaches the store")
	_, err = e.Store().Load(c.Handle())
	assert.ErrorIs(t, err, state_errors.ErrNotFound)
}

func TestDerefFallsBackToStore(t *testing.T) {
	dir := t.TempDir()
	var h collections.Handle
	{
		e := testEngine(t, dir)
		c := e.Registry().NewCounter()
		c.Increment(9)
		h = c.Handle()
		_, err := e.Begin().Commit()
		require.NoError(t, err)
		require.NoError(t, e.Close())
	}

	e := testEngine(t, dir)
	total, err := e.CounterValue(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), total)

	_, err = e.CounterValue(collections.Handle{0xAA})
	assert.ErrorIs(t, err, state_errors.ErrNotFound)
}

func TestCounterValueKindCheck(t *testing.T) {
	e := testEngine(t, "")
	m := e.Registry().NewMap()
	_, err := e.CounterValue(m.Handle())
	assert.ErrorIs(t, err, state_errors.ErrTypeMismatch)
}

func TestDecodeArgsAndResult(t *testing.T) {
	e := testEngine(t, "")

	args, err := e.DecodeArgs("tag", [][]byte{
		{3, 0, 0, 0, 'f', 'o', 'o'},
		{7, 0, 0, 0, 0, 0, 0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"foo", uint64(7)}, args)

	_, err = e.DecodeArgs("tag", [][]byte{{0, 0, 0, 0}})
	assert.ErrorIs(t, err, state_errors.ErrTypeMismatch)
	_, err = e.DecodeArgs("nope", nil)
	assert.ErrorIs(t, err, state_errors.ErrUnknownType)

	out, err := e.EncodeResult("tag", true)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, out)

	out, err = e.EncodeResult("touch", nil)
	require.NoError(t, err)
	assert.Nil(t, out, "void method encodes nothing")
}

func TestEncodeEvent(t *testing.T) {
	e := testEngine(t, "")
	out, err := e.EncodeEvent("tagged", "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0, 0, 0, 'h', 'i'}, out)

	_, err = e.EncodeEvent("absent", nil)
	assert.ErrorIs(t, err, state_errors.ErrUnknownType)
}

func TestCustomMergeThroughEngine(t *testing.T) {
	e := testEngine(t, "")
	e.RegisterMerge("Tags", func(local, remote map[string]any) (map[string]any, error) {
		return local, nil
	})
	r := e.Registry()
	out, err := r.MergeRecords("Tags",
		map[string]any{"w": "local"}, map[string]any{"w": "remote"})
	require.NoError(t, err)
	assert.Equal(t, "local", out["w"])
}

// entropylessHost fails every Random call, like a runtime that refuses
// the syscall.
type entropylessHost struct {
	*host.LocalHost
}

func (entropylessHost) Random(n int) ([]byte, error) {
	return nil, errors.New("entropy exhausted")
}

func TestHandlesSurviveRandomFailure(t *testing.T) {
	m, err := schema.ParseManifest([]byte(appManifest))
	require.NoError(t, err)
	e, err := New(m, entropylessHost{host.NewLocalHost(nil)}, &Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	a := e.Registry().NewCounter()
	b := e.Registry().NewCounter()
	assert.NotEqual(t, collections.ZeroHandle, a.Handle())
	assert.NotEqual(t, collections.ZeroHandle, b.Handle())
	assert.NotEqual(t, a.Handle(), b.Handle(), "fallback handles must stay distinct")
}
