package schema

import (
	"testing"

	"github.com/calimero-network/calimero-sdk-go/state_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postManifest = `{
  "schema_version": "1",
  "types": {
    "Post": {"kind": "record", "name": "Post", "fields": [
      {"name": "title", "type": {"kind": "string"}},
      {"name": "likes", "type": {"kind": "counter"}},
      {"name": "tags", "type": {"kind": "vector", "elem": {"kind": "string"}}}
    ]},
    "PostId": {"kind": "string"},
    "Feed": {"kind": "map", "key": {"kind": "ref", "name": "PostId"},
             "value": {"kind": "ref", "name": "Post"}}
  },
  "methods": [
    {"name": "create_post",
     "args": [{"name": "post", "type": {"kind": "ref", "name": "Post"}}],
     "returns": {"kind": "ref", "name": "PostId"}}
  ],
  "events": [
    {"name": "post_created", "payload": {"kind": "ref", "name": "PostId"}}
  ]
}`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(postManifest))
	require.NoError(t, err)
	assert.Len(t, m.Types, 3)
	assert.Len(t, m.Methods, 1)

	post, err := m.Resolve(NewRef("Post"))
	require.NoError(t, err)
	assert.Equal(t, Record, post.Kind)
	assert.Equal(t, Counter, post.Fields[1].Type.Kind)

	// PostId is an alias for string; resolution substitutes transparently
	pid, err := m.Resolve(m.Methods[0].Returns)
	require.NoError(t, err)
	assert.Equal(t, String, pid.Kind)
}

func TestManifestBadVersion(t *testing.T) {
	_, err := ParseManifest([]byte(`{"schema_version": "99", "types": {}}`))
	assert.ErrorIs(t, err, state_errors.ErrBadSchemaVersion)
}

func TestManifestUnknownReference(t *testing.T) {
	_, err := ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {"A": {"kind": "ref", "name": "Nope"}}
	}`))
	assert.ErrorIs(t, err, state_errors.ErrUnknownType)

	m := &Manifest{Types: map[string]*Descriptor{}}
	_, err = m.Resolve(NewRef("Ghost"))
	assert.ErrorIs(t, err, state_errors.ErrUnknownType)
}

func TestManifestAliasCycle(t *testing.T) {
	_, err := ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {
	    "A": {"kind": "ref", "name": "B"},
	    "B": {"kind": "ref", "name": "A"}
	  }
	}`))
	assert.ErrorIs(t, err, state_errors.ErrDescriptorCycle)
}

func TestManifestRecordCycle(t *testing.T) {
	// a record embedding itself by value has no finite encoding
	_, err := ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {
	    "Node": {"kind": "record", "fields": [
	      {"name": "next", "type": {"kind": "ref", "name": "Node"}}
	    ]}
	  }
	}`))
	assert.ErrorIs(t, err, state_errors.ErrDescriptorCycle)
}

func TestManifestGuardedRecursionOK(t *testing.T) {
	// recursion through a vector is finite (the empty vector bottoms out)
	m, err := ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {
	    "Tree": {"kind": "record", "fields": [
	      {"name": "label", "type": {"kind": "string"}},
	      {"name": "kids", "type": {"kind": "vector", "elem": {"kind": "ref", "name": "Tree"}}}
	    ]}
	  }
	}`))
	require.NoError(t, err)
	assert.NotNil(t, m.Types["Tree"])
}

func TestDescriptorJSONRoundTrip(t *testing.T) {
	d := NewVariant("Action",
		Alt{Name: "Noop"},
		Alt{Name: "Put", Payload: NewMap(TString, TU64)},
	)
	data, err := d.MarshalJSON()
	require.NoError(t, err)
	var back Descriptor
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, *d, back)
}

func TestManifestGuardedMutualRecursion(t *testing.T) {
	// mutual recursion is fine as long as every loop crosses a guard
	m, err := ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {
	    "Dir": {"kind": "record", "fields": [
	      {"name": "entries", "type": {"kind": "map", "key": {"kind": "string"},
	        "value": {"kind": "ref", "name": "Entry"}}}
	    ]},
	    "Entry": {"kind": "variant", "alts": [
	      {"name": "File", "payload": {"kind": "bytes"}},
	      {"name": "Sub", "payload": {"kind": "ref", "name": "Dir"}}
	    ]}
	  }
	}`))
	require.NoError(t, err)
	assert.NotNil(t, m.Types["Dir"])
	assert.NotNil(t, m.Types["Entry"])
}

func TestManifestUnguardedMutualCycle(t *testing.T) {
	// two records embedding each other by value never bottom out
	_, err := ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {
	    "A": {"kind": "record", "fields": [
	      {"name": "b", "type": {"kind": "ref", "name": "B"}}
	    ]},
	    "B": {"kind": "record", "fields": [
	      {"name": "a", "type": {"kind": "ref", "name": "A"}}
	    ]}
	  }
	}`))
	assert.ErrorIs(t, err, state_errors.ErrDescriptorCycle)
}

func TestManifestRecursiveTypeInMethod(t *testing.T) {
	// a recursive type is validated once and reused across signatures
	m, err := ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {
	    "Tree": {"kind": "record", "fields": [
	      {"name": "kids", "type": {"kind": "vector", "elem": {"kind": "ref", "name": "Tree"}}}
	    ]}
	  },
	  "methods": [
	    {"name": "graft",
	     "args": [{"name": "a", "type": {"kind": "ref", "name": "Tree"}},
	              {"name": "b", "type": {"kind": "ref", "name": "Tree"}}],
	     "returns": {"kind": "ref", "name": "Tree"}}
	  ]
	}`))
	require.NoError(t, err)
	assert.Len(t, m.Methods, 1)
}

func TestManifestMapKeyKind(t *testing.T) {
	// decoded map keys need equality; bytes and composites have none
	_, err := ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {
	    "Bad": {"kind": "map", "key": {"kind": "bytes"}, "value": {"kind": "u32"}}
	  }
	}`))
	assert.ErrorIs(t, err, state_errors.ErrBadManifest)

	// an alias chain to a comparable scalar is fine
	_, err = ParseManifest([]byte(`{
	  "schema_version": "1",
	  "types": {
	    "Id": {"kind": "string"},
	    "Ok": {"kind": "map", "key": {"kind": "ref", "name": "Id"}, "value": {"kind": "u32"}}
	  }
	}`))
	assert.NoError(t, err)
}
