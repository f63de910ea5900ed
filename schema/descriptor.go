// Package schema holds the passive type model: scalar kinds, composite
// shapes and the named-type table (the manifest) they resolve against.
// Descriptors carry no behavior; the codec and the merge engine dispatch
// on them.
package schema

import (
	"fmt"

	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

type Kind byte

const (
	Bool Kind = iota + 1
	U32
	I32
	U64
	I64
	F32
	F64
	String
	Bytes
	Vector
	Map
	Option
	Record
	Variant
	Reference
	Counter
)

// ComparableKey reports whether values of this kind can key a decoded
// map. Byte slices and composite shapes decode to Go values with no
// equality, so they cannot.
func (k Kind) ComparableKey() bool {
	switch k {
	case Bool, U32, I32, U64, I64, F32, F64, String:
		return true
	}
	return false
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("kind(%d)", byte(k))
	}
	return name
}

var kindNames = map[Kind]string{
	Bool:      "bool",
	U32:       "u32",
	I32:       "i32",
	U64:       "u64",
	I64:       "i64",
	F32:       "f32",
	F64:       "f64",
	String:    "string",
	Bytes:     "bytes",
	Vector:    "vector",
	Map:       "map",
	Option:    "option",
	Record:    "record",
	Variant:   "variant",
	Reference: "ref",
	Counter:   "counter",
}

type Field struct {
	Name string      `json:"name"`
	Type *Descriptor `json:"type"`
}

// Alt is one variant alternative; Payload is nil for bare alternatives.
// The on-wire discriminant is the alternative's position in the list.
type Alt struct {
	Name    string      `json:"name"`
	Payload *Descriptor `json:"payload,omitempty"`
}

type Descriptor struct {
	Kind   Kind
	Name   string      // Reference target, also set on named records/variants
	Elem   *Descriptor // Vector, Option
	Key    *Descriptor // Map
	Value  *Descriptor // Map
	Fields []Field     // Record, declaration order
	Alts   []Alt       // Variant, declaration order
}

// Prebuilt scalar descriptors; scalars carry no per-use state so
// sharing them is safe.
var (
	TBool    = &Descriptor{Kind: Bool}
	TU32     = &Descriptor{Kind: U32}
	TI32     = &Descriptor{Kind: I32}
	TU64     = &Descriptor{Kind: U64}
	TI64     = &Descriptor{Kind: I64}
	TF32     = &Descriptor{Kind: F32}
	TF64     = &Descriptor{Kind: F64}
	TString  = &Descriptor{Kind: String}
	TBytes   = &Descriptor{Kind: Bytes}
	TCounter = &Descriptor{Kind: Counter}
)

func NewVector(elem *Descriptor) *Descriptor {
	return &Descriptor{Kind: Vector, Elem: elem}
}

func NewMap(key, value *Descriptor) *Descriptor {
	return &Descriptor{Kind: Map, Key: key, Value: value}
}

func NewOption(elem *Descriptor) *Descriptor {
	return &Descriptor{Kind: Option, Elem: elem}
}

func NewRecord(name string, fields ...Field) *Descriptor {
	return &Descriptor{Kind: Record, Name: name, Fields: fields}
}

func NewVariant(name string, alts ...Alt) *Descriptor {
	return &Descriptor{Kind: Variant, Name: name, Alts: alts}
}

func NewRef(name string) *Descriptor {
	return &Descriptor{Kind: Reference, Name: name}
}

func (d *Descriptor) FieldByName(name string) *Field {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// Resolve chases Reference descriptors through the manifest's type table
// until a concrete shape is found. An alias (a named type that is itself
// a reference) substitutes transparently; it is never a wire-level shape.
func (m *Manifest) Resolve(d *Descriptor) (*Descriptor, error) {
	for d.Kind == Reference {
		target, ok := m.Types[d.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", state_errors.ErrUnknownType, d.Name)
		}
		d = target
	}
	return d, nil
}
