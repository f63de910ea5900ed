// Package codec encodes and decodes runtime values against type
// descriptors, producing the canonical wire format shared with the
// other implementations of this protocol. The format is fixed: little
// endian throughout, u32 length prefixes, one-byte option flags and
// variant discriminants, no embedded type tags.
package codec

import (
	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/schema"
	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

// Variant is the runtime value of a variant-typed field.
type Variant struct {
	Name    string
	Payload any
}

// Encode serializes v against the descriptor. The descriptor graph must
// come from a validated manifest; see schema.Manifest.Validate.
func Encode(v any, d *schema.Descriptor, m *schema.Manifest) ([]byte, error) {
	return appendValue(nil, v, d, m)
}

// Decode parses data against the descriptor. Trailing bytes after a
// complete value are an error, never silently ignored.
func Decode(data []byte, d *schema.Descriptor, m *schema.Manifest) (any, error) {
	v, rest, err := take(data, d, m)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errTrailing(len(rest))
	}
	return v, nil
}

func resolve(d *schema.Descriptor, m *schema.Manifest) (*schema.Descriptor, error) {
	if d.Kind != schema.Reference {
		return d, nil
	}
	if m == nil {
		return nil, errUnknownType(d.Name)
	}
	return m.Resolve(d)
}

// counterHandle extracts the 32-byte identity a counter-typed field
// carries on the wire.
func counterHandle(v any) (collections.Handle, bool) {
	switch x := v.(type) {
	case collections.Handle:
		return x, true
	case *collections.Counter:
		return x.Handle(), true
	}
	return collections.ZeroHandle, false
}

func errUnknownType(name string) error {
	return wrapf(state_errors.ErrUnknownType, "%q", name)
}

func errTrailing(n int) error {
	return wrapf(state_errors.ErrTypeMismatch, "%d trailing bytes", n)
}
