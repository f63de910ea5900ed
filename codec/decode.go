package codec

import (
	"encoding/binary"
	"math"

	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/schema"
	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

func need(data []byte, n int) error {
	if len(data) < n {
		return state_errors.ErrUnexpectedEOF
	}
	return nil
}

func takeLen(data []byte) (int, []byte, error) {
	if err := need(data, 4); err != nil {
		return 0, nil, err
	}
	return int(binary.LittleEndian.Uint32(data)), data[4:], nil
}

func take(data []byte, d *schema.Descriptor, m *schema.Manifest) (v any, rest []byte, err error) {
	d, err = resolve(d, m)
	if err != nil {
		return nil, nil, err
	}
	switch d.Kind {
	case schema.Bool:
		if err = need(data, 1); err != nil {
			return nil, nil, err
		}
		switch data[0] {
		case 0:
			return false, data[1:], nil
		case 1:
			return true, data[1:], nil
		}
		return nil, nil, wrapf(state_errors.ErrTypeMismatch, "bool byte 0x%02x", data[0])

	case schema.U32:
		if err = need(data, 4); err != nil {
			return nil, nil, err
		}
		return binary.LittleEndian.Uint32(data), data[4:], nil

	case schema.I32:
		if err = need(data, 4); err != nil {
			return nil, nil, err
		}
		return int32(binary.LittleEndian.Uint32(data)), data[4:], nil

	case schema.U64:
		if err = need(data, 8); err != nil {
			return nil, nil, err
		}
		return binary.LittleEndian.Uint64(data), data[8:], nil

	case schema.I64:
		if err = need(data, 8); err != nil {
			return nil, nil, err
		}
		return int64(binary.LittleEndian.Uint64(data)), data[8:], nil

	case schema.F32:
		if err = need(data, 4); err != nil {
			return nil, nil, err
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), data[4:], nil

	case schema.F64:
		if err = need(data, 8); err != nil {
			return nil, nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), data[8:], nil

	case schema.String:
		n, rest, err := takeLen(data)
		if err != nil {
			return nil, nil, err
		}
		if err = need(rest, n); err != nil {
			return nil, nil, err
		}
		return string(rest[:n]), rest[n:], nil

	case schema.Bytes:
		n, rest, err := takeLen(data)
		if err != nil {
			return nil, nil, err
		}
		if err = need(rest, n); err != nil {
			return nil, nil, err
		}
		out := make([]byte, n)
		copy(out, rest[:n])
		return out, rest[n:], nil

	case schema.Vector:
		n, rest, err := takeLen(data)
		if err != nil {
			return nil, nil, err
		}
		out := make([]any, 0, min(n, 4096))
		for i := 0; i < n; i++ {
			var x any
			if x, rest, err = take(rest, d.Elem, m); err != nil {
				return nil, nil, err
			}
			out = append(out, x)
		}
		return out, rest, nil

	case schema.Map:
		n, rest, err := takeLen(data)
		if err != nil {
			return nil, nil, err
		}
		key, err := resolve(d.Key, m)
		if err != nil {
			return nil, nil, err
		}
		if !key.Kind.ComparableKey() {
			return nil, nil, wrapf(state_errors.ErrTypeMismatch, "map key kind %s", key.Kind)
		}
		if key.Kind == schema.String {
			out := make(map[string]any, min(n, 4096))
			for i := 0; i < n; i++ {
				var k, x any
				if k, rest, err = take(rest, d.Key, m); err != nil {
					return nil, nil, err
				}
				if x, rest, err = take(rest, d.Value, m); err != nil {
					return nil, nil, err
				}
				out[k.(string)] = x
			}
			return out, rest, nil
		}
		out := make(map[any]any, min(n, 4096))
		for i := 0; i < n; i++ {
			var k, x any
			if k, rest, err = take(rest, d.Key, m); err != nil {
				return nil, nil, err
			}
			if x, rest, err = take(rest, d.Value, m); err != nil {
				return nil, nil, err
			}
			out[k] = x
		}
		return out, rest, nil

	case schema.Option:
		if err = need(data, 1); err != nil {
			return nil, nil, err
		}
		switch data[0] {
		case 0:
			return nil, data[1:], nil
		case 1:
			return take(data[1:], d.Elem, m)
		}
		return nil, nil, wrapf(state_errors.ErrTypeMismatch, "option flag 0x%02x", data[0])

	case schema.Record:
		out := make(map[string]any, len(d.Fields))
		rest := data
		for _, f := range d.Fields {
			var x any
			if x, rest, err = take(rest, f.Type, m); err != nil {
				return nil, nil, err
			}
			if x != nil {
				out[f.Name] = x
			}
		}
		return out, rest, nil

	case schema.Variant:
		if err = need(data, 1); err != nil {
			return nil, nil, err
		}
		ord := int(data[0])
		if ord >= len(d.Alts) {
			return nil, nil, wrapf(state_errors.ErrInvalidDiscriminant,
				"%d of %d alternatives", ord, len(d.Alts))
		}
		alt := d.Alts[ord]
		out := Variant{Name: alt.Name}
		rest := data[1:]
		if alt.Payload != nil {
			if out.Payload, rest, err = take(rest, alt.Payload, m); err != nil {
				return nil, nil, err
			}
		}
		return out, rest, nil

	case schema.Counter:
		if err = need(data, 32); err != nil {
			return nil, nil, err
		}
		h, _ := collections.HandleFromBytes(data[:32])
		return h, data[32:], nil
	}
	return nil, nil, wrapf(state_errors.ErrTypeMismatch, "descriptor kind %s", d.Kind)
}
