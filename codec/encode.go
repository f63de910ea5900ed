package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/calimero-network/calimero-sdk-go/schema"
	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

func appendValue(buf []byte, v any, d *schema.Descriptor, m *schema.Manifest) ([]byte, error) {
	d, err := resolve(d, m)
	if err != nil {
		return nil, err
	}
	switch d.Kind {
	case schema.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(v, d)
		}
		if b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case schema.U32:
		u, ok := asUint64(v)
		if !ok {
			return nil, mismatch(v, d)
		}
		if u > math.MaxUint32 {
			return nil, wrapf(state_errors.ErrTypeMismatch, "%d overflows u32", u)
		}
		return binary.LittleEndian.AppendUint32(buf, uint32(u)), nil

	case schema.I32:
		i, ok := asInt64(v)
		if !ok {
			return nil, mismatch(v, d)
		}
		// two's complement via modulo reduction to the declared width
		return binary.LittleEndian.AppendUint32(buf, uint32(int32(i))), nil

	case schema.U64:
		u, ok := asUint64(v)
		if !ok {
			return nil, mismatch(v, d)
		}
		return binary.LittleEndian.AppendUint64(buf, u), nil

	case schema.I64:
		i, ok := asInt64(v)
		if !ok {
			return nil, mismatch(v, d)
		}
		return binary.LittleEndian.AppendUint64(buf, uint64(i)), nil

	case schema.F32:
		var f float32
		switch x := v.(type) {
		case float32:
			f = x
		case float64:
			f = float32(x)
		default:
			return nil, mismatch(v, d)
		}
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(f)), nil

	case schema.F64:
		f, ok := v.(float64)
		if !ok {
			return nil, mismatch(v, d)
		}
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(f)), nil

	case schema.String:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(v, d)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		return append(buf, s...), nil

	case schema.Bytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, mismatch(v, d)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
		return append(buf, b...), nil

	case schema.Vector:
		xs, ok := v.([]any)
		if !ok {
			return nil, mismatch(v, d)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(xs)))
		for _, x := range xs {
			if buf, err = appendValue(buf, x, d.Elem, m); err != nil {
				return nil, err
			}
		}
		return buf, nil

	case schema.Map:
		kd, kerr := resolve(d.Key, m)
		if kerr != nil {
			return nil, kerr
		}
		if !kd.Kind.ComparableKey() {
			return nil, wrapf(state_errors.ErrTypeMismatch, "map key kind %s", kd.Kind)
		}
		// iteration order is not canonical across replicas; the codec
		// snapshots call-boundary state, it does not hash it
		switch mv := v.(type) {
		case map[string]any:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(mv)))
			for k, x := range mv {
				if buf, err = appendValue(buf, k, d.Key, m); err != nil {
					return nil, err
				}
				if buf, err = appendValue(buf, x, d.Value, m); err != nil {
					return nil, err
				}
			}
			return buf, nil
		case map[any]any:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(mv)))
			for k, x := range mv {
				if buf, err = appendValue(buf, k, d.Key, m); err != nil {
					return nil, err
				}
				if buf, err = appendValue(buf, x, d.Value, m); err != nil {
					return nil, err
				}
			}
			return buf, nil
		default:
			return nil, mismatch(v, d)
		}

	case schema.Option:
		if v == nil {
			return append(buf, 0), nil
		}
		buf = append(buf, 1)
		return appendValue(buf, v, d.Elem, m)

	case schema.Record:
		rv, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(v, d)
		}
		for _, f := range d.Fields {
			fv, present := rv[f.Name]
			if present {
				if buf, err = appendValue(buf, fv, f.Type, m); err != nil {
					return nil, err
				}
				continue
			}
			ft, rerr := resolve(f.Type, m)
			if rerr != nil {
				return nil, rerr
			}
			if ft.Kind != schema.Option {
				return nil, wrapf(state_errors.ErrMissingField, "%s.%s", d.Name, f.Name)
			}
			buf = append(buf, 0)
		}
		return buf, nil

	case schema.Variant:
		vv, ok := v.(Variant)
		if !ok {
			return nil, mismatch(v, d)
		}
		ord := -1
		for i := range d.Alts {
			if d.Alts[i].Name == vv.Name {
				ord = i
				break
			}
		}
		if ord < 0 || ord > 255 {
			return nil, wrapf(state_errors.ErrInvalidDiscriminant, "%s.%s", d.Name, vv.Name)
		}
		buf = append(buf, byte(ord))
		if d.Alts[ord].Payload == nil {
			return buf, nil
		}
		return appendValue(buf, vv.Payload, d.Alts[ord].Payload, m)

	case schema.Counter:
		h, ok := counterHandle(v)
		if !ok {
			return nil, mismatch(v, d)
		}
		return append(buf, h[:]...), nil
	}
	return nil, wrapf(state_errors.ErrTypeMismatch, "descriptor kind %s", d.Kind)
}

func mismatch(v any, d *schema.Descriptor) error {
	return wrapf(state_errors.ErrTypeMismatch, "%T against %s", v, d.Kind)
}

func asUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case uint32:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint:
		return uint64(x), true
	case int:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case int64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case int:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}
