package collections

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

// The state encoding is the engine's own persistence format: a
// self-describing, kind-tagged byte form carrying the metadata merges
// need (register stamps, counter totals), with sorted entries so the
// same logical state always yields the same bytes. It is distinct from
// the canonical call-boundary wire format produced by the codec
// package, which has no tags and no merge metadata.
//
// collection := kind(1) handle(32) body
// scalar     := tag(1) payload          tags b u i f s y
// lengths are u32 little-endian, numbers u64 little-endian

const handleLen = 32

func appendU32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func appendU64(buf []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, v)
}

// EncodeState captures a collection's full replicated state, nested
// collections inline. It does not touch dirty flags.
func EncodeState(c Collection) []byte {
	return appendState(nil, c)
}

func appendState(buf []byte, c Collection) []byte {
	buf = append(buf, byte(c.Kind()))
	h := c.Handle()
	buf = append(buf, h[:]...)
	switch x := c.(type) {
	case *Counter:
		buf = appendU64(buf, x.total)
	case *Register:
		buf = appendU64(buf, x.ts)
		buf = appendU64(buf, x.src)
		if x.present {
			buf = append(buf, 1)
			buf = appendValueState(buf, x.val)
		} else {
			buf = append(buf, 0)
		}
	case *Map:
		keys := x.Keys()
		buf = appendU32(buf, uint32(len(keys)))
		for _, k := range keys {
			buf = appendU32(buf, uint32(len(k)))
			buf = append(buf, k...)
			buf = appendValueState(buf, x.entries[k])
		}
	case *Set:
		encoded := make([][]byte, 0, len(x.elems))
		for _, v := range x.elems {
			encoded = append(encoded, appendValueState(nil, v))
		}
		sort.Slice(encoded, func(i, j int) bool {
			return string(encoded[i]) < string(encoded[j])
		})
		buf = appendU32(buf, uint32(len(encoded)))
		for _, e := range encoded {
			buf = append(buf, e...)
		}
	case *List:
		buf = appendU32(buf, uint32(len(x.elems)))
		for _, v := range x.elems {
			buf = appendValueState(buf, v)
		}
	case *Blobs:
		hashes := x.Hashes()
		buf = appendU32(buf, uint32(len(hashes)))
		for _, bh := range hashes {
			buf = append(buf, bh[:]...)
			blob := x.blobs[bh]
			buf = appendU32(buf, uint32(len(blob)))
			buf = append(buf, blob...)
		}
	case *UserStore:
		principals := x.Principals()
		buf = appendU32(buf, uint32(len(principals)))
		for _, p := range principals {
			buf = append(buf, p[:]...)
			buf = appendValueState(buf, x.slots[p])
		}
	}
	return buf
}

func appendValueState(buf []byte, v any) []byte {
	if c, ok := v.(Collection); ok {
		return appendState(buf, c)
	}
	return appendScalarState(buf, v)
}

func appendScalarState(buf []byte, v any) []byte {
	switch x := v.(type) {
	case bool:
		buf = append(buf, 'b')
		if x {
			return append(buf, 1)
		}
		return append(buf, 0)
	case uint64:
		return appendU64(append(buf, 'u'), x)
	case int64:
		return appendU64(append(buf, 'i'), uint64(x))
	case float64:
		return appendU64(append(buf, 'f'), math.Float64bits(x))
	case string:
		buf = appendU32(append(buf, 's'), uint32(len(x)))
		return append(buf, x...)
	case []byte:
		buf = appendU32(append(buf, 'y'), uint32(len(x)))
		return append(buf, x...)
	}
	// checkValue keeps anything else out of containers
	return buf
}

// sval is the parsed form of a state encoding, shared by the byte-level
// merge and by materialization into live collections.
type sval struct {
	tag    byte // collection kind or scalar tag
	handle Handle

	total   uint64 // N
	ts, src uint64 // W
	inner   *sval  // W payload, nil when absent

	keys []string // M key; E merge key; C hash; U principal
	vals []*sval  // M/E/L/U values; C blob svals

	b bool
	u uint64
	i int64
	f float64
	s string
	y []byte
}

func isCollectionTag(t byte) bool {
	switch Kind(t) {
	case KindMap, KindSet, KindList, KindCounter, KindRegister, KindBlobs, KindUserStore:
		return true
	}
	return false
}

func takeU32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, state_errors.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint32(data), data[4:], nil
}

func takeU64(data []byte) (uint64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, state_errors.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint64(data), data[8:], nil
}

func takeBytes(data []byte, n int) ([]byte, []byte, error) {
	if len(data) < n {
		return nil, nil, state_errors.ErrUnexpectedEOF
	}
	return data[:n], data[n:], nil
}

func parseVal(data []byte) (sv *sval, rest []byte, err error) {
	if len(data) < 1 {
		return nil, nil, state_errors.ErrUnexpectedEOF
	}
	tag := data[0]
	rest = data[1:]
	sv = &sval{tag: tag}
	if isCollectionTag(tag) {
		var hb []byte
		if hb, rest, err = takeBytes(rest, handleLen); err != nil {
			return nil, nil, err
		}
		copy(sv.handle[:], hb)
		rest, err = parseBody(sv, rest)
		return sv, rest, err
	}
	switch tag {
	case 'b':
		var fb []byte
		if fb, rest, err = takeBytes(rest, 1); err != nil {
			return nil, nil, err
		}
		sv.b = fb[0] != 0
	case 'u':
		if sv.u, rest, err = takeU64(rest); err != nil {
			return nil, nil, err
		}
	case 'i':
		var u uint64
		if u, rest, err = takeU64(rest); err != nil {
			return nil, nil, err
		}
		sv.i = int64(u)
	case 'f':
		var u uint64
		if u, rest, err = takeU64(rest); err != nil {
			return nil, nil, err
		}
		sv.f = math.Float64frombits(u)
	case 's':
		var n uint32
		var b []byte
		if n, rest, err = takeU32(rest); err != nil {
			return nil, nil, err
		}
		if b, rest, err = takeBytes(rest, int(n)); err != nil {
			return nil, nil, err
		}
		sv.s = string(b)
	case 'y':
		var n uint32
		var b []byte
		if n, rest, err = takeU32(rest); err != nil {
			return nil, nil, err
		}
		if b, rest, err = takeBytes(rest, int(n)); err != nil {
			return nil, nil, err
		}
		sv.y = append([]byte{}, b...)
	default:
		return nil, nil, fmt.Errorf("%w: state tag 0x%02x", state_errors.ErrTypeMismatch, tag)
	}
	return sv, rest, nil
}

func parseBody(sv *sval, data []byte) (rest []byte, err error) {
	rest = data
	switch Kind(sv.tag) {
	case KindCounter:
		sv.total, rest, err = takeU64(rest)
		return rest, err
	case KindRegister:
		if sv.ts, rest, err = takeU64(rest); err != nil {
			return nil, err
		}
		if sv.src, rest, err = takeU64(rest); err != nil {
			return nil, err
		}
		var fb []byte
		if fb, rest, err = takeBytes(rest, 1); err != nil {
			return nil, err
		}
		if fb[0] != 0 {
			if sv.inner, rest, err = parseVal(rest); err != nil {
				return nil, err
			}
		}
		return rest, nil
	case KindMap:
		var count uint32
		if count, rest, err = takeU32(rest); err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			var n uint32
			var kb []byte
			if n, rest, err = takeU32(rest); err != nil {
				return nil, err
			}
			if kb, rest, err = takeBytes(rest, int(n)); err != nil {
				return nil, err
			}
			var v *sval
			if v, rest, err = parseVal(rest); err != nil {
				return nil, err
			}
			sv.keys = append(sv.keys, string(kb))
			sv.vals = append(sv.vals, v)
		}
		return rest, nil
	case KindSet, KindList:
		var count uint32
		if count, rest, err = takeU32(rest); err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			before := rest
			var v *sval
			if v, rest, err = parseVal(rest); err != nil {
				return nil, err
			}
			if Kind(sv.tag) == KindSet {
				sv.keys = append(sv.keys, mergeKey(v, before[:len(before)-len(rest)]))
			}
			sv.vals = append(sv.vals, v)
		}
		return rest, nil
	case KindBlobs:
		var count uint32
		if count, rest, err = takeU32(rest); err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			var hb, blob []byte
			if hb, rest, err = takeBytes(rest, handleLen); err != nil {
				return nil, err
			}
			var n uint32
			if n, rest, err = takeU32(rest); err != nil {
				return nil, err
			}
			if blob, rest, err = takeBytes(rest, int(n)); err != nil {
				return nil, err
			}
			sv.keys = append(sv.keys, string(hb))
			sv.vals = append(sv.vals, &sval{tag: 'y', y: append([]byte{}, blob...)})
		}
		return rest, nil
	case KindUserStore:
		var count uint32
		if count, rest, err = takeU32(rest); err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			var pb []byte
			if pb, rest, err = takeBytes(rest, handleLen); err != nil {
				return nil, err
			}
			var v *sval
			if v, rest, err = parseVal(rest); err != nil {
				return nil, err
			}
			sv.keys = append(sv.keys, string(pb))
			sv.vals = append(sv.vals, v)
		}
		return rest, nil
	}
	return nil, fmt.Errorf("%w: state kind 0x%02x", state_errors.ErrTypeMismatch, sv.tag)
}

// mergeKey identifies a set element across replicas: collections by
// handle, scalars by their encoded bytes.
func mergeKey(v *sval, encoded []byte) string {
	if isCollectionTag(v.tag) {
		return "h" + string(v.handle[:])
	}
	return string(encoded)
}

func encodeVal(buf []byte, sv *sval) []byte {
	if isCollectionTag(sv.tag) {
		buf = append(buf, sv.tag)
		buf = append(buf, sv.handle[:]...)
		switch Kind(sv.tag) {
		case KindCounter:
			buf = appendU64(buf, sv.total)
		case KindRegister:
			buf = appendU64(buf, sv.ts)
			buf = appendU64(buf, sv.src)
			if sv.inner != nil {
				buf = append(buf, 1)
				buf = encodeVal(buf, sv.inner)
			} else {
				buf = append(buf, 0)
			}
		case KindMap:
			buf = appendU32(buf, uint32(len(sv.keys)))
			for i, k := range sv.keys {
				buf = appendU32(buf, uint32(len(k)))
				buf = append(buf, k...)
				buf = encodeVal(buf, sv.vals[i])
			}
		case KindSet:
			encoded := make([][]byte, 0, len(sv.vals))
			for _, v := range sv.vals {
				encoded = append(encoded, encodeVal(nil, v))
			}
			sort.Slice(encoded, func(i, j int) bool {
				return string(encoded[i]) < string(encoded[j])
			})
			buf = appendU32(buf, uint32(len(encoded)))
			for _, e := range encoded {
				buf = append(buf, e...)
			}
		case KindList:
			buf = appendU32(buf, uint32(len(sv.vals)))
			for _, v := range sv.vals {
				buf = encodeVal(buf, v)
			}
		case KindBlobs:
			buf = appendU32(buf, uint32(len(sv.keys)))
			for i, k := range sv.keys {
				buf = append(buf, k...)
				buf = appendU32(buf, uint32(len(sv.vals[i].y)))
				buf = append(buf, sv.vals[i].y...)
			}
		case KindUserStore:
			buf = appendU32(buf, uint32(len(sv.keys)))
			for i, k := range sv.keys {
				buf = append(buf, k...)
				buf = encodeVal(buf, sv.vals[i])
			}
		}
		return buf
	}
	switch sv.tag {
	case 'b':
		return appendScalarState(buf, sv.b)
	case 'u':
		return appendScalarState(buf, sv.u)
	case 'i':
		return appendScalarState(buf, sv.i)
	case 'f':
		return appendScalarState(buf, sv.f)
	case 's':
		return appendScalarState(buf, sv.s)
	case 'y':
		return appendScalarState(buf, sv.y)
	}
	return buf
}

// DecodeState materializes a state encoding into live collections
// registered with r, replacing any live collections with the same
// handles. The result is clean (not dirty).
func DecodeState(r *Registry, data []byte) (Collection, error) {
	sv, rest, err := parseVal(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", state_errors.ErrTypeMismatch, len(rest))
	}
	if !isCollectionTag(sv.tag) {
		return nil, fmt.Errorf("%w: not a collection state", state_errors.ErrTypeMismatch)
	}
	return materialize(r, sv)
}

func materialize(r *Registry, sv *sval) (Collection, error) {
	switch Kind(sv.tag) {
	case KindCounter:
		c := &Counter{total: sv.total}
		c.h, c.reg = sv.handle, r
		r.register(c)
		return c, nil
	case KindRegister:
		w := &Register{ts: sv.ts, src: sv.src}
		w.h, w.reg = sv.handle, r
		if sv.inner != nil {
			v, err := materializeValue(r, sv.inner)
			if err != nil {
				return nil, err
			}
			w.present = true
			w.val = v
			w.adopt(w, v)
		}
		r.register(w)
		return w, nil
	case KindMap:
		m := &Map{entries: make(map[string]any, len(sv.keys))}
		m.h, m.reg = sv.handle, r
		for i, k := range sv.keys {
			v, err := materializeValue(r, sv.vals[i])
			if err != nil {
				return nil, err
			}
			m.entries[k] = v
			m.adopt(m, v)
		}
		r.register(m)
		return m, nil
	case KindSet:
		s := &Set{elems: make(map[string]any, len(sv.vals))}
		s.h, s.reg = sv.handle, r
		for _, ev := range sv.vals {
			v, err := materializeValue(r, ev)
			if err != nil {
				return nil, err
			}
			s.elems[elemKey(v)] = v
			s.adopt(s, v)
		}
		r.register(s)
		return s, nil
	case KindList:
		l := &List{}
		l.h, l.reg = sv.handle, r
		for _, ev := range sv.vals {
			v, err := materializeValue(r, ev)
			if err != nil {
				return nil, err
			}
			l.elems = append(l.elems, v)
			l.adopt(l, v)
		}
		r.register(l)
		return l, nil
	case KindBlobs:
		fp, _ := newBlobCache()
		b := &Blobs{blobs: make(map[Handle][]byte, len(sv.keys)), fp: fp}
		b.h, b.reg = sv.handle, r
		for i, k := range sv.keys {
			var bh Handle
			copy(bh[:], k)
			b.blobs[bh] = append([]byte{}, sv.vals[i].y...)
		}
		r.register(b)
		return b, nil
	case KindUserStore:
		u := &UserStore{slots: make(map[PrincipalID]any, len(sv.keys))}
		u.h, u.reg = sv.handle, r
		for i, k := range sv.keys {
			var p PrincipalID
			copy(p[:], k)
			v, err := materializeValue(r, sv.vals[i])
			if err != nil {
				return nil, err
			}
			u.slots[p] = v
			u.adopt(u, v)
		}
		r.register(u)
		return u, nil
	}
	return nil, fmt.Errorf("%w: state kind 0x%02x", state_errors.ErrTypeMismatch, sv.tag)
}

func materializeValue(r *Registry, sv *sval) (any, error) {
	if isCollectionTag(sv.tag) {
		return materialize(r, sv)
	}
	switch sv.tag {
	case 'b':
		return sv.b, nil
	case 'u':
		return sv.u, nil
	case 'i':
		return sv.i, nil
	case 'f':
		return sv.f, nil
	case 's':
		return sv.s, nil
	case 'y':
		return sv.y, nil
	}
	return nil, fmt.Errorf("%w: state tag 0x%02x", state_errors.ErrTypeMismatch, sv.tag)
}
