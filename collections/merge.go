package collections

import (
	"fmt"

	"github.com/calimero-network/calimero-sdk-go/state_errors"
	"github.com/calimero-network/calimero-sdk-go/utils"
)

// MergeFunc is a user-supplied merge for one record type. It receives
// both sides fully materialized and returns the resolved value; the
// caller marks the result dirty through the normal collection API if it
// mutates further.
type MergeFunc func(local, remote map[string]any) (map[string]any, error)

// Mergeables is the static table of custom record merges, built once at
// startup and passed to the registry; there is no global state.
type Mergeables struct {
	funcs map[string]MergeFunc
}

func NewMergeables() *Mergeables {
	return &Mergeables{funcs: make(map[string]MergeFunc)}
}

func (m *Mergeables) Register(typeName string, fn MergeFunc) {
	m.funcs[typeName] = fn
}

func (m *Mergeables) Lookup(typeName string) (MergeFunc, bool) {
	fn, ok := m.funcs[typeName]
	return fn, ok
}

// MergeState merges state encodings, inputs ordered old to new. The
// result keeps the first input's handles. CRDT kinds (counter, map,
// set, blobs, userstore) merge commutatively; registers resolve by
// stamp with the replica id as tie-break; lists and plain scalars
// resolve last-writer-wins with the newest input winning.
func MergeState(inputs ...[]byte) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	svs := make([]*sval, 0, len(inputs))
	for _, in := range inputs {
		sv, rest, err := parseVal(in)
		if err != nil {
			return nil, err
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes", state_errors.ErrTypeMismatch, len(rest))
		}
		svs = append(svs, sv)
	}
	merged, err := mergeVals(svs)
	if err != nil {
		return nil, err
	}
	return encodeVal(nil, merged), nil
}

func mergeVals(inputs []*sval) (*sval, error) {
	if len(inputs) == 1 {
		return inputs[0], nil
	}
	first := inputs[0]
	for _, in := range inputs[1:] {
		if in.tag != first.tag {
			if isCollectionTag(in.tag) && isCollectionTag(first.tag) {
				return nil, fmt.Errorf("%w: %c vs %c", state_errors.ErrKindMismatch,
					first.tag, in.tag)
			}
			// a plain field changed shape: newest wins
			return inputs[len(inputs)-1], nil
		}
	}
	if !isCollectionTag(first.tag) {
		return inputs[len(inputs)-1], nil
	}
	switch Kind(first.tag) {
	case KindCounter:
		out := &sval{tag: first.tag, handle: first.handle, total: first.total}
		for _, in := range inputs[1:] {
			if in.total > out.total {
				out.total = in.total
			}
		}
		return out, nil
	case KindRegister:
		win := first
		for _, in := range inputs[1:] {
			if in.ts > win.ts || (in.ts == win.ts && in.src >= win.src) {
				win = in
			}
		}
		out := *win
		out.handle = first.handle
		return &out, nil
	case KindList:
		out := *inputs[len(inputs)-1]
		out.handle = first.handle
		return &out, nil
	case KindMap, KindSet, KindBlobs, KindUserStore:
		return mergeEntries(inputs)
	}
	return nil, fmt.Errorf("%w: state kind 0x%02x", state_errors.ErrTypeMismatch, first.tag)
}

// mergeEntries is the sorted n-way key union shared by the map-shaped
// kinds. A heap zips the inputs' sorted key lists; values present under
// the same key merge recursively.
func mergeEntries(inputs []*sval) (*sval, error) {
	heap := utils.Heap[string]{}
	for _, in := range inputs {
		for _, k := range in.keys {
			heap.Push(k)
		}
	}
	byKey := make([]map[string]*sval, len(inputs))
	for i, in := range inputs {
		byKey[i] = make(map[string]*sval, len(in.keys))
		for j, k := range in.keys {
			byKey[i][k] = in.vals[j]
		}
	}
	out := &sval{tag: inputs[0].tag, handle: inputs[0].handle}
	var last string
	havePrev := false
	for heap.Len() > 0 {
		k := heap.Pop()
		if havePrev && k == last {
			continue
		}
		last, havePrev = k, true
		var present []*sval
		for i := range inputs {
			if v, ok := byKey[i][k]; ok {
				present = append(present, v)
			}
		}
		v, err := mergeVals(present)
		if err != nil {
			return nil, err
		}
		out.keys = append(out.keys, k)
		out.vals = append(out.vals, v)
	}
	return out, nil
}

// Merge reconciles remote into local and returns local. Both sides stay
// live; values adopted from remote are deep-copied into this registry
// through the state encoding so the graphs never alias. Built-in rules
// never fail beyond the kind check; changed collections are marked
// dirty through the normal propagation path.
func (r *Registry) Merge(local, remote Collection) (Collection, error) {
	if local.Kind() != remote.Kind() {
		return nil, fmt.Errorf("%w: %s vs %s", state_errors.ErrKindMismatch,
			local.Kind(), remote.Kind())
	}
	switch l := local.(type) {
	case *Counter:
		rem := remote.(*Counter)
		if rem.total > l.total {
			l.total = rem.total
			r.markDirty(l)
		}
	case *Register:
		rem := remote.(*Register)
		if rem.ts > l.ts || (rem.ts == l.ts && rem.src >= l.src) {
			if l.present {
				l.disown(l, l.val)
			}
			l.present, l.ts, l.src = rem.present, rem.ts, rem.src
			l.val = r.importValue(rem.val)
			if l.present {
				l.adopt(l, l.val)
			}
			r.markDirty(l)
		}
	case *Map:
		rem := remote.(*Map)
		for _, k := range rem.Keys() {
			rv := rem.entries[k]
			lv, ok := l.entries[k]
			if ok && r.mergeValues(lv, rv) {
				continue
			}
			_ = l.Set(k, r.importValue(rv))
		}
	case *Set:
		rem := remote.(*Set)
		for key, rv := range rem.elems {
			lv, ok := l.elems[key]
			if ok && r.mergeValues(lv, rv) {
				continue
			}
			if !ok {
				_ = l.Add(r.importValue(rv))
			}
		}
	case *List:
		rem := remote.(*List)
		for _, v := range l.elems {
			l.disown(l, v)
		}
		l.elems = l.elems[:0]
		for _, v := range rem.elems {
			iv := r.importValue(v)
			l.elems = append(l.elems, iv)
			l.adopt(l, iv)
		}
		r.markDirty(l)
	case *Blobs:
		rem := remote.(*Blobs)
		for h, blob := range rem.blobs {
			if _, ok := l.blobs[h]; ok {
				continue
			}
			l.blobs[h] = append([]byte{}, blob...)
			r.markDirty(l)
		}
	case *UserStore:
		rem := remote.(*UserStore)
		for p, rv := range rem.slots {
			lv, ok := l.slots[p]
			if ok && r.mergeValues(lv, rv) {
				continue
			}
			iv := r.importValue(rv)
			if ok {
				l.disown(l, lv)
			}
			l.slots[p] = iv
			l.adopt(l, iv)
			r.markDirty(l)
		}
	}
	return local, nil
}

// mergeValues recursively merges two entry values when both are
// collections of the same kind; reports whether it did.
func (r *Registry) mergeValues(lv, rv any) bool {
	lc, lok := lv.(Collection)
	rc, rok := rv.(Collection)
	if !lok || !rok || lc.Kind() != rc.Kind() {
		return false
	}
	_, err := r.Merge(lc, rc)
	return err == nil
}

// importValue deep-copies a value from another registry's graph into
// this one, preserving handles.
func (r *Registry) importValue(v any) any {
	c, ok := v.(Collection)
	if !ok {
		return v
	}
	if c.base().reg == r {
		return c
	}
	nc, err := DecodeState(r, EncodeState(c))
	if err != nil {
		return v
	}
	return nc
}

// MergeRecords resolves two materialized record values. A custom merge
// registered for the type replaces default behavior entirely; otherwise
// each field merges by its own kind's rule and plain scalar fields
// resolve last-writer-wins with remote winning ties.
func (r *Registry) MergeRecords(typeName string, local, remote map[string]any) (map[string]any, error) {
	if fn, ok := r.Mergeables().Lookup(typeName); ok {
		resolved, err := fn(local, remote)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", state_errors.ErrMergeRejected, typeName, err)
		}
		return resolved, nil
	}
	out := make(map[string]any, len(local))
	for k, v := range local {
		out[k] = v
	}
	for k, rv := range remote {
		lv, ok := out[k]
		if ok && r.mergeValues(lv, rv) {
			continue
		}
		out[k] = r.importValue(rv)
	}
	return out, nil
}
