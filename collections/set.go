package collections

import "sort"

// Set holds unique elements; scalars are identified by value,
// collections by handle. Merge is element union.
type Set struct {
	common
	elems map[string]any
}

func (r *Registry) NewSet() *Set {
	s := &Set{elems: make(map[string]any)}
	s.h = r.newHandle()
	s.reg = r
	r.register(s)
	return s
}

func (s *Set) Kind() Kind { return KindSet }

func (s *Set) Add(v any) error {
	v, err := checkValue(v)
	if err != nil {
		return err
	}
	key := elemKey(v)
	if _, ok := s.elems[key]; ok {
		return nil
	}
	s.elems[key] = v
	s.adopt(s, v)
	s.reg.markDirty(s)
	return nil
}

func (s *Set) Has(v any) bool {
	v, err := checkValue(v)
	if err != nil {
		return false
	}
	_, ok := s.elems[elemKey(v)]
	return ok
}

func (s *Set) Remove(v any) bool {
	v, err := checkValue(v)
	if err != nil {
		return false
	}
	key := elemKey(v)
	old, ok := s.elems[key]
	if !ok {
		return false
	}
	s.disown(s, old)
	delete(s.elems, key)
	s.reg.markDirty(s)
	return true
}

func (s *Set) Len() int { return len(s.elems) }

// Elements returns the set contents in a stable order.
func (s *Set) Elements() []any {
	keys := make([]string, 0, len(s.elems))
	for k := range s.elems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.elems[k])
	}
	return out
}

func (s *Set) Snapshot() any {
	elems := s.Elements()
	out := make([]any, 0, len(elems))
	for _, v := range elems {
		out = append(out, snapshotValue(v))
	}
	return out
}
