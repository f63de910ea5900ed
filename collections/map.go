package collections

import "sort"

// Map is the replicated ordered-map: unique string keys, values that
// are scalars or nested collections. Merge is per-key union with
// recursive value merge.
type Map struct {
	common
	entries map[string]any
}

func (r *Registry) NewMap() *Map {
	m := &Map{entries: make(map[string]any)}
	m.h = r.newHandle()
	m.reg = r
	r.register(m)
	return m
}

func (m *Map) Kind() Kind { return KindMap }

func (m *Map) Set(key string, v any) error {
	v, err := checkValue(v)
	if err != nil {
		return err
	}
	if old, ok := m.entries[key]; ok {
		m.disown(m, old)
	}
	m.entries[key] = v
	m.adopt(m, v)
	m.reg.markDirty(m)
	return nil
}

func (m *Map) Get(key string) (any, bool) {
	v, ok := m.entries[key]
	return v, ok
}

func (m *Map) Remove(key string) bool {
	old, ok := m.entries[key]
	if !ok {
		return false
	}
	m.disown(m, old)
	delete(m.entries, key)
	m.reg.markDirty(m)
	return true
}

func (m *Map) Len() int { return len(m.entries) }

func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) Snapshot() any {
	out := make(map[string]any, len(m.entries))
	for k, v := range m.entries {
		out[k] = snapshotValue(v)
	}
	return out
}
