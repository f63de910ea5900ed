package collections

import (
	"bytes"
	"sort"
)

// UserStore holds exactly one slot per principal. A principal writes
// only its own slot and reads anyone's. Merge is per-principal union,
// recursing into the stored value's own rule.
type UserStore struct {
	common
	slots map[PrincipalID]any
}

func (r *Registry) NewUserStore() *UserStore {
	u := &UserStore{slots: make(map[PrincipalID]any)}
	u.h = r.newHandle()
	u.reg = r
	r.register(u)
	return u
}

func (u *UserStore) Kind() Kind { return KindUserStore }

// Insert writes the calling principal's slot.
func (u *UserStore) Insert(v any) error {
	v, err := checkValue(v)
	if err != nil {
		return err
	}
	me := u.reg.Executor()
	if old, ok := u.slots[me]; ok {
		u.disown(u, old)
	}
	u.slots[me] = v
	u.adopt(u, v)
	u.reg.markDirty(u)
	return nil
}

// Get reads the calling principal's own slot.
func (u *UserStore) Get() (any, bool) {
	v, ok := u.slots[u.reg.Executor()]
	return v, ok
}

// GetFor reads an arbitrary principal's slot; it never creates one.
func (u *UserStore) GetFor(p PrincipalID) (any, bool) {
	v, ok := u.slots[p]
	return v, ok
}

func (u *UserStore) Len() int { return len(u.slots) }

func (u *UserStore) Principals() []PrincipalID {
	out := make([]PrincipalID, 0, len(u.slots))
	for p := range u.slots {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func (u *UserStore) Snapshot() any {
	out := make(map[PrincipalID]any, len(u.slots))
	for p, v := range u.slots {
		out[p] = snapshotValue(v)
	}
	return out
}
