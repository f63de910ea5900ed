package collections

// Register is a last-writer-wins cell: one optional value plus the
// stamp of the write that set it. Concurrent writes resolve by stamp,
// ties by replica id. This is a deliberate, bounded departure from full
// CRDT semantics: under concurrent writes with identical stamps beyond
// the tie-break, the rule is not commutative.
type Register struct {
	common
	present bool
	val     any
	ts      uint64
	src     uint64
}

func (r *Registry) NewRegister() *Register {
	reg := &Register{}
	reg.h = r.newHandle()
	reg.reg = r
	r.register(reg)
	return reg
}

func (w *Register) Kind() Kind { return KindRegister }

func (w *Register) Set(v any) error {
	v, err := checkValue(v)
	if err != nil {
		return err
	}
	if w.present {
		w.disown(w, w.val)
	}
	w.present = true
	w.val = v
	w.stamp()
	w.adopt(w, v)
	w.reg.markDirty(w)
	return nil
}

// Clear is itself a stamped write: a later clear beats an earlier set.
func (w *Register) Clear() {
	if w.present {
		w.disown(w, w.val)
	}
	w.present = false
	w.val = nil
	w.stamp()
	w.reg.markDirty(w)
}

func (w *Register) Value() (any, bool) {
	return w.val, w.present
}

func (w *Register) Stamp() (ts, src uint64) {
	return w.ts, w.src
}

func (w *Register) stamp() {
	clock := w.reg.Clock()
	w.ts = clock.Time()
	w.src = clock.Src()
}

func (w *Register) Snapshot() any {
	if !w.present {
		return nil
	}
	return snapshotValue(w.val)
}
