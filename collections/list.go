package collections

import (
	"fmt"

	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

// List is an ordered sequence. It deliberately has no generic merge:
// reconciling divergent lists takes explicit resolution or LWW at the
// field level, so the built-in rule lets the remote side win whole.
type List struct {
	common
	elems []any
}

func (r *Registry) NewList() *List {
	l := &List{}
	l.h = r.newHandle()
	l.reg = r
	r.register(l)
	return l
}

func (l *List) Kind() Kind { return KindList }

func (l *List) Push(v any) error {
	v, err := checkValue(v)
	if err != nil {
		return err
	}
	l.elems = append(l.elems, v)
	l.adopt(l, v)
	l.reg.markDirty(l)
	return nil
}

func (l *List) Insert(i int, v any) error {
	if i < 0 || i > len(l.elems) {
		return fmt.Errorf("%w: index %d of %d", state_errors.ErrNotFound, i, len(l.elems))
	}
	v, err := checkValue(v)
	if err != nil {
		return err
	}
	l.elems = append(l.elems, nil)
	copy(l.elems[i+1:], l.elems[i:])
	l.elems[i] = v
	l.adopt(l, v)
	l.reg.markDirty(l)
	return nil
}

func (l *List) Get(i int) (any, bool) {
	if i < 0 || i >= len(l.elems) {
		return nil, false
	}
	return l.elems[i], true
}

func (l *List) Set(i int, v any) error {
	if i < 0 || i >= len(l.elems) {
		return fmt.Errorf("%w: index %d of %d", state_errors.ErrNotFound, i, len(l.elems))
	}
	v, err := checkValue(v)
	if err != nil {
		return err
	}
	l.disown(l, l.elems[i])
	l.elems[i] = v
	l.adopt(l, v)
	l.reg.markDirty(l)
	return nil
}

func (l *List) Remove(i int) (any, bool) {
	if i < 0 || i >= len(l.elems) {
		return nil, false
	}
	old := l.elems[i]
	l.disown(l, old)
	l.elems = append(l.elems[:i], l.elems[i+1:]...)
	l.reg.markDirty(l)
	return old, true
}

func (l *List) Len() int { return len(l.elems) }

func (l *List) Snapshot() any {
	out := make([]any, 0, len(l.elems))
	for _, v := range l.elems {
		out = append(out, snapshotValue(v))
	}
	return out
}
