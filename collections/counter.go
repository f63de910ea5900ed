package collections

// Counter is a non-negative monotonic accumulator. Divergent replicas
// resolve to the larger total (monotonic-max), which is idempotent,
// commutative and associative.
//
// Its wire form is special: a counter-typed field encodes the
// collection's 32-byte handle, not the total. Consumers recover the
// total by dereferencing the handle through the live registry.
type Counter struct {
	common
	total uint64
}

func (r *Registry) NewCounter() *Counter {
	c := &Counter{}
	c.h = r.newHandle()
	c.reg = r
	r.register(c)
	return c
}

func (c *Counter) Kind() Kind { return KindCounter }

func (c *Counter) Increment(delta uint64) {
	if delta == 0 {
		return
	}
	c.total += delta
	c.reg.markDirty(c)
}

func (c *Counter) Value() uint64 { return c.total }

func (c *Counter) Snapshot() any { return c.h }
