package collections

import (
	"log/slog"
	"time"

	"github.com/calimero-network/calimero-sdk-go/utils"
	"github.com/puzpuzpuz/xsync/v3"
)

// Clock supplies write stamps for last-writer-wins values.
type Clock interface {
	// Time returns a monotonically increasing stamp.
	Time() uint64
	// Src identifies this replica, used as the LWW tie-break.
	Src() uint64
}

// LocalClock is wall time in milliseconds, bumped to stay monotonic
// across same-millisecond writes.
type LocalClock struct {
	Source uint64
	last   uint64
}

func (c *LocalClock) Time() uint64 {
	now := uint64(time.Now().UnixMilli())
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

func (c *LocalClock) Src() uint64 { return c.Source }

type RegistryOptions struct {
	Clock      Clock
	Executor   PrincipalID
	HandleFunc func() Handle
	Logger     utils.Logger
	Mergeables *Mergeables
}

func (o *RegistryOptions) SetDefaults() {
	if o.Clock == nil {
		o.Clock = &LocalClock{Source: 1}
	}
	if o.HandleFunc == nil {
		o.HandleFunc = RandomHandle
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.Mergeables == nil {
		o.Mergeables = NewMergeables()
	}
}

// Registry owns the live collection graph for one call context: the
// handle table, the LWW clock, and the deferred dirty queue drained at
// the end of the call. It is not safe for concurrent mutation; the
// execution model is single-threaded cooperative.
type Registry struct {
	opts RegistryOptions

	live *xsync.MapOf[Handle, Collection]

	// deferred propagation queue; inPending dedups re-marks
	pending   []Collection
	inPending map[Handle]bool
}

func NewRegistry(opts *RegistryOptions) *Registry {
	o := RegistryOptions{}
	if opts != nil {
		o = *opts
	}
	o.SetDefaults()
	return &Registry{
		opts:      o,
		live:      xsync.NewMapOf[Handle, Collection](),
		inPending: make(map[Handle]bool),
	}
}

func (r *Registry) Clock() Clock            { return r.opts.Clock }
func (r *Registry) Executor() PrincipalID   { return r.opts.Executor }
func (r *Registry) Mergeables() *Mergeables { return r.opts.Mergeables }
func (r *Registry) Logger() utils.Logger    { return r.opts.Logger }

// Get dereferences a handle through the live table. Counter-typed wire
// fields hold a handle, not a value; callers resolve them here.
func (r *Registry) Get(h Handle) (Collection, bool) {
	return r.live.Load(h)
}

func (r *Registry) register(c Collection) {
	r.live.Store(c.Handle(), c)
}

func (r *Registry) newHandle() Handle {
	return r.opts.HandleFunc()
}

// markDirty flags c and every registered ancestor, deduplicating
// visits: a parent reachable over several paths is marked once per
// pass, so the walk is O(distinct ancestors). Nothing is re-encoded
// here; encoding is deferred to the flush.
func (r *Registry) markDirty(c Collection) {
	visited := make(map[Handle]bool)
	stack := []Collection{c}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := cur.Handle()
		if visited[h] {
			continue
		}
		visited[h] = true
		b := cur.base()
		b.dirty = true
		if !r.inPending[h] {
			r.inPending[h] = true
			r.pending = append(r.pending, cur)
		}
		for _, p := range b.parents {
			stack = append(stack, p)
		}
	}
}

// StateEntry is one flushed collection, in dependency order.
type StateEntry struct {
	Handle Handle
	State  []byte
}

// FlushState drains the deferred queue: every dirty collection is
// captured to its state encoding, children before the parents that
// embed them, and dirty flags are cleared. N mutations to the same
// nested path cost exactly one capture here.
func (r *Registry) FlushState() []StateEntry {
	order := r.flushOrder()
	out := make([]StateEntry, 0, len(order))
	for _, c := range order {
		out = append(out, StateEntry{Handle: c.Handle(), State: EncodeState(c)})
		c.base().dirty = false
	}
	r.resetPending()
	return out
}

// Discard drops all pending dirtiness without capturing anything.
// Used on call failure: no partial flush is ever produced.
func (r *Registry) Discard() []Collection {
	dropped := make([]Collection, len(r.pending))
	copy(dropped, r.pending)
	for _, c := range r.pending {
		c.base().dirty = false
	}
	r.resetPending()
	return dropped
}

func (r *Registry) PendingCount() int { return len(r.pending) }

func (r *Registry) resetPending() {
	r.pending = r.pending[:0]
	r.inPending = make(map[Handle]bool)
}

// flushOrder topologically sorts the pending set so a collection is
// emitted only after every pending descendant of it.
func (r *Registry) flushOrder() []Collection {
	pending := make(map[Handle]Collection, len(r.pending))
	for _, c := range r.pending {
		pending[c.Handle()] = c
	}
	// deps[p] = number of pending children of p
	deps := make(map[Handle]int, len(pending))
	for _, c := range r.pending {
		for ph := range c.base().parents {
			if _, ok := pending[ph]; ok {
				deps[ph]++
			}
		}
	}
	order := make([]Collection, 0, len(pending))
	ready := make([]Collection, 0, len(pending))
	for _, c := range r.pending {
		if deps[c.Handle()] == 0 {
			ready = append(ready, c)
		}
	}
	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		order = append(order, c)
		for ph := range c.base().parents {
			if _, ok := pending[ph]; !ok {
				continue
			}
			deps[ph]--
			if deps[ph] == 0 {
				ready = append(ready, pending[ph])
			}
		}
	}
	// a cycle in parent links would leave stragglers; emit them anyway
	if len(order) != len(pending) {
		seen := make(map[Handle]bool, len(order))
		for _, c := range order {
			seen[c.Handle()] = true
		}
		for _, c := range r.pending {
			if !seen[c.Handle()] {
				order = append(order, c)
			}
		}
	}
	return order
}
