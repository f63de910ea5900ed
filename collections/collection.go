// Package collections implements the replicated container types, the
// registry that tracks their nesting and dirtiness, and the per-kind
// merge rules used to reconcile divergent replicas.
package collections

// Kind is the closed set of collection kinds. The byte values double as
// the leading tag of the state encoding, so merge dispatch needs no
// schema at merge time.
type Kind byte

const (
	KindMap       Kind = 'M'
	KindSet       Kind = 'E'
	KindList      Kind = 'L'
	KindCounter   Kind = 'N'
	KindRegister  Kind = 'W'
	KindBlobs     Kind = 'C'
	KindUserStore Kind = 'U'
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindList:
		return "list"
	case KindCounter:
		return "counter"
	case KindRegister:
		return "register"
	case KindBlobs:
		return "blobs"
	case KindUserStore:
		return "userstore"
	}
	return "?"
}

// Collection is any replicated container. The unexported method keeps
// the set of implementations closed to this package, so kind switches
// stay exhaustive.
type Collection interface {
	Kind() Kind
	Handle() Handle
	// Snapshot returns the current logical value without touching the
	// dirty flag. Nested collections surface as their own snapshots,
	// except counters which surface as their Handle.
	Snapshot() any
	Dirty() bool

	base() *common
}

// common is the shared part of every collection: identity, dirty flag
// and parent back-references for propagation.
type common struct {
	h       Handle
	reg     *Registry
	dirty   bool
	parents map[Handle]Collection
}

func (c *common) Handle() Handle { return c.h }
func (c *common) Dirty() bool    { return c.dirty }
func (c *common) base() *common  { return c }

func (c *common) addParent(p Collection) {
	if c.parents == nil {
		c.parents = make(map[Handle]Collection)
	}
	c.parents[p.Handle()] = p
}

func (c *common) removeParent(p Collection) {
	delete(c.parents, p.Handle())
}

// adopt links v under parent when v is itself a collection.
func (c *common) adopt(parent Collection, v any) {
	if child, ok := v.(Collection); ok {
		child.base().addParent(parent)
	}
}

func (c *common) disown(parent Collection, v any) {
	if child, ok := v.(Collection); ok {
		child.base().removeParent(parent)
	}
}
