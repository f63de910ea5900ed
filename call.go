package sdk

import (
	"fmt"

	"github.com/calimero-network/calimero-sdk-go/codec"
	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

// Call is one unit of work: the span of one inbound method invocation.
// Mutations accumulate in the live graph; Commit drains the deferred
// dirty queue and captures every dirty collection exactly once, however
// many mutations it saw. Abort discards the whole batch; no partial
// flush is ever persisted.
type Call struct {
	e    *Engine
	done bool
}

func (e *Engine) Begin() *Call {
	return &Call{e: e}
}

// FlushEntry is one captured collection. Bytes is the canonical wire
// encoding when the collection is bound to a manifest type, the state
// encoding otherwise. Entries come children before the parents that
// embed them.
type FlushEntry struct {
	Handle collections.Handle
	Bytes  []byte
}

func (c *Call) Commit() ([]FlushEntry, error) {
	if c.done {
		return nil, fmt.Errorf("%w: call already finished", state_errors.ErrClosed)
	}
	c.done = true
	e := c.e

	states := e.reg.FlushState()
	if e.db != nil {
		if err := e.db.MergeBatch(states); err != nil {
			return nil, fmt.Errorf("persisting flush: %w", err)
		}
	}

	out := make([]FlushEntry, 0, len(states))
	for _, st := range states {
		entry := FlushEntry{Handle: st.Handle, Bytes: st.State}
		if d, bound := e.bindings[st.Handle]; bound {
			col, ok := e.reg.Get(st.Handle)
			if ok {
				b, err := codec.Encode(col.Snapshot(), d, e.manifest)
				if err != nil {
					return nil, fmt.Errorf("capturing %s: %w", st.Handle.Short(), err)
				}
				entry.Bytes = b
			}
		}
		out = append(out, entry)
	}
	e.log.Debug("call committed", "collections", len(out))
	return out, nil
}

// Abort drops every pending mutation. Collections with persisted state
// rewind to it; newly created ones simply stay orphaned and inert.
func (c *Call) Abort() error {
	if c.done {
		return nil
	}
	c.done = true
	e := c.e

	dropped := e.reg.Discard()
	if e.db == nil {
		return nil
	}
	for _, col := range dropped {
		st, err := e.db.Load(col.Handle())
		if err != nil {
			continue // never persisted, nothing to rewind to
		}
		if _, err = collections.DecodeState(e.reg, st); err != nil {
			return fmt.Errorf("rewinding %s: %w", col.Handle().Short(), err)
		}
	}
	e.log.Debug("call aborted", "collections", len(dropped))
	return nil
}
