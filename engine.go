// Package sdk is the state-synchronization engine: replicated
// collections, schema-driven canonical encoding, dirty propagation and
// per-kind merge, behind a single Engine tied to one application
// manifest.
package sdk

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/calimero-network/calimero-sdk-go/codec"
	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/host"
	"github.com/calimero-network/calimero-sdk-go/schema"
	"github.com/calimero-network/calimero-sdk-go/state_errors"
	"github.com/calimero-network/calimero-sdk-go/store"
	"github.com/calimero-network/calimero-sdk-go/utils"
)

type Options struct {
	Logger utils.Logger
	// Dir enables persistence: flushed state merges into a pebble
	// store there. Empty means in-memory only.
	Dir   string
	Clock collections.Clock
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
}

// Engine owns the live collection graph of one application: the
// manifest loaded at startup (immutable after), the registry for one
// call context at a time, and the optional persistent store.
type Engine struct {
	manifest *schema.Manifest
	hst      host.Host
	reg      *collections.Registry
	db       *store.Store
	log      utils.Logger

	// bindings map a collection to the descriptor its canonical
	// encoding is driven by
	bindings map[collections.Handle]*schema.Descriptor
}

func New(manifest *schema.Manifest, hst host.Host, opts *Options) (*Engine, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.SetDefaults()

	executor, err := hst.Executor()
	if err != nil {
		return nil, fmt.Errorf("resolving executor: %w", err)
	}
	clock := o.Clock
	if clock == nil {
		clock = &collections.LocalClock{
			Source: binary.LittleEndian.Uint64(executor[:8]),
		}
	}
	reg := collections.NewRegistry(&collections.RegistryOptions{
		Clock:    clock,
		Executor: executor,
		Logger:   o.Logger,
		HandleFunc: func() collections.Handle {
			b, err := hst.Random(32)
			if err == nil {
				if h, herr := collections.HandleFromBytes(b); herr == nil {
					return h
				}
			}
			// identities must stay unique even when the host cannot
			// serve entropy; local randomness keeps them distinct
			o.Logger.Warn("host randomness failed, using local entropy", "error", err)
			return collections.RandomHandle()
		},
	})

	e := &Engine{
		manifest: manifest,
		hst:      hst,
		reg:      reg,
		log:      o.Logger,
		bindings: make(map[collections.Handle]*schema.Descriptor),
	}
	if o.Dir != "" {
		e.db, err = store.Open(o.Dir, &store.Options{Logger: o.Logger})
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) Registry() *collections.Registry { return e.reg }
func (e *Engine) Manifest() *schema.Manifest      { return e.manifest }
func (e *Engine) Store() *store.Store             { return e.db }

// RegisterMerge installs a custom merge for a record type. Call once
// at startup, before any reconciliation.
func (e *Engine) RegisterMerge(typeName string, fn collections.MergeFunc) {
	e.reg.Mergeables().Register(typeName, fn)
}

// Bind ties a collection to a named type so Commit can capture it in
// the canonical wire form that type prescribes.
func (e *Engine) Bind(c collections.Collection, typeName string) error {
	d, err := e.manifest.Resolve(schema.NewRef(typeName))
	if err != nil {
		return err
	}
	e.bindings[c.Handle()] = d
	return nil
}

// Deref resolves a handle to a live collection, falling back to the
// persistent store. Counter-typed wire fields carry a handle; consumers
// come through here to reach the value.
func (e *Engine) Deref(h collections.Handle) (collections.Collection, error) {
	if c, ok := e.reg.Get(h); ok {
		return c, nil
	}
	if e.db == nil {
		return nil, state_errors.ErrNotFound
	}
	st, err := e.db.Load(h)
	if err != nil {
		return nil, err
	}
	return collections.DecodeState(e.reg, st)
}

// CounterValue dereferences a counter handle to its total.
func (e *Engine) CounterValue(h collections.Handle) (uint64, error) {
	c, err := e.Deref(h)
	if err != nil {
		return 0, err
	}
	counter, ok := c.(*collections.Counter)
	if !ok {
		return 0, fmt.Errorf("%w: %s is a %s, not a counter",
			state_errors.ErrTypeMismatch, h.Short(), c.Kind())
	}
	return counter.Value(), nil
}

// DecodeArgs decodes a method's argument list against the manifest.
func (e *Engine) DecodeArgs(method string, raw [][]byte) ([]any, error) {
	meth := e.findMethod(method)
	if meth == nil {
		return nil, fmt.Errorf("%w: method %q", state_errors.ErrUnknownType, method)
	}
	if len(raw) != len(meth.Args) {
		return nil, fmt.Errorf("%w: method %q takes %d args, got %d",
			state_errors.ErrTypeMismatch, method, len(meth.Args), len(raw))
	}
	out := make([]any, 0, len(raw))
	for i, arg := range meth.Args {
		v, err := codec.Decode(raw[i], arg.Type, e.manifest)
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", arg.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeResult encodes a method's return value; nil for void methods.
func (e *Engine) EncodeResult(method string, v any) ([]byte, error) {
	meth := e.findMethod(method)
	if meth == nil {
		return nil, fmt.Errorf("%w: method %q", state_errors.ErrUnknownType, method)
	}
	if meth.Returns == nil {
		return nil, nil
	}
	return codec.Encode(v, meth.Returns, e.manifest)
}

// EncodeEvent encodes an event payload against the manifest.
func (e *Engine) EncodeEvent(name string, payload any) ([]byte, error) {
	for i := range e.manifest.Events {
		if e.manifest.Events[i].Name != name {
			continue
		}
		if e.manifest.Events[i].Payload == nil {
			return nil, nil
		}
		return codec.Encode(payload, e.manifest.Events[i].Payload, e.manifest)
	}
	return nil, fmt.Errorf("%w: event %q", state_errors.ErrUnknownType, name)
}

func (e *Engine) findMethod(name string) *schema.Method {
	for i := range e.manifest.Methods {
		if e.manifest.Methods[i].Name == name {
			return &e.manifest.Methods[i]
		}
	}
	return nil
}

func (e *Engine) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}
