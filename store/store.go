// Package store persists collection state encodings in pebble. Writes
// go through pebble's merge operator wired to the CRDT byte merge, so
// concurrently written states for the same handle converge in the
// storage layer itself.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/state_errors"
	"github.com/calimero-network/calimero-sdk-go/utils"
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

var MergeCount = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "state",
	Subsystem: "store",
	Name:      "merges",
})

var FlushBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "state",
	Subsystem: "store",
	Name:      "flush_bytes",
})

type Options struct {
	Logger    utils.Logger
	WriteSync bool
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
}

type Store struct {
	db        *pebble.DB
	dir       string
	log       utils.Logger
	wo        *pebble.WriteOptions
	open      bool
	collector *PebbleCollector
}

// OKey is the storage key for a collection's state.
func OKey(h collections.Handle) []byte {
	key := make([]byte, 1+len(h))
	key[0] = 'O'
	copy(key[1:], h[:])
	return key
}

func Open(dir string, opts *Options) (*Store, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.SetDefaults()
	db, err := pebble.Open(dir, &pebble.Options{
		Merger: &pebble.Merger{
			Name:  "crdt-state",
			Merge: merger,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store open %q: %w", dir, err)
	}
	s := &Store{
		db:        db,
		dir:       dir,
		log:       o.Logger,
		wo:        &pebble.WriteOptions{Sync: o.WriteSync},
		open:      true,
		collector: NewPebbleCollector(db),
	}
	// one store per process gets the default registry; extra opens
	// (tests) just miss out on DB metrics
	if err := prometheus.Register(s.collector); err != nil {
		s.log.Debug("pebble collector not registered", "error", err)
		s.collector = nil
	}
	return s, nil
}

func merger(key, value []byte) (pebble.ValueMerger, error) {
	a := &mergeAdaptor{}
	_ = a.MergeNewer(value)
	return a, nil
}

type mergeAdaptor struct {
	vals [][]byte
	old  bool
}

func (a *mergeAdaptor) MergeNewer(value []byte) error {
	target := make([]byte, len(value))
	copy(target, value)
	a.vals = append(a.vals, target)
	return nil
}

func (a *mergeAdaptor) MergeOlder(value []byte) error {
	target := make([]byte, len(value))
	copy(target, value)
	a.vals = append(a.vals, target)
	a.old = true
	return nil
}

func (a *mergeAdaptor) Finish(includesBase bool) ([]byte, io.Closer, error) {
	if a.old {
		slices.Reverse(a.vals)
	}
	if len(a.vals) == 0 {
		return nil, nil, nil
	}
	MergeCount.Inc()
	res, err := collections.MergeState(a.vals...)
	if err != nil {
		return nil, nil, err
	}
	return res, nil, nil
}

// Merge folds a state encoding into whatever is already stored for the
// handle; the pebble merge operator resolves the conflict.
func (s *Store) Merge(h collections.Handle, state []byte) error {
	if !s.open {
		return state_errors.ErrClosed
	}
	FlushBytes.Add(float64(len(state)))
	return s.db.Merge(OKey(h), state, s.wo)
}

// MergeBatch applies a whole flush atomically: either every entry is
// merged in or none are.
func (s *Store) MergeBatch(entries []collections.StateEntry) error {
	if !s.open {
		return state_errors.ErrClosed
	}
	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	for _, e := range entries {
		if err := b.Merge(OKey(e.Handle), e.State, nil); err != nil {
			return err
		}
		FlushBytes.Add(float64(len(e.State)))
	}
	return b.Commit(s.wo)
}

// Load returns the stored state for a handle.
func (s *Store) Load(h collections.Handle) ([]byte, error) {
	if !s.open {
		return nil, state_errors.ErrClosed
	}
	value, closer, err := s.db.Get(OKey(h))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, state_errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	_ = closer.Close()
	return out, nil
}

// Range calls fn for every stored collection, in handle order.
func (s *Store) Range(fn func(h collections.Handle, state []byte) bool) error {
	if !s.open {
		return state_errors.ErrClosed
	}
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{'O'},
		UpperBound: []byte{'O' + 1},
	})
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()
	for it.First(); it.Valid(); it.Next() {
		h, err := collections.HandleFromBytes(it.Key()[1:])
		if err != nil {
			continue
		}
		if !fn(h, it.Value()) {
			break
		}
	}
	return nil
}

func (s *Store) DB() *pebble.DB { return s.db }

func (s *Store) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	if s.collector != nil {
		prometheus.Unregister(s.collector)
		s.collector = nil
	}
	return s.db.Close()
}
