package schema

import (
	"encoding/json"
	"fmt"

	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

// SchemaVersion is the only manifest version this build understands.
// Unknown versions are rejected outright, never best-effort parsed.
const SchemaVersion = "1"

type Method struct {
	Name    string      `json:"name"`
	Args    []Field     `json:"args,omitempty"`
	Returns *Descriptor `json:"returns,omitempty"`
}

type Event struct {
	Name    string      `json:"name"`
	Payload *Descriptor `json:"payload,omitempty"`
}

// Manifest is the external schema for one application: every named type,
// exported method and event. Loaded once at startup and immutable after.
type Manifest struct {
	SchemaVersion string                 `json:"schema_version"`
	Types         map[string]*Descriptor `json:"types"`
	Methods       []Method               `json:"methods,omitempty"`
	Events        []Event                `json:"events,omitempty"`
}

type descriptorJSON struct {
	Kind   string      `json:"kind"`
	Name   string      `json:"name,omitempty"`
	Elem   *Descriptor `json:"elem,omitempty"`
	Key    *Descriptor `json:"key,omitempty"`
	Value  *Descriptor `json:"value,omitempty"`
	Fields []Field     `json:"fields,omitempty"`
	Alts   []Alt       `json:"alts,omitempty"`
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var dj descriptorJSON
	if err := json.Unmarshal(data, &dj); err != nil {
		return fmt.Errorf("%w: %v", state_errors.ErrBadManifest, err)
	}
	kind, ok := kindByName[dj.Kind]
	if !ok {
		return fmt.Errorf("%w: kind %q", state_errors.ErrBadManifest, dj.Kind)
	}
	*d = Descriptor{
		Kind:   kind,
		Name:   dj.Name,
		Elem:   dj.Elem,
		Key:    dj.Key,
		Value:  dj.Value,
		Fields: dj.Fields,
		Alts:   dj.Alts,
	}
	return nil
}

func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptorJSON{
		Kind:   d.Kind.String(),
		Name:   d.Name,
		Elem:   d.Elem,
		Key:    d.Key,
		Value:  d.Value,
		Fields: d.Fields,
		Alts:   d.Alts,
	})
}

// ParseManifest decodes and validates an ABI manifest. The returned
// manifest is fully resolved: every reference hits the type table and
// the descriptor graph is finite, so the codec can recurse freely.
func ParseManifest(data []byte) (m *Manifest, err error) {
	m = &Manifest{}
	if err = json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", state_errors.ErrBadManifest, err)
	}
	if m.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %q", state_errors.ErrBadSchemaVersion, m.SchemaVersion)
	}
	if m.Types == nil {
		m.Types = map[string]*Descriptor{}
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks every reachable descriptor: references must resolve,
// map keys must be comparable scalars, and no type may reach itself
// again without passing through a size-guarding shape (vector, map,
// option, variant). Plain record fields and alias chains do not guard,
// so a cycle through them has no finite encoding and is rejected here
// rather than at encode time.
func (m *Manifest) Validate() error {
	c := &checker{m: m, entered: map[string]int{}, done: map[string]bool{}}
	for name, d := range m.Types {
		if err := c.checkNamed(name, d); err != nil {
			return fmt.Errorf("type %q: %w", name, err)
		}
	}
	for _, meth := range m.Methods {
		for _, arg := range meth.Args {
			if err := c.check(arg.Type); err != nil {
				return fmt.Errorf("method %q arg %q: %w", meth.Name, arg.Name, err)
			}
		}
		if meth.Returns != nil {
			if err := c.check(meth.Returns); err != nil {
				return fmt.Errorf("method %q returns: %w", meth.Name, err)
			}
		}
	}
	for _, ev := range m.Events {
		if ev.Payload != nil {
			if err := c.check(ev.Payload); err != nil {
				return fmt.Errorf("event %q: %w", ev.Name, err)
			}
		}
	}
	return nil
}

// checker carries the cycle-walk state: guard depth on the current
// path, the guard depth at which each in-progress name was entered,
// and the names already proven finite. A name revisited at a deeper
// guard level is legal recursion (the empty guard bottoms out); a
// revisit at the same level has no finite encoding.
type checker struct {
	m       *Manifest
	guards  int
	entered map[string]int
	done    map[string]bool
}

func (c *checker) checkNamed(name string, d *Descriptor) error {
	if c.done[name] {
		return nil
	}
	c.entered[name] = c.guards
	err := c.check(d)
	delete(c.entered, name)
	if err == nil {
		c.done[name] = true
	}
	return err
}

func (c *checker) check(d *Descriptor) error {
	if d == nil {
		return state_errors.ErrBadManifest
	}
	switch d.Kind {
	case Bool, U32, I32, U64, I64, F32, F64, String, Bytes, Counter:
		return nil
	case Vector, Option:
		c.guards++
		err := c.check(d.Elem)
		c.guards--
		return err
	case Map:
		c.guards++
		err := c.check(d.Key)
		if err == nil {
			err = c.check(d.Value)
		}
		c.guards--
		if err != nil {
			return err
		}
		// the key chain is proven acyclic above, so this terminates
		kd, err := c.m.Resolve(d.Key)
		if err != nil {
			return err
		}
		if !kd.Kind.ComparableKey() {
			return fmt.Errorf("%w: map key kind %s", state_errors.ErrBadManifest, kd.Kind)
		}
		return nil
	case Variant:
		c.guards++
		var err error
		for _, alt := range d.Alts {
			if alt.Payload == nil {
				continue
			}
			if err = c.check(alt.Payload); err != nil {
				break
			}
		}
		c.guards--
		return err
	case Record:
		for _, f := range d.Fields {
			if err := c.check(f.Type); err != nil {
				return err
			}
		}
		return nil
	case Reference:
		target, ok := c.m.Types[d.Name]
		if !ok {
			return fmt.Errorf("%w: %q", state_errors.ErrUnknownType, d.Name)
		}
		if at, on := c.entered[d.Name]; on {
			if c.guards > at {
				return nil
			}
			return fmt.Errorf("%w: via %q", state_errors.ErrDescriptorCycle, d.Name)
		}
		return c.checkNamed(d.Name, target)
	default:
		return fmt.Errorf("%w: kind %d", state_errors.ErrBadManifest, d.Kind)
	}
}
