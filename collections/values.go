package collections

import (
	"fmt"

	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

// checkValue normalizes a value before it enters a container: integer
// widths collapse to int64/uint64, float32 to float64, collections pass
// through. Anything else is a type mismatch, reported at the mutator so
// it never reaches the codec.
func checkValue(v any) (any, error) {
	switch x := v.(type) {
	case Collection:
		return x, nil
	case bool, string, []byte, int64, uint64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("%w: unsupported entry type %T", state_errors.ErrTypeMismatch, v)
	}
}

// elemKey is the identity of a container entry: collections by handle,
// scalars by their normalized state encoding.
func elemKey(v any) string {
	if c, ok := v.(Collection); ok {
		h := c.Handle()
		return "h" + string(h[:])
	}
	return string(appendScalarState(nil, v))
}

// snapshotValue converts a stored entry to its logical value. Counters
// surface as their handle (their wire form); other nested collections
// surface as their own snapshots.
func snapshotValue(v any) any {
	if c, ok := v.(Collection); ok {
		return c.Snapshot()
	}
	return v
}
