package collections

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/calimero-network/calimero-sdk-go/state_errors"
)

// Handle is the stable identity of a collection: 32 bytes, either a
// content hash or an allocation from the registry's handle source.
type Handle [32]byte

var ZeroHandle Handle

func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// Short is the first 8 hex digits, for logs and the REPL.
func (h Handle) Short() string {
	return hex.EncodeToString(h[:4])
}

func HandleFromBytes(b []byte) (h Handle, err error) {
	if len(b) != len(h) {
		return ZeroHandle, fmt.Errorf("%w: handle must be %d bytes, got %d",
			state_errors.ErrTypeMismatch, len(h), len(b))
	}
	copy(h[:], b)
	return
}

func HandleFromString(s string) (h Handle, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroHandle, err
	}
	return HandleFromBytes(b)
}

// RandomHandle allocates a fresh handle from local entropy.
func RandomHandle() (h Handle) {
	_, _ = rand.Read(h[:])
	return
}

// PrincipalID identifies a calling principal (executor) in a context.
type PrincipalID [32]byte

func (p PrincipalID) String() string {
	return hex.EncodeToString(p[:])
}

func PrincipalFromBytes(b []byte) (p PrincipalID, err error) {
	if len(b) != len(p) {
		return p, fmt.Errorf("%w: principal must be %d bytes, got %d",
			state_errors.ErrTypeMismatch, len(p), len(b))
	}
	copy(p[:], b)
	return
}
