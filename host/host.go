// Package host declares the environment primitives the engine consumes
// as opaque, fallible calls: randomness, time, principal identity,
// context membership and blob announcement. The engine never retries
// them.
package host

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/utils"
	"github.com/google/uuid"
)

type Host interface {
	Random(n int) ([]byte, error)
	Now() (time.Time, error)
	// Executor is the principal on whose behalf the current call runs.
	Executor() (collections.PrincipalID, error)
	// Members lists the principals of the current context.
	Members() ([]collections.PrincipalID, error)
	// AnnounceBlob tells the surrounding runtime a content hash is
	// available locally.
	AnnounceBlob(h collections.Handle) error

	Logger() utils.Logger
}

// LocalHost backs the engine outside a real runtime: local entropy,
// local clock, a uuid-derived principal. Good for tests and the REPL.
type LocalHost struct {
	id      collections.PrincipalID
	members []collections.PrincipalID
	log     utils.Logger
}

func NewLocalHost(log utils.Logger) *LocalHost {
	if log == nil {
		log = utils.NewDefaultLogger(slog.LevelInfo)
	}
	var id collections.PrincipalID
	a, b := uuid.New(), uuid.New()
	copy(id[:16], a[:])
	copy(id[16:], b[:])
	return &LocalHost{
		id:      id,
		members: []collections.PrincipalID{id},
		log:     log,
	}
}

func (h *LocalHost) Random(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("host random: %w", err)
	}
	return buf, nil
}

func (h *LocalHost) Now() (time.Time, error) {
	return time.Now(), nil
}

func (h *LocalHost) Executor() (collections.PrincipalID, error) {
	return h.id, nil
}

func (h *LocalHost) Members() ([]collections.PrincipalID, error) {
	out := make([]collections.PrincipalID, len(h.members))
	copy(out, h.members)
	return out, nil
}

func (h *LocalHost) AnnounceBlob(blob collections.Handle) error {
	h.log.Debug("announce blob", "hash", blob.Short())
	return nil
}

func (h *LocalHost) Logger() utils.Logger { return h.log }

// AddMember grows the local context, for multi-principal tests.
func (h *LocalHost) AddMember(p collections.PrincipalID) {
	h.members = append(h.members, p)
}
