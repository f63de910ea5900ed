package collections

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/cespare/xxhash"
	lru "github.com/hashicorp/golang-lru/v2"
)

const blobCacheSize = 512

// Blobs is the content-addressed immutable store: hash(content) to
// content, write-once. Identical hashes are definitionally identical
// values, so merge is plain union and there is never a real conflict.
type Blobs struct {
	common
	blobs map[Handle][]byte
	// fingerprint fast path: repeated Add of the same content skips
	// the SHA-256 when the xxhash fingerprint already maps to a hit
	fp *lru.Cache[uint64, Handle]
}

func newBlobCache() (*lru.Cache[uint64, Handle], error) {
	return lru.New[uint64, Handle](blobCacheSize)
}

func (r *Registry) NewBlobs() *Blobs {
	fp, _ := newBlobCache()
	b := &Blobs{blobs: make(map[Handle][]byte), fp: fp}
	b.h = r.newHandle()
	b.reg = r
	r.register(b)
	return b
}

func (b *Blobs) Kind() Kind { return KindBlobs }

// Add stores content under its SHA-256 and returns the hash. Adding
// the same content twice returns the identical hash and performs no
// duplicate write, so the collection stays clean.
func (b *Blobs) Add(content []byte) Handle {
	key := xxhash.Sum64(content)
	if h, ok := b.fp.Get(key); ok {
		if stored, live := b.blobs[h]; live && bytes.Equal(stored, content) {
			return h
		}
	}
	h := Handle(sha256.Sum256(content))
	b.fp.Add(key, h)
	if _, ok := b.blobs[h]; ok {
		return h
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	b.blobs[h] = stored
	b.reg.markDirty(b)
	return h
}

// Get returns the content for a hash; absence is a normal outcome.
func (b *Blobs) Get(h Handle) ([]byte, bool) {
	content, ok := b.blobs[h]
	return content, ok
}

func (b *Blobs) Has(h Handle) bool {
	_, ok := b.blobs[h]
	return ok
}

func (b *Blobs) Len() int { return len(b.blobs) }

func (b *Blobs) Hashes() []Handle {
	out := make([]Handle, 0, len(b.blobs))
	for h := range b.blobs {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func (b *Blobs) Snapshot() any {
	out := make(map[Handle][]byte, len(b.blobs))
	for h, content := range b.blobs {
		out[h] = content
	}
	return out
}
