package sampler

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	mathrand "math/rand/v2"
	"sync"
)

// Source is the entropy capability every draw is taken from. It is passed
// explicitly into a Sampler rather than read from process-wide state.
//
// Implementations must be safe for concurrent use and must never hand the
// same randomness to two callers.
type Source interface {
	// Uint64 returns 64 uniformly random bits.
	Uint64() uint64
	// Fork derives an independent source for a labelled sub-task. Forks of
	// a seeded source are reproducible; forks of a cryptographic source
	// share the underlying generator.
	Fork(label string) Source
}

// cryptoSource draws from the operating system CSPRNG.
type cryptoSource struct {
	mu  sync.Mutex
	buf [8]byte
}

// NewCryptoSource returns the production entropy source.
func NewCryptoSource() Source {
	return &cryptoSource{}
}

func (c *cryptoSource) Uint64() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := rand.Read(c.buf[:]); err != nil {
		// crypto/rand only fails when the kernel entropy source is unusable.
		panic(fmt.Sprintf("sampler: crypto/rand failed: %v", err))
	}
	return binary.LittleEndian.Uint64(c.buf[:])
}

func (c *cryptoSource) Fork(string) Source {
	return c
}

// seededSource is a deterministic ChaCha8 stream for tests and replays.
type seededSource struct {
	mu   sync.Mutex
	seed [32]byte
	rng  *mathrand.ChaCha8
}

// NewSeededSource returns a reproducible source keyed by seed. It must not
// be used for real releases.
func NewSeededSource(seed [32]byte) Source {
	return &seededSource{seed: seed, rng: mathrand.NewChaCha8(seed)}
}

// SeedFromUint64 expands a small integer into a 32-byte seed.
func SeedFromUint64(v uint64) [32]byte {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], v)
	return sha256.Sum256(raw[:])
}

func (s *seededSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Uint64()
}

// Fork derives a child stream keyed by the parent seed and the label, so
// concurrent sub-tasks stay reproducible regardless of scheduling order.
func (s *seededSource) Fork(label string) Source {
	h := sha256.New()
	h.Write(s.seed[:])
	h.Write([]byte(label))
	var child [32]byte
	copy(child[:], h.Sum(nil))
	return NewSeededSource(child)
}
