package jobs

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"
)

// Rand is the only source of randomness the engine draws from.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// Int63n returns a value in [0, n).
	Int63n(n int64) int64
}

type lockedRand struct {
	mu   sync.Mutex
	rand *mathrand.Rand
}

// NewRand returns a goroutine-safe Rand seeded with seed.
func NewRand(seed int64) Rand {
	return &lockedRand{rand: mathrand.New(mathrand.NewSource(seed))}
}

// NewSeededRand seeds from crypto/rand, falling back to the clock.
func NewSeededRand() Rand {
	seed, err := newSeed()
	if err != nil {
		seed = time.Now().UnixNano()
	}
	return NewRand(seed)
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

func (r *lockedRand) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

func newSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// randomIn draws uniformly from the inclusive range.
func randomIn(r Rand, rng Range) int64 {
	if rng.Max <= rng.Min {
		return rng.Min
	}
	return rng.Min + r.Int63n(rng.Max-rng.Min+1)
}
