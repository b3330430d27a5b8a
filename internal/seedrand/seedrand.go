// Package seedrand provides a deterministic pseudo-random source keyed by a
// string. Two sources built from the same key reproduce identical outputs over
// any sequence of calls, on any machine and in any process, which is what lets
// quiz presentation order be recomputed at grading time instead of stored.
//
// The algorithm is pinned and must not change: the byte stream is
// SHA-256(key || uint64 big-endian block counter) for counter 0, 1, 2, ...,
// consumed as big-endian uint64 words. Bounded integers use modulo rejection
// sampling on that stream. Swapping this construction out would silently break
// every issued-but-ungraded quiz presentation.
package seedrand

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// Separator joins seed key parts. Callers must build keys from the same parts
// in the same order at compute and recompute sites.
const Separator = "/"

// Source is a deterministic random source. It is not safe for concurrent use;
// create one per derivation.
type Source struct {
	key     []byte
	counter uint64
	block   [sha256.Size]byte
	off     int
}

// New builds a Source from stable identifier parts joined with Separator.
// Construction never fails.
func New(parts ...string) *Source {
	return &Source{
		key: []byte(strings.Join(parts, Separator)),
		off: sha256.Size, // force a block on first draw
	}
}

func (s *Source) refill() {
	h := sha256.New()
	h.Write(s.key)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], s.counter)
	h.Write(ctr[:])
	h.Sum(s.block[:0])
	s.counter++
	s.off = 0
}

// Uint64 returns the next 64-bit word of the keyed stream.
func (s *Source) Uint64() uint64 {
	if s.off+8 > sha256.Size {
		s.refill()
	}
	v := binary.BigEndian.Uint64(s.block[s.off:])
	s.off += 8
	return v
}

// IntN returns a uniform integer in [min, max], both bounds inclusive.
// Callers must ensure min <= max.
func (s *Source) IntN(min, max int) int {
	n := uint64(max-min) + 1
	// Reject draws below 2^64 mod n so the remaining range is an exact
	// multiple of n.
	threshold := (-n) % n
	for {
		v := s.Uint64()
		if v >= threshold {
			return min + int(v%n)
		}
	}
}

// Shuffle permutes n elements in place via Fisher-Yates driven by the source.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.IntN(0, i)
		swap(i, j)
	}
}

// Perm returns a permutation of [0, n).
func (s *Source) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	s.Shuffle(n, func(i, j int) {
		p[i], p[j] = p[j], p[i]
	})
	return p
}

// ShuffleSlice returns a shuffled copy of elems, leaving the input untouched.
func ShuffleSlice[T any](s *Source, elems []T) []T {
	out := make([]T, len(elems))
	copy(out, elems)
	s.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
