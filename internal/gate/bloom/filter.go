// Package bloom implements the approximate membership filter guarding the
// allowlist store. A filter never returns a false negative: an address that
// was inserted always tests as possibly present. False positives occur at a
// rate tuned by the sizing parameters and are resolved by the caller against
// the durable store.
package bloom

import (
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
)

// Filter is a fixed-capacity bloom filter. Bits are only ever set, never
// cleared; removals are absorbed by building a replacement filter.
//
// One writer (the sync manager) may insert concurrently with any number of
// readers. Word access goes through atomics so a reader sees each word
// either before or after a write, which at worst briefly misses a just
// inserted address and escalates to the store.
type Filter struct {
	params    Params
	bitCount  uint64
	hashCount uint32
	words     []uint64
	items     atomic.Uint64
	builtAt   time.Time
}

// New allocates a zeroed filter sized for the given parameters. Returns
// ErrInvalidParameters if expected items or the target rate are out of range.
func New(params Params) (*Filter, error) {
	bitCount, hashCount, err := params.Derive()
	if err != nil {
		return nil, err
	}
	return &Filter{
		params:    params,
		bitCount:  bitCount,
		hashCount: hashCount,
		words:     make([]uint64, (bitCount+63)/64),
		builtAt:   time.Now(),
	}, nil
}

// positions derives the k bit positions for s by double hashing: the two
// 64-bit halves of one xxh3 128-bit hash serve as the base hashes, and the
// i-th position is (h1 + i·h2) mod m. h2 is forced odd so the stride never
// collapses to a single position.
func (f *Filter) positions(s string, fn func(bitPos uint64) bool) bool {
	h := xxh3.HashString128(s)
	h1, h2 := h.Hi, h.Lo|1
	for i := uint32(0); i < f.hashCount; i++ {
		if !fn((h1 + uint64(i)*h2) % f.bitCount) {
			return false
		}
	}
	return true
}

// Insert adds s to the filter. Idempotent: re-inserting an address neither
// changes the bit pattern nor the item count. Reports whether the insert
// set at least one new bit.
func (f *Filter) Insert(s string) bool {
	added := false
	f.positions(s, func(bitPos uint64) bool {
		word := &f.words[bitPos/64]
		mask := uint64(1) << (bitPos % 64)
		for {
			old := atomic.LoadUint64(word)
			if old&mask != 0 {
				return true
			}
			if atomic.CompareAndSwapUint64(word, old, old|mask) {
				added = true
				return true
			}
		}
	})
	if added {
		f.items.Add(1)
	}
	return added
}

// Test reports whether s might be in the filter. False means definitely
// absent; true means possibly present and must be confirmed against the
// store.
func (f *Filter) Test(s string) bool {
	return f.positions(s, func(bitPos uint64) bool {
		return atomic.LoadUint64(&f.words[bitPos/64])&(1<<(bitPos%64)) != 0
	})
}

// EstimatedFalsePositiveRate evaluates (1 - e^(-kn/m))^k for the current
// item count. It grows past the target rate once items exceed the expected
// capacity, which is the rebuild trigger condition.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	return estimateFalsePositiveRate(f.bitCount, f.hashCount, f.items.Load())
}

// Items returns the number of distinct inserts recorded.
func (f *Filter) Items() uint64 { return f.items.Load() }

// BitCount returns the size of the bit array.
func (f *Filter) BitCount() uint64 { return f.bitCount }

// HashCount returns the number of hash functions.
func (f *Filter) HashCount() uint32 { return f.hashCount }

// Params returns the sizing inputs the filter was built from.
func (f *Filter) Params() Params { return f.params }

// BuiltAt returns the construction time, used for staleness decisions.
func (f *Filter) BuiltAt() time.Time { return f.builtAt }
