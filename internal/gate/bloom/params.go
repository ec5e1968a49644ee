package bloom

import (
	"fmt"
	"math"
)

const (
	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014
)

// ErrInvalidParameters reports out-of-range sizing inputs. Fatal at
// construction; never retried.
var ErrInvalidParameters = fmt.Errorf("bloom: invalid parameters")

// Params are the sizing inputs for a filter. Bit count and hash count are
// derived from them with the standard formulas.
type Params struct {
	ExpectedItems           int
	TargetFalsePositiveRate float64
}

// Derive computes the bit array size and number of hash functions:
//
//	m = ceil(-n·ln(p) / ln(2)^2)
//	k = round(m/n · ln(2))
func (p Params) Derive() (bitCount uint64, hashCount uint32, err error) {
	if p.ExpectedItems <= 0 {
		return 0, 0, fmt.Errorf("%w: expected items must be positive, got %d", ErrInvalidParameters, p.ExpectedItems)
	}
	if p.TargetFalsePositiveRate <= 0 || p.TargetFalsePositiveRate >= 1 {
		return 0, 0, fmt.Errorf("%w: false positive rate must be in (0, 1), got %v", ErrInvalidParameters, p.TargetFalsePositiveRate)
	}

	n := float64(p.ExpectedItems)
	bitCount = uint64(math.Ceil(-n * math.Log(p.TargetFalsePositiveRate) / ln2Squared))

	k := math.Round(float64(bitCount) / n * ln2)
	if k < 1 {
		k = 1
	}
	hashCount = uint32(k)

	return bitCount, hashCount, nil
}

// estimateFalsePositiveRate evaluates (1 - e^(-kn/m))^k for the current
// item count.
func estimateFalsePositiveRate(bitCount uint64, hashCount uint32, items uint64) float64 {
	if bitCount == 0 || items == 0 {
		return 0
	}
	m := float64(bitCount)
	n := float64(items)
	k := float64(hashCount)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
