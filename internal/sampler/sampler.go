// Package sampler provides precision-hardened random draws for the noise
// mechanisms.
//
// Discrete draws are built from uniform bits only: no modulo reduction, no
// floating-point division on secret-dependent paths. Continuous draws are
// computed at a configurable binary precision with correctly-rounded
// arithmetic and converted to float64 only at the very end.
package sampler

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync"
)

const (
	// DefaultPrecision is the working precision, in bits, of continuous draws.
	DefaultPrecision uint = 128
	// MinPrecision is the smallest accepted working precision.
	MinPrecision uint = 53

	// maxGeomExponent censors the fair-coin geometric used for bit indices
	// and uniform exponents. Past this index every float64 bit is zero.
	maxGeomExponent = 1074 + 64
)

// ErrInvalidArgument is wrapped by every argument validation failure.
var ErrInvalidArgument = errors.New("invalid sampler argument")

// Sampler draws from a Source. A Sampler is safe for concurrent use: draws
// are serialized on an internal lock.
type Sampler struct {
	src       Source
	precision uint

	mu    sync.Mutex
	buf   uint64
	nbits uint
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithPrecision sets the working precision of continuous draws.
func WithPrecision(prec uint) Option {
	return func(s *Sampler) {
		s.precision = prec
	}
}

// New returns a Sampler drawing from src.
func New(src Source, opts ...Option) (*Sampler, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: entropy source is required", ErrInvalidArgument)
	}
	s := &Sampler{src: src, precision: DefaultPrecision}
	for _, opt := range opts {
		opt(s)
	}
	if s.precision < MinPrecision {
		return nil, fmt.Errorf("%w: precision %d is below the minimum of %d bits", ErrInvalidArgument, s.precision, MinPrecision)
	}
	return s, nil
}

// Fork returns a Sampler over src.Fork(label) with the same precision.
func (s *Sampler) Fork(label string) *Sampler {
	return &Sampler{src: s.src.Fork(label), precision: s.precision}
}

// Precision reports the working precision in bits.
func (s *Sampler) Precision() uint {
	return s.precision
}

// Bit returns one uniformly random bit.
func (s *Sampler) Bit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bitLocked() == 1
}

func (s *Sampler) bitLocked() uint64 {
	if s.nbits == 0 {
		s.buf = s.src.Uint64()
		s.nbits = 64
	}
	b := s.buf & 1
	s.buf >>= 1
	s.nbits--
	return b
}

// Bits returns k uniformly random bits in the low end of the result.
func (s *Sampler) Bits(k uint) uint64 {
	if k == 0 {
		return 0
	}
	if k > 64 {
		k = 64
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out uint64
	for i := uint(0); i < k; i++ {
		out |= s.bitLocked() << i
	}
	return out
}

// UniformInt draws an integer uniformly from [min, max] by rejection
// sampling over the smallest power-of-two range that covers it.
func (s *Sampler) UniformInt(min, max int64) (int64, error) {
	if min > max {
		return 0, fmt.Errorf("%w: min %d is greater than max %d", ErrInvalidArgument, min, max)
	}
	span := uint64(max) - uint64(min) + 1
	if span == 0 {
		// The whole int64 range.
		return int64(s.Bits(64)), nil
	}
	k := uint(bits.Len64(span - 1))
	for {
		v := s.Bits(k)
		if v < span {
			return min + int64(v), nil
		}
	}
}

// CensoredSpecificGeom returns the index of the first set bit in a stream
// of fair coin flips, i.e. a Geometric(0.5) draw on {1, 2, ...}, censored
// at maxGeomExponent.
func (s *Sampler) CensoredSpecificGeom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 1; i < maxGeomExponent; i++ {
		if s.bitLocked() == 1 {
			return i
		}
	}
	return maxGeomExponent
}

// BitProb draws a Bernoulli(p) bit exactly. A geometric index i selects the
// i-th bit of p's binary expansion; the comparison involves no division.
func (s *Sampler) BitProb(p float64) (bool, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return false, fmt.Errorf("%w: probability %v is outside [0, 1]", ErrInvalidArgument, p)
	}
	if p == 1 {
		// 0.111... in binary: every bit is set.
		return true, nil
	}
	i := s.CensoredSpecificGeom()
	return binaryDigit(p, i) == 1, nil
}

// binaryDigit returns the i-th digit after the binary point of p in [0, 1).
func binaryDigit(p float64, i int) uint64 {
	if p == 0 {
		return 0
	}
	frac, exp := math.Frexp(p)
	mant := uint64(math.Ldexp(frac, 53))
	// p = mant * 2^(exp-53), so floor(p * 2^i) = mant * 2^(exp-53+i).
	shift := exp - 53 + i
	switch {
	case shift > 0:
		return 0
	case shift == 0:
		return mant & 1
	case -shift >= 64:
		return 0
	default:
		return (mant >> uint(-shift)) & 1
	}
}

// GeometricCensored returns the number of Bernoulli(prob) trials up to and
// including the first success, capped at maxTrials. The cap bounds the
// worst-case number of draws; the probability mass above the cap must be
// accounted for in the calling mechanism's delta.
func (s *Sampler) GeometricCensored(prob float64, maxTrials int64) (int64, error) {
	if maxTrials < 1 {
		return 0, fmt.Errorf("%w: max_trials must be at least 1, got %d", ErrInvalidArgument, maxTrials)
	}
	if math.IsNaN(prob) || prob <= 0 || prob > 1 {
		return 0, fmt.Errorf("%w: geometric success probability %v is outside (0, 1]", ErrInvalidArgument, prob)
	}
	for i := int64(1); i < maxTrials; i++ {
		ok, err := s.BitProb(prob)
		if err != nil {
			return 0, err
		}
		if ok {
			return i, nil
		}
	}
	return maxTrials, nil
}

// Binomial draws the number of successes in n independent Bernoulli(p)
// trials.
func (s *Sampler) Binomial(n int64, p float64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: binomial trial count %d is negative", ErrInvalidArgument, n)
	}
	var k int64
	for i := int64(0); i < n; i++ {
		ok, err := s.BitProb(p)
		if err != nil {
			return 0, err
		}
		if ok {
			k++
		}
	}
	return k, nil
}

// WithoutReplacement returns k distinct indices drawn uniformly from [0, n)
// using a partial Fisher-Yates shuffle.
func (s *Sampler) WithoutReplacement(n, k int) ([]int, error) {
	if k < 0 || n < 0 || k > n {
		return nil, fmt.Errorf("%w: cannot draw %d of %d items without replacement", ErrInvalidArgument, k, n)
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j, err := s.UniformInt(int64(i), int64(n-1))
		if err != nil {
			return nil, err
		}
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k], nil
}
