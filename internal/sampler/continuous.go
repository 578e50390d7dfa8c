package sampler

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ALTree/bigfloat"
)

// maxRejections bounds rejection loops whose acceptance region may be tiny.
const maxRejections = 1 << 20

func (s *Sampler) newFloat() *big.Float {
	return new(big.Float).SetPrec(s.precision).SetMode(big.ToNearestEven)
}

// UniformBig draws from [0, 1) at the working precision. The exponent is a
// censored Geometric(0.5) draw and the mantissa is precision-1 fresh bits,
// so every representable value is reached with its exact probability mass.
func (s *Sampler) UniformBig() *big.Float {
	k := s.CensoredSpecificGeom()

	mant := new(big.Int).SetBit(new(big.Int), int(s.precision)-1, 1)
	for i := 0; i < int(s.precision)-1; i += 64 {
		n := uint(int(s.precision) - 1 - i)
		if n > 64 {
			n = 64
		}
		chunk := new(big.Int).SetUint64(s.Bits(n))
		mant.Or(mant, chunk.Lsh(chunk, uint(i)))
	}

	// mant is in [2^(p-1), 2^p), so mant * 2^(1-p-k) is in [2^-k, 2^(1-k)).
	u := s.newFloat().SetInt(mant)
	return u.SetMantExp(u, 1-int(s.precision)-k)
}

// UniformBigRange draws from [min, max) at the working precision.
func (s *Sampler) UniformBigRange(min, max float64) (*big.Float, error) {
	if err := checkFinite("min", min); err != nil {
		return nil, err
	}
	if err := checkFinite("max", max); err != nil {
		return nil, err
	}
	if !(min < max) {
		return nil, fmt.Errorf("%w: min %v must be less than max %v", ErrInvalidArgument, min, max)
	}
	width := s.newFloat().Sub(s.newFloat().SetFloat64(max), s.newFloat().SetFloat64(min))
	out := s.newFloat().Mul(width, s.UniformBig())
	return out.Add(out, s.newFloat().SetFloat64(min)), nil
}

// Uniform draws from [min, max).
func (s *Sampler) Uniform(min, max float64) (float64, error) {
	v, err := s.UniformBigRange(min, max)
	if err != nil {
		return 0, err
	}
	f, _ := v.Float64()
	if f >= max {
		// Rounding to float64 can land on the open end point.
		f = math.Nextafter(max, math.Inf(-1))
	}
	return f, nil
}

// LaplaceBig draws from Laplace(shift, scale) by inversion of the
// exponential CDF on a high-precision uniform and a fair sign bit.
func (s *Sampler) LaplaceBig(shift, scale float64) (*big.Float, error) {
	if err := checkFinite("shift", shift); err != nil {
		return nil, err
	}
	if err := checkScale(scale); err != nil {
		return nil, err
	}
	// -ln(U) ~ Exp(1) for U in (0, 1); UniformBig never returns zero.
	e := bigfloat.Log(s.UniformBig())
	e.Mul(e, s.newFloat().SetFloat64(scale))
	if s.Bit() {
		e.Neg(e)
	}
	return s.newFloat().Sub(s.newFloat().SetFloat64(shift), e), nil
}

// Laplace draws from Laplace(shift, scale).
func (s *Sampler) Laplace(shift, scale float64) (float64, error) {
	v, err := s.LaplaceBig(shift, scale)
	if err != nil {
		return 0, err
	}
	f, _ := v.Float64()
	return f, nil
}

// GaussianBig draws from Normal(shift, scale^2) with the Marsaglia polar
// method evaluated at the working precision.
func (s *Sampler) GaussianBig(shift, scale float64) (*big.Float, error) {
	if err := checkFinite("shift", shift); err != nil {
		return nil, err
	}
	if err := checkScale(scale); err != nil {
		return nil, err
	}
	one := s.newFloat().SetInt64(1)
	two := s.newFloat().SetInt64(2)
	for i := 0; i < maxRejections; i++ {
		u := s.newFloat().Mul(two, s.UniformBig())
		u.Sub(u, one)
		v := s.newFloat().Mul(two, s.UniformBig())
		v.Sub(v, one)

		r := s.newFloat().Mul(u, u)
		r.Add(r, s.newFloat().Mul(v, v))
		if r.Sign() == 0 || r.Cmp(one) >= 0 {
			continue
		}

		// z = u * sqrt(-2 ln(r) / r)
		f := bigfloat.Log(r)
		f.Mul(f, s.newFloat().SetInt64(-2))
		f.Quo(f, r)
		z := s.newFloat().Mul(u, s.newFloat().Sqrt(f))

		z.Mul(z, s.newFloat().SetFloat64(scale))
		return z.Add(z, s.newFloat().SetFloat64(shift)), nil
	}
	return nil, fmt.Errorf("gaussian polar sampling did not accept within %d attempts", maxRejections)
}

// Gaussian draws from Normal(shift, scale^2).
func (s *Sampler) Gaussian(shift, scale float64) (float64, error) {
	v, err := s.GaussianBig(shift, scale)
	if err != nil {
		return 0, err
	}
	f, _ := v.Float64()
	return f, nil
}

// GaussianTruncated draws from Normal(shift, scale^2) conditioned on
// [min, max] by rejection. Values are never clamped into the interval.
func (s *Sampler) GaussianTruncated(shift, scale, min, max float64) (float64, error) {
	if err := checkFinite("min", min); err != nil {
		return 0, err
	}
	if err := checkFinite("max", max); err != nil {
		return 0, err
	}
	if !(min < max) {
		return 0, fmt.Errorf("%w: min %v must be less than max %v", ErrInvalidArgument, min, max)
	}
	for i := 0; i < maxRejections; i++ {
		v, err := s.Gaussian(shift, scale)
		if err != nil {
			return 0, err
		}
		if v >= min && v <= max {
			return v, nil
		}
	}
	return 0, fmt.Errorf("truncated gaussian on [%v, %v] did not accept within %d attempts", min, max, maxRejections)
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidArgument, name, v)
	}
	return nil
}

func checkScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return fmt.Errorf("%w: scale must be finite and positive, got %v", ErrInvalidArgument, scale)
	}
	return nil
}
