package sampler

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ALTree/bigfloat"
	"github.com/google/differential-privacy/go/v3/checks"
	"github.com/google/differential-privacy/go/v3/noise"
)

const (
	// geometricTailExponent is the value of epsilon*(max_trials-1)/sensitivity
	// beyond which the censored tail mass underflows float64 to zero.
	geometricTailExponent = 750
	// maxDefaultTrials caps the derived max_trials of the geometric mechanism.
	maxDefaultTrials = 1 << 24
)

// GumbelBig draws a standard Gumbel variate -ln(-ln(U)).
func (s *Sampler) GumbelBig() *big.Float {
	inner := bigfloat.Log(s.UniformBig())
	inner.Neg(inner)
	outer := bigfloat.Log(inner)
	return outer.Neg(outer)
}

// ExponentialMechanism selects an index with probability proportional to
// exp(epsilon * utility / (2 * sensitivity)) using the Gumbel-max trick, so
// no normalization over the candidate set is ever computed.
func (s *Sampler) ExponentialMechanism(epsilon, sensitivity float64, utilities []float64) (int, error) {
	if err := checks.CheckEpsilonVeryStrict(epsilon); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := checks.CheckLInfSensitivity(sensitivity); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if len(utilities) == 0 {
		return 0, fmt.Errorf("%w: candidate set is empty", ErrInvalidArgument)
	}

	factor := s.newFloat().SetFloat64(epsilon / (2 * sensitivity))
	best := -1
	var bestScore *big.Float
	for i, u := range utilities {
		if math.IsNaN(u) || math.IsInf(u, 1) {
			return 0, fmt.Errorf("%w: utility %d is %v", ErrInvalidArgument, i, u)
		}
		if math.IsInf(u, -1) {
			continue
		}
		score := s.newFloat().Mul(factor, s.newFloat().SetFloat64(u))
		score.Add(score, s.GumbelBig())
		if bestScore == nil || score.Cmp(bestScore) > 0 {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: every candidate has utility -Inf", ErrInvalidArgument)
	}
	return best, nil
}

// LaplaceMechanism adds Laplace noise of scale l1Sensitivity/epsilon.
// A zero sensitivity releases the value unchanged.
func (s *Sampler) LaplaceMechanism(value, l1Sensitivity, epsilon float64) (float64, error) {
	if err := checks.CheckEpsilonVeryStrict(epsilon); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if l1Sensitivity == 0 {
		return value, nil
	}
	if err := checks.CheckLInfSensitivity(l1Sensitivity); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.Laplace(value, l1Sensitivity/epsilon)
}

// GaussianSigma returns the smallest noise scale that makes the Gaussian
// mechanism (epsilon, delta)-private under the analytic calibration of Balle
// and Wang. Unlike the classic bound it holds for any epsilon > 0.
func GaussianSigma(l2Sensitivity, epsilon, delta float64) float64 {
	return noise.SigmaForGaussian(1, l2Sensitivity, epsilon, delta)
}

// GaussianMechanism adds Gaussian noise calibrated to (epsilon, delta).
// A zero sensitivity releases the value unchanged.
func (s *Sampler) GaussianMechanism(value, l2Sensitivity, epsilon, delta float64) (float64, error) {
	if err := checks.CheckEpsilonVeryStrict(epsilon); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := checks.CheckDeltaStrict(delta); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if l2Sensitivity == 0 {
		return value, nil
	}
	if err := checks.CheckLInfSensitivity(l2Sensitivity); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.Gaussian(value, GaussianSigma(l2Sensitivity, epsilon, delta))
}

// GeometricSuccessProbability returns 1 - exp(-epsilon/sensitivity), the
// per-trial success probability of the geometric mechanism.
func GeometricSuccessProbability(l1Sensitivity, epsilon float64) float64 {
	return -math.Expm1(-epsilon / l1Sensitivity)
}

// DefaultMaxTrials derives a max_trials whose censored tail mass underflows
// to zero, capped to keep the worst-case latency bounded.
func DefaultMaxTrials(l1Sensitivity, epsilon float64) int64 {
	if l1Sensitivity <= 0 || epsilon <= 0 {
		return 1
	}
	t := math.Ceil(geometricTailExponent*l1Sensitivity/epsilon) + 1
	if t > maxDefaultTrials {
		return maxDefaultTrials
	}
	return int64(t)
}

// GeometricCensorMass bounds the mass the censored two-sided geometric piles
// on its cap. Noise is supported on |k| <= maxTrials-1, so the bound is
// 2 * (1-p)^(maxTrials-1), capped at 1. A mass of 1 means the output is
// not protected at all.
func GeometricCensorMass(l1Sensitivity, epsilon float64, maxTrials int64) float64 {
	if l1Sensitivity == 0 {
		return 0
	}
	if maxTrials < 1 {
		return 1
	}
	return math.Min(1, 2*math.Exp(-epsilon*float64(maxTrials-1)/l1Sensitivity))
}

// GeometricMechanism adds two-sided geometric noise to an integer value and
// clamps the result into [lower, upper] when bounds are given.
func (s *Sampler) GeometricMechanism(value int64, l1Sensitivity, epsilon float64, maxTrials int64, lower, upper *int64) (int64, error) {
	if err := checks.CheckEpsilonVeryStrict(epsilon); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if lower != nil && upper != nil && *lower > *upper {
		return 0, fmt.Errorf("%w: lower %d is greater than upper %d", ErrInvalidArgument, *lower, *upper)
	}
	out := value
	if l1Sensitivity != 0 {
		if err := checks.CheckLInfSensitivity(l1Sensitivity); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		k, err := s.twoSidedGeometric(GeometricSuccessProbability(l1Sensitivity, epsilon), maxTrials)
		if err != nil {
			return 0, err
		}
		out += k
	}
	if lower != nil && out < *lower {
		out = *lower
	}
	if upper != nil && out > *upper {
		out = *upper
	}
	return out, nil
}

// twoSidedGeometric mirrors a geometric draw at zero. A zero with negative
// sign is redrawn so zero is not counted twice.
func (s *Sampler) twoSidedGeometric(prob float64, maxTrials int64) (int64, error) {
	for {
		g, err := s.GeometricCensored(prob, maxTrials)
		if err != nil {
			return 0, err
		}
		sample := g - 1
		negative := s.Bit()
		if sample == 0 && negative {
			continue
		}
		if negative {
			return -sample, nil
		}
		return sample, nil
	}
}
