package resize

import (
	"fmt"
	"math"

	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/sampler"
	"github.com/vk/dpgraph/internal/value"
)

// Distribution names an imputation distribution.
type Distribution string

const (
	Uniform  Distribution = "uniform"
	Gaussian Distribution = "gaussian"
)

// Imputation describes how synthetic values are drawn, per column. Gaussian
// draws are truncated to [Lower, Upper].
type Imputation struct {
	Distribution Distribution
	Lower        []float64
	Upper        []float64
	Shift        []float64
	Scale        []float64
}

// Validate checks the imputation parameters against a table width.
func (im Imputation) Validate(cols int) error {
	if len(im.Lower) != cols || len(im.Upper) != cols {
		return fmt.Errorf("imputation bounds must have %d entries, got lower=%d upper=%d", cols, len(im.Lower), len(im.Upper))
	}
	for i := range im.Lower {
		if !(im.Lower[i] < im.Upper[i]) {
			return fmt.Errorf("column %d: lower %v must be less than upper %v", i, im.Lower[i], im.Upper[i])
		}
	}
	switch im.Distribution {
	case Uniform:
	case Gaussian:
		if len(im.Shift) != cols || len(im.Scale) != cols {
			return fmt.Errorf("gaussian imputation needs %d shift and scale entries, got shift=%d scale=%d", cols, len(im.Shift), len(im.Scale))
		}
	default:
		return fmt.Errorf("unknown imputation distribution %q", im.Distribution)
	}
	return nil
}

// Draw returns one synthetic value for column col.
func (im Imputation) Draw(s *sampler.Sampler, col int) (float64, error) {
	if im.Distribution == Gaussian {
		return s.GaussianTruncated(im.Shift[col], im.Scale[col], im.Lower[col], im.Upper[col])
	}
	return s.Uniform(im.Lower[col], im.Upper[col])
}

// Fill replaces every NaN in t with a synthetic draw.
func (im Imputation) Fill(s *sampler.Sampler, t *value.Table) (*value.Table, error) {
	var drawErr error
	out := t.Map(func(col int, v float64) float64 {
		if !math.IsNaN(v) || drawErr != nil {
			return v
		}
		x, err := im.Draw(s, col)
		if err != nil {
			drawErr = err
		}
		return x
	})
	return out, drawErr
}

// Apply resizes t to exactly n rows. It draws m records from a c-fold copy
// of t according to rule, keeps min(m, n) of them chosen without
// replacement and imputes the remaining max(0, n - m) rows. Missing values
// in kept records are imputed as well, so the output has no nulls.
func Apply(s *sampler.Sampler, t *value.Table, plan Plan, n int64, rule privacy.NeighboringRule, im Imputation) (*value.Table, error) {
	if n < 0 {
		return nil, fmt.Errorf("number of rows must be non-negative, got %d", n)
	}
	if err := im.Validate(t.NumCols()); err != nil {
		return nil, err
	}

	trueRows := int64(t.NumRows())
	total := int64(plan.C) * trueRows
	m, err := rule.SubsampleCount(s, total, plan.S)
	if err != nil {
		return nil, fmt.Errorf("drawing subsample size: %w", err)
	}
	keep := min(m, n)

	picked, err := s.WithoutReplacement(int(total), int(keep))
	if err != nil {
		return nil, fmt.Errorf("subsampling %d of %d records: %w", keep, total, err)
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = -1
	}
	for i, idx := range picked {
		rows[i] = idx % int(trueRows)
	}
	out, err := im.Fill(s, t.Select(rows))
	if err != nil {
		return nil, fmt.Errorf("imputing records: %w", err)
	}
	return out, nil
}
