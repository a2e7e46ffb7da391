package fingerprint

import (
	"gonum.org/v1/gonum/stat"
)

// DefaultResidualBias is subtracted from every residual bin so that peak
// picking works on a comparable range across bands.
const DefaultResidualBias = 90.0

// Silent reports whether the mean magnitude of spectrum is below threshold.
// Silent frames must not reach the ResidualFilter.
func Silent(spectrum []float64, threshold float64) bool {
	if len(spectrum) == 0 {
		return true
	}
	return stat.Mean(spectrum, nil) < threshold
}

// ResidualFilter keeps an exponential running average per frequency bin and
// derives the residual of each frame against it.
type ResidualFilter struct {
	alpha       float64
	bias        float64
	average     []float64
	initialized bool
}

// NewResidualFilter returns a filter for spectra of the given number of bins.
func NewResidualFilter(bins int, alpha, bias float64) *ResidualFilter {
	return &ResidualFilter{
		alpha:   alpha,
		bias:    bias,
		average: make([]float64, bins),
	}
}

// Apply folds spectrum into the running average and writes
// spectrum - average - bias into residual.
// The first call seeds the average with spectrum unchanged.
func (f *ResidualFilter) Apply(spectrum, residual []float64) {
	avg := f.average[:len(spectrum)]
	residual = residual[:len(spectrum)]

	if !f.initialized {
		copy(avg, spectrum)
		f.initialized = true
	} else {
		for i, v := range spectrum {
			avg[i] += f.alpha * (v - avg[i])
		}
	}

	for i, v := range spectrum {
		residual[i] = v - avg[i] - f.bias
	}
}

// Average exposes the running average. Callers must not modify it.
func (f *ResidualFilter) Average() []float64 {
	return f.average
}

// Reset forgets the running average.
func (f *ResidualFilter) Reset() {
	clear(f.average)
	f.initialized = false
}
