package fingerprint

import (
	"cmp"
	"math"
	"slices"
)

// Peak is a local maximum of a residual spectrum.
type Peak struct {
	Index int     // frequency bin index
	Value float64 // residual amplitude, only used for selection
}

// FindLocalMaxima appends the local maxima of data to dst and returns it.
//
// A peak is a value followed by a strictly lower one. On a plateau the first
// bin of the plateau is reported. A run that is still rising when data ends
// is not a peak.
//
//	   ___
//	  /   \      /\_
//	 /     \_/\ /   \
//	/          v     \
func FindLocalMaxima(data []float64, dst []Peak) []Peak {
	lastVal := -math.MaxFloat64
	anchor := -1

	for i, val := range data {
		switch {
		case val > lastVal:
			anchor = i
		case val == lastVal:
			// plateau: anchor stays on its first bin
		default:
			if anchor > -1 {
				dst = append(dst, Peak{Index: anchor, Value: lastVal})
				anchor = -1
			}
		}
		lastVal = val
	}

	return dst
}

// SelectPeaks keeps the n tallest peaks and returns them ordered by bin index.
// Equal amplitudes keep their scan order. peaks is reordered in place.
func SelectPeaks(peaks []Peak, n int) []Peak {
	if n <= 0 || len(peaks) == 0 {
		return peaks[:0]
	}

	slices.SortStableFunc(peaks, func(a, b Peak) int {
		return cmp.Compare(b.Value, a.Value)
	})
	if len(peaks) > n {
		peaks = peaks[:n]
	}
	slices.SortFunc(peaks, func(a, b Peak) int {
		return cmp.Compare(a.Index, b.Index)
	})

	return peaks
}
