package spectrum

import (
	"fmt"
	"io"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/himanishpuri/landmark/pkg/landmark"
)

// MinMagnitude is the magnitude floor applied before the dB conversion.
// A frame of digital silence maps to -240 dB, well below the default
// silence threshold.
const MinMagnitude = 1e-12

// Decibel converts a linear magnitude to dB, clamped at MinMagnitude.
func Decibel(mag float64) float64 {
	return 20 * math.Log10(math.Max(mag, MinMagnitude))
}

// STFT is a landmark.SpectrumSource over mono samples. Frames are Hann
// windowed and yield WindowSize/2 dB magnitudes. Trailing samples that do
// not fill a whole window are ignored.
type STFT struct {
	samples    []float64
	window     []float64
	windowSize int
	hopSize    int
	count      int
	next       int
	frame      []float64
}

func NewSTFT(samples []float64, windowSize, hopSize int) (*STFT, error) {
	if windowSize < 2 || windowSize%2 != 0 {
		return nil, fmt.Errorf("window size must be a positive even number, got %d", windowSize)
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive, got %d", hopSize)
	}

	return &STFT{
		samples:    samples,
		window:     window.Hann(windowSize),
		windowSize: windowSize,
		hopSize:    hopSize,
		count:      WindowCount(len(samples), windowSize, hopSize),
		frame:      make([]float64, windowSize),
	}, nil
}

// WindowCount is the number of whole windows of size windowSize, hopSize
// apart, in n samples.
func WindowCount(n, windowSize, hopSize int) int {
	if n < windowSize {
		return 0
	}
	return (n-windowSize)/hopSize + 1
}

func (s *STFT) WindowCount() int {
	return s.count
}

func (s *STFT) Bins() int {
	return s.windowSize / 2
}

func (s *STFT) HasNext() bool {
	return s.next < s.count
}

// ReadFrame writes the next frame's magnitudes into buf.
func (s *STFT) ReadFrame(buf []float64) error {
	if !s.HasNext() {
		return io.EOF
	}
	if len(buf) != s.Bins() {
		return fmt.Errorf("%w: buffer holds %d bins, frame has %d", landmark.ErrFrameSize, len(buf), s.Bins())
	}

	start := s.next * s.hopSize
	copy(s.frame, s.samples[start:start+s.windowSize])
	for i, w := range s.window {
		s.frame[i] *= w
	}

	coeffs := fft.FFTReal(s.frame)
	for i := range buf {
		buf[i] = Decibel(cmplx.Abs(coeffs[i]))
	}

	s.next++
	return nil
}

// Position is the index of the next frame ReadFrame returns.
func (s *STFT) Position() int {
	return s.next
}

// Reset rewinds the source to the first frame.
func (s *STFT) Reset() {
	s.next = 0
}

// FrameTime is the start time in seconds of frame index at sampleRate.
func FrameTime(index, hopSize, sampleRate int) float64 {
	return float64(index*hopSize) / float64(sampleRate)
}
