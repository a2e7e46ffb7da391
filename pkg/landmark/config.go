package landmark

import (
	"fmt"

	"github.com/himanishpuri/landmark/pkg/landmark/fingerprint"
)

// Config holds the fingerprint generator parameters. It is immutable once a
// Generator has been built from it.
type Config struct {
	SampleRate int // Hz the source audio is resampled to
	WindowSize int // STFT window in samples, yields WindowSize/2 bins
	HopSize    int // STFT hop in samples

	MinAmplitude         float64 // frames with a lower mean (dB) are dropped
	SmoothingCoefficient float64 // alpha of the temporal running average
	ResidualBias         float64 // subtracted from every residual bin

	PeaksPerFrame int // peaks kept per frame
	PeakFanout    int // pairs per anchor peak

	TargetZoneDistance int // first frame distance of the target zone, 0 pairs within the anchor frame
	TargetZoneLength   int // number of frames in the target zone
	TargetZoneWidth    int // frequency width of the target zone in bins

	Logger Logger
}

type Option func(*Config)

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithWindowSize(size int) Option {
	return func(c *Config) {
		c.WindowSize = size
	}
}

func WithHopSize(size int) Option {
	return func(c *Config) {
		c.HopSize = size
	}
}

func WithMinAmplitude(db float64) Option {
	return func(c *Config) {
		c.MinAmplitude = db
	}
}

func WithSmoothingCoefficient(alpha float64) Option {
	return func(c *Config) {
		c.SmoothingCoefficient = alpha
	}
}

func WithResidualBias(bias float64) Option {
	return func(c *Config) {
		c.ResidualBias = bias
	}
}

func WithPeaksPerFrame(n int) Option {
	return func(c *Config) {
		c.PeaksPerFrame = n
	}
}

func WithPeakFanout(n int) Option {
	return func(c *Config) {
		c.PeakFanout = n
	}
}

// WithTargetZone sets the target zone distance and length in frames and its
// width in frequency bins.
func WithTargetZone(distance, length, width int) Option {
	return func(c *Config) {
		c.TargetZoneDistance = distance
		c.TargetZoneLength = length
		c.TargetZoneWidth = width
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// DefaultConfig returns the parameters of the reference landmark setup:
// 11025 Hz, 512/256 STFT, 3 peaks per frame, fan-out 5 and a 30 frame
// target zone starting 2 frames after the anchor.
func DefaultConfig() Config {
	return Config{
		SampleRate:           11025,
		WindowSize:           512,
		HopSize:              256,
		MinAmplitude:         -200,
		SmoothingCoefficient: 0.05,
		ResidualBias:         fingerprint.DefaultResidualBias,
		PeaksPerFrame:        3,
		PeakFanout:           5,
		TargetZoneDistance:   2,
		TargetZoneLength:     30,
		TargetZoneWidth:      63,
	}
}

// Bins is the number of frequency bins per spectrum frame.
func (c Config) Bins() int {
	return c.WindowSize / 2
}

// HistoryLength is the number of frames the peak history spans.
func (c Config) HistoryLength() int {
	return 1 + c.TargetZoneDistance + c.TargetZoneLength
}

// Validate rejects configurations the pipeline cannot run or whose bin
// indices and distances would not fit the one byte fields of a hash.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	case c.WindowSize < 2 || c.WindowSize%2 != 0:
		return fmt.Errorf("%w: window size must be a positive even number, got %d", ErrInvalidConfig, c.WindowSize)
	case c.HopSize <= 0:
		return fmt.Errorf("%w: hop size must be positive, got %d", ErrInvalidConfig, c.HopSize)
	case !(c.SmoothingCoefficient > 0 && c.SmoothingCoefficient < 1):
		return fmt.Errorf("%w: smoothing coefficient must be in (0,1), got %g", ErrInvalidConfig, c.SmoothingCoefficient)
	case c.PeaksPerFrame < 1:
		return fmt.Errorf("%w: peaks per frame must be at least 1, got %d", ErrInvalidConfig, c.PeaksPerFrame)
	case c.PeakFanout < 1:
		return fmt.Errorf("%w: peak fan-out must be at least 1, got %d", ErrInvalidConfig, c.PeakFanout)
	case c.TargetZoneDistance < 0:
		return fmt.Errorf("%w: target zone distance must not be negative, got %d", ErrInvalidConfig, c.TargetZoneDistance)
	case c.TargetZoneLength < 1:
		return fmt.Errorf("%w: target zone length must be at least 1, got %d", ErrInvalidConfig, c.TargetZoneLength)
	case c.TargetZoneWidth < 0:
		return fmt.Errorf("%w: target zone width must not be negative, got %d", ErrInvalidConfig, c.TargetZoneWidth)
	}

	if maxBin := c.Bins() - 1; maxBin > fingerprint.FieldMask {
		return fmt.Errorf("%w: window size %d yields bin index %d, hashes hold at most %d (window size <= %d)",
			ErrInvalidConfig, c.WindowSize, maxBin, fingerprint.FieldMask, 2*(fingerprint.FieldMask+1))
	}
	if maxDistance := c.HistoryLength() - 1; maxDistance > fingerprint.FieldMask {
		return fmt.Errorf("%w: target zone reaches distance %d, hashes hold at most %d",
			ErrInvalidConfig, maxDistance, fingerprint.FieldMask)
	}

	return nil
}
