package landmark

import (
	"errors"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	if cfg.Bins() != 256 || cfg.HistoryLength() != 33 {
		t.Errorf("bins/history = %d/%d, want 256/33", cfg.Bins(), cfg.HistoryLength())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		ok   bool
	}{
		{"largest window", WithWindowSize(512), true},
		{"window too large", WithWindowSize(514), false},
		{"odd window", WithWindowSize(511), false},
		{"zero hop", WithHopSize(0), false},
		{"zero rate", WithSampleRate(0), false},
		{"alpha zero", WithSmoothingCoefficient(0), false},
		{"alpha one", WithSmoothingCoefficient(1), false},
		{"no peaks", WithPeaksPerFrame(0), false},
		{"no fanout", WithPeakFanout(0), false},
		{"zero distance", WithTargetZone(0, 30, 63), true},
		{"negative distance", WithTargetZone(-1, 30, 63), false},
		{"zero length", WithTargetZone(2, 0, 63), false},
		{"negative width", WithTargetZone(2, 30, -1), false},
		{"zero width", WithTargetZone(2, 30, 0), true},
		{"longest zone", WithTargetZone(5, 250, 63), true},
		{"zone too long", WithTargetZone(5, 251, 63), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.opt(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
