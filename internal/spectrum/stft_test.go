package spectrum

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/himanishpuri/landmark/pkg/landmark"
)

func sine(n int, freq, rate, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func TestWindowCount(t *testing.T) {
	tests := []struct {
		n, window, hop, want int
	}{
		{0, 512, 256, 0},
		{511, 512, 256, 0},
		{512, 512, 256, 1},
		{767, 512, 256, 1},
		{768, 512, 256, 2},
		{22050, 512, 256, 85},
	}
	for _, tt := range tests {
		if got := WindowCount(tt.n, tt.window, tt.hop); got != tt.want {
			t.Errorf("WindowCount(%d, %d, %d) = %d, want %d", tt.n, tt.window, tt.hop, got, tt.want)
		}
	}
}

func TestSTFTToneBin(t *testing.T) {
	const rate = 11025.0
	// bin 40 of a 512 point transform
	freq := 40 * rate / 512
	s, err := NewSTFT(sine(4096, freq, rate, 0.5), 512, 256)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]float64, s.Bins())
	frames := 0
	for s.HasNext() {
		if err := s.ReadFrame(buf); err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		frames++

		best := 0
		for i, v := range buf {
			if v > buf[best] {
				best = i
			}
		}
		if best != 40 {
			t.Errorf("frame %d peaks at bin %d, want 40", frames-1, best)
		}
	}
	if frames != s.WindowCount() {
		t.Errorf("read %d frames, WindowCount %d", frames, s.WindowCount())
	}

	if err := s.ReadFrame(buf); !errors.Is(err, io.EOF) {
		t.Errorf("read past the end: err = %v", err)
	}

	s.Reset()
	if s.Position() != 0 || !s.HasNext() {
		t.Error("Reset did not rewind")
	}
}

func TestSTFTSilenceFloor(t *testing.T) {
	s, err := NewSTFT(make([]float64, 1024), 512, 256)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]float64, 256)
	if err := s.ReadFrame(buf); err != nil {
		t.Fatal(err)
	}
	for i, v := range buf {
		if v != Decibel(0) {
			t.Fatalf("bin %d = %v, want floor %v", i, v, Decibel(0))
		}
	}
	if Decibel(0) >= landmark.DefaultConfig().MinAmplitude {
		t.Errorf("silence floor %v is not below the default threshold", Decibel(0))
	}
}

func TestSTFTFrameSize(t *testing.T) {
	s, err := NewSTFT(make([]float64, 1024), 512, 256)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.ReadFrame(make([]float64, 128)); !errors.Is(err, landmark.ErrFrameSize) {
		t.Errorf("err = %v, want ErrFrameSize", err)
	}
}

func TestNewSTFTRejectsBadSizes(t *testing.T) {
	if _, err := NewSTFT(nil, 511, 256); err == nil {
		t.Error("odd window accepted")
	}
	if _, err := NewSTFT(nil, 512, 0); err == nil {
		t.Error("zero hop accepted")
	}
}

func TestFrameTime(t *testing.T) {
	tests := []struct {
		index, hop, rate int
		want             float64
	}{
		{0, 256, 11025, 0},
		{1, 256, 11025, 256.0 / 11025},
		{441, 256, 11025, 10.24},
		{100, 512, 44100, 51200.0 / 44100},
	}
	for _, tt := range tests {
		if got := FrameTime(tt.index, tt.hop, tt.rate); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("FrameTime(%d, %d, %d) = %v, want %v", tt.index, tt.hop, tt.rate, got, tt.want)
		}
	}
}
