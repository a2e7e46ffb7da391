package spectrum

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/himanishpuri/landmark/pkg/landmark"
)

type quietLogger struct{}

func (quietLogger) Infof(string, ...any)  {}
func (quietLogger) Warnf(string, ...any)  {}
func (quietLogger) Errorf(string, ...any) {}
func (quietLogger) Debugf(string, ...any) {}

type runRecorder struct {
	landmark.Collector
	retained []int
}

func (r *runRecorder) Frame(ev landmark.FrameEvent) {
	r.retained = append(r.retained, ev.FrameIndex)
}

// burstSignal is two seconds at 11025 Hz: a noisy two tone burst, digital
// silence from 0.6 s to 1.4 s, then a second burst.
func burstSignal() []float64 {
	const rate = 11025
	rng := rand.New(rand.NewSource(42))
	out := make([]float64, 2*rate)
	for i := range out {
		t := float64(i) / rate
		if t >= 0.6 && t < 1.4 {
			continue
		}
		out[i] = 0.4*math.Sin(2*math.Pi*1000*t) +
			0.2*math.Sin(2*math.Pi*2500*t) +
			0.05*(rng.Float64()*2-1)
	}
	return out
}

func TestSilenceGapDistancesCountRetainedFrames(t *testing.T) {
	g, err := landmark.NewGenerator(landmark.WithLogger(quietLogger{}))
	if err != nil {
		t.Fatal(err)
	}
	cfg := g.Config()

	src, err := NewSTFT(burstSignal(), cfg.WindowSize, cfg.HopSize)
	if err != nil {
		t.Fatal(err)
	}

	var rec runRecorder
	sum, err := g.Generate(context.Background(), "bursts", src, &rec)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// windows starting at frames 26..58 lie entirely in the silence
	if sum.TotalFrames != 85 || sum.DroppedFrames != 33 || sum.RetainedFrames != 52 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if rec.retained[25] != 25 || rec.retained[26] != 59 {
		t.Fatalf("retained frames around the gap = %v", rec.retained[24:28])
	}

	position := make(map[int]int, len(rec.retained))
	for pos, idx := range rec.retained {
		position[idx] = pos
	}

	maxDistance := cfg.HistoryLength() - 1
	spanning := 0
	for _, b := range rec.Batches {
		pos, ok := position[b.AnchorIndex]
		if !ok {
			t.Fatalf("batch anchored at dropped frame %d", b.AnchorIndex)
		}
		for _, h := range b.Hashes {
			_, _, distance := h.Fields()
			if distance < cfg.TargetZoneDistance || distance > maxDistance {
				t.Fatalf("hash %s has distance %d outside the target zone", h, distance)
			}
			target := rec.retained[pos+distance]
			if target-b.AnchorIndex > maxDistance {
				spanning++
			}
		}
	}

	// every such pair is further apart in real time than the target zone
	// allows, yet it was generated because distances count retained frames
	if spanning == 0 {
		t.Error("no hashes span the silence gap")
	}
}
