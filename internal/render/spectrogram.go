package render

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/eligwz/spectrogram"
	"gonum.org/v1/gonum/floats"

	"github.com/himanishpuri/landmark/pkg/landmark"
)

// Palette used for the rendered image, as hex strings.
type Palette struct {
	Background string // frames dropped as silent
	Low        string
	High       string
	Peak       string
}

var DefaultPalette = Palette{
	Background: "000000",
	Low:        "000040",
	High:       "ffd040",
	Peak:       "ff0000",
}

type column struct {
	values []float64
	peaks  []int
}

// Spectrogram collects the frame events of a fingerprint run and draws them
// as an image: one column per frame index, low frequencies at the bottom and
// selected peaks marked. It is a landmark.Sink and landmark.FrameSink.
type Spectrogram struct {
	Palette     Palette
	UseResidual bool // draw the residual instead of the spectrum

	totalFrames int
	bins        int
	columns     map[int]column
	hashes      int
}

func NewSpectrogram() *Spectrogram {
	return &Spectrogram{
		Palette: DefaultPalette,
		columns: make(map[int]column),
	}
}

func (s *Spectrogram) Frame(ev landmark.FrameEvent) {
	src := ev.Spectrum
	if s.UseResidual {
		src = ev.Residual
	}

	// peak bins are zeroed in both copies
	var peaks []int
	for i, v := range ev.Residual {
		if v == 0 && ev.Spectrum[i] == 0 {
			peaks = append(peaks, i)
		}
	}

	values := make([]float64, len(src))
	copy(values, src)
	for _, p := range peaks {
		values[p] = src[neighbour(p, len(src))]
	}

	s.columns[ev.FrameIndex] = column{values: values, peaks: peaks}
	s.totalFrames = max(s.totalFrames, ev.TotalFrames, ev.FrameIndex+1)
	s.bins = max(s.bins, len(src))
}

func neighbour(i, n int) int {
	if i > 0 {
		return i - 1
	}
	if n > 1 {
		return 1
	}
	return 0
}

func (s *Spectrogram) Hashes(b landmark.HashBatch) error {
	s.hashes += len(b.Hashes)
	return nil
}

// HashCount is the number of hashes seen by the sink.
func (s *Spectrogram) HashCount() int {
	return s.hashes
}

// Frames is the number of retained frames collected.
func (s *Spectrogram) Frames() int {
	return len(s.columns)
}

// valueRange is the dB range over all collected frames.
func (s *Spectrogram) valueRange() (lo, hi float64) {
	first := true
	for _, c := range s.columns {
		if len(c.values) == 0 {
			continue
		}
		cl, ch := floats.Min(c.values), floats.Max(c.values)
		if first {
			lo, hi, first = cl, ch, false
			continue
		}
		lo, hi = min(lo, cl), max(hi, ch)
	}
	return lo, hi
}

func rgba(hex string) color.RGBA {
	r, g, b, a := spectrogram.ParseColor(hex).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + t*(float64(y)-float64(x)) + 0.5)
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

func (s *Spectrogram) bounds() (image.Rectangle, error) {
	if len(s.columns) == 0 || s.bins == 0 {
		return image.Rectangle{}, errors.New("no frames to render")
	}
	return image.Rect(0, 0, s.totalFrames, s.bins), nil
}

// Image draws the collected frames.
func (s *Spectrogram) Image() (draw.Image, error) {
	r, err := s.bounds()
	if err != nil {
		return nil, err
	}
	img := spectrogram.NewImage128(r)
	s.paint(img)
	return img, nil
}

// SavePNG draws the collected frames to a PNG file, creating its directory.
func (s *Spectrogram) SavePNG(path string) error {
	r, err := s.bounds()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	img := spectrogram.NewImage128(r)
	s.paint(img)
	return spectrogram.SavePng(img, path)
}

func (s *Spectrogram) paint(img draw.Image) {
	bg := image.NewUniform(spectrogram.ParseColor(s.Palette.Background))
	draw.Draw(img, img.Bounds(), bg, image.Point{}, draw.Src)

	low, high, peak := rgba(s.Palette.Low), rgba(s.Palette.High), rgba(s.Palette.Peak)
	lo, hi := s.valueRange()
	span := hi - lo

	for x, c := range s.columns {
		for bin, v := range c.values {
			t := 0.0
			if span > 0 {
				t = (v - lo) / span
			}
			img.Set(x, s.bins-1-bin, lerp(low, high, t))
		}
		for _, bin := range c.peaks {
			img.Set(x, s.bins-1-bin, peak)
		}
	}
}
