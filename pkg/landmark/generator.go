package landmark

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/himanishpuri/landmark/pkg/landmark/fingerprint"
	"github.com/himanishpuri/landmark/pkg/logger"
)

// Generator turns a stream of spectrum frames into landmark hashes.
// It only holds configuration and is safe for concurrent use; every run
// builds its own pipeline state.
type Generator struct {
	cfg Config
	log Logger
}

func NewGenerator(opts ...Option) (*Generator, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

// New builds a Generator from a complete configuration.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	return &Generator{cfg: cfg, log: cfg.Logger}, nil
}

func (g *Generator) Config() Config {
	return g.cfg
}

// binCounter is implemented by sources that know their frame size up front.
type binCounter interface {
	Bins() int
}

// Generate runs src to exhaustion, delivering hash batches to sink in anchor
// frame order. The returned Summary is valid even when an error stops the run
// early.
func (g *Generator) Generate(ctx context.Context, trackRef string, src SpectrumSource, sink Sink) (Summary, error) {
	if bc, ok := src.(binCounter); ok && bc.Bins() != g.cfg.Bins() {
		return Summary{}, fmt.Errorf("%w: source yields %d bins, window size %d needs %d",
			ErrFrameSize, bc.Bins(), g.cfg.WindowSize, g.cfg.Bins())
	}

	p := g.newPipeline(trackRef, src.WindowCount(), sink)
	g.log.Debugf("fingerprinting %q: %d frames expected", trackRef, p.summary.TotalFrames)

	for index := 0; src.HasNext(); index++ {
		if err := ctx.Err(); err != nil {
			return p.summary, err
		}
		if err := src.ReadFrame(p.spectrum); err != nil {
			return p.summary, fmt.Errorf("reading frame %d: %w", index, err)
		}
		if err := p.process(index); err != nil {
			return p.summary, err
		}
	}

	if err := p.flush(); err != nil {
		return p.summary, err
	}

	s := p.summary
	g.log.Debugf("fingerprinted %q: %d/%d frames retained, %d batches, %d hashes",
		trackRef, s.RetainedFrames, s.TotalFrames, s.Batches, s.Hashes)
	if s.RetainedFrames == 0 && s.TotalFrames > 0 {
		g.log.Warnf("%q: every frame is below %.1f dB, no hashes generated", trackRef, g.cfg.MinAmplitude)
	}

	return s, nil
}

var errStopped = errors.New("batch iteration stopped")

// Batches exposes a run as a finite sequence. A non-nil error is always the
// last element. Breaking out of the loop stops reading from src.
func (g *Generator) Batches(ctx context.Context, trackRef string, src SpectrumSource) iter.Seq2[HashBatch, error] {
	return func(yield func(HashBatch, error) bool) {
		sink := SinkFunc(func(b HashBatch) error {
			if !yield(b, nil) {
				return errStopped
			}
			return nil
		})
		_, err := g.Generate(ctx, trackRef, src, sink)
		if err != nil && !errors.Is(err, errStopped) {
			yield(HashBatch{}, err)
		}
	}
}

// pipeline is the mutable state of one run.
type pipeline struct {
	cfg      Config
	trackRef string
	sink     Sink
	frames   FrameSink

	filter  *fingerprint.ResidualFilter
	history *fingerprint.PeakHistory
	finder  fingerprint.PairFinder

	spectrum []float64
	residual []float64
	maxima   []fingerprint.Peak
	pairs    []fingerprint.PeakPair

	// diagnostic copies handed to FrameSink
	diagSpectrum []float64
	diagResidual []float64

	summary Summary
}

func (g *Generator) newPipeline(trackRef string, total int, sink Sink) *pipeline {
	cfg := g.cfg
	bins := cfg.Bins()

	p := &pipeline{
		cfg:      cfg,
		trackRef: trackRef,
		sink:     sink,
		filter:   fingerprint.NewResidualFilter(bins, cfg.SmoothingCoefficient, cfg.ResidualBias),
		history:  fingerprint.NewPeakHistory(cfg.HistoryLength(), cfg.PeaksPerFrame),
		finder: fingerprint.PairFinder{
			Distance: cfg.TargetZoneDistance,
			Width:    cfg.TargetZoneWidth,
			Fanout:   cfg.PeakFanout,
		},
		spectrum: make([]float64, bins),
		residual: make([]float64, bins),
		maxima:   make([]fingerprint.Peak, 0, bins/2),
		pairs:    make([]fingerprint.PeakPair, 0, cfg.PeaksPerFrame*cfg.PeakFanout),
		summary:  Summary{TotalFrames: total},
	}

	if fs, ok := sink.(FrameSink); ok {
		p.frames = fs
		p.diagSpectrum = make([]float64, bins)
		p.diagResidual = make([]float64, bins)
	}

	return p
}

func (p *pipeline) process(index int) error {
	if fingerprint.Silent(p.spectrum, p.cfg.MinAmplitude) {
		p.summary.DroppedFrames++
		return nil
	}

	p.filter.Apply(p.spectrum, p.residual)
	p.maxima = fingerprint.FindLocalMaxima(p.residual, p.maxima[:0])
	peaks := fingerprint.SelectPeaks(p.maxima, p.cfg.PeaksPerFrame)

	p.history.Add(index, peaks)
	p.summary.RetainedFrames++

	if p.frames != nil {
		p.emitFrame(index, peaks)
	}

	if p.summary.RetainedFrames < p.history.Len() {
		return nil
	}
	return p.pair()
}

// flush pushes empty frames through the history until every retained frame
// that can still have targets has been the anchor.
func (p *pipeline) flush() error {
	for range p.cfg.TargetZoneLength {
		p.history.Add(fingerprint.FlushIndex, nil)
		if err := p.pair(); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) pair() error {
	p.pairs = p.finder.FindPairs(p.history, p.pairs[:0])
	if len(p.pairs) == 0 {
		return nil
	}

	hashes := make([]Hash, len(p.pairs))
	for i, pp := range p.pairs {
		hashes[i] = fingerprint.EncodePair(pp)
	}

	anchor := p.history.OldestIndex()
	batch := HashBatch{
		TrackRef:    p.trackRef,
		AnchorIndex: anchor,
		TotalFrames: p.summary.TotalFrames,
		Hashes:      hashes,
	}
	if err := p.sink.Hashes(batch); err != nil {
		return fmt.Errorf("emitting hashes for frame %d: %w", anchor, err)
	}

	p.summary.Batches++
	p.summary.Hashes += len(hashes)
	return nil
}

func (p *pipeline) emitFrame(index int, peaks []fingerprint.Peak) {
	copy(p.diagSpectrum, p.spectrum)
	copy(p.diagResidual, p.residual)
	for _, pk := range peaks {
		p.diagSpectrum[pk.Index] = 0
		p.diagResidual[pk.Index] = 0
	}

	p.frames.Frame(FrameEvent{
		TrackRef:    p.trackRef,
		FrameIndex:  index,
		TotalFrames: p.summary.TotalFrames,
		Spectrum:    p.diagSpectrum,
		Residual:    p.diagResidual,
	})
}
