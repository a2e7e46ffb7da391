package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/landmark/internal/audio"
	"github.com/himanishpuri/landmark/internal/render"
	"github.com/himanishpuri/landmark/internal/spectrum"
	"github.com/himanishpuri/landmark/internal/storage"
	"github.com/himanishpuri/landmark/pkg/landmark"
	"github.com/himanishpuri/landmark/pkg/logger"
)

type Config struct {
	DBPath   string
	TempDir  string
	Jobs     int // parallel tracks in FingerprintFiles
	Landmark []landmark.Option
	Logger   *logger.Logger
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithJobs(n int) Option {
	return func(c *Config) {
		c.Jobs = n
	}
}

// WithLandmarkOptions configures the fingerprint generator.
func WithLandmarkOptions(opts ...landmark.Option) Option {
	return func(c *Config) {
		c.Landmark = append(c.Landmark, opts...)
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:  storage.DefaultDBFile,
		TempDir: "/tmp",
		Jobs:    4,
	}
}

// FingerprintService loads audio, runs the landmark generator over it and
// persists the resulting hashes.
type FingerprintService struct {
	cfg *Config
	gen *landmark.Generator
	log *logger.Logger

	mu sync.Mutex
	db *storage.DBClient
}

// NewFingerprintService validates the generator configuration. The database
// is opened on first use, so fingerprinting alone never touches it.
func NewFingerprintService(opts ...Option) (*FingerprintService, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Jobs < 1 {
		cfg.Jobs = 1
	}

	genOpts := append([]landmark.Option{landmark.WithLogger(cfg.Logger.With("landmark"))}, cfg.Landmark...)
	gen, err := landmark.NewGenerator(genOpts...)
	if err != nil {
		return nil, err
	}

	return &FingerprintService{
		cfg: cfg,
		gen: gen,
		log: cfg.Logger.With("service"),
	}, nil
}

// Generator exposes the configured generator.
func (s *FingerprintService) Generator() *landmark.Generator {
	return s.gen
}

func (s *FingerprintService) store() (*storage.DBClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	db, err := storage.NewDBClientWithPath(s.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s.db = db
	return db, nil
}

// TrackFingerprint is the in-memory result of fingerprinting one file.
type TrackFingerprint struct {
	Path       string
	SampleRate int
	DurationMs int
	Summary    landmark.Summary
	Batches    []landmark.HashBatch
}

// Hashes returns every hash in emission order.
func (tf *TrackFingerprint) Hashes() []landmark.Hash {
	c := landmark.Collector{Batches: tf.Batches}
	return c.All()
}

// source decodes path at the configured rate and wraps it in an STFT.
func (s *FingerprintService) source(ctx context.Context, path string) (*spectrum.STFT, *audio.Clip, error) {
	cfg := s.gen.Config()

	clip, err := audio.Load(ctx, path, audio.LoadConfig{
		SampleRate: cfg.SampleRate,
		TempDir:    s.cfg.TempDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading audio: %w", err)
	}

	src, err := spectrum.NewSTFT(clip.Samples, cfg.WindowSize, cfg.HopSize)
	if err != nil {
		return nil, nil, err
	}
	return src, clip, nil
}

// FingerprintFile computes the hashes of one audio file.
func (s *FingerprintService) FingerprintFile(ctx context.Context, path string) (*TrackFingerprint, error) {
	src, clip, err := s.source(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var c landmark.Collector
	sum, err := s.gen.Generate(ctx, path, src, &c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s.log.Debugf("%s: %d hashes from %d frames", filepath.Base(path), sum.Hashes, sum.TotalFrames)
	return &TrackFingerprint{
		Path:       path,
		SampleRate: clip.SampleRate,
		DurationMs: int(clip.Duration() * 1000),
		Summary:    sum,
		Batches:    c.Batches,
	}, nil
}

// FingerprintFiles fingerprints paths concurrently, at most Jobs at a time.
// Results are in the order of paths. The first failure cancels the rest.
func (s *FingerprintService) FingerprintFiles(ctx context.Context, paths []string) ([]*TrackFingerprint, error) {
	results := make([]*TrackFingerprint, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Jobs)
	for i, path := range paths {
		g.Go(func() error {
			tf, err := s.FingerprintFile(ctx, path)
			if err != nil {
				return err
			}
			results[i] = tf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AddTrack fingerprints path and stores its hashes under a new track.
// An empty title defaults to the file name.
func (s *FingerprintService) AddTrack(ctx context.Context, path, title string) (*storage.Track, error) {
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.log.Infof("Processing track: %s", title)

	src, clip, err := s.source(ctx, path)
	if err != nil {
		return nil, err
	}

	db, err := s.store()
	if err != nil {
		return nil, err
	}

	cfg := s.gen.Config()
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	trackID, err := db.RegisterTrack(storage.Track{
		Title:      title,
		Path:       abs,
		SampleRate: cfg.SampleRate,
		WindowSize: cfg.WindowSize,
		HopSize:    cfg.HopSize,
		DurationMs: int(clip.Duration() * 1000),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register track: %w", err)
	}
	if n, err := db.HashCount(trackID); err == nil && n > 0 {
		s.log.Warnf("%s is already stored as %s", title, trackID)
		return db.GetTrack(trackID)
	}

	w := db.NewHashWriter(trackID)
	sum, err := s.gen.Generate(ctx, trackID, src, w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = db.UpdateTrackStats(trackID, sum.TotalFrames, sum.Hashes)
	}
	if err != nil {
		if delErr := db.DeleteTrackByID(trackID); delErr != nil { // rollback
			s.log.Errorf("rollback of %s failed: %v", trackID, delErr)
		}
		return nil, fmt.Errorf("failed to store fingerprints: %w", err)
	}

	s.log.Infof("Stored %s as %s: %d hashes, %d/%d frames retained",
		title, trackID, sum.Hashes, sum.RetainedFrames, sum.TotalFrames)
	return db.GetTrack(trackID)
}

// RenderSpectrogram fingerprints path and draws its frames to a PNG at out.
func (s *FingerprintService) RenderSpectrogram(ctx context.Context, path, out string, residual bool) (landmark.Summary, error) {
	src, _, err := s.source(ctx, path)
	if err != nil {
		return landmark.Summary{}, err
	}

	img := render.NewSpectrogram()
	img.UseResidual = residual
	sum, err := s.gen.Generate(ctx, path, src, img)
	if err != nil {
		return sum, err
	}
	if err := img.SavePNG(out); err != nil {
		return sum, fmt.Errorf("saving spectrogram: %w", err)
	}
	return sum, nil
}

func (s *FingerprintService) ListTracks() ([]storage.Track, error) {
	db, err := s.store()
	if err != nil {
		return nil, err
	}
	return db.ListTracks()
}

func (s *FingerprintService) GetTrack(trackID string) (*storage.Track, error) {
	db, err := s.store()
	if err != nil {
		return nil, err
	}
	return db.GetTrack(trackID)
}

func (s *FingerprintService) TrackHashes(trackID string) ([]storage.Fingerprint, error) {
	db, err := s.store()
	if err != nil {
		return nil, err
	}
	if _, err := db.GetTrack(trackID); err != nil {
		return nil, err
	}
	return db.TrackHashes(trackID)
}

// LookupHashes returns every stored occurrence of each hash. Hashes without
// occurrences are absent from the map.
func (s *FingerprintService) LookupHashes(hashes []uint32) (map[uint32][]storage.Fingerprint, error) {
	db, err := s.store()
	if err != nil {
		return nil, err
	}
	return db.GetFingerprintsByHashes(hashes)
}

// DeleteTrack deletes a track and its hashes.
func (s *FingerprintService) DeleteTrack(trackID string) error {
	db, err := s.store()
	if err != nil {
		return err
	}
	return db.DeleteTrackByID(trackID)
}

func (s *FingerprintService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
