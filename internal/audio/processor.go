package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

type ConvertWAVConfig struct {
	SampleRate int // e.g. 11025, 22050, 44100
	Timeout    time.Duration
}

// ConvertToMonoWAV converts an audio file to 16 bit mono PCM WAV at the
// configured rate and saves it to outputDir as <name>-<rate>-<random>.wav.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 11025
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	// unique per call, runs on inputs with the same base name may overlap
	baseName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	f, err := os.CreateTemp(outputDir, fmt.Sprintf("%s-%d-*.wav", baseName, cfg.SampleRate))
	if err != nil {
		return "", fmt.Errorf("creating output file: %w", err)
	}
	f.Close()
	outputPath := f.Name()

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("ffmpeg is required to convert %s: %w", filepath.Base(inputPath), err)
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("failed to move file from %s to %s: %w", tmpPath, outputPath, err)
	}

	return outputPath, nil
}

type LoadConfig struct {
	SampleRate int    // rate the returned clip must have
	TempDir    string // where converted files are written
}

// Load decodes path into a mono clip at cfg.SampleRate. WAV and MP3 files
// are decoded natively; other containers, WAV sample encodings the decoder
// does not handle and files at another rate are converted with ffmpeg
// first. The converted file is removed afterwards.
func Load(ctx context.Context, path string, cfg LoadConfig) (*Clip, error) {
	clip, err := ReadFile(path)
	switch {
	case err == nil && clip.SampleRate == cfg.SampleRate:
		return clip, nil
	case err == nil:
		// wrong rate, resampled below
	case errors.Is(err, ErrUnsupportedFormat):
		// container or wav encoding without a native decoder
	default:
		return nil, err
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	converted, err := ConvertToMonoWAV(ctx, path, tempDir, ConvertWAVConfig{SampleRate: cfg.SampleRate})
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(converted)

	clip, err = ReadFile(converted)
	if err != nil {
		return nil, err
	}
	if clip.SampleRate != cfg.SampleRate {
		return nil, fmt.Errorf("converted %s has rate %d, want %d", filepath.Base(path), clip.SampleRate, cfg.SampleRate)
	}
	return clip, nil
}
