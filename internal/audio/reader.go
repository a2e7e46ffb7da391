package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Clip is decoded audio mixed down to mono.
type Clip struct {
	Samples    []float64 // mono samples in [-1, 1]
	SampleRate int
	Channels   int          // channel count of the source
	Format     SampleFormat // sample encoding of the source
}

// Duration in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadFile decodes a .wav or .mp3 file into a mono Clip. Other extensions
// return ErrUnsupportedFormat.
func ReadFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return ReadWAV(f)
	case ".mp3":
		return ReadMP3(f)
	default:
		return nil, fmt.Errorf("%w: %q files", ErrUnsupportedFormat, ext)
	}
}

// ReadWAV decodes 16 or 24 bit PCM and 32 bit IEEE float WAV data.
// Extensible files are accepted at 16 and 24 bits.
func ReadWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("invalid wav file: %w", err)
		}
		return nil, errors.New("invalid wav file")
	}

	format, err := formatOf(d.WavAudioFormat, d.BitDepth)
	if err != nil {
		return nil, err
	}

	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("seeking to pcm data: %w", err)
	}
	if d.PCMChunk == nil {
		return nil, wav.ErrPCMChunkNotFound
	}

	raw, err := io.ReadAll(d.PCMChunk)
	if err != nil {
		return nil, fmt.Errorf("reading pcm data: %w", err)
	}
	// chunk sizes are padded to even lengths
	frameBytes := format.BytesPerSample() * int(d.NumChans)
	raw = raw[:len(raw)-len(raw)%frameBytes]

	mono, err := MixToMono(DecodeSamples(raw, format), int(d.NumChans))
	if err != nil {
		return nil, err
	}

	return &Clip{
		Samples:    mono,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		Format:     format,
	}, nil
}

// ReadMP3 decodes an MP3 stream. The decoder always yields 16 bit stereo.
func ReadMP3(r io.Reader) (*Clip, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("opening mp3 stream: %w", err)
	}

	var buf bytes.Buffer
	if n := d.Length(); n > 0 {
		buf.Grow(int(n))
	}
	if _, err := io.Copy(&buf, d); err != nil {
		return nil, fmt.Errorf("decoding mp3 stream: %w", err)
	}

	mono, err := MixToMono(DecodeSamples(buf.Bytes(), PCM16), 2)
	if err != nil {
		return nil, err
	}

	return &Clip{
		Samples:    mono,
		SampleRate: d.SampleRate(),
		Channels:   2,
		Format:     PCM16,
	}, nil
}
