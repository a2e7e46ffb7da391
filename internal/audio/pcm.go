package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedFormat is returned for sample encodings and channel layouts
// the decoder does not convert.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// SampleFormat is the encoding of raw interleaved samples.
type SampleFormat int

const (
	PCM16 SampleFormat = iota
	PCM24
	Float32
)

func (f SampleFormat) String() string {
	switch f {
	case PCM16:
		return "pcm16"
	case PCM24:
		return "pcm24"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}

// BytesPerSample is the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case PCM16:
		return 2
	case PCM24:
		return 3
	default:
		return 4
	}
}

const (
	wavFormatPCM        = 1
	wavFormatIEEE       = 3
	wavFormatExtensible = 0xFFFE
)

// formatOf maps a WAV format tag and bit depth to a SampleFormat.
// The decoder drops the sub format GUID of extensible files, so they are
// read as integer PCM when the depth allows it.
func formatOf(tag, bitDepth uint16) (SampleFormat, error) {
	pcm := tag == wavFormatPCM || tag == wavFormatExtensible
	switch {
	case pcm && bitDepth == 16:
		return PCM16, nil
	case pcm && bitDepth == 24:
		return PCM24, nil
	case tag == wavFormatIEEE && bitDepth == 32:
		return Float32, nil
	}
	return 0, fmt.Errorf("%w: wav format %d with %d bits per sample", ErrUnsupportedFormat, tag, bitDepth)
}

// DecodeSamples converts little endian interleaved samples to floats in
// [-1, 1]. A trailing partial sample is ignored.
func DecodeSamples(data []byte, format SampleFormat) []float64 {
	size := format.BytesPerSample()
	out := make([]float64, len(data)/size)

	switch format {
	case PCM16:
		for i := range out {
			out[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / math.MaxInt16
		}
	case PCM24:
		for i := range out {
			b := data[3*i : 3*i+3]
			// place the 24 bits in the top of an int32 so the sign extends
			v := int32(uint32(b[0])<<8 | uint32(b[1])<<16 | uint32(b[2])<<24)
			out[i] = float64(v) / (1 << 31)
		}
	case Float32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
		}
	}

	return out
}

// MixToMono averages interleaved channels into one.
func MixToMono(samples []float64, channels int) ([]float64, error) {
	switch {
	case channels < 1:
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, channels)
	case channels == 1:
		return samples, nil
	}

	frames := len(samples) / channels
	out := make([]float64, frames)
	scale := 1 / float64(channels)
	for i := range out {
		var sum float64
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum * scale
	}
	return out, nil
}
