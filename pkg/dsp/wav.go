// Package dsp computes basic acoustic features from recorded WAV audio:
// RMS energy, zero-crossing rate, spectral centroid and flatness, and a
// coarse MFCC-like coefficient set.
//
// These are the "basic" features of an analysis session. The Praat-derived
// voice biomarkers (F0, jitter, shimmer, formants) come from the external
// phonetics service via the extract package; dsp keeps a session useful when
// that service is down.
package dsp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxFileSize is the largest WAV upload accepted, mirroring the upload limit
// of the analysis endpoint.
const MaxFileSize = 10 * 1024 * 1024

var (
	// ErrNotWAV is returned when the payload is not a RIFF/WAVE container.
	ErrNotWAV = errors.New("dsp: not a RIFF/WAVE file")

	// ErrEmptyAudio is returned when the data chunk holds no samples.
	ErrEmptyAudio = errors.New("dsp: empty audio data")
)

// Clip is decoded mono audio normalized to [-1, 1].
type Clip struct {
	// Samples is the mono PCM signal.
	Samples []float64

	// SampleRate is in Hz.
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DecodeWAV parses a RIFF/WAVE payload into a normalized mono [Clip].
//
// Supported encodings: PCM unsigned 8-bit, signed 16-bit and 32-bit
// little-endian, and IEEE float32. Multi-channel audio is downmixed to mono
// by averaging. Float samples with unknown scaling are peak-normalized when
// they exceed the nominal [-1, 1] range.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bitDepth   int
		raw        []byte
		haveFmt    bool
	)

	// Walk the RIFF chunks; only fmt and data matter.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Tolerate encoders that mis-report the final chunk size.
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, fmt.Errorf("dsp: fmt chunk too short (%d bytes)", size)
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			raw = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if !haveFmt {
		return Clip{}, fmt.Errorf("dsp: missing fmt chunk")
	}
	if channels <= 0 || sampleRate <= 0 {
		return Clip{}, fmt.Errorf("dsp: invalid format (channels=%d, rate=%d)", channels, sampleRate)
	}
	if len(raw) == 0 {
		return Clip{}, ErrEmptyAudio
	}

	interleaved, err := decodeSamples(format, bitDepth, raw)
	if err != nil {
		return Clip{}, err
	}
	if len(interleaved) == 0 {
		return Clip{}, ErrEmptyAudio
	}

	mono := downmix(interleaved, channels)
	normalizeUnknownScale(mono)
	return Clip{Samples: mono, SampleRate: sampleRate}, nil
}

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

func decodeSamples(format uint16, bitDepth int, raw []byte) ([]float64, error) {
	switch {
	case format == wavFormatPCM && bitDepth == 8:
		out := make([]float64, len(raw))
		for i, b := range raw {
			out[i] = (float64(b) - 128.0) / 128.0
		}
		return out, nil
	case format == wavFormatPCM && bitDepth == 16:
		n := len(raw) / 2
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			s := int16(binary.LittleEndian.Uint16(raw[2*i:]))
			out[i] = float64(s) / 32768.0
		}
		return out, nil
	case format == wavFormatPCM && bitDepth == 32:
		n := len(raw) / 4
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			s := int32(binary.LittleEndian.Uint32(raw[4*i:]))
			out[i] = float64(s) / 2147483648.0
		}
		return out, nil
	case format == wavFormatFloat && bitDepth == 32:
		n := len(raw) / 4
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dsp: unsupported encoding (format=%d, bit depth=%d)", format, bitDepth)
	}
}

// downmix averages interleaved channels into mono.
func downmix(interleaved []float64, channels int) []float64 {
	if channels == 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// normalizeUnknownScale rescales float payloads whose peak exceeds the
// nominal range, matching the tolerant decode path of the original service.
func normalizeUnknownScale(samples []float64) {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak <= 1.0 || peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}
