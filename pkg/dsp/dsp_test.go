package dsp_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/soundmind-app/soundmind/pkg/dsp"
)

// makeWAV builds a minimal PCM16 mono WAV file around the given samples.
func makeWAV(t *testing.T, sampleRate int, channels int, samples []int16) []byte {
	t.Helper()

	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

// sine generates n samples of a sine tone at freq Hz.
func sine(n, sampleRate int, freq, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		out[i] = int16(v * 32767)
	}
	return out
}

func TestDecodeWAV_PCM16Mono(t *testing.T) {
	t.Parallel()

	wav := makeWAV(t, 16000, 1, sine(1600, 16000, 440, 0.5))
	clip, err := dsp.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.SampleRate)
	}
	if len(clip.Samples) != 1600 {
		t.Errorf("len(Samples) = %d, want 1600", len(clip.Samples))
	}
	if d := clip.Duration(); math.Abs(d-0.1) > 1e-9 {
		t.Errorf("Duration = %v, want 0.1", d)
	}
	for i, s := range clip.Samples {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d = %v, outside [-1, 1]", i, s)
		}
	}
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	t.Parallel()

	// Left channel +0.5, right channel -0.5: the mono mix is silence.
	frames := 100
	interleaved := make([]int16, frames*2)
	for i := 0; i < frames; i++ {
		interleaved[2*i] = 16384
		interleaved[2*i+1] = -16384
	}
	clip, err := dsp.DecodeWAV(makeWAV(t, 8000, 2, interleaved))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(clip.Samples) != frames {
		t.Fatalf("len(Samples) = %d, want %d", len(clip.Samples), frames)
	}
	for i, s := range clip.Samples {
		if math.Abs(s) > 1e-4 {
			t.Fatalf("downmixed sample %d = %v, want ~0", i, s)
		}
	}
}

func TestDecodeWAV_Rejections(t *testing.T) {
	t.Parallel()

	if _, err := dsp.DecodeWAV([]byte("not audio at all")); !errors.Is(err, dsp.ErrNotWAV) {
		t.Errorf("garbage input: err = %v, want ErrNotWAV", err)
	}
	if _, err := dsp.DecodeWAV(makeWAV(t, 16000, 1, nil)); !errors.Is(err, dsp.ErrEmptyAudio) {
		t.Errorf("empty data chunk: err = %v, want ErrEmptyAudio", err)
	}
}

func TestAnalyze_SineTone(t *testing.T) {
	t.Parallel()

	clip, err := dsp.DecodeWAV(makeWAV(t, 16000, 1, sine(4096, 16000, 440, 0.5)))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	f := dsp.Analyze(clip)

	// RMS of a 0.5-amplitude sine is 0.5/√2 ≈ 0.3536.
	if math.Abs(f.RMS-0.3536) > 0.01 {
		t.Errorf("RMS = %v, want ≈0.3536", f.RMS)
	}
	// A 440 Hz tone crosses zero 880 times per second → ZCR ≈ 880/16000.
	if wantZCR := 880.0 / 16000.0; math.Abs(f.ZCR-wantZCR) > 0.01 {
		t.Errorf("ZCR = %v, want ≈%v", f.ZCR, wantZCR)
	}
	// The centroid of a pure tone sits near the tone frequency.
	if f.SpectralCentroid < 300 || f.SpectralCentroid > 600 {
		t.Errorf("SpectralCentroid = %v, want near 440", f.SpectralCentroid)
	}
	// A pure tone is maximally peaky: flatness near 0.
	if f.SpectralFlatness > 0.1 {
		t.Errorf("SpectralFlatness = %v, want near 0 for a pure tone", f.SpectralFlatness)
	}
	if len(f.MFCC) != dsp.NumMFCC {
		t.Errorf("len(MFCC) = %d, want %d", len(f.MFCC), dsp.NumMFCC)
	}
}

func TestAnalyze_EmptyClip(t *testing.T) {
	t.Parallel()

	f := dsp.Analyze(dsp.Clip{})
	if f.RMS != 0 || f.ZCR != 0 || f.SpectralCentroid != 0 || f.SpectralFlatness != 0 {
		t.Errorf("empty clip features = %+v, want all zero", f)
	}
	if len(f.MFCC) != dsp.NumMFCC {
		t.Errorf("len(MFCC) = %d, want %d even for empty clip", len(f.MFCC), dsp.NumMFCC)
	}
}
