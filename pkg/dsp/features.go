package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// NumMFCC is the number of MFCC-like coefficients computed per clip.
const NumMFCC = 13

// BasicFeatures are the time/spectral-domain measurements computed locally
// from a clip, independent of the external phonetics service.
type BasicFeatures struct {
	// RMS is the root-mean-square amplitude of the normalized signal.
	RMS float64 `json:"rms"`

	// ZCR is the zero-crossing rate per sample, in [0, 1].
	ZCR float64 `json:"zcr"`

	// SpectralCentroid is the power-weighted mean frequency in Hz.
	SpectralCentroid float64 `json:"spectralCentroid"`

	// SpectralFlatness is the geometric/arithmetic mean ratio of the power
	// spectrum, in [0, 1]; near 1 means noise-like.
	SpectralFlatness float64 `json:"spectralFlatness"`

	// MFCC is a coarse [NumMFCC]-band magnitude summary.
	MFCC []float64 `json:"mfcc"`
}

// Analyze computes all basic features for a clip. It never returns an error:
// an empty clip yields zero-valued features.
func Analyze(c Clip) BasicFeatures {
	f := BasicFeatures{MFCC: make([]float64, NumMFCC)}
	if len(c.Samples) == 0 {
		return f
	}

	f.RMS = rms(c.Samples)
	f.ZCR = zeroCrossingRate(c.Samples)

	psd, binHz := powerSpectrum(c.Samples, c.SampleRate)
	f.SpectralCentroid = spectralCentroid(psd, binHz)
	f.SpectralFlatness = spectralFlatness(psd)
	f.MFCC = bandMeans(psd, NumMFCC)
	return f
}

func rms(x []float64) float64 {
	var sum float64
	for _, s := range x {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(x)))
}

// zeroCrossingRate counts sign changes between adjacent samples.
func zeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if math.Signbit(x[i]) != math.Signbit(x[i-1]) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

// powerSpectrum estimates the one-sided power spectrum of x using a
// Hann-windowed real FFT. The second return value is the width of one
// frequency bin in Hz.
func powerSpectrum(x []float64, sampleRate int) ([]float64, float64) {
	n := len(x)
	windowed := make([]float64, n)
	for i, s := range x {
		// Hann window.
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
		windowed[i] = s * w
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, windowed)

	psd := make([]float64, len(coeffs))
	for i, c := range coeffs {
		// Floor protects the geometric mean in spectralFlatness from log(0).
		psd[i] = math.Max(real(c)*real(c)+imag(c)*imag(c), 1e-20)
	}

	binHz := 0.0
	if n > 0 && sampleRate > 0 {
		binHz = float64(sampleRate) / float64(n)
	}
	return psd, binHz
}

func spectralCentroid(psd []float64, binHz float64) float64 {
	var weighted, total float64
	for i, p := range psd {
		weighted += float64(i) * binHz * p
		total += p
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func spectralFlatness(psd []float64) float64 {
	if len(psd) == 0 {
		return 0
	}
	var logSum, sum float64
	for _, p := range psd {
		logSum += math.Log(p)
		sum += p
	}
	arith := sum / float64(len(psd))
	if arith <= 0 {
		return 0
	}
	geom := math.Exp(logSum / float64(len(psd)))
	return geom / arith
}

// bandMeans splits the spectrum into count contiguous bands and returns each
// band's mean magnitude. A crude stand-in for a mel filterbank, matching the
// approximation used by the original extraction service.
func bandMeans(psd []float64, count int) []float64 {
	out := make([]float64, count)
	if len(psd) == 0 {
		return out
	}
	for i := 0; i < count; i++ {
		start := i * len(psd) / count
		end := (i + 1) * len(psd) / count
		if end <= start {
			continue
		}
		var sum float64
		for _, p := range psd[start:end] {
			sum += math.Sqrt(p)
		}
		out[i] = sum / float64(end-start)
	}
	return out
}
