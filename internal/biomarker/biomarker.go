// Package biomarker converts raw acoustic measurements from a feature
// extraction backend into display-ready voice biomarkers.
//
// Normalization is pure and deterministic: the same feature bag always
// produces the same eight biomarkers in the same order, regardless of which
// key spellings were present in the input. Missing or non-numeric values
// degrade to 0 rather than producing an error, so a partial extraction
// result still yields a complete (if pessimistic) biomarker list.
package biomarker

import (
	"encoding/json"
	"fmt"
	"math"
)

// Status classifies how far a biomarker deviates from the healthy range.
type Status string

const (
	StatusGreen  Status = "green"
	StatusOrange Status = "orange"
	StatusRed    Status = "red"
)

// FeatureBag is a flat mapping of extraction-service keys to measured values,
// e.g. {"f0_mean": 142.3, "jitter_percent": 0.85}. Values of any type are
// accepted; anything that is not a finite number is treated as 0.
type FeatureBag map[string]any

// Biomarker is a single acoustic feature prepared for display and scoring.
// Instances are constructed fresh on every analysis and never mutated.
type Biomarker struct {
	// Name is the human-readable feature name, e.g. "F0 Mean".
	Name string `json:"name"`

	// RawValue is the measurement as received, defaulting to 0 when absent.
	RawValue float64 `json:"rawValue"`

	// DisplayValue is the formatted value with unit, e.g. "142.3 Hz".
	DisplayValue string `json:"displayValue"`

	// Status is the three-level severity classification.
	Status Status `json:"status"`

	// NormalizedValue is RawValue scaled against a per-feature ceiling and
	// clamped to [0, 1], for bar/gauge rendering.
	NormalizedValue float64 `json:"normalizedValue"`
}

// polarity describes which direction of deviation is unhealthy for a feature.
type polarity int

const (
	// higherWorse means the value crosses into orange/red as it rises
	// (pitch, jitter, shimmer, speech rate).
	higherWorse polarity = iota

	// lowerWorse means the value crosses into orange/red as it falls
	// (pitch range monotony, harmonics-to-noise ratio).
	lowerWorse

	// unthresholded means the feature is informational only and always green
	// (formants).
	unthresholded
)

// FeatureSpec defines one canonical acoustic feature: the accepted input key
// spellings (checked in order — upstream producers have varied naming across
// versions, so the alias list is a compatibility contract, not a fallback
// hack), display formatting, thresholds, and the normalization ceiling.
type FeatureSpec struct {
	// Name is the canonical display name.
	Name string

	// Keys lists accepted input keys, primary spelling first.
	Keys []string

	// Unit is the display unit suffix, e.g. "Hz".
	Unit string

	// Polarity selects which threshold direction applies.
	Polarity polarity

	// Red and Orange are the classification thresholds. For higherWorse
	// features the value is red when strictly above Red and orange when
	// strictly above Orange; for lowerWorse features the comparisons are
	// strictly below.
	Red, Orange float64

	// Ceiling is the divisor for NormalizedValue.
	Ceiling float64
}

// Features is the canonical feature table. Order here is the output order of
// [Normalize] and is part of the package contract: downstream layout depends
// on it.
var Features = [8]FeatureSpec{
	{Name: "F0 Mean", Keys: []string{"f0_mean", "f0_mean_hz"}, Unit: "Hz", Polarity: higherWorse, Red: 200, Orange: 150, Ceiling: 300},
	{Name: "F0 Range", Keys: []string{"f0_range", "f0_range_hz"}, Unit: "Hz", Polarity: lowerWorse, Red: 50, Orange: 100, Ceiling: 200},
	{Name: "Jitter", Keys: []string{"jitter", "jitter_percent"}, Unit: "%", Polarity: higherWorse, Red: 1.0, Orange: 0.5, Ceiling: 2},
	{Name: "Shimmer", Keys: []string{"shimmer", "shimmer_percent"}, Unit: "%", Polarity: higherWorse, Red: 5.0, Orange: 2.5, Ceiling: 10},
	{Name: "HNR", Keys: []string{"hnr", "hnr_db"}, Unit: "dB", Polarity: lowerWorse, Red: 10, Orange: 15, Ceiling: 30},
	{Name: "F1", Keys: []string{"f1", "f1_hz"}, Unit: "Hz", Polarity: unthresholded, Ceiling: 1000},
	{Name: "F2", Keys: []string{"f2", "f2_hz"}, Unit: "Hz", Polarity: unthresholded, Ceiling: 2000},
	{Name: "Speech Rate", Keys: []string{"speech_rate", "speech_rate_wpm"}, Unit: "WPM", Polarity: higherWorse, Red: 200, Orange: 150, Ceiling: 250},
}

// wrapperKey is an optional envelope some producers nest the feature map
// under. Normalize unwraps it transparently.
const wrapperKey = "inferred_biomarkers"

// Normalize converts bag into the fixed eight-biomarker list.
//
// For each feature the accepted keys are checked in order; the first key
// holding a finite numeric value wins, and absence degrades to 0. Negative
// raw values are treated as 0 for normalization but reported as received.
// Normalize never panics and has no side effects.
func Normalize(bag FeatureBag) []Biomarker {
	bag = unwrap(bag)

	out := make([]Biomarker, 0, len(Features))
	for _, spec := range Features {
		raw := lookup(bag, spec.Keys)
		out = append(out, Biomarker{
			Name:            spec.Name,
			RawValue:        raw,
			DisplayValue:    spec.format(raw),
			Status:          spec.Classify(raw),
			NormalizedValue: spec.NormalizedValue(raw),
		})
	}
	return out
}

// unwrap returns the nested feature map when bag carries the wrapper
// envelope, otherwise bag itself.
func unwrap(bag FeatureBag) FeatureBag {
	if bag == nil {
		return nil
	}
	inner, ok := bag[wrapperKey]
	if !ok {
		return bag
	}
	switch m := inner.(type) {
	case FeatureBag:
		return m
	case map[string]any:
		return FeatureBag(m)
	}
	return bag
}

// lookup returns the first finite numeric value among keys, or 0.
func lookup(bag FeatureBag, keys []string) float64 {
	for _, k := range keys {
		v, ok := bag[k]
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

// toFloat coerces the loosely-typed JSON values an extraction backend may
// send. Non-finite numbers are rejected so NaN never propagates into scoring.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Classify applies the feature's threshold table to raw.
func (s FeatureSpec) Classify(raw float64) Status {
	switch s.Polarity {
	case higherWorse:
		if raw > s.Red {
			return StatusRed
		}
		if raw > s.Orange {
			return StatusOrange
		}
	case lowerWorse:
		if raw < s.Red {
			return StatusRed
		}
		if raw < s.Orange {
			return StatusOrange
		}
	}
	return StatusGreen
}

// LowerWorse reports whether the feature's unhealthy direction is downward
// (pitch-range monotony, noisy voice).
func (s FeatureSpec) LowerWorse() bool {
	return s.Polarity == lowerWorse
}

// NormalizedValue scales raw against the feature ceiling and clamps to [0, 1].
func (s FeatureSpec) NormalizedValue(raw float64) float64 {
	if s.Ceiling <= 0 {
		return 0
	}
	v := math.Max(0, raw) / s.Ceiling
	return math.Min(v, 1)
}

// format renders raw with the feature's unit, e.g. "142.3 Hz" or "0.85%".
// Percent units attach without a space, matching the upstream display style.
func (s FeatureSpec) format(raw float64) string {
	if s.Unit == "%" {
		return fmt.Sprintf("%.2f%%", raw)
	}
	return fmt.Sprintf("%.1f %s", raw, s.Unit)
}
