// Package scoring combines normalized biomarkers, an optional personal
// baseline, and the adaptive sensitivity multiplier into a final 0–100
// stress score with a triage category.
//
// Scoring is pure: it reads the multiplier it is given and never touches
// sensitivity state. Callers feed the resulting score back into the
// sensitivity engine only after the score has been surfaced, so a session
// can never influence its own sensitivity.
package scoring

import (
	"math"

	"github.com/soundmind-app/soundmind/internal/biomarker"
)

// Category is the triage bucket derived from a stress score. It drives UI
// color, suggestion tone, and teacher alerting cadence downstream.
type Category string

const (
	CategoryLow      Category = "low"
	CategoryModerate Category = "moderate"
	CategoryHigh     Category = "high"
)

const (
	// moderateThreshold and highThreshold bound the categories:
	// low < 34, moderate 34–66, high ≥ 67.
	moderateThreshold = 34.0
	highThreshold     = 67.0

	// HighRiskThreshold is the stricter score bound that triggers
	// teacher-facing alerts.
	HighRiskThreshold = 75.0
)

// featureWeights expresses how much each canonical feature contributes to
// the aggregate score. Voice-quality markers (jitter, shimmer, HNR) weigh
// heaviest; formants carry no threshold and therefore no weight.
var featureWeights = map[string]float64{
	"F0 Mean":     1.0,
	"F0 Range":    1.0,
	"Jitter":      1.5,
	"Shimmer":     1.5,
	"HNR":         1.5,
	"F1":          0,
	"F2":          0,
	"Speech Rate": 1.0,
}

// statusWeights maps a threshold classification to a stress contribution in
// [0, 1], used when no baseline is available.
var statusWeights = map[biomarker.Status]float64{
	biomarker.StatusGreen:  0,
	biomarker.StatusOrange: 0.5,
	biomarker.StatusRed:    1.0,
}

// Contribution records how much a single feature added to the score, for
// reporting and teacher dashboards.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Weight  float64 `json:"weight"`
}

// Result is the assembled scoring outcome for one session.
type Result struct {
	// Score is the final stress score in [0, 100].
	Score float64 `json:"score"`

	// Category is derived from Score.
	Category Category `json:"category"`

	// Multiplier is the sensitivity multiplier that was applied.
	Multiplier float64 `json:"multiplier"`

	// HighRisk is true when Score crosses [HighRiskThreshold].
	HighRisk bool `json:"highRisk"`

	// Contributions lists per-feature inputs to the score, in biomarker
	// order.
	Contributions []Contribution `json:"contributions"`
}

// Score assembles the final stress score.
//
// baseline is the student's calm-reference feature bag and may be nil when
// no calibration has happened yet. With a baseline, each thresholded feature
// contributes its polarity-aware relative deviation from the baseline value
// (only deviation in the unhealthy direction counts). Without one, the
// feature's status classification contributes a fixed weight instead.
//
// The weighted mean contribution is scaled to 0–100, multiplied by the
// sensitivity multiplier, and clamped.
func Score(biomarkers []biomarker.Biomarker, baseline biomarker.FeatureBag, multiplier float64) Result {
	if math.IsNaN(multiplier) || multiplier <= 0 {
		multiplier = 1.0
	}

	var baselineBMs []biomarker.Biomarker
	if baseline != nil {
		baselineBMs = biomarker.Normalize(baseline)
	}

	var weightedSum, totalWeight float64
	contributions := make([]Contribution, 0, len(biomarkers))

	for i, bm := range biomarkers {
		weight := featureWeights[bm.Name]
		var c float64
		if baselineBMs != nil && i < len(baselineBMs) {
			c = deviationContribution(bm, baselineBMs[i])
		} else {
			c = statusWeights[bm.Status]
		}
		contributions = append(contributions, Contribution{Feature: bm.Name, Value: c, Weight: weight})
		weightedSum += weight * c
		totalWeight += weight
	}

	raw := 0.0
	if totalWeight > 0 {
		raw = weightedSum / totalWeight * 100
	}
	score := clampScore(raw * multiplier)

	return Result{
		Score:         score,
		Category:      Categorize(score),
		Multiplier:    multiplier,
		HighRisk:      score >= HighRiskThreshold,
		Contributions: contributions,
	}
}

// deviationContribution measures how far bm moved from its baseline value in
// the unhealthy direction, scaled by the feature ceiling and clamped to
// [0, 1]. Movement toward health contributes 0.
func deviationContribution(bm, base biomarker.Biomarker) float64 {
	spec, ok := specFor(bm.Name)
	if !ok || featureWeights[bm.Name] == 0 {
		return 0
	}

	// NormalizedValue is already raw/ceiling clamped to [0,1], so the delta
	// of normalized values is the ceiling-relative deviation.
	delta := bm.NormalizedValue - base.NormalizedValue
	if spec.LowerWorse() {
		// Falling below baseline is the unhealthy move for these features.
		delta = -delta
	}
	if delta < 0 {
		return 0
	}
	if delta > 1 {
		return 1
	}
	return delta
}

// specFor finds the canonical feature spec by display name.
func specFor(name string) (biomarker.FeatureSpec, bool) {
	for _, spec := range biomarker.Features {
		if spec.Name == name {
			return spec, true
		}
	}
	return biomarker.FeatureSpec{}, false
}

// Categorize maps a score to its triage category.
func Categorize(score float64) Category {
	switch {
	case score >= highThreshold:
		return CategoryHigh
	case score >= moderateThreshold:
		return CategoryModerate
	default:
		return CategoryLow
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
