package scoring_test

import (
	"math"
	"testing"

	"github.com/soundmind-app/soundmind/internal/biomarker"
	"github.com/soundmind-app/soundmind/internal/scoring"
)

// calmBag is a feature bag with every thresholded feature comfortably green.
var calmBag = biomarker.FeatureBag{
	"f0_mean":     120.0,
	"f0_range":    150.0,
	"jitter":      0.2,
	"shimmer":     1.0,
	"hnr":         25.0,
	"f1":          500.0,
	"f2":          1500.0,
	"speech_rate": 120.0,
}

// stressedBag has every thresholded feature in the red band.
var stressedBag = biomarker.FeatureBag{
	"f0_mean":     240.0,
	"f0_range":    30.0,
	"jitter":      1.8,
	"shimmer":     8.0,
	"hnr":         5.0,
	"f1":          900.0,
	"f2":          1900.0,
	"speech_rate": 230.0,
}

func TestScore_CalmVoiceScoresLow(t *testing.T) {
	t.Parallel()

	res := scoring.Score(biomarker.Normalize(calmBag), nil, 1.0)
	if res.Score != 0 {
		t.Errorf("Score = %v, want 0 for an all-green voice without baseline", res.Score)
	}
	if res.Category != scoring.CategoryLow {
		t.Errorf("Category = %q, want low", res.Category)
	}
	if res.HighRisk {
		t.Error("HighRisk = true, want false")
	}
}

func TestScore_StressedVoiceScoresHigh(t *testing.T) {
	t.Parallel()

	res := scoring.Score(biomarker.Normalize(stressedBag), nil, 1.0)
	if res.Score != 100 {
		t.Errorf("Score = %v, want 100 for an all-red voice without baseline", res.Score)
	}
	if res.Category != scoring.CategoryHigh {
		t.Errorf("Category = %q, want high", res.Category)
	}
	if !res.HighRisk {
		t.Error("HighRisk = false, want true at score 100")
	}
}

func TestScore_MultiplierAmplifies(t *testing.T) {
	t.Parallel()

	// Jitter orange (0.7), everything else green: a mid-band signal the
	// multiplier can visibly scale without saturating.
	bag := biomarker.FeatureBag{
		"f0_mean": 120.0, "f0_range": 150.0, "jitter": 0.7, "shimmer": 1.0,
		"hnr": 25.0, "speech_rate": 120.0,
	}
	bms := biomarker.Normalize(bag)

	neutral := scoring.Score(bms, nil, 1.0)
	amplified := scoring.Score(bms, nil, 1.3)
	if amplified.Score <= neutral.Score {
		t.Errorf("amplified score %v not greater than neutral %v", amplified.Score, neutral.Score)
	}
	if want := neutral.Score * 1.3; math.Abs(amplified.Score-want) > 1e-9 {
		t.Errorf("amplified score = %v, want %v", amplified.Score, want)
	}
}

func TestScore_InvalidMultiplierFallsBackToNeutral(t *testing.T) {
	t.Parallel()

	bms := biomarker.Normalize(stressedBag)
	for _, m := range []float64{0, -1, math.NaN()} {
		res := scoring.Score(bms, nil, m)
		if res.Multiplier != 1.0 {
			t.Errorf("Score with multiplier %v: applied %v, want 1.0", m, res.Multiplier)
		}
	}
}

func TestScore_BaselineDeviationOnlyCountsUnhealthyDirection(t *testing.T) {
	t.Parallel()

	// Session identical to baseline scores zero.
	bms := biomarker.Normalize(calmBag)
	same := scoring.Score(bms, calmBag, 1.0)
	if same.Score != 0 {
		t.Errorf("Score against identical baseline = %v, want 0", same.Score)
	}

	// Raising HNR (healthier) above baseline must not add stress; lowering
	// it must.
	healthier := biomarker.FeatureBag{
		"f0_mean": 120.0, "f0_range": 150.0, "jitter": 0.2, "shimmer": 1.0,
		"hnr": 29.0, "speech_rate": 120.0,
	}
	if got := scoring.Score(biomarker.Normalize(healthier), calmBag, 1.0); got.Score != 0 {
		t.Errorf("healthier-than-baseline session scored %v, want 0", got.Score)
	}

	noisier := biomarker.FeatureBag{
		"f0_mean": 120.0, "f0_range": 150.0, "jitter": 0.2, "shimmer": 1.0,
		"hnr": 10.0, "speech_rate": 120.0,
	}
	if got := scoring.Score(biomarker.Normalize(noisier), calmBag, 1.0); got.Score <= 0 {
		t.Errorf("noisier-than-baseline session scored %v, want > 0", got.Score)
	}
}

func TestScore_FormantsNeverContribute(t *testing.T) {
	t.Parallel()

	quiet := biomarker.Normalize(calmBag)
	wildFormants := biomarker.Normalize(biomarker.FeatureBag{
		"f0_mean": 120.0, "f0_range": 150.0, "jitter": 0.2, "shimmer": 1.0,
		"hnr": 25.0, "speech_rate": 120.0, "f1": 999999.0, "f2": 0.0,
	})
	a := scoring.Score(quiet, nil, 1.0)
	b := scoring.Score(wildFormants, nil, 1.0)
	if a.Score != b.Score {
		t.Errorf("formant values changed the score: %v vs %v", a.Score, b.Score)
	}
}

func TestCategorize_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  scoring.Category
	}{
		{0, scoring.CategoryLow},
		{33.9, scoring.CategoryLow},
		{34, scoring.CategoryModerate},
		{66.9, scoring.CategoryModerate},
		{67, scoring.CategoryHigh},
		{100, scoring.CategoryHigh},
	}
	for _, tt := range tests {
		if got := scoring.Categorize(tt.score); got != tt.want {
			t.Errorf("Categorize(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestScore_AlwaysInRange(t *testing.T) {
	t.Parallel()

	bags := []biomarker.FeatureBag{
		nil,
		{},
		stressedBag,
		{"jitter": math.NaN(), "hnr": math.Inf(-1)},
	}
	for _, bag := range bags {
		for _, m := range []float64{0.5, 1.0, 1.3, 5.0} {
			res := scoring.Score(biomarker.Normalize(bag), nil, m)
			if res.Score < 0 || res.Score > 100 {
				t.Errorf("Score(%v, mult=%v) = %v, outside [0,100]", bag, m, res.Score)
			}
		}
	}
}
