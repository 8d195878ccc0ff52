package suggest_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soundmind-app/soundmind/internal/biomarker"
	"github.com/soundmind-app/soundmind/internal/scoring"
	"github.com/soundmind-app/soundmind/internal/suggest"
	"github.com/soundmind-app/soundmind/pkg/provider/llm"
	"github.com/soundmind-app/soundmind/pkg/provider/llm/mock"
)

func highResult() scoring.Result {
	return scoring.Result{Score: 80, Category: scoring.CategoryHigh, Multiplier: 1.0, HighRisk: true}
}

func TestSuggest_UsesProviderOutput(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "- Take ten slow breaths\n- Step outside for a minute\n- Talk to someone you trust\n- A fourth one too many",
		},
	}
	g := suggest.New(p)

	got := g.Suggest(context.Background(), highResult(), nil)
	if len(got) != 3 {
		t.Fatalf("len(suggestions) = %d, want capped at 3: %v", len(got), got)
	}
	if got[0] != "Take ten slow breaths" {
		t.Errorf("suggestions[0] = %q, want list prefix stripped", got[0])
	}
}

func TestSuggest_PromptMentionsFlaggedBiomarkers(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Breathe."},
	}
	g := suggest.New(p)

	bms := biomarker.Normalize(biomarker.FeatureBag{"jitter": 1.5, "f0_mean": 120.0})
	g.Suggest(context.Background(), highResult(), bms)

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(calls))
	}
	prompt := calls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "Jitter") {
		t.Errorf("prompt does not mention flagged Jitter: %q", prompt)
	}
	if strings.Contains(prompt, "F0 Mean") {
		t.Errorf("prompt mentions in-range F0 Mean: %q", prompt)
	}
}

func TestSuggest_FallsBackOnProviderError(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteErr: errors.New("backend down")}
	g := suggest.New(p)

	got := g.Suggest(context.Background(), highResult(), nil)
	if len(got) == 0 {
		t.Fatal("Suggest returned no suggestions on provider error, want fallback set")
	}
}

func TestSuggest_NilProviderUsesFallback(t *testing.T) {
	t.Parallel()

	g := suggest.New(nil)
	for _, cat := range []scoring.Category{scoring.CategoryLow, scoring.CategoryModerate, scoring.CategoryHigh} {
		got := g.Suggest(context.Background(), scoring.Result{Category: cat}, nil)
		if len(got) == 0 {
			t.Errorf("category %q: no fallback suggestions", cat)
		}
	}
}

func TestSuggest_EmptyReplyFallsBack(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "   \n\n  "}}
	g := suggest.New(p)

	got := g.Suggest(context.Background(), highResult(), nil)
	if len(got) == 0 {
		t.Fatal("Suggest returned nothing for a blank model reply, want fallback")
	}
}
