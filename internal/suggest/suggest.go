// Package suggest turns a scored analysis session into short, actionable
// coping suggestions for the student.
//
// When an LLM provider is configured the suggestions are generated from the
// session's score, category, and out-of-range biomarkers. Generation is an
// enhancement: any provider failure falls back to a fixed per-category set so
// an analysis session always surfaces something useful.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soundmind-app/soundmind/internal/biomarker"
	"github.com/soundmind-app/soundmind/internal/scoring"
	"github.com/soundmind-app/soundmind/pkg/provider/llm"
)

const (
	defaultMaxSuggestions = 3
	defaultTimeout        = 10 * time.Second

	systemPrompt = `You are a supportive school wellbeing assistant. Given a ` +
		`voice-stress reading for a student, reply with short, concrete ` +
		`suggestions the student can act on right now. One suggestion per ` +
		`line, no numbering, no preamble, no medical claims.`
)

// fallbacks are the canned per-category suggestions used when no provider is
// configured or the call fails.
var fallbacks = map[scoring.Category][]string{
	scoring.CategoryLow: {
		"Your voice sounds calm — keep doing what you're doing.",
		"A short walk between classes helps maintain this balance.",
	},
	scoring.CategoryModerate: {
		"Try a slow breathing exercise: in for 4, hold for 4, out for 6.",
		"Take a five-minute break away from screens.",
		"Drink some water and roll your shoulders a few times.",
	},
	scoring.CategoryHigh: {
		"Pause what you're doing and take ten slow breaths.",
		"Consider talking to a teacher or friend about what's on your mind.",
		"Step outside for fresh air if you can — even two minutes helps.",
	},
}

// Option is a functional option for [Generator].
type Option func(*Generator)

// WithMaxSuggestions caps the number of suggestions returned. Default: 3.
func WithMaxSuggestions(n int) Option {
	return func(g *Generator) { g.maxSuggestions = n }
}

// WithTimeout bounds the LLM call. Default: 10 s.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// Generator produces coping suggestions for scored sessions.
// Safe for concurrent use.
type Generator struct {
	provider       llm.Provider
	maxSuggestions int
	timeout        time.Duration
}

// New creates a Generator. provider may be nil, in which case only the
// fallback suggestions are used.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:       provider,
		maxSuggestions: defaultMaxSuggestions,
		timeout:        defaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Suggest returns up to the configured number of suggestions for a session.
// It never returns an empty slice and never fails: LLM trouble degrades to
// the per-category fallback set.
func (g *Generator) Suggest(ctx context.Context, res scoring.Result, biomarkers []biomarker.Biomarker) []string {
	if g.provider == nil {
		return g.fallback(res.Category)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildPrompt(res, biomarkers, g.maxSuggestions)},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		slog.Warn("suggestion generation failed, using fallback", "category", res.Category, "err", err)
		return g.fallback(res.Category)
	}

	suggestions := parseLines(resp.Content, g.maxSuggestions)
	if len(suggestions) == 0 {
		return g.fallback(res.Category)
	}
	return suggestions
}

// fallback returns a copy of the canned set, truncated to the limit.
func (g *Generator) fallback(cat scoring.Category) []string {
	set, ok := fallbacks[cat]
	if !ok {
		set = fallbacks[scoring.CategoryModerate]
	}
	n := len(set)
	if g.maxSuggestions > 0 && n > g.maxSuggestions {
		n = g.maxSuggestions
	}
	return append([]string(nil), set[:n]...)
}

// buildPrompt renders the session summary the model sees.
func buildPrompt(res scoring.Result, biomarkers []biomarker.Biomarker, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stress score: %.0f/100 (%s).\n", res.Score, res.Category)

	var flagged []string
	for _, bm := range biomarkers {
		if bm.Status != biomarker.StatusGreen {
			flagged = append(flagged, fmt.Sprintf("%s %s (%s)", bm.Name, bm.DisplayValue, bm.Status))
		}
	}
	if len(flagged) > 0 {
		fmt.Fprintf(&b, "Out-of-range voice markers: %s.\n", strings.Join(flagged, ", "))
	} else {
		b.WriteString("All voice markers are in the healthy range.\n")
	}
	fmt.Fprintf(&b, "Give at most %d suggestions.", max)
	return b.String()
}

// parseLines splits the model reply into trimmed, non-empty lines, stripping
// common list prefixes, capped at max.
func parseLines(content string, max int) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789. ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
