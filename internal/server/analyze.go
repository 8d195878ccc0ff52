package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundmind-app/soundmind/internal/biomarker"
	"github.com/soundmind-app/soundmind/internal/observe"
	"github.com/soundmind-app/soundmind/internal/scoring"
	"github.com/soundmind-app/soundmind/internal/sensitivity"
	"github.com/soundmind-app/soundmind/internal/session"
	"github.com/soundmind-app/soundmind/pkg/dsp"
	"github.com/soundmind-app/soundmind/pkg/extract"
)

// maxUploadBytes bounds the whole multipart body; the audio clip itself is
// further limited by [dsp.MaxFileSize].
const maxUploadBytes = dsp.MaxFileSize + 1<<20

// featureRequest is the JSON body for feature-bag submissions.
type featureRequest struct {
	UserID   string               `json:"userId"`
	Features biomarker.FeatureBag `json:"features"`
}

// audioInfo describes the locally analysed audio clip.
type audioInfo struct {
	DurationSeconds float64           `json:"durationSeconds"`
	SampleRate      int               `json:"sampleRate"`
	Basic           dsp.BasicFeatures `json:"basic"`
}

// analyzeResponse is the JSON reply for a completed analysis.
type analyzeResponse struct {
	SessionID     string                 `json:"sessionId"`
	Score         float64                `json:"score"`
	Category      scoring.Category       `json:"category"`
	Multiplier    float64                `json:"multiplier"`
	HighRisk      bool                   `json:"highRisk"`
	Biomarkers    []biomarker.Biomarker  `json:"biomarkers"`
	Suggestions   []string               `json:"suggestions"`
	Audio         *audioInfo             `json:"audio,omitempty"`
	Contributions []scoring.Contribution `json:"contributions,omitempty"`
}

// handleAnalyze runs one stress analysis. It accepts either a multipart WAV
// upload (requires the extraction service) or a JSON feature bag.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	log := observe.Logger(ctx)

	var (
		bag   biomarker.FeatureBag
		uid   string
		audio *audioInfo
		input string
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		input = "audio"
		var err error
		bag, uid, audio, err = s.analyzeAudio(ctx, w, r)
		if err != nil {
			return // analyzeAudio already wrote the error response
		}

	default:
		input = "features"
		var req featureRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if len(req.Features) == 0 {
			writeError(w, http.StatusBadRequest, "features must not be empty")
			return
		}
		bag = req.Features
		uid = userID(r, req.UserID)
	}

	markers := biomarker.Normalize(bag)

	// The anonymous principal is a per-request fallback, not a student: it
	// never accumulates baseline or sensitivity state across sessions.
	identified := uid != anonymousUser

	var baseFeatures biomarker.FeatureBag
	if identified {
		if base, err := s.baselines.Load(ctx, uid); err != nil {
			log.Warn("baseline load failed, scoring without baseline", "user_id", uid, "err", err)
		} else if base != nil {
			baseFeatures = base.Features
		}
	}

	mult := sensitivity.MinSensitivity
	if identified {
		mult = s.engine.Multiplier(ctx, uid)
	}
	res := scoring.Score(markers, baseFeatures, mult)

	llmStart := time.Now()
	suggestions := s.suggester.Suggest(ctx, res, markers)
	s.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())

	rec := &session.Record{
		UserID:     uid,
		Score:      res.Score,
		Category:   res.Category,
		Multiplier: res.Multiplier,
		Biomarkers: markers,
	}
	if err := s.sessions.Insert(ctx, rec); err != nil {
		// History is best effort; the student still gets their result.
		log.Error("recording session failed", "user_id", uid, "err", err)
		s.metrics.RecordProviderError(ctx, "postgres")
		rec.ID = session.NewID()
	}

	if identified {
		s.engine.Update(ctx, uid, res.Score)
	}

	if s.dispatcher != nil {
		if s.dispatcher.Observe(ctx, uid, rec.ID, res) {
			s.metrics.RecordAlert(ctx)
		}
	}

	s.metrics.RecordAnalysis(ctx, string(res.Category), input)
	s.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, analyzeResponse{
		SessionID:     rec.ID,
		Score:         res.Score,
		Category:      res.Category,
		Multiplier:    res.Multiplier,
		HighRisk:      res.HighRisk,
		Biomarkers:    markers,
		Suggestions:   suggestions,
		Audio:         audio,
		Contributions: res.Contributions,
	})
}

// analyzeAudio handles the multipart upload path: the clip is decoded and
// analysed locally while the extraction service computes the biomarker
// features, both in parallel. On error it writes the HTTP response itself.
func (s *Server) analyzeAudio(ctx context.Context, w http.ResponseWriter, r *http.Request) (biomarker.FeatureBag, string, *audioInfo, error) {
	if s.extractor == nil {
		err := errors.New("audio uploads disabled")
		writeError(w, http.StatusUnprocessableEntity, "audio uploads are disabled; submit a feature bag instead")
		return nil, "", nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed: "+err.Error())
		return nil, "", nil, err
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, `multipart field "audio" is required`)
		return nil, "", nil, err
	}
	defer file.Close()

	wav, err := io.ReadAll(io.LimitReader(file, dsp.MaxFileSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return nil, "", nil, err
	}
	if len(wav) > dsp.MaxFileSize {
		writeError(w, http.StatusRequestEntityTooLarge, "audio exceeds the 10 MB limit")
		return nil, "", nil, errors.New("audio too large")
	}

	uid := userID(r, r.FormValue("user_id"))

	var (
		bag  biomarker.FeatureBag
		info audioInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		clip, err := dsp.DecodeWAV(wav)
		if err != nil {
			return err
		}
		info = audioInfo{
			DurationSeconds: clip.Duration(),
			SampleRate:      clip.SampleRate,
			Basic:           dsp.Analyze(clip),
		}
		return nil
	})
	g.Go(func() error {
		extractStart := time.Now()
		features, err := s.extractor.ExtractFeatures(gctx, wav)
		s.metrics.ExtractionDuration.Record(gctx, time.Since(extractStart).Seconds())
		if err != nil {
			s.metrics.RecordProviderError(gctx, "extractor")
			return err
		}
		bag = features
		return nil
	})
	if err := g.Wait(); err != nil {
		switch {
		case errors.Is(err, dsp.ErrNotWAV), errors.Is(err, dsp.ErrEmptyAudio):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, extract.ErrUnavailable):
			observe.Logger(ctx).Warn("extraction service unavailable", "user_id", uid)
			writeError(w, http.StatusServiceUnavailable, "feature extraction temporarily unavailable")
		default:
			observe.Logger(ctx).Error("feature extraction failed", "user_id", uid, "err", err)
			writeError(w, http.StatusBadGateway, "feature extraction failed")
		}
		return nil, "", nil, err
	}

	return bag, uid, &info, nil
}
