package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/soundmind-app/soundmind/internal/baseline"
	"github.com/soundmind-app/soundmind/internal/biomarker"
	"github.com/soundmind-app/soundmind/internal/observe"
	"github.com/soundmind-app/soundmind/pkg/dsp"
)

// calibrateResponse confirms a stored baseline.
type calibrateResponse struct {
	UserID     string    `json:"userId"`
	CapturedAt time.Time `json:"capturedAt"`
}

// handleCalibrate stores a new calm-reading baseline for the student and
// resets their sensitivity adaptation, since old stress history predates the
// new reference point.
func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	var (
		bag biomarker.FeatureBag
		uid string
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		if s.extractor == nil {
			writeError(w, http.StatusUnprocessableEntity, "audio uploads are disabled; submit a feature bag instead")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed: "+err.Error())
			return
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			writeError(w, http.StatusBadRequest, `multipart field "audio" is required`)
			return
		}
		defer file.Close()
		wav, err := io.ReadAll(io.LimitReader(file, dsp.MaxFileSize+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
			return
		}
		if len(wav) > dsp.MaxFileSize {
			writeError(w, http.StatusRequestEntityTooLarge, "audio exceeds the 10 MB limit")
			return
		}
		uid = userID(r, r.FormValue("user_id"))

		extractStart := time.Now()
		bag, err = s.extractor.ExtractFeatures(ctx, wav)
		s.metrics.ExtractionDuration.Record(ctx, time.Since(extractStart).Seconds())
		if err != nil {
			s.metrics.RecordProviderError(ctx, "extractor")
			log.Error("calibration extraction failed", "user_id", uid, "err", err)
			writeError(w, http.StatusBadGateway, "feature extraction failed")
			return
		}
	} else {
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

	// A baseline is long-lived per-student state; the anonymous principal
	// must never accumulate one.
	if uid == anonymousUser {
		writeError(w, http.StatusBadRequest, "calibration requires a student identity")
		return
	}

	b := &baseline.Baseline{
		Features:   bag,
		CapturedAt: time.Now().UTC(),
	}
	if err := s.baselines.Save(ctx, uid, b); err != nil {
		log.Error("saving baseline failed", "user_id", uid, "err", err)
		writeError(w, http.StatusInternalServerError, "saving baseline failed")
		return
	}
	if err := s.engine.Reset(ctx, uid); err != nil {
		// The baseline is stored; stale adaptation corrects itself over the
		// next few sessions, so report success anyway.
		log.Warn("resetting sensitivity after calibration failed", "user_id", uid, "err", err)
	}

	s.metrics.Calibrations.Add(ctx, 1)
	log.Info("baseline calibrated", "user_id", uid)

	writeJSON(w, http.StatusOK, calibrateResponse{UserID: uid, CapturedAt: b.CapturedAt})
}

// handleClearCalibration deletes the stored baseline and resets sensitivity
// adaptation, returning the student to uncalibrated scoring.
func (s *Server) handleClearCalibration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	uid := userID(r, "")
	if uid == anonymousUser {
		writeError(w, http.StatusBadRequest, "clearing a calibration requires a student identity")
		return
	}

	if err := s.baselines.Clear(ctx, uid); err != nil {
		log.Error("clearing baseline failed", "user_id", uid, "err", err)
		writeError(w, http.StatusInternalServerError, "clearing baseline failed")
		return
	}
	if err := s.engine.Reset(ctx, uid); err != nil {
		log.Warn("resetting sensitivity after clearing baseline failed", "user_id", uid, "err", err)
	}

	log.Info("baseline cleared", "user_id", uid)
	w.WriteHeader(http.StatusNoContent)
}
