package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/soundmind-app/soundmind/internal/observe"
)

// tokenRequest asks for a short-lived chat token.
type tokenRequest struct {
	UserID string `json:"userId"`
}

// tokenResponse carries the signed token and its expiry.
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleChatToken issues a short-lived HS256 token a browser client can
// present to the companion chat service. The endpoint is disabled when no
// signing secret is configured.
func (s *Server) handleChatToken(w http.ResponseWriter, r *http.Request) {
	if len(s.tokenSecret) == 0 {
		writeError(w, http.StatusNotImplemented, "chat tokens are not configured")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	uid := userID(r, req.UserID)

	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		Issuer:    "soundmind",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokenSecret)
	if err != nil {
		observe.Logger(r.Context()).Error("signing chat token failed", "user_id", uid, "err", err)
		writeError(w, http.StatusInternalServerError, "signing token failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: signed, ExpiresAt: expiresAt})
}
