// Package extract provides an HTTP client for the Praat-based phonetics
// extraction service.
//
// The service accepts a WAV recording as multipart/form-data on
// POST /extract_features and returns the acoustic feature bag consumed by
// biomarker normalization: F0 statistics, jitter, shimmer, formants, speech
// rate, and the basic spectral features.
//
// Usage:
//
//	c, err := extract.New("http://localhost:8000",
//	    extract.WithTimeout(20*time.Second),
//	)
//	bag, err := c.ExtractFeatures(ctx, wavBytes)
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/soundmind-app/soundmind/internal/resilience"
)

// ErrUnavailable is returned by [Client.ExtractFeatures] while the service's
// circuit breaker is open. Callers can fall back to local analysis.
var ErrUnavailable = resilience.ErrUnavailable

const (
	defaultTimeout = 30 * time.Second

	// maxResponseBytes bounds how much of the service response is read.
	maxResponseBytes = 1 << 20
)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithTimeout sets the HTTP request timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client talks to a running phonetics extraction service.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// New creates a Client for the service at baseURL (e.g. "http://localhost:8000").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("extract: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		breaker:    resilience.NewBreaker(resilience.Settings{Name: "extractor"}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ExtractFeatures uploads wav and returns the extracted feature bag as a
// flat key→value map ready for biomarker normalization.
//
// Calls run through a circuit breaker; after repeated failures it returns
// [ErrUnavailable] immediately instead of waiting out HTTP timeouts.
func (c *Client) ExtractFeatures(ctx context.Context, wav []byte) (map[string]any, error) {
	var bag map[string]any
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		bag, err = c.extractFeatures(ctx, wav)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bag, nil
}

func (c *Client) extractFeatures(ctx context.Context, wav []byte) (map[string]any, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", "recording.wav")
	if err != nil {
		return nil, fmt.Errorf("extract: create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("extract: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("extract: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract_features", &body)
	if err != nil {
		return nil, fmt.Errorf("extract: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract: request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("extract: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extract: service returned HTTP %d: %s", resp.StatusCode, truncate(payload, 200))
	}

	var bag map[string]any
	if err := json.Unmarshal(payload, &bag); err != nil {
		return nil, fmt.Errorf("extract: decode response: %w", err)
	}
	return bag, nil
}

// Health checks the service's /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("extract: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("extract: health request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extract: health returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
