// Package server exposes the extraction pipeline over HTTP: a multipart
// upload endpoint, a websocket streaming variant, health and format
// discovery endpoints, and Prometheus metrics.
package server

import (
	"context"
	"net/http"

	"github.com/pagesift/pagesift/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// extractor is what the server needs from a pipeline.
type extractor interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    extractor
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int

	Pipeline  pipeline.Config
	RateLimit RateLimitConfig
}

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// NewServer creates a server around a freshly constructed pipeline.
func NewServer(cfg Config) (*Server, error) {
	s := &Server{
		pipeline:    pipeline.New(cfg.Pipeline),
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
		timeoutSec:  cfg.TimeoutSec,
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit.RequestsPerMinute,
			cfg.RateLimit.MaxRequestsPerDay, cfg.RateLimit.MaxDataPerDay)
	}
	return s, nil
}

// SetupRoutes registers all endpoints on the given mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/extract", s.corsMiddleware(s.rateLimitMiddleware(s.extractHandler)))
	mux.HandleFunc("/extract/ws", s.extractStreamHandler)
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/formats", s.corsMiddleware(s.formatsHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// FormatInfo describes one supported output format.
type FormatInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FormatsResponse is the /formats payload.
type FormatsResponse struct {
	Formats []FormatInfo `json:"formats"`
	Count   int          `json:"count"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
