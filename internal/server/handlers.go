package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pagesift/pagesift/internal/pipeline"
	"github.com/pagesift/pagesift/internal/recognize"
	"github.com/pagesift/pagesift/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	v, _, _ := version.Info()
	response := HealthResponse{
		Status:  "healthy",
		Version: v,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, response)
}

// formatsHandler enumerates the supported output formats.
func (s *Server) formatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	descriptions := map[pipeline.Format]string{
		pipeline.FormatText:     "Plain text reconstructed from the document's text layer",
		pipeline.FormatMarkdown: "Reconstructed text with a Markdown title header",
		pipeline.FormatImages:   "Page renders and embedded images as PNG",
		pipeline.FormatOCR:      "Text recognized from rasterized pages and images",
	}

	formats := pipeline.Formats()
	infos := make([]FormatInfo, len(formats))
	for i, f := range formats {
		infos[i] = FormatInfo{Name: string(f), Description: descriptions[f]}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, FormatsResponse{Formats: infos, Count: len(infos)})
}

// extractHandler processes document extraction requests.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := s.parseExtractRequest(w, r)
	if err != nil {
		extractRequestsTotal.WithLabelValues("unknown", "error").Inc()
		return // error already written
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	res, err := s.pipeline.Run(ctx, *req)
	duration := time.Since(start)

	format := string(req.Format)
	if err != nil {
		extractRequestsTotal.WithLabelValues(format, "error").Inc()
		s.writePipelineError(w, err)
		return
	}

	extractRequestsTotal.WithLabelValues(format, "success").Inc()
	extractDuration.WithLabelValues(format).Observe(duration.Seconds())
	extractImagesReturned.WithLabelValues(format).Observe(float64(len(res.Images)))

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, res)
}

// parseExtractRequest validates the multipart form and builds the pipeline
// request. On error the response has already been written.
func (s *Server) parseExtractRequest(w http.ResponseWriter, r *http.Request) (*pipeline.Request, error) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		s.handleFormParseError(w, err)
		return nil, err
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		s.writeErrorResponse(w, "No document provided", http.StatusBadRequest)
		return nil, err
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, errors.New("file too large")
	}
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read document", http.StatusInternalServerError)
		return nil, err
	}

	format, err := pipeline.ParseFormat(r.FormValue("format"))
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, err
	}

	return &pipeline.Request{
		Data:            data,
		Format:          format,
		IncludeMetadata: parseBoolField(r, "include_metadata"),
		IncludeImages:   parseBoolField(r, "include_images"),
		SourceName:      header.Filename,
		SourceSize:      header.Size,
		Language:        r.FormValue("language"),
	}, nil
}

func parseBoolField(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.FormValue(name))
	return err == nil && v
}

func (s *Server) handleFormParseError(w http.ResponseWriter, err error) {
	// Distinguish body-too-large from generic parse error
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "body too large") || strings.Contains(msg, "request body too large") {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
	} else {
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
	}
}

// writePipelineError maps pipeline failures to status codes: validation and
// parse failures are client errors, everything else is internal.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var validationErr *pipeline.ValidationError
	var parseErr *pipeline.ParseError
	switch {
	case errors.As(err, &validationErr):
		s.writeErrorResponse(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &parseErr):
		s.writeErrorResponse(w, parseErr.Error(), http.StatusBadRequest)
	case errors.Is(err, recognize.ErrEngineUnavailable):
		s.writeErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, "Extraction timed out", http.StatusGatewayTimeout)
	default:
		s.writeErrorResponse(w, fmt.Sprintf("Extraction failed: %v", err), http.StatusInternalServerError)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		http.Error(w, message, status)
	}
}
