package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pagesift/pagesift/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePipeline returns scripted results.
type fakePipeline struct {
	result  *pipeline.Result
	err     error
	lastReq pipeline.Request
}

func (f *fakePipeline) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testServer(p extractor) *Server {
	return &Server{pipeline: p, corsOrigin: "*", maxUploadMB: 10, timeoutSec: 30}
}

// multipartBody builds a multipart form with a document file and fields.
func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("document", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestExtractHandlerSuccess(t *testing.T) {
	text := "Hello world."
	fake := &fakePipeline{result: &pipeline.Result{Text: &text}}
	srv := testServer(fake)

	body, contentType := multipartBody(t, "doc.pdf", []byte("%PDF-1.7"), map[string]string{
		"format":           "text",
		"include_metadata": "true",
		"language":         "en",
	})
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.extractHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Text)
	assert.Equal(t, "Hello world.", *res.Text)

	assert.Equal(t, pipeline.FormatText, fake.lastReq.Format)
	assert.True(t, fake.lastReq.IncludeMetadata)
	assert.False(t, fake.lastReq.IncludeImages)
	assert.Equal(t, "doc.pdf", fake.lastReq.SourceName)
	assert.Equal(t, "en", fake.lastReq.Language)
	assert.Equal(t, []byte("%PDF-1.7"), fake.lastReq.Data)
}

func TestExtractHandlerMissingFile(t *testing.T) {
	srv := testServer(&fakePipeline{})

	body, contentType := multipartBody(t, "", nil, map[string]string{"format": "text"})
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.extractHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractHandlerUnknownFormat(t *testing.T) {
	srv := testServer(&fakePipeline{})

	body, contentType := multipartBody(t, "doc.pdf", []byte("x"), map[string]string{"format": "xml"})
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.extractHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractHandlerMethodNotAllowed(t *testing.T) {
	srv := testServer(&fakePipeline{})

	req := httptest.NewRequest(http.MethodGet, "/extract", nil)
	rec := httptest.NewRecorder()

	srv.extractHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExtractHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &pipeline.ValidationError{Reason: "bad"}, http.StatusBadRequest},
		{"parse", &pipeline.ParseError{Err: errors.New("bad xref")}, http.StatusBadRequest},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(&fakePipeline{err: tt.err})

			body, contentType := multipartBody(t, "doc.pdf", []byte("x"), map[string]string{"format": "text"})
			req := httptest.NewRequest(http.MethodPost, "/extract", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			srv.extractHandler(rec, req)

			assert.Equal(t, tt.want, rec.Code)

			var errRes ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errRes))
			assert.NotEmpty(t, errRes.Error)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	srv := testServer(&fakePipeline{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.healthHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var res HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "healthy", res.Status)
	assert.NotEmpty(t, res.Time)
}

func TestFormatsHandler(t *testing.T) {
	srv := testServer(&fakePipeline{})

	req := httptest.NewRequest(http.MethodGet, "/formats", nil)
	rec := httptest.NewRecorder()

	srv.formatsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var res FormatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 4, res.Count)

	names := make([]string, len(res.Formats))
	for i, f := range res.Formats {
		names[i] = f.Name
	}
	assert.ElementsMatch(t, []string{"text", "markdown", "images", "ocr"}, names)
}

func TestCORSMiddleware(t *testing.T) {
	srv := testServer(&fakePipeline{})
	handler := srv.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/extract", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("passthrough", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
