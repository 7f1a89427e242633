package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pagesift/pagesift/internal/pipeline"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS configuration of the
		// deployment, not per connection.
		return true
	},
}

// StreamRequest is an extraction request sent over a websocket. Document
// bytes travel base64-encoded in JSON.
type StreamRequest struct {
	Document        []byte `json:"document"`
	Filename        string `json:"filename,omitempty"`
	Format          string `json:"format,omitempty"`
	IncludeMetadata bool   `json:"include_metadata,omitempty"`
	IncludeImages   bool   `json:"include_images,omitempty"`
	Language        string `json:"language,omitempty"`
}

// StreamResponse is one websocket message: progress while the pipeline
// runs, then a final completed or error message.
type StreamResponse struct {
	Status string           `json:"status"` // "processing", "completed", "error"
	Stage  string           `json:"stage,omitempty"`
	Done   int              `json:"done,omitempty"`
	Total  int              `json:"total,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// extractStreamHandler runs one extraction per websocket connection,
// streaming per-page progress as the pipeline advances.
func (s *Server) extractStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection to websocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("websocket connection established", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Keep the connection alive while a long extraction runs.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	var streamReq StreamRequest
	if err := conn.ReadJSON(&streamReq); err != nil {
		_ = conn.WriteJSON(StreamResponse{Status: "error", Error: "invalid request: " + err.Error()})
		return
	}

	format, err := pipeline.ParseFormat(streamReq.Format)
	if err != nil {
		_ = conn.WriteJSON(StreamResponse{Status: "error", Error: err.Error()})
		return
	}

	req := pipeline.Request{
		Data:            streamReq.Document,
		Format:          format,
		IncludeMetadata: streamReq.IncludeMetadata,
		IncludeImages:   streamReq.IncludeImages,
		SourceName:      streamReq.Filename,
		SourceSize:      int64(len(streamReq.Document)),
		Language:        streamReq.Language,
		OnProgress: func(stage string, done, total int) {
			msg := StreamResponse{Status: "processing", Stage: stage, Done: done, Total: total}
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("progress write failed", "error", err)
			}
		},
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	res, err := s.pipeline.Run(ctx, req)
	if err != nil {
		_ = conn.WriteJSON(StreamResponse{Status: "error", Error: err.Error()})
		return
	}
	if err := conn.WriteJSON(StreamResponse{Status: "completed", Result: res}); err != nil {
		slog.Debug("result write failed", "error", err)
	}
}
