// Package recognize runs optical character recognition over extracted
// bitmaps. The engine is a scoped resource: every pass acquires a session,
// configures its language, recognizes one bitmap, and releases the session
// on every exit path.
package recognize

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine creates recognition sessions. Implementations are not assumed safe
// for concurrent recognition on one session; callers acquire one session
// per pass.
type Engine interface {
	// Name identifies the engine for result metadata.
	Name() string

	// Acquire allocates a session configured for the given recognition
	// language (engine-native code, empty for the engine default).
	Acquire(language string) (Session, error)
}

// Session is one acquired engine instance.
type Session interface {
	// Recognize returns the text recognized in the encoded bitmap.
	Recognize(png []byte) (string, error)

	// Release frees the underlying engine resources.
	Release() error
}

// Tesseract is the gosseract-backed Engine.
type Tesseract struct{}

// Name implements Engine.
func (Tesseract) Name() string { return "tesseract" }

// Acquire allocates a Tesseract client. The client is closed before
// returning an error so a failed configure never leaks the engine.
func (Tesseract) Acquire(language string) (Session, error) {
	client := gosseract.NewClient()
	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to set recognition language %q: %w", language, err)
		}
	}
	return &tesseractSession{client: client}, nil
}

type tesseractSession struct {
	client *gosseract.Client
}

func (s *tesseractSession) Recognize(png []byte) (string, error) {
	if err := s.client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := s.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *tesseractSession) Release() error {
	return s.client.Close()
}
