package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pagesift/pagesift/internal/raster"
)

// ErrEngineUnavailable marks engine acquisition failures. Unlike per-image
// recognition failures these abort the batch: if the engine cannot be
// acquired at all, no pass can succeed.
var ErrEngineUnavailable = errors.New("recognition engine unavailable")

// Orchestrator runs recognition passes over a batch of images.
type Orchestrator struct {
	engine   Engine
	language string
}

// NewOrchestrator creates an orchestrator using the given engine and
// engine-native language code.
func NewOrchestrator(engine Engine, language string) *Orchestrator {
	return &Orchestrator{engine: engine, language: language}
}

// EngineName reports the underlying engine's identifier.
func (o *Orchestrator) EngineName() string {
	return o.engine.Name()
}

// Run recognizes every image in order and joins the non-empty blocks with
// one blank line, preserving image order. A failed pass skips only that
// image's contribution; a batch where every pass fails yields an empty
// string, not an error. Only engine acquisition failures propagate.
func (o *Orchestrator) Run(ctx context.Context, images []raster.Image) (string, error) {
	var blocks []string
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := o.pass(img)
		if err != nil {
			if errors.Is(err, ErrEngineUnavailable) {
				return "", err
			}
			slog.Debug("recognition pass failed", "page", img.Page, "kind", img.Kind, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			blocks = append(blocks, text)
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// pass performs one scoped acquire/recognize/release cycle for a single
// image. The session is released on every exit path; release failures are
// logged, never propagated.
func (o *Orchestrator) pass(img raster.Image) (string, error) {
	session, err := o.engine.Acquire(o.language)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	defer func() {
		if err := session.Release(); err != nil {
			slog.Warn("recognition engine release failed", "error", err)
		}
	}()

	return session.Recognize(img.PNG)
}
