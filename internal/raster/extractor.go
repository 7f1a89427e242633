// Package raster turns document pages into a flat, ordered sequence of
// encoded bitmaps: one full-page render per page plus every embedded image
// above the noise threshold, all normalized to opaque pixels over a white
// background and encoded as PNG.
package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pagesift/pagesift/internal/document"
)

// Kind distinguishes full-page renders from embedded bitmaps.
type Kind string

const (
	KindPage     Kind = "page"
	KindEmbedded Kind = "embedded"
)

// Image is one extracted bitmap, losslessly encoded.
type Image struct {
	PNG    []byte `json:"data"`
	Kind   Kind   `json:"kind"`
	Page   int    `json:"page"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Config controls extraction.
type Config struct {
	// Embedded bitmaps at or below these dimensions are treated as
	// decoration and discarded.
	MinWidth  int
	MinHeight int

	// Scale is the page render oversampling factor.
	Scale float64

	// MaxWorkers bounds the per-page worker pool (0 = NumCPU).
	MaxWorkers int

	// OnPage, when set, is called after each page completes with the
	// number of finished pages and the page total.
	OnPage func(done, total int)
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		MinWidth:  50,
		MinHeight: 50,
		Scale:     2.0,
	}
}

// Extractor extracts page and embedded bitmaps from documents.
type Extractor struct {
	cfg Config
}

// NewExtractor creates an extractor with the given configuration, filling in
// defaults for unset fields.
func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = def.MinWidth
	}
	if cfg.MinHeight <= 0 {
		cfg.MinHeight = def.MinHeight
	}
	if cfg.Scale <= 0 {
		cfg.Scale = def.Scale
	}
	return &Extractor{cfg: cfg}
}

type pageResult struct {
	page   int
	images []Image
}

// Extract walks every page and returns the merged, ordered image sequence:
// ascending by page, full-page renders before embedded bitmaps within a
// page. Per-item failures are skipped; a document-level failure yields an
// empty sequence, never an error.
func (e *Extractor) Extract(ctx context.Context, doc document.Document) []Image {
	total := doc.PageCount()
	if total <= 0 {
		return nil
	}

	workers := e.cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > total {
		workers = total
	}

	jobs := make(chan int, total)
	results := make(chan pageResult, total)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				if ctx.Err() != nil {
					results <- pageResult{page: page}
					continue
				}
				results <- pageResult{page: page, images: e.extractPage(doc, page)}
			}
		}()
	}

	for page := 1; page <= total; page++ {
		jobs <- page
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var images []Image
	done := 0
	for res := range results {
		images = append(images, res.images...)
		done++
		if e.cfg.OnPage != nil {
			e.cfg.OnPage(done, total)
		}
	}

	// Completion order is arbitrary under the pool; restore the contract
	// ordering before handing the sequence downstream.
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Page != images[j].Page {
			return images[i].Page < images[j].Page
		}
		return images[i].Kind == KindPage && images[j].Kind == KindEmbedded
	})
	return images
}

// extractPage produces the full-page render followed by the page's
// qualifying embedded bitmaps. Failures are logged and skipped.
func (e *Extractor) extractPage(doc document.Document, page int) []Image {
	var images []Image

	if rendered, err := doc.Rasterize(page, e.cfg.Scale); err != nil {
		slog.Debug("page render failed", "page", page, "error", err)
	} else if img, ok := e.encode(rendered, KindPage, page); ok {
		images = append(images, img)
	}

	objects, err := doc.RasterObjects(page)
	if err != nil {
		slog.Debug("embedded image enumeration failed", "page", page, "error", err)
		return images
	}
	for _, obj := range objects {
		if obj.Image == nil {
			continue
		}
		bounds := obj.Image.Bounds()
		if bounds.Dx() <= e.cfg.MinWidth || bounds.Dy() <= e.cfg.MinHeight {
			continue
		}
		if img, ok := e.encode(obj.Image, KindEmbedded, page); ok {
			images = append(images, img)
		}
	}
	return images
}

// encode normalizes a bitmap to opaque RGBA over white and encodes it as
// PNG.
func (e *Extractor) encode(src image.Image, kind Kind, page int) (Image, bool) {
	flat := flatten(src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		slog.Debug("image encode failed", "page", page, "kind", kind, "error", err)
		return Image{}, false
	}

	bounds := flat.Bounds()
	return Image{
		PNG:    buf.Bytes(),
		Kind:   kind,
		Page:   page,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, true
}

// flatten composites src onto an opaque white background, yielding a
// uniform four-channel result with alpha 255 everywhere regardless of the
// source channel count.
func flatten(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, src, image.Pt(0, 0), 1.0)
}
