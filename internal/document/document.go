// Package document defines the structural-parser surface consumed by the
// extraction pipeline: page counts, per-page text tokens, embedded raster
// objects, and full-page rasterization. The PDF implementation lives in
// pdf.go; the pipeline itself only depends on the Document interface.
package document

import "image"

// Token is a positioned text fragment in page reading order.
type Token struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// RasterObject is an embedded bitmap referenced by a page's content stream,
// already decoded to a pixel representation.
type RasterObject struct {
	Name  string
	Image image.Image
}

// Document is a parsed, page-structured document.
//
// Pages are addressed 1-based. Implementations are not assumed safe for
// concurrent use of the same page; callers coordinate access per page.
type Document interface {
	// PageCount returns the number of pages.
	PageCount() int

	// TextTokens returns the page's text fragments in reading order.
	// A page without a text layer yields an empty slice, not an error.
	TextTokens(page int) ([]Token, error)

	// RasterObjects returns the embedded bitmaps painted by the page.
	RasterObjects(page int) ([]RasterObject, error)

	// Rasterize renders the full page at the given oversampling factor
	// (1.0 = nominal resolution) onto an opaque background.
	Rasterize(page int, scale float64) (image.Image, error)

	// Close releases parser resources and any temporary files.
	Close() error
}
