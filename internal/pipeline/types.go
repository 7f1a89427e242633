// Package pipeline coordinates the per-request extraction stages: structural
// parse, text reconstruction, rasterization, recognition, and final result
// assembly under the format and inclusion-flag matrix.
package pipeline

import (
	"fmt"

	"github.com/pagesift/pagesift/internal/raster"
)

// Format selects the primary payload of an extraction.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatImages   Format = "images"
	FormatOCR      Format = "ocr"
)

// Formats lists every supported output format.
func Formats() []Format {
	return []Format{FormatText, FormatMarkdown, FormatImages, FormatOCR}
}

// ParseFormat validates a caller-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatMarkdown, FormatImages, FormatOCR:
		return Format(s), nil
	case "":
		return FormatText, nil
	default:
		return "", &ValidationError{Reason: fmt.Sprintf("unsupported format %q", s)}
	}
}

// ProgressFunc receives stage progress while a request runs. done/total are
// page counts during rasterization and zero for instantaneous stages.
type ProgressFunc func(stage string, done, total int)

// Request describes one extraction.
type Request struct {
	Data            []byte
	Format          Format
	IncludeMetadata bool
	IncludeImages   bool
	SourceName      string
	SourceSize      int64

	// Language is the recognition language as a BCP-47 tag or native
	// engine code. Empty selects the configured default.
	Language string

	// OnProgress, when set, receives stage transitions.
	OnProgress ProgressFunc
}

// ImagePayload is one extracted image as it appears in a Result. Data is
// the lossless PNG encoding (base64 in JSON).
type ImagePayload struct {
	Data   []byte `json:"data"`
	Kind   string `json:"kind"`
	Page   int    `json:"page"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	SourceName    string `json:"sourceName"`
	SourceSize    int64  `json:"sourceSize"`
	PageCount     int    `json:"pageCount"`
	ProcessedAt   string `json:"processedAt"`
	ProcessedWith string `json:"processedWith"`
}

// Result is the assembled response. Exactly one of Text/Images is the
// primary payload per format; the other appears only via the inclusion
// flags, and Metadata only via IncludeMetadata.
type Result struct {
	Text     *string        `json:"text,omitempty"`
	Images   []ImagePayload `json:"images,omitempty"`
	Metadata *Metadata      `json:"metadata,omitempty"`
}

func imagePayloads(images []raster.Image) []ImagePayload {
	if len(images) == 0 {
		return nil
	}
	out := make([]ImagePayload, len(images))
	for i, img := range images {
		out[i] = ImagePayload{
			Data:   img.PNG,
			Kind:   string(img.Kind),
			Page:   img.Page,
			Width:  img.Width,
			Height: img.Height,
		}
	}
	return out
}
