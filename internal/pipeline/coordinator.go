package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagesift/pagesift/internal/document"
	"github.com/pagesift/pagesift/internal/raster"
	"github.com/pagesift/pagesift/internal/recognize"
	"github.com/pagesift/pagesift/internal/textflow"
)

// stage is the tagged state of one request's execution. Transitions are
// strictly forward: idle → validated → rasterized → primary → recognized →
// assembled, with rasterized and recognized skipped when the request does
// not need them.
type stage int

const (
	stageIdle stage = iota
	stageValidated
	stageRasterized
	stagePrimary
	stageRecognized
	stageAssembled
)

func (s stage) String() string {
	switch s {
	case stageIdle:
		return "idle"
	case stageValidated:
		return "validated"
	case stageRasterized:
		return "rasterized"
	case stagePrimary:
		return "primary"
	case stageRecognized:
		return "recognized"
	case stageAssembled:
		return "assembled"
	default:
		return "unknown"
	}
}

// execution threads the per-request state through the stage functions. All
// buffers are owned by the execution and discarded when the request ends.
type execution struct {
	stage     stage
	req       Request
	doc       document.Document
	pageCount int

	// rasterized is set when the extractor has run; it runs at most once
	// per request and its output is shared by recognition and assembly.
	rasterized bool
	images     []raster.Image

	text       string
	recognized string
}

func (e *execution) advance(from, to stage) error {
	if e.stage != from {
		return fmt.Errorf("invalid stage transition %s -> %s (at %s)", from, to, e.stage)
	}
	e.stage = to
	return nil
}

func (e *execution) progress(done, total int) {
	if e.req.OnProgress != nil {
		e.req.OnProgress(e.stage.String(), done, total)
	}
}

// Config holds pipeline-wide settings.
type Config struct {
	// Language is the default recognition language (BCP-47 or a native
	// engine code), overridable per request.
	Language string

	// Raster configures the image extraction stage.
	Raster raster.Config
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{Raster: raster.DefaultConfig()}
}

// rasterExtractor is the extraction stage as the coordinator sees it.
type rasterExtractor interface {
	Extract(ctx context.Context, doc document.Document) []raster.Image
}

// Coordinator runs extraction requests through the stage machine.
type Coordinator struct {
	cfg    Config
	engine recognize.Engine

	// Injection points for tests; production uses document.Open and
	// raster.NewExtractor.
	open         func([]byte) (document.Document, error)
	newExtractor func(raster.Config) rasterExtractor
}

// New creates a coordinator with the Tesseract recognition engine.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		engine: recognize.Tesseract{},
		open: func(data []byte) (document.Document, error) {
			return document.Open(data)
		},
		newExtractor: func(rc raster.Config) rasterExtractor {
			return raster.NewExtractor(rc)
		},
	}
}

// Run executes one extraction request start to finish.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	e := &execution{stage: stageIdle, req: req}

	if err := c.validate(e); err != nil {
		return nil, err
	}

	doc, err := c.open(e.req.Data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	defer func() {
		if err := doc.Close(); err != nil {
			slog.Warn("document close failed", "error", err)
		}
	}()
	e.doc = doc
	e.pageCount = doc.PageCount()

	if err := c.rasterize(ctx, e); err != nil {
		return nil, err
	}
	if err := c.extractPrimary(ctx, e); err != nil {
		return nil, err
	}
	if err := c.recognizeImages(ctx, e); err != nil {
		return nil, err
	}
	return c.assemble(e)
}

// validate checks the request before any stage runs and normalizes the
// inclusion flags: for the images format the image sequence is the entire
// payload, so IncludeImages is forced on.
func (c *Coordinator) validate(e *execution) error {
	if len(e.req.Data) == 0 {
		return &ValidationError{Reason: "no document payload provided"}
	}
	switch e.req.Format {
	case FormatText, FormatMarkdown, FormatImages, FormatOCR:
	default:
		return &ValidationError{Reason: fmt.Sprintf("unsupported format %q", e.req.Format)}
	}
	if e.req.Format == FormatImages {
		e.req.IncludeImages = true
	}
	if err := e.advance(stageIdle, stageValidated); err != nil {
		return err
	}
	e.progress(0, 0)
	return nil
}

func (e *execution) needsRaster() bool {
	return e.req.Format == FormatImages || e.req.Format == FormatOCR || e.req.IncludeImages
}

// rasterize runs the raster extractor at most once per request. The
// resulting sequence is reused by both recognition and assembly.
func (c *Coordinator) rasterize(ctx context.Context, e *execution) error {
	if !e.needsRaster() {
		return nil
	}
	if err := e.advance(stageValidated, stageRasterized); err != nil {
		return err
	}

	rc := c.cfg.Raster
	if e.req.OnProgress != nil {
		rc.OnPage = func(done, total int) { e.progress(done, total) }
	}
	e.images = c.newExtractor(rc).Extract(ctx, e.doc)
	e.rasterized = true
	return ctx.Err()
}

// extractPrimary reconstructs the document text for the text-bearing
// formats. Pages whose token extraction fails contribute an empty page and
// do not abort the request.
func (c *Coordinator) extractPrimary(ctx context.Context, e *execution) error {
	if e.stage != stageValidated && e.stage != stageRasterized {
		return fmt.Errorf("invalid stage transition %s -> %s", e.stage, stagePrimary)
	}
	e.stage = stagePrimary

	if e.req.Format != FormatText && e.req.Format != FormatMarkdown {
		return nil
	}

	pages := make([][]document.Token, 0, e.pageCount)
	for page := 1; page <= e.pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tokens, err := e.doc.TextTokens(page)
		if err != nil {
			slog.Debug("token extraction failed", "page", page, "error", err)
			continue
		}
		pages = append(pages, tokens)
	}
	e.text = textflow.Reconstruct(pages)
	if e.req.Format == FormatMarkdown {
		e.text = textflow.Markdown(e.req.SourceName, e.text)
	}
	e.progress(0, 0)
	return nil
}

// recognizeImages runs the recognition orchestrator over the already
// rasterized sequence for the OCR format.
func (c *Coordinator) recognizeImages(ctx context.Context, e *execution) error {
	if e.req.Format != FormatOCR {
		return nil
	}
	if err := e.advance(stagePrimary, stageRecognized); err != nil {
		return err
	}

	lang := e.req.Language
	if lang == "" {
		lang = c.cfg.Language
	}
	orch := recognize.NewOrchestrator(c.engine, recognize.TesseractLanguage(lang))
	text, err := orch.Run(ctx, e.images)
	if err != nil {
		return err
	}
	e.recognized = text
	e.progress(0, 0)
	return nil
}

// assemble builds the final result under the field-presence contract:
// exactly one primary payload per format, secondary fields strictly
// additive via the inclusion flags.
func (c *Coordinator) assemble(e *execution) (*Result, error) {
	if e.stage != stagePrimary && e.stage != stageRecognized {
		return nil, fmt.Errorf("invalid stage transition %s -> %s", e.stage, stageAssembled)
	}
	e.stage = stageAssembled

	res := &Result{}
	switch e.req.Format {
	case FormatText, FormatMarkdown:
		res.Text = &e.text
	case FormatImages:
		res.Images = imagePayloads(e.images)
	case FormatOCR:
		res.Text = &e.recognized
	}

	if e.req.IncludeImages && e.req.Format != FormatImages {
		res.Images = imagePayloads(e.images)
	}
	if e.req.IncludeMetadata {
		res.Metadata = &Metadata{
			SourceName:    e.req.SourceName,
			SourceSize:    e.req.SourceSize,
			PageCount:     e.pageCount,
			ProcessedAt:   time.Now().UTC().Format(time.RFC3339),
			ProcessedWith: c.processedWith(e.req.Format),
		}
	}
	e.progress(0, 0)
	return res, nil
}

// processedWith names the stage combination actually executed for a
// format, naming the concrete engine for OCR rather than the requested
// format alone.
func (c *Coordinator) processedWith(f Format) string {
	switch f {
	case FormatText:
		return "text"
	case FormatMarkdown:
		return "markdown"
	case FormatImages:
		return "raster"
	case FormatOCR:
		return "raster+" + c.engine.Name()
	default:
		return string(f)
	}
}
