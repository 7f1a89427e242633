package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dslipak/pdf"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	_ "golang.org/x/image/tiff"
)

// baseDPI is the nominal PDF resolution; Rasterize scales from here.
const baseDPI = 72.0

// PDF is a Document backed by three collaborating readers: go-fitz (MuPDF)
// for page rendering, dslipak/pdf for the positioned text layer, and pdfcpu
// for embedded image extraction.
type PDF struct {
	render *fitz.Document
	text   *pdf.Reader // nil when the text layer cannot be parsed

	tempFile string

	mu       sync.Mutex
	embedded map[int][]RasterObject // populated lazily, all pages at once
}

// Open parses the given document bytes. A failure to open the renderer is a
// structural parse failure; a broken text layer alone is not fatal (such
// documents still rasterize and OCR).
func Open(data []byte) (*PDF, error) {
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}

	render, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	text, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Debug("text layer unavailable", "error", err)
		text = nil
	}

	// pdfcpu's image extraction is file based; stage the payload once and
	// remove it on Close.
	tempFile, err := writeTempFile(data)
	if err != nil {
		_ = render.Close()
		return nil, err
	}

	return &PDF{render: render, text: text, tempFile: tempFile}, nil
}

func writeTempFile(data []byte) (string, error) {
	f, err := os.CreateTemp("", "pagesift-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to stage document: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to stage document: %w", err)
	}
	return f.Name(), nil
}

// PageCount returns the number of pages in the document.
func (d *PDF) PageCount() int {
	return d.render.NumPage()
}

// TextTokens returns the positioned text fragments of the given page in the
// order the text layer yields them (row by row, left to right).
func (d *PDF) TextTokens(page int) ([]Token, error) {
	if d.text == nil || page < 1 || page > d.text.NumPage() {
		return nil, nil
	}

	p := d.text.Page(page)
	if p.V.IsNull() {
		return nil, nil
	}

	rows, err := p.GetTextByRow()
	if err != nil {
		// Fall back to the flat text stream for pages the row scanner
		// cannot handle.
		fonts := make(map[string]*pdf.Font)
		plain, perr := p.GetPlainText(fonts)
		if perr != nil || plain == "" {
			return nil, nil
		}
		return []Token{{Text: plain}}, nil
	}

	var tokens []Token
	for _, row := range rows {
		for _, frag := range row.Content {
			if frag.S == "" {
				continue
			}
			tokens = append(tokens, Token{Text: frag.S, X: frag.X, Y: frag.Y})
		}
	}
	return tokens, nil
}

// RasterObjects returns the embedded bitmaps of the given page. Extraction
// runs once for the whole document on first use.
func (d *PDF) RasterObjects(page int) ([]RasterObject, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.embedded == nil {
		extracted, err := d.extractEmbedded()
		if err != nil {
			return nil, err
		}
		d.embedded = extracted
	}
	return d.embedded[page], nil
}

// extractEmbedded pulls every embedded image out of the document via pdfcpu.
// Individual objects that fail to decode are skipped.
func (d *PDF) extractEmbedded() (map[int][]RasterObject, error) {
	tempDir, err := os.MkdirTemp("", "pagesift-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(d.tempFile, tempDir, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to extract embedded images: %w", err)
	}

	result := make(map[int][]RasterObject)
	err = filepath.Walk(tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		pageNum, err := parsePageFromFilename(info.Name())
		if err != nil {
			// Not a page image artifact
			return nil
		}

		img, err := loadImageFile(path)
		if err != nil {
			slog.Debug("skipping undecodable embedded image", "file", info.Name(), "error", err)
			return nil
		}

		result[pageNum] = append(result[pageNum], RasterObject{Name: info.Name(), Image: img})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect embedded images: %w", err)
	}
	return result, nil
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from our own temp dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

// parsePageFromFilename extracts the page number from a pdfcpu artifact name
// of the form <base>_<page>_Im<obj>.<ext> or page_<page>_image_<n>.<ext>.
func parsePageFromFilename(filename string) (int, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return 0, errors.New("not a page image artifact")
	}
	// The page number is the last purely numeric segment before the object id.
	for i := len(parts) - 1; i >= 1; i-- {
		if n, err := strconv.Atoi(parts[i]); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("no page number in filename")
}

// Rasterize renders the full page at scale times the nominal resolution.
func (d *PDF) Rasterize(page int, scale float64) (image.Image, error) {
	if page < 1 || page > d.render.NumPage() {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	if scale <= 0 {
		scale = 1.0
	}
	// go-fitz pages are zero-indexed.
	img, err := d.render.ImageDPI(page-1, baseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}

// Close releases the renderer and removes the staged temp file.
func (d *PDF) Close() error {
	var errs []error
	if d.render != nil {
		if err := d.render.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.tempFile != "" {
		if err := os.Remove(d.tempFile); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
