// Package textflow reconstructs linear, readable text from the loosely
// ordered token runs a document's text layer yields. The result is a
// best-effort rendition of reading order, not a faithful copy of the visual
// layout: token runs are not necessarily word-segmented.
package textflow

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pagesift/pagesift/internal/document"
)

// ReconstructPage folds a page's token sequence into a single string.
//
// Spacing policy, applied left to right: after sentence-terminal punctuation
// one space is inserted before the next token; a token following trailing
// whitespace is appended directly; every other boundary gets exactly one
// space. The page string is trimmed, never contains runs of spaces, and is
// empty for pages without text.
func ReconstructPage(tokens []document.Token) string {
	var b strings.Builder
	var last rune

	for _, tok := range tokens {
		text := normalizeToken(tok.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			switch {
			case isSentenceTerminal(last):
				b.WriteByte(' ')
			case unicode.IsSpace(last):
				// already separated
			default:
				b.WriteByte(' ')
			}
		}
		b.WriteString(text)
		last, _ = utf8.DecodeLastRuneInString(text)
	}

	return strings.TrimSpace(b.String())
}

// Reconstruct joins per-page reconstructions with one blank line between
// pages. Empty pages contribute nothing; an empty document yields "".
func Reconstruct(pages [][]document.Token) string {
	var parts []string
	for _, tokens := range pages {
		if page := ReconstructPage(tokens); page != "" {
			parts = append(parts, page)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// Markdown wraps reconstructed text with a single top-level header naming
// the source document.
func Markdown(sourceName, text string) string {
	return "# " + sourceName + "\n\n" + text
}

// normalizeToken collapses any internal whitespace runs to single spaces so
// the page-level spacing invariant holds for arbitrary parser output.
func normalizeToken(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
