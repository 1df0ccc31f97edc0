package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/corpus/fetch"
)

const (
	pdfTitleMax      = 100
	pdfFallbackTitle = "Untitled PDF document"
)

// extractPDF downloads a PDF (bounded in time and size) and extracts its
// text page by page. All pages land in one document; the text is already
// linearized so page boundaries carry no meaning downstream.
func (s *Service) extractPDF(ctx context.Context, rawURL string) ([]pageDoc, error) {
	res, err := s.fetcher.Get(ctx, rawURL, &fetch.Options{
		Timeout:  s.cfg.PDFTimeout,
		MaxBytes: s.cfg.PDFMaxBytes,
		Accept:   "application/pdf",
	})
	if err != nil {
		return nil, fmt.Errorf("download pdf: %w", err)
	}

	if !looksLikePDF(res.ContentType, res.Body) {
		return nil, fmt.Errorf("%w: %s served %q without a PDF signature",
			ErrUnsupportedContent, rawURL, res.ContentType)
	}

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(res.Body), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("parse pdf %s: %w", rawURL, err)
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		pageText := pdfPageText(pdfCtx, pageNr)
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(pageText)
	}

	text := sb.String()
	if text == "" {
		return nil, fmt.Errorf("%w: pdf %s has no text layer", ErrEmptyContent, rawURL)
	}

	return []pageDoc{{URL: rawURL, Title: pdfTitle(text), Text: text}}, nil
}

// looksLikePDF accepts either a pdf content type or the %PDF magic bytes, so
// misconfigured servers that send octet-stream still work.
func looksLikePDF(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF"))
}

// pdfTitle takes the first non-blank line, capped at pdfTitleMax runes.
func pdfTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > pdfTitleMax {
			return string(r[:pdfTitleMax])
		}
		return line
	}
	return pdfFallbackTitle
}

// pdfPageText extracts one page's text via its pdfcpu content stream.
// Extraction failures on individual pages yield empty text, not errors;
// a malformed page should not sink the document.
func pdfPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return parseContentStream(data)
}

// pdfLiteralRe matches PDF string literals in parentheses: (text here)
var pdfLiteralRe = regexp.MustCompile(`\(([^)]*)\)`)

// parseContentStream walks PDF content stream operators and assembles the
// text they draw. Handles Tj, TJ, ' (show on next line), Td/TD (positioning,
// rendered as a space), and T* (line advance).
func parseContentStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			appendLiterals(&sb, line, false)
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			appendLiterals(&sb, line, true)
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return normalizePDFText(sb.String())
}

func appendLiterals(sb *strings.Builder, line []byte, newline bool) {
	for _, m := range pdfLiteralRe.FindAllSubmatch(line, -1) {
		text := decodePDFLiteral(m[1])
		if text == "" {
			continue
		}
		if newline {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}
}

// decodePDFLiteral resolves backslash escapes, including octal byte codes.
func decodePDFLiteral(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(c)
		default:
			if c < '0' || c > '7' {
				sb.WriteByte(c)
				continue
			}
			// Octal escape, up to three digits (e.g. \040 for space).
			val := int(c - '0')
			for d := 0; d < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; d++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// normalizePDFText collapses whitespace and drops non-printable runes.
func normalizePDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			sb.WriteByte('\n')
			prevSpace = true
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
