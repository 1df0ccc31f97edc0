package ingest

import (
	"strings"
	"testing"
)

func TestLooksLikePDF(t *testing.T) {
	tests := []struct {
		contentType string
		body        string
		want        bool
	}{
		{"application/pdf", "junk", true},
		{"application/x-pdf; charset=binary", "junk", true},
		{"application/octet-stream", "%PDF-1.7 rest", true},
		{"text/html", "<html>not found</html>", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := looksLikePDF(tt.contentType, []byte(tt.body)); got != tt.want {
			t.Errorf("looksLikePDF(%q, %q) = %v, want %v", tt.contentType, tt.body, got, tt.want)
		}
	}
}

func TestParseContentStream(t *testing.T) {
	stream := strings.Join([]string{
		"BT",
		"/F1 12 Tf",
		"(Hello ) Tj",
		"[(wor) -20 (ld)] TJ",
		"0 -14 Td",
		"(next line) Tj",
		"T*",
		"(third) '",
		"ET",
	}, "\n")

	got := parseContentStream([]byte(stream))
	for _, want := range []string{"Hello", "world", "next line", "third"} {
		if !strings.Contains(got, want) {
			t.Errorf("stream text missing %q:\n%q", want, got)
		}
	}
}

func TestDecodePDFLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`a\(b\)c`, "a(b)c"},
		{`line\nbreak`, "line\nbreak"},
		{`tab\there`, "tab\there"},
		{`back\\slash`, `back\slash`},
		{`oct\040space`, "oct space"},
		{`short\40oct`, "short oct"},
	}
	for _, tt := range tests {
		if got := decodePDFLiteral([]byte(tt.in)); got != tt.want {
			t.Errorf("decodePDFLiteral(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPDFTitle(t *testing.T) {
	if got := pdfTitle("\n\n  Annual Report 2026  \nbody text"); got != "Annual Report 2026" {
		t.Errorf("title = %q", got)
	}

	long := strings.Repeat("t", 250)
	if got := pdfTitle(long); len([]rune(got)) != pdfTitleMax {
		t.Errorf("long title length = %d, want %d", len([]rune(got)), pdfTitleMax)
	}

	if got := pdfTitle("   \n  "); got != pdfFallbackTitle {
		t.Errorf("blank text title = %q, want fallback", got)
	}
}

func TestNormalizePDFText(t *testing.T) {
	got := normalizePDFText("a\x00b   c\n\nd")
	if strings.Contains(got, "\x00") {
		t.Error("non-printable byte survived")
	}
	if strings.Contains(got, "  ") {
		t.Errorf("space run survived: %q", got)
	}
}
