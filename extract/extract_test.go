package extract

import (
	"net/url"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Release Notes</title>
  <style>body { color: red; }</style>
  <script>window.tracker = true;</script>
</head>
<body>
  <header><h1>Site Banner</h1></header>
  <nav><a href="/home">Home</a></nav>
  <main>
    <h1>Version 2.0</h1>
    <p>The   release adds    streaming support.</p>
    <p>Upgrade is recommended.</p>
  </main>
  <aside>Advert text</aside>
  <footer>Copyright 2026</footer>
  <noscript>Enable JS</noscript>
</body>
</html>`

func TestPage_Title(t *testing.T) {
	pc, err := Page([]byte(samplePage), "https://example.com/notes")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if pc.Title != "Release Notes" {
		t.Errorf("title = %q, want Release Notes", pc.Title)
	}
	if pc.URL != "https://example.com/notes" {
		t.Errorf("url = %q", pc.URL)
	}
}

func TestPage_TitleFallbackToH1(t *testing.T) {
	src := `<html><body><h1>Only Heading</h1><p>text</p></body></html>`
	pc, err := Page([]byte(src), "")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if pc.Title != "Only Heading" {
		t.Errorf("title = %q, want Only Heading", pc.Title)
	}
}

func TestPage_StripsNoise(t *testing.T) {
	pc, err := Page([]byte(samplePage), "")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	for _, banned := range []string{"tracker", "color: red", "Site Banner", "Home", "Advert", "Copyright", "Enable JS"} {
		if strings.Contains(pc.Text, banned) {
			t.Errorf("text should not contain %q:\n%s", banned, pc.Text)
		}
	}
	if !strings.Contains(pc.Text, "streaming support") {
		t.Errorf("text should keep body content:\n%s", pc.Text)
	}
}

func TestPage_NormalizesWhitespace(t *testing.T) {
	pc, err := Page([]byte(samplePage), "")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if strings.Contains(pc.Text, "  ") {
		t.Errorf("text contains a space run:\n%q", pc.Text)
	}
	if strings.Contains(pc.Text, "\n\n\n") {
		t.Errorf("text contains stacked blank lines:\n%q", pc.Text)
	}
	if !strings.Contains(pc.Text, "The release adds streaming support") {
		t.Errorf("space runs not collapsed:\n%q", pc.Text)
	}
}

func TestCleanText(t *testing.T) {
	in := "\n\n  a   b \n\n\n\nc\t d \n\n"
	got := CleanText(in)
	want := "a b\n\nc d"
	if got != want {
		t.Errorf("CleanText = %q, want %q", got, want)
	}
}

func TestCleanHTML(t *testing.T) {
	out, err := CleanHTML([]byte(samplePage))
	if err != nil {
		t.Fatalf("CleanHTML: %v", err)
	}
	if strings.Contains(out, "<script") || strings.Contains(out, "<nav") || strings.Contains(out, "<footer") {
		t.Errorf("noise elements survived:\n%s", out)
	}
	if !strings.Contains(out, "streaming support") {
		t.Errorf("content removed:\n%s", out)
	}
}

const linkPage = `<html><body>
<a href="/docs/intro">Intro</a>
<a href="/docs/intro#section">Intro anchor</a>
<a href="https://example.com/pricing">Pricing</a>
<a href="https://other.example.org/external">External</a>
<a href="/assets/logo.png">Logo</a>
<a href="/files/manual.pdf">Manual</a>
<a href="/api/v1/users">API</a>
<a href="/admin/panel">Admin</a>
<a href="mailto:team@example.com">Mail</a>
<a href="javascript:void(0)">JS</a>
<a href="#top">Top</a>
<a href="/docs/intro">Intro again</a>
</body></html>`

func TestLinks(t *testing.T) {
	base, _ := url.Parse("https://example.com/docs/")
	got, err := Links([]byte(linkPage), base)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	want := []string{
		"https://example.com/docs/intro",
		"https://example.com/pricing",
	}
	if len(got) != len(want) {
		t.Fatalf("links = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLinks_RelativeResolution(t *testing.T) {
	base, _ := url.Parse("https://example.com/a/b/page")
	src := `<a href="sibling">s</a><a href="../up">u</a>`
	got, err := Links([]byte(src), base)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	want := []string{
		"https://example.com/a/b/sibling",
		"https://example.com/a/up",
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("links = %v, want %v", got, want)
	}
}
