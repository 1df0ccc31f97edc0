// Package chunk splits extracted text into sentence-aligned pieces sized
// for embedding generation.
package chunk

import "strings"

// DefaultMaxSize is the chunk size used when callers pass maxSize <= 0.
const DefaultMaxSize = 1000

// Split divides text into chunks of at most maxSize bytes, never breaking
// inside a sentence. Sentences within a chunk are rejoined with ". ".
// A single sentence longer than maxSize becomes its own oversized chunk.
// Returns nil when text contains no sentences.
func Split(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder
	for _, s := range sentences {
		if buf.Len() > 0 && buf.Len()+2+len(s) > maxSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString(". ")
		}
		buf.WriteString(s)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// Sentences splits text on terminal punctuation (. ! ?) and drops
// whitespace-only fragments.
func Sentences(text string) []string {
	frags := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(frags))
	for _, f := range frags {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
