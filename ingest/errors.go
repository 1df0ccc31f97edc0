package ingest

import "errors"

var (
	// ErrNotFound is returned for unknown batch-crawl job IDs.
	ErrNotFound = errors.New("ingest: unknown job id")

	// ErrInvalidURL is returned when a source URL cannot be used for its
	// detected type (e.g. a github.com URL without owner/repo).
	ErrInvalidURL = errors.New("ingest: invalid source URL")

	// ErrEmptyContent is returned when extraction yields no usable text.
	ErrEmptyContent = errors.New("ingest: no extractable text content")

	// ErrUnsupportedContent is returned when a source serves something other
	// than the detected format (e.g. an HTML error page at a .pdf URL).
	ErrUnsupportedContent = errors.New("ingest: unsupported content type")
)
