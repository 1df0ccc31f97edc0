// Package store persists ingestion records in SQLite, with embeddings held
// as little-endian float32 BLOBs and similarity search done by brute-force
// cosine scan. Row counts stay small enough (thousands of chunks) that a
// linear scan beats maintaining an index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/corpus/dbopen"
	"github.com/hazyhaar/corpus/embed"
	"github.com/hazyhaar/corpus/idgen"
)

// Schema creates the ingestion tables. Pass to dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS ingestion_records (
	id          TEXT PRIMARY KEY,
	source_url  TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	placeholder INTEGER NOT NULL DEFAULT 0,
	chunk_index INTEGER NOT NULL,
	page_index  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_source ON ingestion_records(source_url);
`

// Record is one embedded chunk of an ingested source.
type Record struct {
	ID          string
	SourceURL   string
	Title       string
	Content     string
	Embedding   []float32
	Placeholder bool
	ChunkIndex  int
	PageIndex   int
	CreatedAt   time.Time
}

// SearchResult pairs a record with its cosine similarity to the query.
type SearchResult struct {
	Record     Record
	Similarity float64
}

// DocumentInfo summarises all records sharing a source URL.
type DocumentInfo struct {
	SourceURL  string    `json:"source_url"`
	Title      string    `json:"title"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store wraps the ingestion_records table.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

// New creates a Store. The schema must already exist (see Schema).
func New(db *sql.DB) *Store {
	return &Store{db: db, newID: idgen.Prefixed("rec_", idgen.Default)}
}

// Init applies the schema. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// InsertRecords writes records in one transaction, assigning IDs and
// timestamps to records that lack them.
func (s *Store) InsertRecords(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ingestion_records
				(id, source_url, title, content, embedding, placeholder, chunk_index, page_index, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if r.ID == "" {
				r.ID = s.newID()
			}
			if r.CreatedAt.IsZero() {
				r.CreatedAt = time.Now()
			}
			_, err := stmt.ExecContext(ctx,
				r.ID, r.SourceURL, r.Title, r.Content,
				embed.SerializeVector(r.Embedding), boolToInt(r.Placeholder),
				r.ChunkIndex, r.PageIndex, r.CreatedAt.Unix())
			if err != nil {
				return fmt.Errorf("store: insert record %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// DeleteBySourceURLs removes every record whose source_url is in urls and
// returns the number of rows deleted. Re-ingestion runs this first so a
// source never holds stale chunks.
func (s *Store) DeleteBySourceURLs(ctx context.Context, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(urls))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}

	res, err := dbopen.Exec(ctx, s.db,
		`DELETE FROM ingestion_records WHERE source_url IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete by source urls: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountBySourceURL returns the number of records stored for url.
func (s *Store) CountBySourceURL(ctx context.Context, url string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingestion_records WHERE source_url = ?`, url).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count by source url: %w", err)
	}
	return n, nil
}

// Documents lists ingested sources, newest first.
func (s *Store) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_url, MAX(title), COUNT(*), MIN(created_at)
		FROM ingestion_records
		GROUP BY source_url
		ORDER BY MIN(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		var created int64
		if err := rows.Scan(&d.SourceURL, &d.Title, &d.ChunkCount, &created); err != nil {
			return nil, fmt.Errorf("store: scan document: %w", err)
		}
		d.CreatedAt = time.Unix(created, 0)
		out = append(out, d)
	}
	return out, rows.Err()
}

// NearestNeighbors scans all records and returns the limit most similar to
// query by cosine similarity, best first.
func (s *Store) NearestNeighbors(ctx context.Context, query []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_url, title, content, embedding, placeholder, chunk_index, page_index, created_at
		FROM ingestion_records`)
	if err != nil {
		return nil, fmt.Errorf("store: query records: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r Record
		var blob []byte
		var placeholder int
		var created int64
		if err := rows.Scan(&r.ID, &r.SourceURL, &r.Title, &r.Content,
			&blob, &placeholder, &r.ChunkIndex, &r.PageIndex, &created); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		r.Placeholder = placeholder != 0
		r.CreatedAt = time.Unix(created, 0)
		r.Embedding = embed.DeserializeVector(blob)

		results = append(results, SearchResult{
			Record:     r,
			Similarity: embed.CosineSimilarity(query, r.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate records: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
