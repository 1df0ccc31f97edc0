// Package threads exposes previously crawled Slack conversations as
// documents: thread listing, thread retrieval, and the document shape the
// ingestion pipeline consumes. Writing to Slack and talking to the Slack
// API happen elsewhere; this package only reads the crawled rows.
package threads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrThreadNotFound is returned when no messages exist for a thread.
var ErrThreadNotFound = errors.New("threads: thread not found")

// Schema creates the crawled-message table. Pass to dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS slack_messages (
	channel_id TEXT NOT NULL,
	thread_ts  TEXT NOT NULL,
	ts         TEXT NOT NULL,
	user_name  TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL,
	is_root    INTEGER NOT NULL DEFAULT 0,
	crawled_at INTEGER NOT NULL,
	PRIMARY KEY (channel_id, thread_ts, ts)
);
CREATE INDEX IF NOT EXISTS idx_slack_thread ON slack_messages(channel_id, thread_ts);
`

const titleMax = 100

// Message is one crawled Slack message.
type Message struct {
	ChannelID string
	ThreadTS  string
	TS        string
	UserName  string
	Text      string
	IsRoot    bool
	CrawledAt time.Time
}

// Group summarises one thread for listings.
type Group struct {
	ChannelID    string `json:"channel_id"`
	ThreadTS     string `json:"thread_ts"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	LastTS       string `json:"last_ts"`
}

// Document is a full thread flattened for ingestion.
type Document struct {
	ChannelID    string `json:"channel_id"`
	ThreadTS     string `json:"thread_ts"`
	Title        string `json:"title"`
	Text         string `json:"text"`
	MessageCount int    `json:"message_count"`
}

// SourceURL is the synthetic source identifier threads are stored under.
func (d *Document) SourceURL() string {
	return "slack://" + d.ChannelID + "/" + d.ThreadTS
}

// Service reads the slack_messages table.
type Service struct {
	db *sql.DB
}

// New creates a Service. The schema must already exist (see Schema).
func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// Init applies the schema. Idempotent.
func (s *Service) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("threads: init schema: %w", err)
	}
	return nil
}

// Insert stores one crawled message. Re-crawling the same message replaces it.
func (s *Service) Insert(ctx context.Context, m Message) error {
	if m.CrawledAt.IsZero() {
		m.CrawledAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO slack_messages
			(channel_id, thread_ts, ts, user_name, text, is_root, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ChannelID, m.ThreadTS, m.TS, m.UserName, m.Text,
		boolToInt(m.IsRoot), m.CrawledAt.Unix())
	if err != nil {
		return fmt.Errorf("threads: insert message: %w", err)
	}
	return nil
}

// ListGroups pages through threads, most recently active first. The title
// is the first line of the root message.
func (s *Service) ListGroups(ctx context.Context, limit, offset int) ([]Group, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, thread_ts, COUNT(*), MAX(ts),
		       COALESCE(MAX(CASE WHEN is_root = 1 THEN text END), '')
		FROM slack_messages
		GROUP BY channel_id, thread_ts
		ORDER BY MAX(ts) DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("threads: list groups: %w", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		var rootText string
		if err := rows.Scan(&g.ChannelID, &g.ThreadTS, &g.MessageCount, &g.LastTS, &rootText); err != nil {
			return nil, fmt.Errorf("threads: scan group: %w", err)
		}
		g.Title = threadTitle(rootText)
		out = append(out, g)
	}
	return out, rows.Err()
}

// Get assembles a thread into a Document, messages in timestamp order.
func (s *Service) Get(ctx context.Context, channelID, threadTS string) (*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_name, text, is_root
		FROM slack_messages
		WHERE channel_id = ? AND thread_ts = ?
		ORDER BY ts ASC`, channelID, threadTS)
	if err != nil {
		return nil, fmt.Errorf("threads: get thread: %w", err)
	}
	defer rows.Close()

	var parts []string
	var rootText string
	for rows.Next() {
		var user, text string
		var isRoot int
		if err := rows.Scan(&user, &text, &isRoot); err != nil {
			return nil, fmt.Errorf("threads: scan message: %w", err)
		}
		if isRoot != 0 && rootText == "" {
			rootText = text
		}
		if user == "" {
			parts = append(parts, text)
		} else {
			parts = append(parts, user+": "+text)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("threads: iterate messages: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrThreadNotFound, channelID, threadTS)
	}

	if rootText == "" {
		rootText = parts[0]
	}

	return &Document{
		ChannelID:    channelID,
		ThreadTS:     threadTS,
		Title:        threadTitle(rootText),
		Text:         strings.Join(parts, "\n\n"),
		MessageCount: len(parts),
	}, nil
}

// threadTitle is the first line of the root message, capped at titleMax runes.
func threadTitle(rootText string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(rootText), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "Untitled thread"
	}
	if r := []rune(line); len(r) > titleMax {
		return string(r[:titleMax])
	}
	return line
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
