// Package audit journals conversation turns and resets into SQLite.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/zhouzirui/implantai/backend/internal/logger"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id           TEXT PRIMARY KEY,
	conversation INTEGER NOT NULL,
	speaker      TEXT NOT NULL,
	text         TEXT NOT NULL,
	image_count  INTEGER NOT NULL DEFAULT 0,
	image_bytes  INTEGER NOT NULL DEFAULT 0,
	model        TEXT NOT NULL DEFAULT '',
	failure      INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation);
CREATE TABLE IF NOT EXISTS resets (
	conversation INTEGER PRIMARY KEY,
	greeting_id  TEXT NOT NULL,
	reset_at     TEXT NOT NULL
);
`

var ErrClosed = errors.New("audit journal closed")

// Entry is one journaled turn.
type Entry struct {
	ID           string
	Conversation int64
	Speaker      chat.Speaker
	Text         string
	ImageCount   int
	ImageBytes   int
	Model        string
	Failure      bool
	CreatedAt    time.Time
}

// Journal writes turns and resets to a SQLite database. Greeting turns are
// not journaled.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger

	mu           sync.Mutex
	conversation int64
	closed       bool
}

// Open opens (or creates) the journal at path. ":memory:" keeps it in memory.
func Open(ctx context.Context, path string, log *zap.Logger) (*Journal, error) {
	if path == "" {
		return nil, errors.New("audit database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	// each process run starts a new conversation
	var last sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(conversation) FROM (
		SELECT conversation FROM turns UNION ALL SELECT conversation FROM resets)`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read audit state: %w", err)
	}

	j := &Journal{
		db:           db,
		logger:       logger.OrNop(log).Named("audit"),
		conversation: last.Int64 + 1,
	}
	j.logger.Info("audit journal opened", zap.String("path", path), zap.Int64("conversation", j.conversation))
	return j, nil
}

// Conversation returns the number of the conversation being journaled.
func (j *Journal) Conversation() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.conversation
}

// RecordTurn journals one appended turn.
func (j *Journal) RecordTurn(ctx context.Context, turn chat.Turn) error {
	if turn.Greeting {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	imageBytes := 0
	for _, img := range turn.Images {
		imageBytes += len(img.Data)
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO turns (id, conversation, speaker, text, image_count, image_bytes, model, failure, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, j.conversation, string(turn.Speaker), turn.Text,
		len(turn.Images), imageBytes, string(turn.Model), boolToInt(turn.Failure),
		turn.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to journal turn %s: %w", turn.ID, err)
	}
	return nil
}

// RecordReset closes the current conversation and starts the next one.
func (j *Journal) RecordReset(ctx context.Context, greeting chat.Turn) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO resets (conversation, greeting_id, reset_at) VALUES (?, ?, ?)`,
		j.conversation, greeting.ID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to journal reset: %w", err)
	}
	j.conversation++
	return nil
}

// Recent returns up to limit journaled turns, newest last.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, conversation, speaker, text, image_count, image_bytes, model, failure, created_at
		 FROM (SELECT rowid AS seq, * FROM turns ORDER BY rowid DESC LIMIT ?) ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit turns: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			speaker   string
			failure   int
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Conversation, &speaker, &e.Text, &e.ImageCount, &e.ImageBytes, &e.Model, &failure, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit turn: %w", err)
		}
		e.Speaker = chat.Speaker(speaker)
		e.Failure = failure != 0
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
