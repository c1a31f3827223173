package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hal9000y/workspace-agent/internal/agent"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		thread_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (thread_id, seq)
	);`,
}

// SQLite stores one row per message, ordered by seq within a thread.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("os.MkdirAll failed: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open failed: %w", err)
	}
	// Appends run in a transaction; one connection avoids SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping failed: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("schema setup failed: %w", err)
		}
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, threadID string) ([]agent.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM messages WHERE thread_id = ? ORDER BY seq",
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("db.Query failed: %w", err)
	}
	defer rows.Close()

	var out []agent.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("rows.Scan failed: %w", err)
		}
		var msg agent.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("json.Unmarshal failed: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return out, nil
}

func (s *SQLite) Append(ctx context.Context, threadID string, messages []agent.Message) (err error) {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.BeginTx failed: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int64
	if err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE thread_id = ?",
		threadID,
	).Scan(&next); err != nil {
		return fmt.Errorf("select max seq failed: %w", err)
	}

	now := time.Now().Unix()
	for _, msg := range messages {
		next++

		payload, mErr := json.Marshal(msg)
		if mErr != nil {
			err = fmt.Errorf("json.Marshal failed: %w", mErr)
			return err
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO messages(thread_id, seq, payload, created_at) VALUES(?, ?, ?, ?)",
			threadID, next, string(payload), now,
		); err != nil {
			return fmt.Errorf("insert message failed: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit failed: %w", err)
	}

	return nil
}

func (s *SQLite) Delete(ctx context.Context, threadID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", threadID)
	if err != nil {
		return fmt.Errorf("delete thread failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("res.RowsAffected failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
