// Package memory provides durable, append-only conversation storage.
//
// Each thread is an ordered message log keyed by an opaque thread ID.
// Messages are never edited or individually removed; the only
// destructive operation is whole-thread deletion. A single Append call
// is transactional, so a crash between hops can never leave a
// half-persisted hop visible after restart.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/oswin/parley/internal/llm"
)

// Store is the SQLite-backed thread store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the thread database at path using the
// mattn/go-sqlite3 driver with WAL journaling.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// NewStore creates a thread store on an open database connection and
// applies the schema. Taking *sql.DB rather than a path lets tests use
// a different driver against :memory:.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_calls TEXT,
		tool_call_id TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_thread_seq ON messages(thread_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists msgs onto the thread's log in order, creating the
// thread if it does not exist. The whole call is one transaction:
// either every message of the batch becomes visible or none do.
func (s *Store) Append(threadID string, msgs []llm.Message) error {
	if threadID == "" {
		return fmt.Errorf("thread id is required")
	}
	if len(msgs) == 0 {
		return nil
	}

	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO threads (id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, threadID, now, now); err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE threads SET updated_at = ? WHERE id = ?
	`, now, threadID); err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}

	var next int64
	if err := tx.QueryRow(`
		SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE thread_id = ?
	`, threadID).Scan(&next); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	for i, m := range msgs {
		var toolCalls any
		if len(m.ToolCalls) > 0 {
			data, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			toolCalls = string(data)
		}

		var toolCallID any
		if m.ToolCallID != "" {
			toolCallID = m.ToolCallID
		}

		msgID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("message id: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO messages (id, thread_id, seq, role, content, tool_calls, tool_call_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, msgID.String(), threadID, next+int64(i), m.Role, m.Content, toolCalls, toolCallID, now); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	return tx.Commit()
}

// Load returns the full ordered history for a thread, or an empty
// slice if the thread is unknown.
func (s *Store) Load(threadID string) ([]llm.Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, tool_calls, tool_call_id
		FROM messages
		WHERE thread_id = ?
		ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	defer rows.Close()

	var msgs []llm.Message
	for rows.Next() {
		var m llm.Message
		var toolCalls, toolCallID sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &toolCalls, &toolCallID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		if toolCallID.Valid {
			m.ToolCallID = toolCallID.String
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListThreads returns all known thread IDs, most recently updated first.
func (s *Store) ListThreads() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM threads ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a thread and all its messages. Deleting a thread that
// does not exist is a success. Returns false only when the store
// itself failed; it never raises.
func (s *Store) Delete(threadID string) bool {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("delete thread: begin failed", "thread", threadID, "error", err)
		return false
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		s.logger.Error("delete thread messages failed", "thread", threadID, "error", err)
		return false
	}
	if _, err := tx.Exec(`DELETE FROM threads WHERE id = ?`, threadID); err != nil {
		s.logger.Error("delete thread failed", "thread", threadID, "error", err)
		return false
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("delete thread: commit failed", "thread", threadID, "error", err)
		return false
	}
	return true
}
