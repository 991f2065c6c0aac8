// Package store persists conversation transcripts in a local SQLite
// database. The schema is migrated additively: columns introduced after the
// first release are added in place so old database files keep working.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"aurora/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const createTableSQL = `
CREATE TABLE IF NOT EXISTS chat_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL
)`

// Columns added after the initial schema. Probed with PRAGMA table_info and
// added one by one; SQLite has no ADD COLUMN IF NOT EXISTS.
var migrations = []struct {
	column string
	ddl    string
}{
	{"repo_path", `ALTER TABLE chat_history ADD COLUMN repo_path TEXT NOT NULL DEFAULT ''`},
	{"tool_calls", `ALTER TABLE chat_history ADD COLUMN tool_calls TEXT NOT NULL DEFAULT '[]'`},
}

// Store is the SQLite transcript repository.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

var _ schemas.TranscriptStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	s := &Store{db: db, log: logger.Named("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Debug("Transcript store ready", zap.String("path", path))
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create chat_history table: %w", err)
	}

	existing, err := s.columns()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if existing[m.column] {
			continue
		}
		s.log.Info("Migrating transcript schema", zap.String("column", m.column))
		if _, err := s.db.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add column %s: %w", m.column, err)
		}
	}
	return nil
}

func (s *Store) columns() (map[string]bool, error) {
	rows, err := s.db.Query(`PRAGMA table_info(chat_history)`)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect chat_history schema: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Append writes one completed turn.
func (s *Store) Append(ctx context.Context, turn schemas.ConversationTurn) error {
	calls, err := json.Marshal(turn.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_history (conversation_id, timestamp, query, response, repo_path, tool_calls)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ConversationID, ts.Format(time.RFC3339Nano), turn.Query, turn.Response, turn.RepoPath, string(calls))
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// Load returns all turns of a conversation in timestamp order.
func (s *Store) Load(ctx context.Context, conversationID string) ([]schemas.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, timestamp, query, response, repo_path, tool_calls
		 FROM chat_history WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var turns []schemas.ConversationTurn
	for rows.Next() {
		var (
			turn    schemas.ConversationTurn
			tsRaw   string
			rawCall string
		)
		if err := rows.Scan(&turn.ConversationID, &tsRaw, &turn.Query, &turn.Response, &turn.RepoPath, &rawCall); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, tsRaw); err == nil {
			turn.Timestamp = ts
		}
		// A row with undecodable tool calls still contributes its text.
		if err := json.Unmarshal([]byte(rawCall), &turn.ToolCalls); err != nil {
			s.log.Warn("Discarding malformed tool call record",
				zap.String("conversation_id", turn.ConversationID), zap.Error(err))
			turn.ToolCalls = nil
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Conversations lists stored conversations newest first, titled by their
// first query. An empty repoPath lists everything.
func (s *Store) Conversations(ctx context.Context, repoPath string) ([]schemas.ConversationSummary, error) {
	query := `
		SELECT conversation_id,
		       (SELECT query FROM chat_history c2
		        WHERE c2.conversation_id = c1.conversation_id
		        ORDER BY c2.timestamp ASC, c2.id ASC LIMIT 1) AS title,
		       MAX(timestamp) AS last_ts
		FROM chat_history c1`
	args := []any{}
	if repoPath != "" {
		query += ` WHERE repo_path = ?`
		args = append(args, repoPath)
	}
	query += ` GROUP BY conversation_id ORDER BY last_ts DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var summaries []schemas.ConversationSummary
	for rows.Next() {
		var (
			summary schemas.ConversationSummary
			lastTS  string
		)
		if err := rows.Scan(&summary.ConversationID, &summary.Title, &lastTS); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Delete removes every turn of a conversation.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	return nil
}
