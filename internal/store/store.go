// Package store provides a SQLite-backed conversation store for the ragchat
// service. It owns the four persistent entities — users, sessions, messages,
// and summaries — and enforces referential integrity and write transactionality
// at the database level. Messages are immutable once written and are totally
// ordered within a session.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the human user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model.
	RoleAssistant Role = "assistant"
)

// ErrSessionNotFound is returned when an operation references a session id
// that does not exist. AddMessage returns it wrapped so callers can
// distinguish a referential-integrity violation from a connection fault.
var ErrSessionNotFound = errors.New("store: session not found")

// User is the identity anchor for one or more sessions.
type User struct {
	// ID is the unique user identifier.
	ID string
	// Name is the display name.
	Name string
	// CreatedAt is when the user was created.
	CreatedAt time.Time
}

// Session is one continuous conversation thread. The id is stable for the
// life of the conversation.
type Session struct {
	// ID is the unique session identifier.
	ID string
	// UserID is the owning user, or empty for anonymous sessions.
	UserID string
	// CreatedAt is when the session was created.
	CreatedAt time.Time
}

// Message is a single turn in a conversation. Messages are append-only and
// never edited.
type Message struct {
	// ID is the unique message identifier.
	ID string
	// SessionID is the session this message belongs to.
	SessionID string
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Summary is a compaction of a contiguous message range within a session.
// Start/end ids are empty when the summarized range is unknown.
type Summary struct {
	// ID is the unique summary identifier.
	ID string
	// SessionID is the session this summary condenses.
	SessionID string
	// Text is the summary text.
	Text string
	// StartMessageID is the chronologically first message in the range.
	StartMessageID string
	// EndMessageID is the chronologically last message in the range.
	EndMessageID string
	// CreatedAt is when the summary was persisted.
	CreatedAt time.Time
}

// ConversationStore persists and retrieves conversation state. Implementations
// must be safe for concurrent use; each mutating call is its own transaction.
type ConversationStore interface {
	// CreateUser creates a user with the given display name and returns its id.
	CreateUser(ctx context.Context, name string) (string, error)
	// CreateSession creates a session, optionally owned by userID (empty for
	// anonymous), and returns the new session id.
	CreateSession(ctx context.Context, userID string) (string, error)
	// GetSession returns the session with the given id, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// SessionExists reports whether the session id references a live session.
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	// DeleteSession removes a session and all of its messages. Summaries are
	// intentionally left in place — they may reference message ids that
	// outlive the session's active message list.
	DeleteSession(ctx context.Context, sessionID string) error
	// AddMessage appends one message to a session and returns its id.
	// Fails with a wrapped ErrSessionNotFound if the session does not exist;
	// an orphan message is never created.
	AddMessage(ctx context.Context, sessionID string, role Role, content string) (string, error)
	// MessagesBySession returns all messages for a session, oldest first.
	MessagesBySession(ctx context.Context, sessionID string) ([]Message, error)
	// RecentMessages returns up to limit messages for a session, newest
	// first. Note the asymmetry with MessagesBySession — callers must reverse
	// when chronological order is needed.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	// CreateSummary persists a summary for a session. startMessageID and
	// endMessageID are optional; when present they must reference messages of
	// the same session.
	CreateSummary(ctx context.Context, sessionID, text, startMessageID, endMessageID string) (string, error)
	// SummariesBySession returns all summaries for a session, oldest first.
	SummariesBySession(ctx context.Context, sessionID string) ([]Summary, error)
	// LatestSummary returns the most recently created summary for a session,
	// or (nil, nil) if the session has none.
	LatestSummary(ctx context.Context, sessionID string) (*Summary, error)
	// Ping checks that the underlying database is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ConversationStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the conversation database.
// It resolves to ~/.ragchat/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL improves concurrent read performance; foreign_keys must be enabled
	// per-connection for the messages→sessions constraint to hold.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
//
// summaries carries no foreign keys on purpose: a summary survives the
// deletion of its session and of the messages it references, so its
// session_id / start / end columns are plain ids validated at insert time.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
    user_id      TEXT    PRIMARY KEY,
    user_name    TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (nanoseconds)
);
CREATE TABLE IF NOT EXISTS sessions (
    session_id   TEXT    PRIMARY KEY,
    user_id      TEXT    REFERENCES users(user_id),
    created_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    message_id   TEXT    PRIMARY KEY,
    session_id   TEXT    NOT NULL REFERENCES sessions(session_id),
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_created
    ON messages (session_id, created_at);
CREATE TABLE IF NOT EXISTS summaries (
    summary_id       TEXT    PRIMARY KEY,
    session_id       TEXT    NOT NULL,
    summary_text     TEXT    NOT NULL,
    start_message_id TEXT,
    end_message_id   TEXT,
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_session_created
    ON summaries (session_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// CreateUser creates a user with the given display name and returns its id.
func (s *SQLiteStore) CreateUser(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	const q = `INSERT INTO users (user_id, user_name, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, name, time.Now().UnixNano()); err != nil {
		return "", fmt.Errorf("store: create user: %w", err)
	}
	return id, nil
}

// CreateSession creates a session and returns its fresh id. userID may be
// empty for anonymous sessions.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	var owner any
	if userID != "" {
		owner = userID
	}
	const q = `INSERT INTO sessions (session_id, user_id, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, owner, time.Now().UnixNano()); err != nil {
		return "", fmt.Errorf("store: create session: %w", err)
	}
	return id, nil
}

// GetSession returns the session with the given id, or ErrSessionNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	const q = `SELECT session_id, user_id, created_at FROM sessions WHERE session_id = ?`
	var sess Session
	var owner sql.NullString
	var ts int64
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(&sess.ID, &owner, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	sess.UserID = owner.String
	sess.CreatedAt = time.Unix(0, ts)
	return &sess, nil
}

// SessionExists reports whether the session id references a live session.
func (s *SQLiteStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	const q = `SELECT 1 FROM sessions WHERE session_id = ?`
	var one int
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: session exists: %w", err)
	}
	return true, nil
}

// DeleteSession removes a session and its messages in a single transaction.
// Summaries are kept — an intentional asymmetry, see the schema comment.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete session begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := sessionExistsTx(ctx, tx, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("store: delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete session commit: %w", err)
	}
	return nil
}

// AddMessage appends one message to a session. The existence check and the
// insert share a transaction so a concurrent session delete cannot produce an
// orphan message.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID string, role Role, content string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: add message begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := sessionExistsTx(ctx, tx, sessionID); err != nil {
		return "", err
	}

	id := uuid.NewString()
	const q = `INSERT INTO messages (message_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, id, sessionID, string(role), content, time.Now().UnixNano()); err != nil {
		return "", fmt.Errorf("store: add message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: add message commit: %w", err)
	}
	return id, nil
}

// sessionExistsTx verifies the session exists inside the given transaction.
func sessionExistsTx(ctx context.Context, tx *sql.Tx, sessionID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("store: session lookup: %w", err)
	}
	return nil
}

// MessagesBySession returns all messages for a session, oldest first.
// rowid breaks ties for messages created within the same nanosecond so the
// ordering is always stable.
func (s *SQLiteStore) MessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	const q = `
SELECT message_id, session_id, role, content, created_at
FROM   messages
WHERE  session_id = ?
ORDER  BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: messages by session: %w", err)
	}
	return scanMessages(rows)
}

// RecentMessages returns up to limit messages for a session, newest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	const q = `
SELECT message_id, session_id, role, content, created_at
FROM   messages
WHERE  session_id = ?
ORDER  BY created_at DESC, rowid DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	return scanMessages(rows)
}

// scanMessages drains a message result set and reports any iteration error.
func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var role string
		var ts int64
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("store: message scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(0, ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: message rows: %w", err)
	}
	return msgs, nil
}

// CreateSummary persists a summary for a session. When start/end message ids
// are supplied they are validated to belong to the session before the insert;
// the check and the insert share a transaction.
func (s *SQLiteStore) CreateSummary(ctx context.Context, sessionID, text, startMessageID, endMessageID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: create summary begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := sessionExistsTx(ctx, tx, sessionID); err != nil {
		return "", err
	}
	for _, msgID := range []string{startMessageID, endMessageID} {
		if msgID == "" {
			continue
		}
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM messages WHERE message_id = ? AND session_id = ?`, msgID, sessionID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("store: create summary: message %s does not belong to session %s", msgID, sessionID)
		}
		if err != nil {
			return "", fmt.Errorf("store: create summary range check: %w", err)
		}
	}

	id := uuid.NewString()
	const q = `
INSERT INTO summaries (summary_id, session_id, summary_text, start_message_id, end_message_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, id, sessionID, text, nullable(startMessageID), nullable(endMessageID), time.Now().UnixNano()); err != nil {
		return "", fmt.Errorf("store: create summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: create summary commit: %w", err)
	}
	return id, nil
}

// SummariesBySession returns all summaries for a session, oldest first.
func (s *SQLiteStore) SummariesBySession(ctx context.Context, sessionID string) ([]Summary, error) {
	const q = `
SELECT summary_id, session_id, summary_text, start_message_id, end_message_id, created_at
FROM   summaries
WHERE  session_id = ?
ORDER  BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: summaries by session: %w", err)
	}
	defer rows.Close()

	var sums []Summary
	for rows.Next() {
		sum, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		sums = append(sums, *sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: summary rows: %w", err)
	}
	return sums, nil
}

// LatestSummary returns the most recently created summary for a session,
// determined by creation time, not by message range. Returns (nil, nil) when
// the session has no summaries.
func (s *SQLiteStore) LatestSummary(ctx context.Context, sessionID string) (*Summary, error) {
	const q = `
SELECT summary_id, session_id, summary_text, start_message_id, end_message_id, created_at
FROM   summaries
WHERE  session_id = ?
ORDER  BY created_at DESC, rowid DESC
LIMIT  1`

	row := s.db.QueryRowContext(ctx, q, sessionID)
	sum, err := scanSummary(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// scanSummary reads one summary row via the given scan function.
func scanSummary(scan func(dest ...any) error) (*Summary, error) {
	var sum Summary
	var start, end sql.NullString
	var ts int64
	if err := scan(&sum.ID, &sum.SessionID, &sum.Text, &start, &end, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: summary scan: %w", err)
	}
	sum.StartMessageID = start.String
	sum.EndMessageID = end.String
	sum.CreatedAt = time.Unix(0, ts)
	return &sum, nil
}

// nullable converts an empty string to NULL for optional columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ping checks that the underlying database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
