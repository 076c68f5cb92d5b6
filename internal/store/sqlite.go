package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/batepapo/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/batepapo.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/batepapo.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. Participant names are
// indexed but not unique.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		last_status INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		from_name TEXT NOT NULL,
		to_name TEXT NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		time TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participants_name ON participants(name);
	CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_name);
	CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Backend() string {
	return "sqlite"
}

// RegisterParticipant adds name to the roster unless it is already there.
func (s *SQLiteStore) RegisterParticipant(ctx context.Context, name string, now time.Time) error {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM participants WHERE name = ?
	`, name).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrParticipantExists
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO participants (name, last_status) VALUES (?, ?)
	`, name, now.UnixMilli())
	return err
}

// ListParticipants returns the roster in registration order.
func (s *SQLiteStore) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, last_status FROM participants ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.Name, &p.LastStatus); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// TouchParticipant refreshes the last activity of name.
func (s *SQLiteStore) TouchParticipant(ctx context.Context, name string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE participants SET last_status = ? WHERE name = ?
	`, now.UnixMilli(), name)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// RemoveParticipant deletes name from the roster. Absent names are ignored.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE name = ?`, name)
	return err
}

// ParticipantNames returns the names currently in the roster.
func (s *SQLiteStore) ParticipantNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM participants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AppendMessage stores a message under a new ULID and returns that ID.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) (string, error) {
	msg.ID = ulid.Make().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, from_name, to_name, text, type, time)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.From, msg.To, msg.Text, string(msg.Type), msg.Time)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// MessagesVisibleTo returns, in insertion order, the last limit messages
// user may read. A non-positive limit returns all of them.
func (s *SQLiteStore) MessagesVisibleTo(ctx context.Context, user string, limit int) ([]models.Message, error) {
	// LIMIT -1 means no limit in SQLite
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_name, to_name, text, type, time FROM (
			SELECT seq, id, from_name, to_name, text, type, time
			FROM messages
			WHERE type IN ('message', 'status') OR from_name = ? OR to_name = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`, user, user, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var msgType string
		if err := rows.Scan(&msg.ID, &msg.From, &msg.To, &msg.Text, &msgType, &msg.Time); err != nil {
			return nil, err
		}
		msg.Type = models.MessageType(msgType)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteMessage removes a message if requester is its sender.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id, requester string) error {
	var from string
	err := s.db.QueryRowContext(ctx, `SELECT from_name FROM messages WHERE id = ?`, id).Scan(&from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		return err
	}
	if from != requester {
		return ErrNotMessageOwner
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	return err
}
