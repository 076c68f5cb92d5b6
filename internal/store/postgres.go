package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/batepapo/internal/models"
)

// postgresSchema is applied on connect. Participant names carry a plain
// index, not a unique constraint: registration is check-then-insert.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		last_status BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_name ON participants(name)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		from_name TEXT NOT NULL,
		to_name TEXT NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		time TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_name)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_name)`,
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Backend() string {
	return "postgres"
}

// RegisterParticipant adds name to the roster unless it is already there.
func (s *PostgresStore) RegisterParticipant(ctx context.Context, name string, now time.Time) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM participants WHERE name = $1)
	`, name).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrParticipantExists
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO participants (name, last_status) VALUES ($1, $2)
	`, name, now.UnixMilli())
	return err
}

// ListParticipants returns the roster in registration order.
func (s *PostgresStore) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
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
func (s *PostgresStore) TouchParticipant(ctx context.Context, name string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE participants SET last_status = $2 WHERE name = $1
	`, name, now.UnixMilli())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// RemoveParticipant deletes name from the roster. Absent names are ignored.
func (s *PostgresStore) RemoveParticipant(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM participants WHERE name = $1`, name)
	return err
}

// ParticipantNames returns the names currently in the roster.
func (s *PostgresStore) ParticipantNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM participants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AppendMessage stores a message under a new ULID and returns that ID.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) (string, error) {
	msg.ID = ulid.Make().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, from_name, to_name, text, type, time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.From, msg.To, msg.Text, string(msg.Type), msg.Time)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// MessagesVisibleTo returns, in insertion order, the last limit messages
// user may read. A non-positive limit returns all of them.
func (s *PostgresStore) MessagesVisibleTo(ctx context.Context, user string, limit int) ([]models.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT id, from_name, to_name, text, type, time FROM (
				SELECT seq, id, from_name, to_name, text, type, time
				FROM messages
				WHERE type IN ('message', 'status') OR from_name = $1 OR to_name = $1
				ORDER BY seq DESC
				LIMIT $2
			) latest
			ORDER BY seq ASC
		`, user, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, from_name, to_name, text, type, time
			FROM messages
			WHERE type IN ('message', 'status') OR from_name = $1 OR to_name = $1
			ORDER BY seq ASC
		`, user)
	}
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
func (s *PostgresStore) DeleteMessage(ctx context.Context, id, requester string) error {
	var from string
	err := s.pool.QueryRow(ctx, `SELECT from_name FROM messages WHERE id = $1`, id).Scan(&from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMessageNotFound
		}
		return err
	}
	if from != requester {
		return ErrNotMessageOwner
	}

	_, err = s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return err
}
