package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eldtechnologies/batepapo/internal/models"
)

var (
	ErrParticipantExists   = errors.New("participant already active")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrNotMessageOwner     = errors.New("message not owned by requester")
)

// Store defines persistence of participants and messages.
// RedisStore, PostgresStore and SQLiteStore implement this interface.
//
// Each call is a single independent operation; no method spans a
// transaction with another, so register-then-notify style sequences
// are best effort.
type Store interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error
	Backend() string

	// Presence operations
	RegisterParticipant(ctx context.Context, name string, now time.Time) error
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	TouchParticipant(ctx context.Context, name string, now time.Time) error
	RemoveParticipant(ctx context.Context, name string) error
	ParticipantNames(ctx context.Context) ([]string, error)

	// Message operations
	AppendMessage(ctx context.Context, msg *models.Message) (string, error)
	MessagesVisibleTo(ctx context.Context, user string, limit int) ([]models.Message, error)
	DeleteMessage(ctx context.Context, id, requester string) error
}

// Open connects to the store named by databaseURL. The scheme selects the
// backend: redis:// or rediss://, postgres:// or postgresql://, and
// sqlite://<path> or file:<path>.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		return NewRedisStore(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStore(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "file:"))
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", schemeOf(databaseURL))
	}
}

func schemeOf(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, ":")
	if !found {
		return ""
	}
	return scheme
}
