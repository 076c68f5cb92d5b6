package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/batepapo/internal/models"
)

func newRedisTestStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newSQLiteTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newPostgresTestStore(t *testing.T) Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	_, err = s.pool.Exec(context.Background(), `TRUNCATE participants, messages RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"redis":    newRedisTestStore,
		"sqlite":   newSQLiteTestStore,
		"postgres": newPostgresTestStore,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("register twice conflicts", func(t *testing.T) { testRegisterConflict(t, open(t)) })
			t.Run("touch and remove", func(t *testing.T) { testTouchAndRemove(t, open(t)) })
			t.Run("visibility", func(t *testing.T) { testVisibility(t, open(t)) })
			t.Run("limit keeps the newest in order", func(t *testing.T) { testLimit(t, open(t)) })
			t.Run("delete ownership", func(t *testing.T) { testDelete(t, open(t)) })
		})
	}
}

func testRegisterConflict(t *testing.T, s Store) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Now()

	req.NoError(s.RegisterParticipant(ctx, "Alice", now))
	req.ErrorIs(s.RegisterParticipant(ctx, "Alice", now), ErrParticipantExists)

	participants, err := s.ListParticipants(ctx)
	req.NoError(err)
	req.Len(participants, 1)
	req.Equal("Alice", participants[0].Name)
	req.Equal(now.UnixMilli(), participants[0].LastStatus)
}

func testTouchAndRemove(t *testing.T, s Store) {
	req := require.New(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	req.ErrorIs(s.TouchParticipant(ctx, "Bob", start), ErrParticipantNotFound)

	req.NoError(s.RegisterParticipant(ctx, "Bob", start))
	later := start.Add(30 * time.Second)
	req.NoError(s.TouchParticipant(ctx, "Bob", later))

	participants, err := s.ListParticipants(ctx)
	req.NoError(err)
	req.Equal(later.UnixMilli(), participants[0].LastStatus)

	names, err := s.ParticipantNames(ctx)
	req.NoError(err)
	req.Equal([]string{"Bob"}, names)

	req.NoError(s.RemoveParticipant(ctx, "Bob"))
	req.NoError(s.RemoveParticipant(ctx, "Bob"))

	names, err = s.ParticipantNames(ctx)
	req.NoError(err)
	req.Empty(names)

	req.ErrorIs(s.TouchParticipant(ctx, "Bob", later), ErrParticipantNotFound)
	names, err = s.ParticipantNames(ctx)
	req.NoError(err)
	req.Empty(names)
}

func testVisibility(t *testing.T, s Store) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Now()

	private := &models.Message{From: "Alice", To: "Bob", Text: "hi", Type: models.TypePrivateMessage, Time: models.FormatTime(now)}
	id, err := s.AppendMessage(ctx, private)
	req.NoError(err)
	req.NotEmpty(id)
	req.Equal(id, private.ID)

	_, err = s.AppendMessage(ctx, &models.Message{From: "Carol", To: models.Broadcast, Text: "hello", Type: models.TypeMessage})
	req.NoError(err)
	_, err = s.AppendMessage(ctx, models.StatusMessage("Dave", models.TextLeft, now))
	req.NoError(err)

	forBob, err := s.MessagesVisibleTo(ctx, "Bob", 0)
	req.NoError(err)
	req.Len(forBob, 3)
	req.Equal(*private, forBob[0])

	forAlice, err := s.MessagesVisibleTo(ctx, "Alice", 0)
	req.NoError(err)
	req.Len(forAlice, 3)

	forCarol, err := s.MessagesVisibleTo(ctx, "Carol", 0)
	req.NoError(err)
	req.Len(forCarol, 2)
	for _, msg := range forCarol {
		req.NotEqual(private.ID, msg.ID)
	}
}

func testLimit(t *testing.T, s Store) {
	req := require.New(t)
	ctx := context.Background()

	texts := []string{"one", "two", "three", "four", "five"}
	for _, text := range texts {
		_, err := s.AppendMessage(ctx, &models.Message{From: "Alice", To: models.Broadcast, Text: text, Type: models.TypeMessage})
		req.NoError(err)
	}
	// Not visible to Bob, must not count toward the limit
	_, err := s.AppendMessage(ctx, &models.Message{From: "Alice", To: "Carol", Text: "secret", Type: models.TypePrivateMessage})
	req.NoError(err)

	latest, err := s.MessagesVisibleTo(ctx, "Bob", 2)
	req.NoError(err)
	req.Len(latest, 2)
	req.Equal("four", latest[0].Text)
	req.Equal("five", latest[1].Text)
}

func testDelete(t *testing.T, s Store) {
	req := require.New(t)
	ctx := context.Background()

	id, err := s.AppendMessage(ctx, &models.Message{From: "Alice", To: models.Broadcast, Text: "oops", Type: models.TypeMessage})
	req.NoError(err)

	req.ErrorIs(s.DeleteMessage(ctx, "does-not-exist", "Alice"), ErrMessageNotFound)
	req.ErrorIs(s.DeleteMessage(ctx, id, "Bob"), ErrNotMessageOwner)

	msgs, err := s.MessagesVisibleTo(ctx, "Alice", 0)
	req.NoError(err)
	req.Len(msgs, 1)

	req.NoError(s.DeleteMessage(ctx, id, "Alice"))

	msgs, err = s.MessagesVisibleTo(ctx, "Alice", 0)
	req.NoError(err)
	req.Empty(msgs)
	req.ErrorIs(s.DeleteMessage(ctx, id, "Alice"), ErrMessageNotFound)
}

func TestOpen_RejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "mongodb://localhost:27017/chat")
	require.ErrorContains(t, err, `"mongodb"`)
}

func TestOpen_SelectsBackend(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	s, err := Open(ctx, "redis://"+mr.Addr())
	req.NoError(err)
	defer s.Close()
	req.Equal("redis", s.Backend())

	s, err = Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "open.db"))
	req.NoError(err)
	defer s.Close()
	req.Equal("sqlite", s.Backend())
}

func TestInstrument_DelegatesToBackend(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := Instrument(newRedisTestStore(t))

	req.Equal("redis", s.Backend())
	req.NoError(s.Ping(ctx))
	req.NoError(s.RegisterParticipant(ctx, "Alice", time.Now()))
	req.ErrorIs(s.RegisterParticipant(ctx, "Alice", time.Now()), ErrParticipantExists)
}

func TestRedisStore_TouchNeverRevivesRemovedParticipant(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newRedisTestStore(t)
	req.NoError(s.RegisterParticipant(ctx, "Alice", time.Now()))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				err := s.TouchParticipant(ctx, "Alice", time.Now())
				if err != nil && !errors.Is(err, ErrParticipantNotFound) {
					t.Error(err)
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	req.NoError(s.RemoveParticipant(ctx, "Alice"))
	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()

	names, err := s.ParticipantNames(ctx)
	req.NoError(err)
	req.Empty(names)
}
