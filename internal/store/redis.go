package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/batepapo/internal/models"
)

const (
	participantsKey = "participants"
	messageSeqKey   = "messages:seq"
	messageOrderKey = "messages:order"
)

// RedisStore keeps participants in a hash and messages as JSON documents
// indexed by a sorted set scored with an insertion sequence.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying Redis client (used by the rate limiter).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() {
	_ = s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Backend() string {
	return "redis"
}

// messageKey returns the key holding a single message document.
func messageKey(id string) string {
	return fmt.Sprintf("message:%s", id)
}

// RegisterParticipant adds name to the roster. The existence check and the
// write are separate commands, so concurrent registrations may both succeed.
func (s *RedisStore) RegisterParticipant(ctx context.Context, name string, now time.Time) error {
	exists, err := s.client.HExists(ctx, participantsKey, name).Result()
	if err != nil {
		return err
	}
	if exists {
		return ErrParticipantExists
	}
	return s.putParticipant(ctx, models.NewParticipant(name, now))
}

// ListParticipants returns the roster sorted by name.
func (s *RedisStore) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	entries, err := s.client.HGetAll(ctx, participantsKey).Result()
	if err != nil {
		return nil, err
	}

	participants := make([]models.Participant, 0, len(entries))
	for _, data := range entries {
		var p models.Participant
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			continue
		}
		participants = append(participants, p)
	}

	slices.SortFunc(participants, func(a, b models.Participant) int {
		return strings.Compare(a.Name, b.Name)
	})
	return participants, nil
}

// touchScript rewrites a participant only if it is still in the roster, so
// a keep-alive racing an eviction cannot bring the participant back.
var touchScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// TouchParticipant refreshes the last activity of name.
func (s *RedisStore) TouchParticipant(ctx context.Context, name string, now time.Time) error {
	data, err := json.Marshal(models.NewParticipant(name, now))
	if err != nil {
		return err
	}

	updated, err := touchScript.Run(ctx, s.client, []string{participantsKey}, name, string(data)).Int()
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// RemoveParticipant deletes name from the roster. Absent names are ignored.
func (s *RedisStore) RemoveParticipant(ctx context.Context, name string) error {
	return s.client.HDel(ctx, participantsKey, name).Err()
}

// ParticipantNames returns the names currently in the roster.
func (s *RedisStore) ParticipantNames(ctx context.Context) ([]string, error) {
	return s.client.HKeys(ctx, participantsKey).Result()
}

func (s *RedisStore) putParticipant(ctx context.Context, p models.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, participantsKey, p.Name, string(data)).Err()
}

// AppendMessage stores a message under a new ULID and returns that ID.
func (s *RedisStore) AppendMessage(ctx context.Context, msg *models.Message) (string, error) {
	msg.ID = ulid.Make().String()

	seq, err := s.client.Incr(ctx, messageSeqKey).Result()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, messageKey(msg.ID), data, 0)
		pipe.ZAdd(ctx, messageOrderKey, redis.Z{
			Score:  float64(seq),
			Member: msg.ID,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// MessagesVisibleTo returns, in insertion order, the last limit messages
// user may read. A non-positive limit returns all of them.
func (s *RedisStore) MessagesVisibleTo(ctx context.Context, user string, limit int) ([]models.Message, error) {
	ids, err := s.client.ZRange(ctx, messageOrderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Message{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(values))
	for _, value := range values {
		data, ok := value.(string)
		if !ok {
			// Deleted between ZRANGE and MGET
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return models.Latest(models.FilterVisible(messages, user), limit), nil
}

// DeleteMessage removes a message if requester is its sender.
func (s *RedisStore) DeleteMessage(ctx context.Context, id, requester string) error {
	data, err := s.client.Get(ctx, messageKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}

	var msg models.Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return err
	}
	if msg.From != requester {
		return ErrNotMessageOwner
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, messageKey(id))
		pipe.ZRem(ctx, messageOrderKey, id)
		return nil
	})
	return err
}
