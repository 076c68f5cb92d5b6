package store

import (
	"context"
	"time"

	"github.com/eldtechnologies/batepapo/internal/metrics"
	"github.com/eldtechnologies/batepapo/internal/models"
)

// instrumented records the latency of every call to the wrapped Store.
type instrumented struct {
	next Store
}

// Instrument wraps s so that each operation is observed in
// metrics.StoreLatency, labelled with the backend name.
func Instrument(s Store) Store {
	return &instrumented{next: s}
}

func (i *instrumented) observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(i.next.Backend(), op).Observe(time.Since(start).Seconds())
}

func (i *instrumented) Close() { i.next.Close() }

func (i *instrumented) Backend() string { return i.next.Backend() }

func (i *instrumented) Ping(ctx context.Context) error {
	defer i.observe("ping", time.Now())
	return i.next.Ping(ctx)
}

func (i *instrumented) RegisterParticipant(ctx context.Context, name string, now time.Time) error {
	defer i.observe("register_participant", time.Now())
	return i.next.RegisterParticipant(ctx, name, now)
}

func (i *instrumented) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	defer i.observe("list_participants", time.Now())
	return i.next.ListParticipants(ctx)
}

func (i *instrumented) TouchParticipant(ctx context.Context, name string, now time.Time) error {
	defer i.observe("touch_participant", time.Now())
	return i.next.TouchParticipant(ctx, name, now)
}

func (i *instrumented) RemoveParticipant(ctx context.Context, name string) error {
	defer i.observe("remove_participant", time.Now())
	return i.next.RemoveParticipant(ctx, name)
}

func (i *instrumented) ParticipantNames(ctx context.Context) ([]string, error) {
	defer i.observe("participant_names", time.Now())
	return i.next.ParticipantNames(ctx)
}

func (i *instrumented) AppendMessage(ctx context.Context, msg *models.Message) (string, error) {
	defer i.observe("append_message", time.Now())
	return i.next.AppendMessage(ctx, msg)
}

func (i *instrumented) MessagesVisibleTo(ctx context.Context, user string, limit int) ([]models.Message, error) {
	defer i.observe("messages_visible_to", time.Now())
	return i.next.MessagesVisibleTo(ctx, user, limit)
}

func (i *instrumented) DeleteMessage(ctx context.Context, id, requester string) error {
	defer i.observe("delete_message", time.Now())
	return i.next.DeleteMessage(ctx, id, requester)
}
