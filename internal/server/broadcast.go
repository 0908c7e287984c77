package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reuniteapp/reunite/internal/storage"
)

// PgBroadcaster implements matching.Broadcaster on top of Postgres NOTIFY.
// Events round-trip through the database so every instance's Broker sees
// them, including the one that published.
type PgBroadcaster struct {
	db *storage.DB
}

// NewPgBroadcaster creates a broadcaster that publishes via pg_notify.
func NewPgBroadcaster(db *storage.DB) *PgBroadcaster {
	return &PgBroadcaster{db: db}
}

// Publish sends a match lifecycle event to the global feed. When the payload
// carries a match_id the event is also routed to that match's room.
func (p *PgBroadcaster) Publish(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broadcast: marshal payload: %w", err)
	}

	var carrier struct {
		MatchID string `json:"match_id"`
	}
	_ = json.Unmarshal(raw, &carrier)

	return p.notify(ctx, storage.ChannelMatches, envelope{
		Event:   event,
		Room:    carrier.MatchID,
		Payload: raw,
	})
}

// PublishToRoom sends a room-scoped event (chat traffic).
func (p *PgBroadcaster) PublishToRoom(ctx context.Context, room, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broadcast: marshal payload: %w", err)
	}
	return p.notify(ctx, storage.ChannelChat, envelope{
		Event:   event,
		Room:    room,
		Payload: raw,
	})
}

func (p *PgBroadcaster) notify(ctx context.Context, channel string, env envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("broadcast: marshal envelope: %w", err)
	}
	return p.db.Notify(ctx, channel, string(msg))
}
