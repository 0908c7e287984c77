package matching

import (
	"context"
	"log/slog"
)

// Broadcaster fans match lifecycle events out to live subscribers. Delivery
// is at-most-once and unordered relative to other state changes; consumers
// treat events as invalidation hints and re-fetch authoritative state.
//
// Implementations must not block the caller on slow subscribers. Errors are
// for logging only; no state transition waits on a broadcast.
type Broadcaster interface {
	// Publish sends an event to every subscriber.
	Publish(ctx context.Context, event string, payload any) error

	// PublishToRoom sends an event to subscribers of one room (a match id).
	PublishToRoom(ctx context.Context, room, event string, payload any) error
}

// NoopBroadcaster logs and drops every event. Used when no transport is
// attached.
type NoopBroadcaster struct {
	Logger *slog.Logger
}

func (n NoopBroadcaster) Publish(_ context.Context, event string, _ any) error {
	if n.Logger != nil {
		n.Logger.Debug("broadcast dropped: no transport attached", "event", event)
	}
	return nil
}

func (n NoopBroadcaster) PublishToRoom(_ context.Context, room, event string, _ any) error {
	if n.Logger != nil {
		n.Logger.Debug("broadcast dropped: no transport attached", "event", event, "room", room)
	}
	return nil
}
