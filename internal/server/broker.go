package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/reuniteapp/reunite/internal/storage"
)

// envelope is the wire format carried over Postgres NOTIFY. Room is the
// match id for room-scoped events (chat, lifecycle of one match) and empty
// for purely global traffic.
type envelope struct {
	Event   string          `json:"event"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Broker fans out Postgres LISTEN/NOTIFY messages to SSE subscribers.
// It runs a background goroutine that calls db.WaitForNotification in a loop
// and delivers each event to global subscribers (the /v1/subscribe feed) and,
// when the event names a room, to that room's subscribers as well. Routing
// through NOTIFY rather than in-process channels keeps events flowing to
// every instance when more than one serves the same database.
type Broker struct {
	db         *storage.DB
	logger     *slog.Logger
	bufferSize int

	mu     sync.RWMutex
	global map[chan []byte]struct{}
	rooms  map[string]map[chan []byte]struct{}
}

// NewBroker creates a new SSE broker. Call Start to begin listening.
func NewBroker(db *storage.DB, bufferSize int, logger *slog.Logger) *Broker {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Broker{
		db:         db,
		logger:     logger,
		bufferSize: bufferSize,
		global:     make(map[chan []byte]struct{}),
		rooms:      make(map[string]map[chan []byte]struct{}),
	}
}

// Start begins listening on the match and chat channels.
// It blocks, so call it in a goroutine. Returns when ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	for _, ch := range []string{storage.ChannelMatches, storage.ChannelChat} {
		if err := b.db.Listen(ctx, ch); err != nil {
			b.logger.Error("broker: listen failed", "channel", ch, "error", err)
			return
		}
	}
	b.logger.Info("broker: listening for notifications",
		"channels", []string{storage.ChannelMatches, storage.ChannelChat})

	for {
		channel, payload, err := b.db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // Shutting down.
			}
			b.logger.Warn("broker: notification error, retrying", "error", err)
			continue
		}
		b.dispatch(channel, payload)
	}
}

func (b *Broker) dispatch(channel, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("broker: dropping malformed notification", "channel", channel, "error", err)
		return
	}

	event := formatSSE(env.Event, string(env.Payload))

	// Chat traffic stays inside its room; match lifecycle goes to the global
	// feed and to the match's room.
	if channel == storage.ChannelMatches {
		b.broadcastGlobal(event)
	}
	if env.Room != "" {
		b.broadcastRoom(env.Room, event)
	}
}

// Subscribe returns a channel that receives every match lifecycle event.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, b.bufferSize)
	b.mu.Lock()
	b.global[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a global subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.global, ch)
	b.mu.Unlock()
	close(ch)
}

// SubscribeRoom returns a channel that receives events for one room.
// The caller must call UnsubscribeRoom when done.
func (b *Broker) SubscribeRoom(room string) chan []byte {
	ch := make(chan []byte, b.bufferSize)
	b.mu.Lock()
	subs, ok := b.rooms[room]
	if !ok {
		subs = make(map[chan []byte]struct{})
		b.rooms[room] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// UnsubscribeRoom removes a room subscriber channel and closes it.
func (b *Broker) UnsubscribeRoom(room string, ch chan []byte) {
	b.mu.Lock()
	if subs, ok := b.rooms[room]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.rooms, room)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// broadcastGlobal sends an event to all global subscribers. Slow subscribers
// with a full buffer are skipped (their event is dropped) to prevent one
// slow client from blocking all others.
func (b *Broker) broadcastGlobal(event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.global {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broker) broadcastRoom(room string, event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.rooms[room] {
		select {
		case ch <- event:
		default:
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	// SSE format: "event: <type>\ndata: <payload>\n\n"
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
