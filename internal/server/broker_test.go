package server

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/reuniteapp/reunite/internal/storage"
)

// testLogger returns a logger for tests that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func recvEvent(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case got := <-ch:
		return string(got)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func assertNoEvent(t *testing.T, ch chan []byte) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected event: %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerMatchEventReachesGlobalAndRoom(t *testing.T) {
	broker := NewBroker(nil, 8, testLogger())

	global := broker.Subscribe()
	room := broker.SubscribeRoom("match-1")
	other := broker.SubscribeRoom("match-2")

	broker.dispatch(storage.ChannelMatches, `{"event":"match:closed","room":"match-1","payload":{"match_id":"match-1"}}`)

	want := string(formatSSE("match:closed", `{"match_id":"match-1"}`))
	if got := recvEvent(t, global); got != want {
		t.Errorf("global: got %q, want %q", got, want)
	}
	if got := recvEvent(t, room); got != want {
		t.Errorf("room: got %q, want %q", got, want)
	}
	assertNoEvent(t, other)

	broker.Unsubscribe(global)
	broker.UnsubscribeRoom("match-1", room)
	broker.UnsubscribeRoom("match-2", other)
}

func TestBrokerChatStaysInRoom(t *testing.T) {
	broker := NewBroker(nil, 8, testLogger())

	global := broker.Subscribe()
	room := broker.SubscribeRoom("match-1")

	broker.dispatch(storage.ChannelChat, `{"event":"message:new","room":"match-1","payload":{"body":"hi"}}`)

	want := string(formatSSE("message:new", `{"body":"hi"}`))
	if got := recvEvent(t, room); got != want {
		t.Errorf("room: got %q, want %q", got, want)
	}
	assertNoEvent(t, global)

	broker.Unsubscribe(global)
	broker.UnsubscribeRoom("match-1", room)
}

func TestBrokerDropsMalformedNotification(t *testing.T) {
	broker := NewBroker(nil, 8, testLogger())

	global := broker.Subscribe()
	broker.dispatch(storage.ChannelMatches, `not json`)
	assertNoEvent(t, global)

	broker.Unsubscribe(global)
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	broker := NewBroker(nil, 8, testLogger())

	ch1 := broker.Subscribe()
	ch2 := broker.Subscribe()

	broker.Unsubscribe(ch1)
	broker.dispatch(storage.ChannelMatches, `{"event":"match:updated","payload":{}}`)

	if got := recvEvent(t, ch2); got != string(formatSSE("match:updated", "{}")) {
		t.Errorf("ch2: got %q", got)
	}
	if _, open := <-ch1; open {
		t.Error("ch1 should be closed after Unsubscribe")
	}

	broker.Unsubscribe(ch2)
}

func TestBrokerSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	broker := NewBroker(nil, 4, testLogger())

	// Slow subscriber whose buffer we never drain.
	slow := broker.Subscribe()
	fast := broker.Subscribe()

	// Overfill the slow subscriber's buffer.
	for range 10 {
		broker.dispatch(storage.ChannelMatches, `{"event":"match:updated","payload":{"n":1}}`)
	}

	// Drain fast so the next event has buffer room.
	for range 4 {
		<-fast
	}

	broker.dispatch(storage.ChannelMatches, `{"event":"match:updated","payload":{"n":2}}`)
	if got := recvEvent(t, fast); got != string(formatSSE("match:updated", `{"n":2}`)) {
		t.Errorf("fast: got %q", got)
	}

	broker.Unsubscribe(slow)
	broker.Unsubscribe(fast)
}

func TestBrokerRoomCleanup(t *testing.T) {
	broker := NewBroker(nil, 8, testLogger())

	ch := broker.SubscribeRoom("match-1")
	broker.UnsubscribeRoom("match-1", ch)

	broker.mu.RLock()
	defer broker.mu.RUnlock()
	if len(broker.rooms) != 0 {
		t.Errorf("rooms map not cleaned up: %d entries", len(broker.rooms))
	}
}

func TestFormatSSE(t *testing.T) {
	got := string(formatSSE("match:closed", `{"id":"123"}`))
	want := "event: match:closed\ndata: {\"id\":\"123\"}\n\n"
	if got != want {
		t.Errorf("formatSSE: got %q, want %q", got, want)
	}
}
