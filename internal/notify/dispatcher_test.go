package notify

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu       sync.Mutex
	sent     []Email
	failures int // fail this many sends before succeeding
}

func (f *fakeMailer) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, Email{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDispatcher(m Mailer, capacity int) *Dispatcher {
	d := NewDispatcher(m, capacity, slog.Default())
	d.retryDelay = time.Millisecond
	return d
}

func TestDispatcherDeliversQueued(t *testing.T) {
	mailer := &fakeMailer{}
	d := newTestDispatcher(mailer, 8)
	d.Start()

	d.Enqueue(Email{To: "a@example.com", Subject: "s", Body: "b"})
	d.Enqueue(Email{To: "b@example.com", Subject: "s", Body: "b"})
	d.Stop()

	require.Equal(t, 2, mailer.sentCount())
}

func TestDispatcherRetriesOnce(t *testing.T) {
	mailer := &fakeMailer{failures: 1}
	d := newTestDispatcher(mailer, 8)
	d.Start()

	d.Enqueue(Email{To: "a@example.com", Subject: "s", Body: "b"})
	d.Stop()

	assert.Equal(t, 1, mailer.sentCount())
}

func TestDispatcherDropsAfterRetry(t *testing.T) {
	mailer := &fakeMailer{failures: 2}
	d := newTestDispatcher(mailer, 8)
	d.Start()

	d.Enqueue(Email{To: "a@example.com", Subject: "s", Body: "b"})
	d.Stop()

	assert.Equal(t, 0, mailer.sentCount())
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	mailer := &fakeMailer{}
	d := newTestDispatcher(mailer, 1)
	// Worker not started: the queue fills up and stays full.

	done := make(chan struct{})
	go func() {
		for range 10 {
			d.Enqueue(Email{To: "a@example.com"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	mailer := &fakeMailer{}
	d := newTestDispatcher(mailer, 16)

	for range 5 {
		d.Enqueue(Email{To: "a@example.com"})
	}
	d.Start()
	d.Stop()

	assert.Equal(t, 5, mailer.sentCount())
}
