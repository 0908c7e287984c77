package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Email is one queued notification.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Dispatcher runs a background worker that drains a bounded queue of emails.
// Enqueue never blocks the caller: when the queue is full the message is
// dropped and logged. A failed send is retried once, then dropped. The
// dispatcher deliberately has no tie to any request context, so cancelling
// the request that triggered a notification never cancels its delivery.
type Dispatcher struct {
	mailer Mailer
	logger *slog.Logger
	queue  chan Email

	retryDelay time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity.
func NewDispatcher(mailer Mailer, capacity int, logger *slog.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = 64
	}
	return &Dispatcher{
		mailer:     mailer,
		logger:     logger,
		queue:      make(chan Email, capacity),
		retryDelay: time.Second,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Safe to call once; later calls are
// no-ops.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Enqueue queues an email for delivery. Never blocks; drops and logs when
// the queue is full or the dispatcher is stopping.
func (d *Dispatcher) Enqueue(e Email) {
	select {
	case <-d.done:
		d.logger.Warn("notify: dispatcher stopped, dropping email", "to", e.To)
	case d.queue <- e:
	default:
		d.logger.Warn("notify: queue full, dropping email", "to", e.To)
	}
}

// Stop drains the queue and stops the worker. Blocks until in-flight sends
// finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		<-d.stopped
	})
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-d.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case e := <-d.queue:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(e Email) {
	err := d.mailer.Send(e.To, e.Subject, e.Body)
	if err == nil {
		return
	}
	d.logger.Warn("notify: send failed, retrying once", "to", e.To, "error", err)
	time.Sleep(d.retryDelay)
	if err := d.mailer.Send(e.To, e.Subject, e.Body); err != nil {
		d.logger.Error("notify: send failed after retry, dropping", "to", e.To, "error", err)
	}
}
