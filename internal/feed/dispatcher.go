package feed

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"rental-availability-backend/internal/domain"
)

// ErrDispatcherClosed is returned for events sent after Stop.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// EventKind tells recorded and retracted events apart.
type EventKind string

const (
	EventRecorded  EventKind = "recorded"
	EventRetracted EventKind = "retracted"
)

// Event is the payload published for every booking change.
type Event struct {
	Kind   EventKind            `json:"kind"`
	Record domain.BookingRecord `json:"record"`
}

// RoutingKey is booking.<kind>.<resource id>.
func (e Event) RoutingKey() string {
	return "booking." + string(e.Kind) + "." + e.Record.ResourceID
}

// Persister is the durable side of the feed.
type Persister interface {
	RecordOccupancy(ctx context.Context, rec domain.BookingRecord) error
	RetractOccupancy(ctx context.Context, rec domain.BookingRecord) error
}

// Dispatcher is a Sink that persists and publishes events on a pool of
// workers. Events of one occupancy always go to the same worker, so a
// retraction is never applied before its record.
type Dispatcher struct {
	queues    []chan Event
	persister Persister
	publisher Publisher
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates size workers, each with a queue of buffer events.
// A nil persister or publisher skips that side.
func NewDispatcher(size, buffer int, persister Persister, publisher Publisher, logger *slog.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	queues := make([]chan Event, size)
	for i := range queues {
		queues[i] = make(chan Event, buffer) // Buffered channel
	}
	return &Dispatcher{queues: queues, persister: persister, publisher: publisher, logger: logger}
}

// Start launches the worker goroutines. Workers keep draining their queue
// after ctx is cancelled until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i, q := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, i, q)
	}
}

// Stop closes the queues and waits for queued events to be handled.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int, q <-chan Event) {
	defer d.wg.Done()
	d.logger.Debug("feed worker started", "worker", id)
	for ev := range q {
		d.process(ctx, ev)
	}
	d.logger.Debug("feed worker stopped", "worker", id)
}

func (d *Dispatcher) Record(ctx context.Context, rec domain.BookingRecord) error {
	return d.enqueue(ctx, Event{Kind: EventRecorded, Record: rec})
}

func (d *Dispatcher) Retract(ctx context.Context, rec domain.BookingRecord) error {
	return d.enqueue(ctx, Event{Kind: EventRetracted, Record: rec})
}

func (d *Dispatcher) enqueue(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.Record.OccupancyID))
	q := d.queues[h.Sum32()%uint32(len(d.queues))]
	select {
	case q <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) process(ctx context.Context, ev Event) {
	if d.persister != nil {
		var err error
		switch ev.Kind {
		case EventRecorded:
			err = d.persister.RecordOccupancy(ctx, ev.Record)
		case EventRetracted:
			err = d.persister.RetractOccupancy(ctx, ev.Record)
		}
		if err != nil {
			d.logger.Error("failed to persist booking event",
				"kind", ev.Kind,
				"occupancy", ev.Record.OccupancyID,
				"error", err,
			)
		}
	}

	if d.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("failed to encode booking event", "occupancy", ev.Record.OccupancyID, "error", err)
		return
	}
	if err := d.publisher.Publish(ctx, ev.RoutingKey(), payload); err != nil {
		d.logger.Error("failed to publish booking event",
			"routing_key", ev.RoutingKey(),
			"error", err,
		)
	}
}
