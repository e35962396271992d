package events

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls how the dispatcher queues events.
type Config struct {
	Enabled bool

	// Buffer is the queue capacity. Values below 1 are raised to 1.
	Buffer int

	// BlockWhenFull makes Emit wait for queue space until ctx ends
	// instead of dropping immediately.
	BlockWhenFull bool
}

// family buckets drop accounting so operators can tell session churn from
// payment churn in a saturated queue.
type family int

const (
	familySession family = iota
	familyPayment
	familyOther
	familyCount
)

func familyOf(eventType string) family {
	switch {
	case strings.HasPrefix(eventType, "session."):
		return familySession
	case strings.HasPrefix(eventType, "payment."):
		return familyPayment
	default:
		return familyOther
	}
}

func (f family) String() string {
	switch f {
	case familySession:
		return "session"
	case familyPayment:
		return "payment"
	default:
		return "other"
	}
}

// Dispatcher forwards session and payment events to a sink on its own
// goroutine, stamping timestamps the emitters left zero. A nil *Dispatcher
// is valid and drops everything.
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	block   bool
	drained chan struct{}
	dropped [familyCount]atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	buffer := cfg.Buffer
	if buffer < 1 {
		buffer = 1
	}

	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, buffer),
		block:   cfg.BlockWhenFull,
		drained: make(chan struct{}),
	}
	go d.forward()
	return d
}

// forward owns sink delivery. Ranging over the queue makes it exit only
// after Close closed the queue and every buffered event reached the sink.
func (d *Dispatcher) forward() {
	defer close(d.drained)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues one event. With BlockWhenFull unset a full queue drops the
// event and charges the drop to the event's family.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if !d.block {
		select {
		case d.queue <- event:
		default:
			d.dropped[familyOf(event.EventType)].Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped[familyOf(event.EventType)].Add(1)
	}
}

// Close stops intake and waits until every queued event reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.drained
}

// Dropped returns the total number of discarded events.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var total uint64
	for i := range d.dropped {
		total += d.dropped[i].Load()
	}
	return total
}

// DroppedByFamily breaks the drop count down by event family.
func (d *Dispatcher) DroppedByFamily() map[string]uint64 {
	if d == nil {
		return nil
	}
	out := make(map[string]uint64, familyCount)
	for f := family(0); f < familyCount; f++ {
		if n := d.dropped[f].Load(); n > 0 {
			out[f.String()] = n
		}
	}
	return out
}
