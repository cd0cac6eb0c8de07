package audit

import (
	"context"

	"github.com/MrEthical07/authx/internal/queue"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// OnDrop, when set, is called for every event dropped because the buffer was full.
	OnDrop func(event Event)
}

// Dispatcher forwards audit events to a sink from a single background goroutine, so
// the sink sees events in emission order.
type Dispatcher struct {
	events *queue.Queue[Event]
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg.Enabled is false;
// all methods are no-ops on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	emit := func(event Event) { sink.Emit(context.Background(), event) }
	return &Dispatcher{
		events: queue.New(queue.Config[Event]{
			Workers:    1,
			BufferSize: cfg.BufferSize,
			DropIfFull: cfg.DropIfFull,
			OnDrop:     cfg.OnDrop,
		}, emit),
	}
}

// Emit queues event. It never blocks when DropIfFull is set.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.events.Push(ctx, event)
}

// Close stops accepting events, delivers everything already buffered, and waits for the
// delivery goroutine to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.events.Close()
}

// Dropped returns the number of events discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.events.Dropped()
}
