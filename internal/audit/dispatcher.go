package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit events to a sink from a single
// worker goroutine. A nil *Dispatcher is valid and drops everything.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	queue   chan Event
	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
	// flushCtx is written once before quit is closed and read by the
	// worker only after it observes quit.
	flushCtx context.Context
}

// NewDispatcher starts the worker. It returns nil when auditing is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		// shutdown wins over a ready queue so flushed events see flushCtx
		select {
		case <-d.quit:
			d.drain(d.flushCtx)
			return
		default:
		}

		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain(d.flushCtx)
			return
		}
	}
}

// drain hands buffered events to the sink under ctx. Once ctx is done the
// rest of the buffer is counted as dropped instead of delivered.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.queue:
			if ctx.Err() != nil {
				d.dropped.Add(1)
				continue
			}
			d.sink.Emit(ctx, event)
		default:
			return
		}
	}
}

// Emit enqueues event. With DropIfFull a full buffer drops the event and
// bumps the dropped counter; otherwise Emit waits for space, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Shutdown stops accepting events and flushes the buffer, passing ctx to
// the sink for every flushed event. If ctx ends first, Shutdown returns
// ctx.Err() and whatever is still buffered is counted as dropped. Later
// calls wait for the same flush.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.once.Do(func() {
		d.flushCtx = ctx
		d.closed.Store(true)
		close(d.quit)
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

// Dropped reports how many events were discarded under backpressure or
// left over when a Shutdown deadline expired.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
