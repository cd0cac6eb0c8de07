// Package queue is a bounded in-process work queue drained by a fixed worker pool.
//
// The Engine runs notification delivery and audit emission through it so that neither
// sits on the request path.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config sizes a Queue. Zero Workers or BufferSize mean 1.
type Config[T any] struct {
	Workers    int
	BufferSize int
	// DropIfFull makes Push discard the item instead of waiting for room.
	DropIfFull bool
	// OnDrop, when set, is called for every item Push discards.
	OnDrop func(item T)
}

// Queue hands items to handle on its worker goroutines. It is safe for concurrent use.
type Queue[T any] struct {
	cfg    Config[T]
	handle func(T)

	ch      chan T
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// mu is held for reading across every send so that Close cannot stop the
	// workers while a send is in flight.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New starts the workers.
func New[T any](cfg Config[T], handle func(T)) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	q := &Queue[T]{
		cfg:    cfg,
		handle: handle,
		ch:     make(chan T, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.work()
	}
	return q
}

func (q *Queue[T]) work() {
	defer q.wg.Done()

	for {
		select {
		case item := <-q.ch:
			q.handle(item)
		case <-q.done:
			for {
				select {
				case item := <-q.ch:
					q.handle(item)
				default:
					return
				}
			}
		}
	}
}

// Push enqueues item and reports whether it was accepted. Without DropIfFull it waits for
// room until ctx is done. Items pushed after Close are ignored and not counted as drops.
func (q *Queue[T]) Push(ctx context.Context, item T) bool {
	if q == nil {
		return false
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	if q.cfg.DropIfFull {
		select {
		case q.ch <- item:
			return true
		default:
			q.drop(item)
			return false
		}
	}

	select {
	case q.ch <- item:
		return true
	case <-ctx.Done():
		q.drop(item)
		return false
	}
}

func (q *Queue[T]) drop(item T) {
	q.dropped.Add(1)
	if q.cfg.OnDrop != nil {
		q.cfg.OnDrop(item)
	}
}

// Close stops accepting items, handles everything already queued, and waits for the
// workers to exit. Pushes already waiting for room finish first; the workers keep
// draining until they do.
func (q *Queue[T]) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		close(q.done)
		q.wg.Wait()
	})
}

// Dropped returns the number of items discarded by Push.
func (q *Queue[T]) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
