package handlerutils

import (
	"errors"
	"sync"

	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
)

var (
	ErrQueueFull     = errors.New("handler queue is full")
	ErrHandlerClosed = errors.New("handler is closed")
)

// AsyncHandler queues events for a wrapped handler and runs it on its own
// goroutine, so slow handlers do not stall the connection's read loop.
//
// Example:
//
//	async := handlerutils.NewAsyncHandler(handleDevices, 100).Start()
//	defer async.Close()
//	client.RegisterBusHandler(id, async.Handler())
type AsyncHandler struct {
	wrapped   eventbus.Handler
	queue     chan eventbus.Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	onDrop    func(eventbus.Event, error)
}

// NewAsyncHandler creates an AsyncHandler with a queue of queueSize events.
// Start must be called before events are processed.
func NewAsyncHandler(wrapped eventbus.Handler, queueSize int) *AsyncHandler {
	if queueSize <= 0 {
		queueSize = 100
	}

	return &AsyncHandler{
		wrapped: wrapped,
		queue:   make(chan eventbus.Event, queueSize),
		done:    make(chan struct{}),
	}
}

// WithDropHandler sets a callback for events that could not be queued.
func (a *AsyncHandler) WithDropHandler(fn func(eventbus.Event, error)) *AsyncHandler {
	a.onDrop = fn
	return a
}

// Start begins processing queued events.
func (a *AsyncHandler) Start() *AsyncHandler {
	a.wg.Add(1)
	go a.processQueue()
	return a
}

func (a *AsyncHandler) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case event := <-a.queue:
			a.wrapped(event)
		case <-a.done:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncHandler) drainQueue() {
	for {
		select {
		case event := <-a.queue:
			a.wrapped(event)
		default:
			return
		}
	}
}

// Enqueue queues event and returns immediately.
func (a *AsyncHandler) Enqueue(event eventbus.Event) error {
	if a.IsClosed() {
		return ErrHandlerClosed
	}

	select {
	case a.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Handler returns an eventbus.Handler that enqueues events. Events that
// cannot be queued go to the drop handler.
func (a *AsyncHandler) Handler() eventbus.Handler {
	return func(event eventbus.Event) {
		if err := a.Enqueue(event); err != nil && a.onDrop != nil {
			a.onDrop(event, err)
		}
	}
}

// Close stops accepting events and waits until every queued event has been
// handled.
func (a *AsyncHandler) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

// QueueSize returns the number of events waiting in the queue.
func (a *AsyncHandler) QueueSize() int {
	return len(a.queue)
}

// QueueCapacity returns the maximum capacity of the queue.
func (a *AsyncHandler) QueueCapacity() int {
	return cap(a.queue)
}

// IsClosed reports whether Close has been called.
func (a *AsyncHandler) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
