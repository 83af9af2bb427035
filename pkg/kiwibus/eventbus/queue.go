package eventbus

import "sync"

// callbackQueue runs callbacks one at a time in the order they were pushed,
// on a goroutine that exists only while the queue is non-empty. Pushing never
// blocks, so the transport read loop stays free while a callback waits on a
// nested request.
type callbackQueue struct {
	mu      sync.Mutex
	items   []func()
	running bool
}

func (q *callbackQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain()
}

func (q *callbackQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		fn()
	}
}
