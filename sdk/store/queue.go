package store

import "sync"

// queue is an unbounded FIFO. push never blocks; ready fires when items are
// available.
type queue struct {
	mx     *sync.Mutex
	items  []item
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{
		mx:     &sync.Mutex{},
		notify: make(chan struct{}, 1),
	}
}

func (q *queue) push(it item) int {
	q.mx.Lock()
	q.items = append(q.items, it)
	n := len(q.items)
	q.mx.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return n
}

func (q *queue) pop() (item, int, bool) {
	q.mx.Lock()
	defer q.mx.Unlock()
	if len(q.items) == 0 {
		return nil, 0, false
	}
	it := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return it, len(q.items), true
}

func (q *queue) ready() <-chan struct{} {
	return q.notify
}
