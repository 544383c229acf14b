package ws

import "sync"

// controlFrame is a protocol reply generated by the read side for the writer
// to send (pong or close echo).
type controlFrame struct {
	kind int
	data []byte
}

// controlQueue is an unbounded FIFO of control frames with a level-triggered
// ready signal. The reader pushes without ever blocking; the writer drains.
type controlQueue struct {
	mu     sync.Mutex
	frames []controlFrame
	ready  chan struct{}
}

func newControlQueue() *controlQueue {
	return &controlQueue{ready: make(chan struct{}, 1)}
}

func (q *controlQueue) push(f controlFrame) {
	q.mu.Lock()
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain removes and returns every queued frame in push order.
func (q *controlQueue) drain() []controlFrame {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = nil
	return out
}

func (q *controlQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
