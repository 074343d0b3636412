package neon

import "sync"

// DefaultPendingLimit bounds how many undecrypted messages are buffered.
const DefaultPendingLimit = 1000

// PendingQueue holds messages that arrived before the room key was derived,
// keyed by message id and replayed in arrival order.
type PendingQueue struct {
	mu    sync.Mutex
	limit int
	order []string
	items map[string]chatPayload
}

// NewPendingQueue creates a queue that evicts its oldest entry beyond limit.
func NewPendingQueue(limit int) *PendingQueue {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return &PendingQueue{limit: limit, items: make(map[string]chatPayload)}
}

func (q *PendingQueue) add(msg chatPayload) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[msg.MessageID]; ok {
		q.items[msg.MessageID] = msg
		return
	}
	if len(q.order) >= q.limit {
		delete(q.items, q.order[0])
		q.order = q.order[1:]
	}
	q.order = append(q.order, msg.MessageID)
	q.items[msg.MessageID] = msg
}

// drain empties the queue and returns its messages in arrival order.
func (q *PendingQueue) drain() []chatPayload {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]chatPayload, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.items[id])
	}
	q.order = nil
	q.items = make(map[string]chatPayload)
	return out
}

// Len returns the number of buffered messages.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
