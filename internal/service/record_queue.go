package service

import "sync"

// RecordQueue serializes backend work per client id. Turns are handed out in
// the order Enqueue is called; different ids never wait on each other.
type RecordQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// NewRecordQueue returns an empty queue.
func NewRecordQueue() *RecordQueue {
	return &RecordQueue{tails: make(map[string]chan struct{})}
}

// Enqueue reserves the next turn for id. The returned channel, nil when the
// id is idle, closes once the previous holder releases. release must be
// called exactly once.
func (q *RecordQueue) Enqueue(id string) (<-chan struct{}, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := q.tails[id]
	done := make(chan struct{})
	q.tails[id] = done

	var once sync.Once
	release := func() {
		once.Do(func() {
			q.mu.Lock()
			if q.tails[id] == done {
				delete(q.tails, id)
			}
			q.mu.Unlock()
			close(done)
		})
	}
	if prev == nil {
		return nil, release
	}
	return prev, release
}

// Busy reports whether id has a holder or waiters.
func (q *RecordQueue) Busy(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tails[id]
	return ok
}
