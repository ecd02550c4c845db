package scanning

import "sync"

// workQueue is a FIFO of paths. A path stays tracked from push until done so the
// same file is never queued twice or queued while it is being scanned.
type workQueue struct {
	mu      sync.Mutex
	items   []string
	tracked map[string]struct{}
}

func newWorkQueue() *workQueue {
	return &workQueue{tracked: make(map[string]struct{})}
}

// push appends path and reports whether it was added.
func (q *workQueue) push(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.tracked[path]; ok {
		return false
	}
	q.tracked[path] = struct{}{}
	q.items = append(q.items, path)
	return true
}

// pop removes the oldest path. The path remains tracked until done is called.
func (q *workQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}
	path := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return path, true
}

// remove drops path if it is still waiting. A path already popped stays tracked
// until done.
func (q *workQueue) remove(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item == path {
			q.items = append(q.items[:i], q.items[i+1:]...)
			delete(q.tracked, path)
			return true
		}
	}
	return false
}

func (q *workQueue) done(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tracked, path)
}

func (q *workQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
