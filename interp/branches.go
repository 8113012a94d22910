package interp

import (
	"fmt"
	"sync"
)

// branchTracker records in-flight Parallel branches so While steps can
// gate on their completion.
type branchTracker struct {
	mu       sync.Mutex
	seq      int
	branches map[string]chan struct{}
}

func newBranchTracker() *branchTracker {
	return &branchTracker{branches: make(map[string]chan struct{})}
}

// nextParallel returns a prefix for generated branch ids.
func (t *branchTracker) nextParallel() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	return fmt.Sprintf("parallel-%d", t.seq)
}

// register marks id as in flight. Re-registering an id starts a new run.
func (t *branchTracker) register(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.branches[id] = make(chan struct{})
}

func (t *branchTracker) complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.branches[id]
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// done reports whether id completed; known is false for ids never
// registered.
func (t *branchTracker) done(id string) (done bool, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.branches[id]
	if !ok {
		return false, false
	}
	select {
	case <-ch:
		return true, true
	default:
		return false, true
	}
}
