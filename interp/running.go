package interp

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-fxscript"
)

// runningRegistry maps live handlers to the context they run under. It
// exists only to fan out parameter changes.
type runningRegistry struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]runningEntry
}

type runningEntry struct {
	seq     uint64
	effect  string
	handler fxscript.Handler
	ec      *fxscript.ExecContext
}

func newRunningRegistry() *runningRegistry {
	return &runningRegistry{entries: make(map[string]runningEntry)}
}

func (r *runningRegistry) add(effect string, h fxscript.Handler, ec *fxscript.ExecContext) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := fmt.Sprintf("%s#%d", effect, r.seq)
	r.entries[id] = runningEntry{seq: r.seq, effect: effect, handler: h, ec: ec}
	return id
}

func (r *runningRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *runningRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ids lists live entries in start order.
func (r *runningRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]runningEntry, 0, len(r.entries))
	keys := make(map[uint64]string, len(r.entries))
	for id, e := range r.entries {
		entries = append(entries, e)
		keys[e.seq] = id
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, keys[e.seq])
	}
	return out
}

// notify calls OnParameterChanged on every live listener, outside the lock.
func (r *runningRegistry) notify(name string, value any) int {
	r.mu.Lock()
	targets := make([]runningEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if _, ok := e.handler.(fxscript.ParameterListener); ok {
			targets = append(targets, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].seq < targets[j].seq })
	for _, e := range targets {
		e.handler.(fxscript.ParameterListener).OnParameterChanged(name, value, e.ec)
	}
	return len(targets)
}
