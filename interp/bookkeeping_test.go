package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-fxscript"
)

func TestBranchTracker(t *testing.T) {
	tr := newBranchTracker()

	done, known := tr.done("a")
	assert.False(t, done)
	assert.False(t, known)

	tr.register("a")
	done, known = tr.done("a")
	assert.False(t, done)
	assert.True(t, known)

	tr.complete("a")
	tr.complete("a")
	done, _ = tr.done("a")
	assert.True(t, done)

	tr.register("a")
	done, _ = tr.done("a")
	assert.False(t, done, "re-registering starts a new run")

	assert.Equal(t, "parallel-1", tr.nextParallel())
	assert.Equal(t, "parallel-2", tr.nextParallel())
}

type paramRecorder struct {
	name  string
	value any
}

func (p *paramRecorder) Execute(context.Context, *fxscript.ExecContext) error { return nil }

func (p *paramRecorder) OnParameterChanged(name string, value any, _ *fxscript.ExecContext) {
	p.name, p.value = name, value
}

func TestRunningRegistryNotifiesListenersOnly(t *testing.T) {
	r := newRunningRegistry()
	listener := &paramRecorder{}
	plain := fxscript.HandlerFunc(func(context.Context, *fxscript.ExecContext) error { return nil })

	first := r.add("beam", listener, &fxscript.ExecContext{})
	second := r.add("flash", plain, &fxscript.ExecContext{})
	assert.Equal(t, []string{first, second}, r.ids())

	assert.Equal(t, 1, r.notify("width", 2))
	assert.Equal(t, "width", listener.name)
	assert.Equal(t, 2, listener.value)

	r.remove(first)
	assert.Equal(t, 0, r.notify("width", 3))
	assert.Equal(t, 1, r.len())
}
