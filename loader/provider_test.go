package loader

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-fxscript"
)

func TestMemoryProvider(t *testing.T) {
	p := NewMemoryProvider(&fxscript.Script{ID: "a", Root: fxscript.Wait{}})
	require.NoError(t, p.Add(&fxscript.Script{ID: "b", Root: fxscript.Wait{}}))
	assert.Error(t, p.Add(&fxscript.Script{ID: "bad"}))

	s, err := p.Load(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", s.ID)

	s, err = p.Load(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, []string{"a", "b"}, p.IDs())
}

func TestFSProviderResolvesExtensions(t *testing.T) {
	fsys := fstest.MapFS{
		"fireball.yaml": {Data: []byte("root: {type: play, effect: fire}"), ModTime: time.Unix(1, 0)},
		"frost.json":    {Data: []byte(`{"id": "frost", "root": {"type": "play", "effect": "ice"}}`)},
		"wrong.yml":     {Data: []byte("id: other\nroot: {type: wait}")},
		"notes.txt":     {Data: []byte("ignored")},
	}
	p := NewFSProvider(fsys)

	s, err := p.Load(context.Background(), "fireball")
	require.NoError(t, err)
	assert.Equal(t, "fireball", s.ID, "id defaults to file name")
	assert.Equal(t, fxscript.Play{Effect: "fire"}, s.Root)

	again, err := p.Load(context.Background(), "fireball")
	require.NoError(t, err)
	assert.Same(t, s, again, "unchanged files are served from cache")

	fsys["fireball.yaml"] = &fstest.MapFile{Data: []byte("root: {type: play, effect: inferno}"), ModTime: time.Unix(2, 0)}
	reloaded, err := p.Load(context.Background(), "fireball")
	require.NoError(t, err)
	assert.Equal(t, fxscript.Play{Effect: "inferno"}, reloaded.Root)

	s, err = p.Load(context.Background(), "frost")
	require.NoError(t, err)
	assert.Equal(t, "frost", s.ID)

	_, err = p.Load(context.Background(), "wrong")
	assert.Equal(t, fxscript.ErrCodeParseFailed, fxscript.ErrorCode(err))

	s, err = p.Load(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, s)

	_, err = p.Load(context.Background(), "../secrets")
	assert.Equal(t, fxscript.ErrCodeScriptNotFound, fxscript.ErrorCode(err))

	ids, err := p.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"fireball", "frost", "wrong"}, ids)
}
