package loader

import (
	"context"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-fxscript"
)

// Extensions are tried in order when resolving a script id to a file.
var Extensions = []string{".yaml", ".yml", ".json"}

// MemoryProvider serves scripts registered in memory.
type MemoryProvider struct {
	mu      sync.RWMutex
	scripts map[string]*fxscript.Script
}

var (
	_ fxscript.ScriptProvider = (*MemoryProvider)(nil)
	_ fxscript.ScriptProvider = (*FSProvider)(nil)
)

// NewMemoryProvider registers scripts by id.
func NewMemoryProvider(scripts ...*fxscript.Script) *MemoryProvider {
	p := &MemoryProvider{scripts: make(map[string]*fxscript.Script, len(scripts))}
	for _, s := range scripts {
		if s != nil {
			p.scripts[s.ID] = s
		}
	}
	return p
}

// Add validates and registers s, replacing any script with the same id.
func (p *MemoryProvider) Add(s *fxscript.Script) error {
	if err := s.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[s.ID] = s
	return nil
}

// Load returns nil, nil for unknown ids.
func (p *MemoryProvider) Load(_ context.Context, id string) (*fxscript.Script, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scripts[id], nil
}

// IDs lists registered script ids.
func (p *MemoryProvider) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.scripts))
	for id := range p.scripts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FSProvider resolves script ids to files named <id>.yaml, <id>.yml or
// <id>.json in a file system. Parsed scripts are cached until the file's
// modification time changes.
type FSProvider struct {
	fsys fs.FS

	mu    sync.Mutex
	cache map[string]cachedScript
}

type cachedScript struct {
	modTime time.Time
	script  *fxscript.Script
}

// NewFSProvider reads scripts from fsys.
func NewFSProvider(fsys fs.FS) *FSProvider {
	return &FSProvider{fsys: fsys, cache: make(map[string]cachedScript)}
}

// NewDirProvider reads scripts from a directory on disk.
func NewDirProvider(dir string) *FSProvider {
	return NewFSProvider(os.DirFS(dir))
}

// Load returns nil, nil when no file matches id. A document without an id
// takes the id of its file name.
func (p *FSProvider) Load(ctx context.Context, id string) (*fxscript.Script, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" || !fs.ValidPath(id) || strings.Contains(id, "..") {
		return nil, errors.New("invalid script id "+id, errors.CategoryBadInput).
			WithTextCode(fxscript.ErrCodeScriptNotFound).
			WithMetadata(map[string]any{"script_id": id})
	}

	for _, ext := range Extensions {
		name := id + ext
		info, err := fs.Stat(p.fsys, name)
		if err != nil {
			continue
		}
		if cached, ok := p.cached(name, info.ModTime()); ok {
			return cached, nil
		}
		script, err := p.parseFile(name, id)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[name] = cachedScript{modTime: info.ModTime(), script: script}
		p.mu.Unlock()
		return script, nil
	}
	return nil, nil
}

// IDs lists every script file in the root of the file system.
func (p *FSProvider) IDs() ([]string, error) {
	entries, err := fs.ReadDir(p.fsys, ".")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "list scripts").
			WithTextCode(fxscript.ErrCodeScriptNotFound)
	}
	seen := map[string]bool{}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := path.Ext(e.Name())
		for _, want := range Extensions {
			if ext != want {
				continue
			}
			id := strings.TrimSuffix(e.Name(), ext)
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *FSProvider) cached(name string, modTime time.Time) (*fxscript.Script, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cache[name]
	if !ok || !c.modTime.Equal(modTime) {
		return nil, false
	}
	return c.script, true
}

func (p *FSProvider) parseFile(name, id string) (*fxscript.Script, error) {
	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "read script "+name).
			WithTextCode(fxscript.ErrCodeScriptNotFound).
			WithMetadata(map[string]any{"script_id": id, "file": name})
	}
	script, err := ParseWithID(data, id)
	if err != nil {
		return nil, err
	}
	return script, nil
}

// ParseWithID parses data, defaulting the script id to id and rejecting a
// document that declares a different one.
func ParseWithID(data []byte, id string) (*fxscript.Script, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = id
	}
	if doc.ID != id {
		return nil, errors.New("script id "+doc.ID+" does not match "+id, errors.CategoryValidation).
			WithTextCode(fxscript.ErrCodeParseFailed).
			WithMetadata(map[string]any{"script_id": id, "declared_id": doc.ID})
	}
	script, err := doc.Script()
	if err != nil {
		return nil, err
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return script, nil
}
