package effects

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/interp"
)

// Deps are the shared dependencies injected into every constructor.
type Deps struct {
	Clock  interp.Clock
	Logger interp.Logger
}

// Constructor builds a fresh handler for one invocation.
type Constructor func(deps Deps, local fxscript.EffectContext) (fxscript.Handler, error)

// Option configures a Registry.
type Option func(*Registry)

func WithClock(c interp.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.deps.Clock = c
		}
	}
}

func WithLogger(l interp.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.deps.Logger = l
		}
	}
}

// WithNamespacer customizes how namespaced ids are joined.
func WithNamespacer(fn func(namespace, id string) string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.namespacer = fn
		}
	}
}

// Registry maps effect ids to constructors. It implements fxscript.Factory.
type Registry struct {
	mu         sync.RWMutex
	ctors      map[string]Constructor
	namespacer func(string, string) string
	deps       Deps
}

var _ fxscript.Factory = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		ctors:      make(map[string]Constructor),
		namespacer: defaultNamespace,
		deps: Deps{
			Clock:  interp.RealClock(),
			Logger: interp.NewFmtLogger(nil),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register stores a constructor by id.
func (r *Registry) Register(id string, ctor Constructor) error {
	return r.RegisterNamespaced("", id, ctor)
}

// RegisterNamespaced stores a constructor using a namespace + id.
func (r *Registry) RegisterNamespaced(namespace, id string, ctor Constructor) error {
	if strings.TrimSpace(id) == "" || ctor == nil {
		return errors.New("effect id and constructor are required", errors.CategoryBadInput).
			WithTextCode(fxscript.ErrCodeEffectRegisterInvalid)
	}
	key := r.namespacer(namespace, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[key]; exists {
		return errors.New(fmt.Sprintf("effect %s already registered", key), errors.CategoryConflict).
			WithTextCode(fxscript.ErrCodeEffectAlreadyRegistered).
			WithMetadata(map[string]any{"effect": key})
	}
	r.ctors[key] = ctor
	return nil
}

// RegisterHandler registers a stateless handler shared by every invocation.
func (r *Registry) RegisterHandler(id string, h fxscript.Handler) error {
	if h == nil {
		return r.Register(id, nil)
	}
	return r.Register(id, func(Deps, fxscript.EffectContext) (fxscript.Handler, error) {
		return h, nil
	})
}

// Lookup returns a constructor by id.
func (r *Registry) Lookup(id string) (Constructor, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[strings.TrimSpace(id)]
	return ctor, ok
}

// IDs lists registered effect ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Create resolves id and builds a handler for local.
func (r *Registry) Create(id string, local fxscript.EffectContext) (fxscript.Handler, error) {
	id = strings.TrimSpace(id)
	ctor, ok := r.Lookup(id)
	if !ok {
		return nil, errors.New(fmt.Sprintf("unknown effect %s", id), errors.CategoryNotFound).
			WithTextCode(fxscript.ErrCodeUnknownEffect).
			WithMetadata(map[string]any{"effect": id})
	}
	local.EffectID = id
	h, err := ctor(r.deps, local)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("effect %s could not be created", id)).
			WithTextCode(fxscript.ErrCodeUnknownEffect).
			WithMetadata(map[string]any{"effect": id})
	}
	return h, nil
}

// Play constructs the effect and executes it once, calling Start first
// when the handler implements it.
func (r *Registry) Play(ctx context.Context, id string, local fxscript.EffectContext, ec *fxscript.ExecContext) error {
	h, err := r.Create(id, local)
	if err != nil {
		return err
	}
	return fxscript.Guard("effect "+id, nil, map[string]any{"effect": id}, func() error {
		if s, ok := h.(fxscript.Starter); ok {
			if err := s.Start(); err != nil {
				return err
			}
		}
		return h.Execute(ctx, ec)
	})
}
