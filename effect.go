package fxscript

import "context"

// Handler is the contract every concrete effect implements. The engine
// owns the call sequence; renderers only implement it.
type Handler interface {
	Execute(ctx context.Context, ec *ExecContext) error
}

// HandlerFunc is an adapter that lets you use a function as a Handler
type HandlerFunc func(ctx context.Context, ec *ExecContext) error

// Execute calls the underlying function
func (f HandlerFunc) Execute(ctx context.Context, ec *ExecContext) error {
	return f(ctx, ec)
}

// Starter is called before Execute when implemented.
type Starter interface {
	Start() error
}

// Stopper ends a handler that keeps running after Execute returns.
type Stopper interface {
	Stop() error
}

// SteadyReporter marks handlers that model a continuous presence rather
// than an instantaneous occurrence. Handlers without it are one-shot.
type SteadyReporter interface {
	IsSteady() bool
}

// ParameterListener receives runtime parameter updates while live.
type ParameterListener interface {
	OnParameterChanged(name string, value any, ec *ExecContext)
}

// RunningReporter lets a steady handler report that it finished on its own.
type RunningReporter interface {
	IsRunning() bool
}

// IsSteady reports whether h declares itself steady.
func IsSteady(h Handler) bool {
	if sr, ok := h.(SteadyReporter); ok {
		return sr.IsSteady()
	}
	return false
}

// Factory resolves an effect id to a fresh handler instance.
type Factory interface {
	Create(effectID string, local EffectContext) (Handler, error)
}

// ScriptProvider resolves script ids. A nil script with a nil error means
// the script does not exist.
type ScriptProvider interface {
	Load(ctx context.Context, id string) (*Script, error)
}

// CommandExecutor runs external commands for Cmd steps.
type CommandExecutor interface {
	ExecuteCommand(ctx context.Context, name string, args map[string]any) error
}

// CommandFunc is an adapter that lets you use a function as a CommandExecutor
type CommandFunc func(ctx context.Context, name string, args map[string]any) error

// ExecuteCommand calls the underlying function
func (f CommandFunc) ExecuteCommand(ctx context.Context, name string, args map[string]any) error {
	return f(ctx, name, args)
}
