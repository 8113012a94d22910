package interp

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-fxscript"
)

var (
	// ErrNoFactory is reported when an effect is needed but no factory is set.
	ErrNoFactory = errors.New("no effect factory configured", errors.CategoryInternal).
			WithTextCode(fxscript.ErrCodeUnknownEffect)
	// ErrNoHandler is reported when a factory returns a nil handler.
	ErrNoHandler = errors.New("factory returned no handler", errors.CategoryInternal).
			WithTextCode(fxscript.ErrCodeUnknownEffect)
)
