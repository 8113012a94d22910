package fxscript

import (
	stderrors "errors"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeStepFailed     = "FXSCRIPT_STEP_FAILED"
	ErrCodeHandlerFailed  = "FXSCRIPT_HANDLER_FAILED"
	ErrCodeParallelFailed = "FXSCRIPT_PARALLEL_FAILED"
	ErrCodeCallDepth      = "FXSCRIPT_CALL_DEPTH"
	ErrCodeInvalidScript  = "FXSCRIPT_INVALID_SCRIPT"
	ErrCodeUnknownEffect  = "FXSCRIPT_UNKNOWN_EFFECT"
	ErrCodeParseFailed    = "FXSCRIPT_PARSE_FAILED"
	ErrCodeRunNotFound    = "FXSCRIPT_RUN_NOT_FOUND"
	ErrCodeScriptNotFound = "FXSCRIPT_SCRIPT_NOT_FOUND"

	ErrCodeEffectRegisterInvalid   = "FXSCRIPT_EFFECT_REGISTER_INVALID"
	ErrCodeEffectAlreadyRegistered = "FXSCRIPT_EFFECT_ALREADY_REGISTERED"
)

// ErrUnknownEffect is returned by factories for ids they cannot resolve.
var ErrUnknownEffect = errors.New("unknown effect", errors.CategoryBadInput).
	WithTextCode(ErrCodeUnknownEffect)

// ErrorCode returns the go-errors text code carried by err, if any.
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
