package fxscript

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/goliatone/go-errors"
)

// PanicLogger receives panics recovered from effect handlers.
type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// Guard runs fn and converts a panic into a handler error carrying the
// cleaned stack. logger may be nil.
func Guard(funcName string, logger PanicLogger, fields map[string]any, fn func() error) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		fullStack := make([]byte, 8096)
		n := runtime.Stack(fullStack, false)
		stack := cleanStackTrace(fullStack[:n])

		if logger != nil {
			logger(funcName, rec, stack, fields)
		}

		meta := map[string]any{
			"func":  funcName,
			"panic": fmt.Sprint(rec),
			"stack": string(stack),
		}
		for k, v := range fields {
			meta[k] = v
		}
		var source error
		if e, ok := rec.(error); ok {
			source = e
		} else {
			source = fmt.Errorf("%v", rec)
		}
		err = errors.Wrap(source, errors.CategoryHandler, "recovered from panic in "+funcName).
			WithTextCode(ErrCodeHandlerFailed).
			WithMetadata(meta)
	}()
	return fn()
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	// we find the index after the panic line
	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// then remove everything before it, including the panic() call and its
	// file reference line
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
