package interp

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fxscript"
)

func TestFmtLoggerLevelsAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewFmtLogger(buf).WithLevel(LevelWarn)

	logger.Info("hidden")
	withLoggerFields(logger, map[string]any{"script_id": "s1"}).Warn("shown %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown 1") || !strings.Contains(out, "script_id=s1") {
		t.Fatalf("expected warn line with fields, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGlogLoggerCarriesStructuredFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(
		glog.WithWriter(buf),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel("trace"),
	)

	it, err := New(script("glog", fxscript.Unknown{Type: "teleport"}), fxscript.Seed{},
		WithLogger(NewGlogLogger(base)))
	if err != nil {
		t.Fatalf("new interpreter: %v", err)
	}
	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	logged := buf.String()
	if strings.TrimSpace(logged) == "" {
		t.Fatalf("expected go-logger output")
	}
	if !strings.Contains(logged, "script_id") || !strings.Contains(logged, "teleport") {
		t.Fatalf("expected structured fields in output, got %q", logged)
	}
}

func TestNilLoggerFallsBackToFmt(t *testing.T) {
	if _, ok := normalizeLogger(nil).(*FmtLogger); !ok {
		t.Fatalf("expected nil logger to normalize to FmtLogger fallback")
	}
	if _, ok := NewGlogLogger(nil).(*FmtLogger); !ok {
		t.Fatalf("expected nil glog logger to fall back to FmtLogger")
	}
}
