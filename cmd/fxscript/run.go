package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/effects"
	"github.com/goliatone/go-fxscript/interp"
	"github.com/goliatone/go-fxscript/loader"
	"github.com/goliatone/go-fxscript/metrics"
	"github.com/goliatone/go-fxscript/orchestrator"
)

type RunCmd struct {
	Script   string            `arg:"" help:"Script id, or path to a .yaml, .yml or .json file."`
	Dir      string            `short:"d" default:"." help:"Directory scripts and Call targets are loaded from." type:"path"`
	Entry    string            `short:"e" help:"Named sequence to start (default main)."`
	Actor    string            `help:"Actor subject."`
	Patients []string          `name:"patient" short:"p" help:"Patient subjects, in order."`
	Lod      string            `default:"medium" help:"Level of detail for lod_switch steps."`
	Var      map[string]string `short:"v" help:"Seed variables as name=value; values are parsed as YAML scalars."`
	Timeout  time.Duration     `default:"0s" help:"Cancel the run after this long (0 waits forever)."`
	Tick     time.Duration     `default:"16ms" help:"Yield between loop iterations."`
	Metrics  bool              `help:"Print Prometheus metrics when the run ends."`
}

func (c *RunCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return c.run(ctx, g)
}

func (c *RunCmd) run(ctx context.Context, g *Globals) error {
	logger := g.logger()

	dir, id := resolveScript(c.Dir, c.Script)
	vars, err := parseVars(c.Var)
	if err != nil {
		return err
	}

	registry := effects.NewRegistry(effects.WithLogger(logger))
	if err := effects.RegisterBuiltins(registry); err != nil {
		return err
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		return err
	}

	manager := orchestrator.NewManager(
		orchestrator.WithProvider(loader.NewDirProvider(dir)),
		orchestrator.WithFactory(registry),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(recorder),
		orchestrator.WithInterpreterOptions(interp.WithTickInterval(c.Tick)),
	)
	defer manager.Close(context.Background())

	seed := fxscript.Seed{Actor: subject(c.Actor), Vars: vars, LOD: c.Lod}
	for _, p := range c.Patients {
		seed.Patients = append(seed.Patients, p)
	}

	runID, err := manager.Trigger(ctx, orchestrator.TriggerRequest{ScriptID: id, Entry: c.Entry, Seed: seed})
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- manager.Wait(context.Background(), runID) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		logger.Info("stopping %s: %v", id, context.Cause(ctx))
		if cerr := manager.Cancel(runID); cerr != nil {
			return cerr
		}
		err = <-done
	}

	info, _ := manager.Status(runID)
	fmt.Fprintf(g.stdout(), "%s %s\n", id, info.Status)
	if c.Metrics {
		if werr := recorder.WriteText(g.stdout()); werr != nil {
			logger.Warn("write metrics: %v", werr)
		}
	}
	return err
}

// resolveScript maps a file path to its directory and id; anything else is
// an id inside dir.
func resolveScript(dir, script string) (string, string) {
	ext := filepath.Ext(script)
	for _, known := range loader.Extensions {
		if ext == known {
			return filepath.Dir(script), strings.TrimSuffix(filepath.Base(script), ext)
		}
	}
	return dir, script
}

func parseVars(raw map[string]string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(raw))
	for name, text := range raw {
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid value for --var "+name).
				WithMetadata(map[string]any{"var": name})
		}
		vars[name] = v
	}
	return vars, nil
}

func subject(s string) fxscript.Subject {
	if s == "" {
		return nil
	}
	return s
}
