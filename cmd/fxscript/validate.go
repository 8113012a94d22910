package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-fxscript/loader"
)

type ValidateCmd struct {
	Files []string `arg:"" help:"Script files to check." type:"existingfile"`
}

func (c *ValidateCmd) Run(g *Globals) error {
	out := g.stdout()
	var failed []string
	for _, file := range c.Files {
		entries, err := validateFile(file)
		if err != nil {
			failed = append(failed, file)
			fmt.Fprintf(out, "invalid %s: %v\n", file, err)
			continue
		}
		fmt.Fprintf(out, "ok      %s (%s)\n", file, strings.Join(entries, ", "))
	}
	if len(failed) > 0 {
		return errors.New(fmt.Sprintf("%d of %d scripts invalid", len(failed), len(c.Files)), errors.CategoryValidation).
			WithMetadata(map[string]any{"files": failed})
	}
	return nil
}

// validateFile parses file with its base name as the default id and
// returns the entry names it declares.
func validateFile(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "read "+file)
	}
	id := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	script, err := loader.ParseWithID(data, id)
	if err != nil {
		return nil, err
	}
	return script.EntryNames(), nil
}
