package export

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rtm0/tecgrid/internal/regrid"
)

// Metadata returns the flat key-value description of a result written next
// to its container.
func Metadata(res *regrid.Result) map[string]any {
	md := map[string]any{
		"dataset":       string(res.Dataset),
		"variable":      res.Name,
		"shape":         res.Values.Shape,
		"time_count":    res.Grid.Len(),
		"cadence":       res.Grid.Step.String(),
		"missing_cells": res.Values.CountMissing(),
		"files":         len(res.Report.Files),
		"partial_files": res.Report.Partial,
		"dropped":       res.Report.Dropped,
	}
	if res.Grid.Len() > 0 {
		md["start"] = res.Grid.Start().Format(time.RFC3339)
		md["end"] = res.Grid.End().Format(time.RFC3339)
	}
	missing := make([]string, len(res.Report.Missing))
	for i, u := range res.Report.Missing {
		missing[i] = u.String()
	}
	md["missing_units"] = missing
	if len(res.Aux) > 0 {
		md["aux"] = auxNames(res)
	}
	return md
}

// WriteYAML writes a flat key-value mapping as YAML.
func WriteYAML(path string, kv map[string]any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cErr)
		}
	}()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(kv); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return enc.Close()
}

func auxNames(res *regrid.Result) []string {
	return sortedKeys(res.Aux)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
