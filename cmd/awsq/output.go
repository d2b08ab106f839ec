package main

import (
	"encoding/json"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes v as JSON or YAML. Table output is left to the caller
// through table, which receives a fresh writer.
func (a *app) render(v any, table func(*tablewriter.Table) error) error {
	switch a.v.GetString("output") {
	case formatJSON:
		encoder := json.NewEncoder(a.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case formatYAML:
		encoder := yaml.NewEncoder(a.out)
		defer func() { _ = encoder.Close() }()
		return encoder.Encode(v)
	case formatTable:
		t := tablewriter.NewWriter(a.out)
		if err := table(t); err != nil {
			return fmt.Errorf("build table: %w", err)
		}
		return t.Render()
	default:
		return fmt.Errorf("unknown output format %q", a.v.GetString("output"))
	}
}

func header(names ...string) []any {
	cells := make([]any, len(names))
	for i, name := range names {
		cells[i] = name
	}
	return cells
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
