// Package main generates the hand model database from models.yaml.
//
// The YAML source next to this tool lists every known hand model with its
// firmware muscle order and estimator joint order. The tool renders the
// lookup tables into muscledb_generated.go so the data ships compiled in.
package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"go/format"
	"os"
	"sort"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	srcFile = "gen/models.yaml"
	outFile = "muscledb_generated.go"
)

//go:embed muscledb.go.tmpl
var codeTemplate string

// sourceData mirrors the models.yaml layout.
type sourceData struct {
	Version string        `yaml:"version"`
	Models  []sourceModel `yaml:"models"`
}

type sourceModel struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	IMUs    int      `yaml:"imus"`
	Muscles []string `yaml:"muscles"`
	Joints  []string `yaml:"joints"`
}

// indexEntry maps one identifier (canonical name or alias) to a model slot.
type indexEntry struct {
	Key   string
	Index int
}

// templateData holds the data for the code generation template.
type templateData struct {
	Timestamp    string
	Version      string
	Models       []sourceModel
	IndexEntries []indexEntry
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main generation logic.
func run() error {
	fmt.Println("Generating hand model database...")

	raw, err := os.ReadFile(srcFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcFile, err)
	}

	var src sourceData
	if err := yaml.Unmarshal(raw, &src); err != nil {
		return fmt.Errorf("failed to parse %s: %w", srcFile, err)
	}

	if err := validate(&src); err != nil {
		return err
	}

	data := templateData{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Version:      src.Version,
		Models:       src.Models,
		IndexEntries: buildIndex(src.Models),
	}

	tmpl, err := template.New("muscledb").Parse(codeTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("generated code does not format: %w", err)
	}

	if err := os.WriteFile(outFile, formatted, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outFile, err)
	}
	fmt.Println("Generated", outFile)
	return nil
}

// validate rejects sources that would produce a broken table: duplicate
// identifiers, empty muscle lists, or aliases colliding across models.
func validate(src *sourceData) error {
	if src.Version == "" {
		return fmt.Errorf("models.yaml: version is required")
	}
	seen := make(map[string]string)
	for _, m := range src.Models {
		if m.Name == "" {
			return fmt.Errorf("models.yaml: model with empty name")
		}
		if len(m.Muscles) == 0 {
			return fmt.Errorf("models.yaml: model %q has no muscles", m.Name)
		}
		for _, id := range append([]string{m.Name}, m.Aliases...) {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("models.yaml: identifier %q used by both %q and %q", id, prev, m.Name)
			}
			seen[id] = m.Name
		}
	}
	return nil
}

// buildIndex flattens canonical names and aliases into sorted index entries.
func buildIndex(models []sourceModel) []indexEntry {
	var entries []indexEntry
	for i, m := range models {
		entries = append(entries, indexEntry{Key: m.Name, Index: i})
		for _, a := range m.Aliases {
			entries = append(entries, indexEntry{Key: a, Index: i})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}
