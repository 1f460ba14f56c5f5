// Package main implements schema-exporter, which writes the JSON schema of
// every built-in handler's parameters and of the graph document.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/c360/semflow/componentregistry"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/loader"
)

// documentSchemaFile is the file name of the graph document schema
const documentSchemaFile = "graph-document.v1.json"

func main() {
	outDir := flag.String("out", "./schemas", "Output directory for schemas")
	indexPath := flag.String("index", "", "Output path for the YAML index, <out>/index.yaml when empty")
	flag.Parse()

	if *indexPath == "" {
		*indexPath = filepath.Join(*outDir, "index.yaml")
	}

	log.Printf("Schema Exporter")
	log.Printf("  Output dir: %s", *outDir)
	log.Printf("  Index: %s", *indexPath)

	n, err := export(context.Background(), *outDir, *indexPath)
	if err != nil {
		log.Fatalf("Schema export failed: %v", err)
	}
	log.Printf("Schema generation complete: %d handlers", n)
}

// Index lists the exported schemas
type Index struct {
	Document string       `yaml:"document"`
	Handlers []IndexEntry `yaml:"handlers"`
}

// IndexEntry is one handler in the index
type IndexEntry struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Schema      string   `yaml:"schema"`
	Requires    []string `yaml:"requires,omitempty"`
}

// export writes one schema per built-in handler, the document schema and
// the index. It returns the number of handler schemas written.
func export(ctx context.Context, outDir, indexPath string) (int, error) {
	catalog, err := componentregistry.NewCatalog()
	if err != nil {
		return 0, fmt.Errorf("register handlers: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	index := Index{Document: documentSchemaFile}
	names := catalog.HandlerNames()
	slices.Sort(names)
	for _, name := range names {
		mod, err := catalog.LoadModule(ctx, loader.KindProcesses, name)
		if err != nil {
			return 0, err
		}
		schema, err := extractSchema(mod.Handler)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		if err := validateSchema(schema, mod.Handler); err != nil {
			return 0, err
		}

		file := schema.ID
		if err := writeJSON(filepath.Join(outDir, file), schema); err != nil {
			return 0, fmt.Errorf("write schema for %s: %w", name, err)
		}
		index.Handlers = append(index.Handlers, IndexEntry{
			Name:        name,
			Description: mod.Handler.Description,
			Schema:      file,
			Requires:    mod.Handler.Requires,
		})
		log.Printf("  Generated: %s", file)
	}

	var doc any
	if err := json.Unmarshal([]byte(flow.DocumentSchema()), &doc); err != nil {
		return 0, fmt.Errorf("decode document schema: %w", err)
	}
	if err := writeJSON(filepath.Join(outDir, documentSchemaFile), doc); err != nil {
		return 0, fmt.Errorf("write document schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return 0, fmt.Errorf("create index directory: %w", err)
	}
	data, err := yaml.Marshal(index)
	if err != nil {
		return 0, fmt.Errorf("encode index: %w", err)
	}
	if err := os.WriteFile(indexPath, data, 0o644); err != nil {
		return 0, fmt.Errorf("write index: %w", err)
	}
	return len(index.Handlers), nil
}

func writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}
