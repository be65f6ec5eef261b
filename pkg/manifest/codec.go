package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/caseforge/caseforge/pkg/engine"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://caseforge.local/schemas/manifest.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("manifest schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("manifest schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// Encode writes m as indented JSON followed by a newline.
func Encode(w io.Writer, m *engine.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Decode reads a manifest, validating it against the embedded schema first.
func Decode(r io.Reader) (*engine.Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes manifest bytes.
func Parse(data []byte) (*engine.Manifest, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	m := engine.NewManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, engine.NewError(engine.ErrorKindValidationFailed, "malformed manifest", err)
	}
	return m, nil
}

// Validate checks manifest bytes against the embedded JSON schema.
func Validate(data []byte) error {
	sch, err := schema()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return engine.NewError(engine.ErrorKindValidationFailed, "manifest is not valid JSON", err)
	}
	if err := sch.Validate(doc); err != nil {
		return engine.NewError(engine.ErrorKindValidationFailed, "manifest does not match schema", err)
	}
	return nil
}

// WriteFile encodes m to path, creating parent directories.
func WriteFile(path string, m *engine.Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}

// ReadFile loads and validates the manifest at path.
func ReadFile(path string) (*engine.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(data)
}
