package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/caseforge/caseforge/pkg/engine"
)

// Format identifies an input bag file format.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks a format from a file extension. JSON files may carry
// comments and trailing commas.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported input file %s: expected .cue, .yaml, .yml, .json or .jsonc", path)
	}
}

// InputLoader decodes input bag files. The top level of every file must be an
// object whose keys are input names.
type InputLoader struct {
	cue *cue.Context
}

// NewInputLoader creates a loader with its own CUE context.
func NewInputLoader() *InputLoader {
	return &InputLoader{cue: cuecontext.New()}
}

// LoadFiles decodes each path in turn and layers later files over earlier
// ones.
func (l *InputLoader) LoadFiles(paths ...string) (engine.InputBag, error) {
	bag := engine.InputBag{}
	for _, path := range paths {
		next, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		bag = bag.Merge(next)
	}
	return bag, nil
}

// LoadFile decodes one input bag file.
func (l *InputLoader) LoadFile(path string) (engine.InputBag, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	bag, err := l.Parse(data, format, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return bag, nil
}

// Parse decodes data in the given format. name is used in CUE positions.
func (l *InputLoader) Parse(data []byte, format Format, name string) (engine.InputBag, error) {
	switch format {
	case FormatCUE:
		return l.parseCUE(data, name)
	case FormatYAML:
		return parseYAML(data)
	case FormatJSON:
		return parseJSON(jsonc.ToJSON(data))
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
}

func (l *InputLoader) parseCUE(data []byte, name string) (engine.InputBag, error) {
	val := l.cue.CompileBytes(data, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, cueError(err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(err)
	}
	if val.IncompleteKind() != cue.StructKind {
		return nil, fmt.Errorf("top level must be a struct")
	}

	raw, err := val.MarshalJSON()
	if err != nil {
		return nil, cueError(err)
	}
	return parseJSON(raw)
}

// cueError flattens CUE's error list into one message with positions.
func cueError(err error) error {
	var parts []string
	for _, e := range errors.Errors(err) {
		msg := errors.Details(e, nil)
		if pos := errors.Positions(e); len(pos) > 0 {
			msg = fmt.Sprintf("%s:%d:%d: %s", pos[0].Filename(), pos[0].Line(), pos[0].Column(), strings.TrimSpace(msg))
		}
		parts = append(parts, strings.TrimSpace(msg))
	}
	if len(parts) == 0 {
		return err
	}
	return fmt.Errorf("cue: %s", strings.Join(parts, "; "))
}

func parseYAML(data []byte) (engine.InputBag, error) {
	bag := engine.InputBag{}
	if len(bytes.TrimSpace(data)) == 0 {
		return bag, nil
	}
	if err := yaml.Unmarshal(data, &bag); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	for k, v := range bag {
		bag[k] = untime(v)
	}
	return bag, nil
}

// untime turns YAML timestamps back into the text the user wrote, so dates
// stay strings like they do in CUE and JSON bags.
func untime(v any) any {
	switch t := v.(type) {
	case time.Time:
		if t.Equal(t.Truncate(24*time.Hour)) && t.Location() == time.UTC {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339Nano)
	case []any:
		for i, item := range t {
			t[i] = untime(item)
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = untime(item)
		}
		return t
	default:
		return v
	}
}

func parseJSON(data []byte) (engine.InputBag, error) {
	bag := engine.InputBag{}
	if len(bytes.TrimSpace(data)) == 0 {
		return bag, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&bag); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return bag, nil
}

// ParseAssignments turns NAME=VALUE pairs into a bag. Values are decoded as
// YAML scalars so numbers and booleans keep their type.
func ParseAssignments(pairs []string) (engine.InputBag, error) {
	bag := engine.InputBag{}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected NAME=VALUE", pair)
		}
		bag[name] = scalar(raw)
	}
	return bag, nil
}

func scalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case bool, int, float64:
		return v
	default:
		return raw
	}
}
