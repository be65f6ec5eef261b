package sinks

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caseforge/caseforge/pkg/engine"
)

// FilePrefix is the file name prefix of text sink files.
const FilePrefix = "user_nl_"

// Entry is a single NAME = VALUE line.
type Entry struct {
	Name  string
	Value string
}

// TextSink reads and writes tagged NAME = VALUE blocks in user_nl_<Module>
// under Dir.
type TextSink struct {
	Dir    string
	Module string
}

// NewTextSink creates a text sink for module in dir.
func NewTextSink(dir, module string) *TextSink {
	return &TextSink{Dir: dir, Module: module}
}

// Path returns the full path of the sink file.
func (s *TextSink) Path() string {
	return filepath.Join(s.Dir, FilePrefix+s.Module)
}

// Append writes a block tagged tag containing entries. Any existing block with
// the same tag is removed first.
func (s *TextSink) Append(tag string, entries []Entry) error {
	if err := validateTag(tag); err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == "" || strings.ContainsAny(e.Name, "=\n") {
			return engine.NewError(engine.ErrorKindValidationFailed,
				fmt.Sprintf("invalid entry name %q", e.Name), nil).WithParameter(e.Name)
		}
		if strings.Contains(e.Value, "\n") {
			return engine.NewError(engine.ErrorKindValidationFailed,
				"entry value must be a single line", nil).WithParameter(e.Name)
		}
	}

	lines, err := s.readLines()
	if err != nil {
		return err
	}
	lines = trimBlank(removeBlock(lines, tag))
	if len(lines) > 0 {
		lines = append(lines, "")
	}
	lines = append(lines, tagPrefix+tag)
	for _, e := range entries {
		lines = append(lines, e.Name+" = "+e.Value)
	}

	return s.write(render(lines))
}

// Remove deletes the block tagged tag. A missing file or block is not an
// error.
func (s *TextSink) Remove(tag string) error {
	if err := validateTag(tag); err != nil {
		return err
	}
	lines, err := s.readLines()
	if err != nil {
		return err
	}
	if lines == nil {
		return nil
	}
	kept := removeBlock(lines, tag)
	if len(kept) == len(lines) {
		return nil
	}

	return s.write(render(kept))
}

// Read returns the value of the last NAME = VALUE line for name. The value is
// returned verbatim apart from surrounding whitespace.
func (s *TextSink) Read(name string) (string, error) {
	lines, err := s.readLines()
	if err != nil {
		return "", err
	}

	value, found := "", false
	for _, line := range lines {
		k, v, ok := parseEntry(line)
		if ok && k == name {
			value, found = v, true
		}
	}
	if !found {
		return "", engine.NewError(engine.ErrorKindSinkReadNotFound,
			fmt.Sprintf("no entry for %s in %s", name, filepath.Base(s.Path())), nil).WithParameter(name)
	}
	return value, nil
}

// Blocks returns every tagged block in file order.
func (s *TextSink) Blocks() (map[string][]Entry, []string, error) {
	lines, err := s.readLines()
	if err != nil {
		return nil, nil, err
	}

	blocks := make(map[string][]Entry)
	var order []string
	current := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			current = ""
		case strings.HasPrefix(trimmed, tagPrefix):
			current = strings.TrimSpace(strings.TrimPrefix(trimmed, tagPrefix))
			if _, ok := blocks[current]; !ok {
				order = append(order, current)
			}
			blocks[current] = nil
		case current != "":
			if k, v, ok := parseEntry(line); ok {
				blocks[current] = append(blocks[current], Entry{Name: k, Value: v})
			}
		}
	}
	return blocks, order, nil
}

const tagPrefix = "! "

func validateTag(tag string) error {
	if strings.TrimSpace(tag) == "" || strings.Contains(tag, "\n") {
		return engine.NewError(engine.ErrorKindValidationFailed,
			fmt.Sprintf("invalid block tag %q", tag), nil)
	}
	return nil
}

// readLines returns nil without error when the file does not exist.
func (s *TextSink) readLines() ([]string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, engine.NewError(engine.ErrorKindSinkFailure,
			fmt.Sprintf("failed to read %s", s.Path()), err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

// write replaces the sink file through a temporary file in the same
// directory.
func (s *TextSink) write(content string) error {
	path := s.Path()
	fail := func(err error) error {
		return engine.NewError(engine.ErrorKindSinkFailure,
			fmt.Sprintf("failed to write %s", path), err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fail(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fail(err)
	}
	return nil
}

// render joins lines into file content. A file whose last line belongs to a
// block gets the blank line that terminates it, so lines appended to the
// file later stay outside the block.
func render(lines []string) string {
	lines = trimBlank(lines)
	if len(lines) == 0 {
		return ""
	}
	content := strings.Join(lines, "\n") + "\n"
	if endsInBlock(lines) {
		content += "\n"
	}
	return content
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func endsInBlock(lines []string) bool {
	in := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			in = false
		case strings.HasPrefix(trimmed, tagPrefix):
			in = true
		}
	}
	return in
}

// removeBlock drops the tag line, the entry lines following it and the blank
// line that terminates the block.
func removeBlock(lines []string, tag string) []string {
	out := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if inBlock {
			if trimmed == "" {
				inBlock = false
				continue
			}
			if !strings.HasPrefix(trimmed, tagPrefix) {
				continue
			}
			inBlock = false
		}
		if strings.HasPrefix(trimmed, tagPrefix) &&
			strings.TrimSpace(strings.TrimPrefix(trimmed, tagPrefix)) == tag {
			inBlock = true
			continue
		}
		out = append(out, line)
	}
	return out
}

func parseEntry(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "!") {
		return "", "", false
	}
	k, v, ok := strings.Cut(trimmed, "=")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(k), strings.TrimSpace(v), true
}
