package testcase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadError records a fixture that could not be loaded. One bad fixture does
// not stop the rest of a directory from loading.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// CaseID is the test case id implied by the file name.
func (e *LoadError) CaseID() string {
	base := filepath.Base(e.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func formatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return 0, false
}

// LoadFile reads and parses one fixture file.
func LoadFile(path string) (TestCase, error) {
	format, ok := formatFor(path)
	if !ok {
		return TestCase{}, fmt.Errorf("%w: unsupported fixture extension %q", ErrInvalid, filepath.Ext(path))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return TestCase{}, fmt.Errorf("reading fixture: %w", err)
	}
	return Parse(raw, format)
}

// LoadDir loads every fixture in dir. When filter is non-empty only cases
// whose id (file stem) is listed are loaded. Cases are returned sorted by id.
func LoadDir(dir string, filter []string) ([]TestCase, []*LoadError, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading test case dir: %w", err)
	}

	want := make(map[string]bool, len(filter))
	for _, f := range filter {
		want[f] = true
	}

	var (
		cases  []TestCase
		failed []*LoadError
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, ok := formatFor(path); !ok {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if len(want) > 0 && !want[stem] {
			continue
		}

		tc, err := LoadFile(path)
		if err != nil {
			failed = append(failed, &LoadError{Path: path, Err: err})
			continue
		}
		cases = append(cases, tc)
	}

	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases, failed, nil
}
