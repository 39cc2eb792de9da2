// Package results reads and writes implementation result files and resolves
// reference results by test case.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cprosche/visibility-testing/internal/visibility"
)

// ErrInvalidResult marks a result file that does not decode into a usable result.
var ErrInvalidResult = errors.New("invalid result file")

// stampLayout is the timestamp suffix of result file names.
const stampLayout = "20060102_150405"

// FileName returns "{implementation}_{testCase}_{YYYYMMDD_HHMMSS}.json".
func FileName(implementation, testCase string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json", implementation, testCase, ts.UTC().Format(stampLayout))
}

// ParseFileName splits a result file name written for implementation into its
// test case and timestamp. The legacy form "{implementation}_{testCase}.json"
// parses with a zero timestamp.
func ParseFileName(name, implementation string) (testCase string, ts time.Time, ok bool) {
	rest, found := strings.CutPrefix(name, implementation+"_")
	if !found {
		return "", time.Time{}, false
	}
	rest, found = strings.CutSuffix(rest, ".json")
	if !found || rest == "" {
		return "", time.Time{}, false
	}

	// A stamped name ends in _YYYYMMDD_HHMMSS, which is 16 characters.
	if n := len(rest) - len(stampLayout) - 1; n > 0 && rest[n] == '_' {
		if t, err := time.Parse(stampLayout, rest[n+1:]); err == nil {
			return rest[:n], t, true
		}
	}
	return rest, time.Time{}, true
}

// Store manages result files in one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the directory the store manages.
func (s *Store) Dir() string {
	return s.dir
}

// Write saves res under its timestamped file name and returns the path.
func (s *Store) Write(res *visibility.Result) (string, error) {
	if res.Implementation == "" || res.TestCase == "" {
		return "", fmt.Errorf("%w: implementation and test case are required", ErrInvalidResult)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	path := filepath.Join(s.dir, FileName(res.Implementation, res.TestCase, ts))

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("writing result file: %w", err)
	}
	return path, nil
}

// Read decodes one result file.
func Read(path string) (*visibility.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	return Decode(data)
}

// Decode parses a result document.
func Decode(data []byte) (*visibility.Result, error) {
	var res visibility.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if res.TestCase == "" || res.Implementation == "" {
		return nil, fmt.Errorf("%w: testCase and implementation are required", ErrInvalidResult)
	}
	if res.Windows == nil {
		res.Windows = []visibility.Window{}
	}
	return &res, nil
}

type resultFile struct {
	name     string
	testCase string
	ts       time.Time
}

func (s *Store) listFiles(implementation string) ([]resultFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing results dir: %w", err)
	}

	var files []resultFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		tc, ts, ok := ParseFileName(e.Name(), implementation)
		if !ok {
			continue
		}
		files = append(files, resultFile{name: e.Name(), testCase: tc, ts: ts})
	}

	// Oldest first; equal stamps fall back to the name so the order is stable.
	sort.Slice(files, func(i, j int) bool {
		if !files[i].ts.Equal(files[j].ts) {
			return files[i].ts.Before(files[j].ts)
		}
		return files[i].name < files[j].name
	})
	return files, nil
}

// CollectLatest reads the newest result file per test case for implementation.
// Files that fail to decode are logged and skipped.
func (s *Store) CollectLatest(implementation string) (map[string]*visibility.Result, error) {
	files, err := s.listFiles(implementation)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]resultFile)
	for _, f := range files {
		latest[f.testCase] = f
	}

	out := make(map[string]*visibility.Result, len(latest))
	for tc, f := range latest {
		res, err := Read(filepath.Join(s.dir, f.name))
		if err != nil {
			s.logger.Warn("skipping result file", "file", f.name, "error", err)
			continue
		}
		out[tc] = res
	}
	return out, nil
}

// Implementations lists the implementation prefixes of stamped result files,
// sorted. Names are taken up to the first underscore.
func (s *Store) Implementations() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing results dir: %w", err)
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		impl, _, found := strings.Cut(e.Name(), "_")
		if !found || impl == "" {
			continue
		}
		seen[impl] = true
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Prune keeps at most keep files per test case for implementation, removing
// the oldest. keep <= 0 disables pruning.
func (s *Store) Prune(implementation string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	files, err := s.listFiles(implementation)
	if err != nil {
		return 0, err
	}

	byCase := make(map[string][]resultFile)
	for _, f := range files {
		byCase[f.testCase] = append(byCase[f.testCase], f)
	}

	removed := 0
	for _, group := range byCase {
		if len(group) <= keep {
			continue
		}
		for _, f := range group[:len(group)-keep] {
			if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
				return removed, fmt.Errorf("pruning result file %s: %w", f.name, err)
			}
			removed++
		}
	}
	return removed, nil
}
