package results

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/cprosche/visibility-testing/internal/visibility"
)

// ReferenceSet holds the reference result for each test case. It is read-only
// once built and safe for concurrent lookups.
type ReferenceSet struct {
	name    string
	results map[string]*visibility.Result
}

// NewReferenceSet builds a set from in-memory results, typically those of a
// reference engine computed in the same run. A later result for the same test
// case replaces an earlier one.
func NewReferenceSet(name string, rs []*visibility.Result) *ReferenceSet {
	set := &ReferenceSet{name: name, results: make(map[string]*visibility.Result, len(rs))}
	for _, r := range rs {
		if r != nil {
			set.results[r.TestCase] = r
		}
	}
	return set
}

// LoadReferenceSet reads the newest result per test case written under the
// implementation name in dir.
func LoadReferenceSet(dir, implementation string, logger *slog.Logger) (*ReferenceSet, error) {
	latest, err := NewStore(dir, logger).CollectLatest(implementation)
	if err != nil {
		return nil, fmt.Errorf("loading reference results: %w", err)
	}
	return &ReferenceSet{name: implementation, results: latest}, nil
}

// Name is the implementation the references come from.
func (r *ReferenceSet) Name() string {
	return r.name
}

// Lookup returns the reference result for a test case.
func (r *ReferenceSet) Lookup(testCase string) (*visibility.Result, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.results[testCase]
	return res, ok
}

// Len is the number of test cases with a reference.
func (r *ReferenceSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.results)
}

// TestCases lists the covered test case ids, sorted.
func (r *ReferenceSet) TestCases() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.results))
	for id := range r.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
