// Package report aggregates case comparisons across implementations into
// accuracy and speed rankings and renders them as JSON or text.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cprosche/visibility-testing/internal/metrics"
	"github.com/cprosche/visibility-testing/internal/validate"
	"github.com/cprosche/visibility-testing/internal/visibility"
)

// TieBand is the pass-rate difference in percentage points within which
// implementations are ranked by normalized error instead.
const TieBand = 0.1

// Implementation carries presentation data for an implementation. It comes
// from configuration.
type Implementation struct {
	DisplayName string `mapstructure:"display-name" json:"displayName,omitempty"`
	Repository  string `mapstructure:"repository" json:"repository,omitempty"`
}

// Summary aggregates every case of one implementation.
type Summary struct {
	Implementation     string            `json:"implementation"`
	DisplayName        string            `json:"displayName"`
	Repository         string            `json:"repository,omitempty"`
	Accuracy           validate.Accuracy `json:"accuracy"`
	PassRate           float64           `json:"passRate"`
	Grade              validate.Grade    `json:"grade"`
	NormalizedError    float64           `json:"normalizedError"`
	Cases              int               `json:"cases"`
	Passed             int               `json:"passed"`
	Failed             int               `json:"failed"`
	NoReference        int               `json:"noReference"`
	Errors             int               `json:"errors"`
	Results            int               `json:"results"`
	TotalExecutionTime float64           `json:"totalExecutionTime"`
	MeanExecutionTime  float64           `json:"meanExecutionTime"`
}

// Compared is the number of cases that had a reference and a result.
func (s Summary) Compared() int {
	return s.Passed + s.Failed
}

// RankingEntry is one row of a ranking.
type RankingEntry struct {
	Rank              int            `json:"rank"`
	Implementation    string         `json:"implementation"`
	DisplayName       string         `json:"displayName"`
	Grade             validate.Grade `json:"grade"`
	PassRate          float64        `json:"passRate"`
	NormalizedError   float64        `json:"normalizedError"`
	MeanExecutionTime float64        `json:"meanExecutionTime"`
}

// Report is the outcome of one validation run.
type Report struct {
	RunID           string                    `json:"runId"`
	GeneratedAt     time.Time                 `json:"generatedAt"`
	Tolerances      validate.Tolerances       `json:"tolerances"`
	Implementations []Summary                 `json:"implementations"`
	AccuracyRanking []RankingEntry            `json:"accuracyRanking"`
	SpeedRanking    []RankingEntry            `json:"speedRanking"`
	Cases           []validate.CaseComparison `json:"cases"`
}

// Failures counts compared cases that did not pass.
func (r *Report) Failures() int {
	return lo.SumBy(r.Implementations, func(s Summary) int { return s.Failed })
}

// Errors counts cases whose implementation produced no result.
func (r *Report) Errors() int {
	return lo.SumBy(r.Implementations, func(s Summary) int { return s.Errors })
}

// Accumulator gathers comparisons from concurrent jobs.
type Accumulator struct {
	mu          sync.Mutex
	tol         validate.Tolerances
	comparisons []validate.CaseComparison
	execTimes   map[string][]float64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator(tol validate.Tolerances) *Accumulator {
	return &Accumulator{tol: tol, execTimes: make(map[string][]float64)}
}

// Add records a comparison and, when res is non-nil, its execution time.
func (a *Accumulator) Add(c validate.CaseComparison, res *visibility.Result) {
	metrics.RecordVerdict(c.Implementation, c.Verdict())

	a.mu.Lock()
	defer a.mu.Unlock()
	a.comparisons = append(a.comparisons, c)
	if res != nil {
		a.execTimes[c.Implementation] = append(a.execTimes[c.Implementation], res.ExecutionTime)
	}
}

// Len is the number of comparisons recorded.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.comparisons)
}

// Build aggregates everything added so far. impls supplies display names and
// repositories; implementations missing from it display under their id.
func (a *Accumulator) Build(impls map[string]Implementation) *Report {
	a.mu.Lock()
	comparisons := append([]validate.CaseComparison(nil), a.comparisons...)
	execTimes := make(map[string][]float64, len(a.execTimes))
	for k, v := range a.execTimes {
		execTimes[k] = v
	}
	a.mu.Unlock()

	sort.SliceStable(comparisons, func(i, j int) bool {
		if comparisons[i].Implementation != comparisons[j].Implementation {
			return comparisons[i].Implementation < comparisons[j].Implementation
		}
		return comparisons[i].TestCase < comparisons[j].TestCase
	})

	byImpl := lo.GroupBy(comparisons, func(c validate.CaseComparison) string { return c.Implementation })
	names := lo.Keys(byImpl)
	sort.Strings(names)

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, a.summarize(name, byImpl[name], execTimes[name], impls[name]))
	}

	return &Report{
		RunID:           uuid.NewString(),
		GeneratedAt:     time.Now().UTC().Truncate(time.Second),
		Tolerances:      a.tol,
		Implementations: summaries,
		AccuracyRanking: AccuracyRanking(summaries),
		SpeedRanking:    SpeedRanking(summaries),
		Cases:           comparisons,
	}
}

func (a *Accumulator) summarize(name string, cases []validate.CaseComparison, times []float64, info Implementation) Summary {
	s := Summary{
		Implementation: name,
		DisplayName:    lo.Ternary(info.DisplayName != "", info.DisplayName, name),
		Repository:     info.Repository,
		Cases:          len(cases),
	}

	counts := lo.CountValuesBy(cases, func(c validate.CaseComparison) string { return c.Verdict() })
	s.Passed = counts["passed"]
	s.Failed = counts["failed"]
	s.NoReference = counts[string(validate.StatusNoReference)]
	s.Errors = counts[string(validate.StatusImplementationError)]

	var pooled validate.DeltaSet
	for _, c := range cases {
		pooled.Merge(c.Deltas)
	}
	s.Accuracy = pooled.Stats(a.tol)
	s.NormalizedError = s.Accuracy.NormalizedError(a.tol)

	switch {
	case s.Accuracy.Points() > 0:
		s.PassRate = s.Accuracy.PassRate()
	case s.Compared() > 0:
		// Without point data the verdicts are all there is.
		s.PassRate = float64(s.Passed) / float64(s.Compared()) * 100
	}
	s.Grade = validate.GradeFor(s.PassRate)

	s.Results = len(times)
	if len(times) > 0 {
		s.TotalExecutionTime = lo.Sum(times)
		s.MeanExecutionTime = s.TotalExecutionTime / float64(len(times))
	}
	return s
}

// AccuracyRanking orders implementations with at least one compared case by
// pass rate, highest first. Each run of implementations within TieBand of the
// run's leader is ordered by normalized error, lowest first, and then by id.
// Bands are anchored to a leader so the result does not depend on input order.
func AccuracyRanking(summaries []Summary) []RankingEntry {
	ranked := lo.Filter(summaries, func(s Summary, _ int) bool { return s.Compared() > 0 })
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PassRate != ranked[j].PassRate {
			return ranked[i].PassRate > ranked[j].PassRate
		}
		return ranked[i].Implementation < ranked[j].Implementation
	})
	for lead := 0; lead < len(ranked); {
		end := lead + 1
		for end < len(ranked) && ranked[lead].PassRate-ranked[end].PassRate <= TieBand {
			end++
		}
		band := ranked[lead:end]
		sort.SliceStable(band, func(i, j int) bool {
			if band[i].NormalizedError != band[j].NormalizedError {
				return band[i].NormalizedError < band[j].NormalizedError
			}
			return band[i].Implementation < band[j].Implementation
		})
		lead = end
	}
	return entries(ranked)
}

// SpeedRanking orders implementations that produced results by mean
// execution time, fastest first.
func SpeedRanking(summaries []Summary) []RankingEntry {
	ranked := lo.Filter(summaries, func(s Summary, _ int) bool { return s.Results > 0 })
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].MeanExecutionTime != ranked[j].MeanExecutionTime {
			return ranked[i].MeanExecutionTime < ranked[j].MeanExecutionTime
		}
		return ranked[i].Implementation < ranked[j].Implementation
	})
	return entries(ranked)
}

func entries(summaries []Summary) []RankingEntry {
	return lo.Map(summaries, func(s Summary, i int) RankingEntry {
		return RankingEntry{
			Rank:              i + 1,
			Implementation:    s.Implementation,
			DisplayName:       s.DisplayName,
			Grade:             s.Grade,
			PassRate:          s.PassRate,
			NormalizedError:   s.NormalizedError,
			MeanExecutionTime: s.MeanExecutionTime,
		}
	})
}
