// Package verify answers the question "is this person in the registry":
// it validates the query, fetches candidate rows from a retrieval source,
// scores them against the queried name and renders a single Verdict.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/regsalud/exequatur/registry"
	"github.com/regsalud/exequatur/score"
)

// Default decision thresholds. A match at or above DefaultThreshold counts
// as verified; between DefaultSuggestAt and the threshold the best name is
// surfaced as a suggestion instead.
const (
	DefaultThreshold = 0.6
	DefaultSuggestAt = 0.5
)

// NameMatch is the scoring detail for the best candidate, reported whenever
// a name comparison took place.
type NameMatch struct {
	Score     float64  `json:"score"`
	Methods   []string `json:"methods"`
	Threshold float64  `json:"threshold"`
}

// Verdict is the outcome of one verification.
//
// OK reports whether the registry was consulted successfully; a false OK
// means the question was not answered (bad query, registry unreachable) and
// Reason says why. Exists reports the answer itself: a registry record was
// found and, when a name was queried, its name matched at or above the
// threshold.
type Verdict struct {
	OK         bool            `json:"ok"`
	Reason     string          `json:"reason,omitempty"`
	Exists     bool            `json:"exists"`
	Record     registry.Record `json:"record,omitempty"`
	Match      *NameMatch      `json:"match,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// Verifier runs verifications against one retrieval source. Safe for
// concurrent use when the source is.
type Verifier struct {
	source    registry.Source
	threshold float64
	suggestAt float64
	attempts  uint
	delay     time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Verifier.
type Option func(*config)

type config struct {
	threshold float64
	suggestAt float64
	attempts  uint
	delay     time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// WithThreshold sets the minimum name score that counts as verified.
func WithThreshold(t float64) Option {
	return func(c *config) { c.threshold = t }
}

// WithSuggestAt sets the minimum name score below the threshold at which
// the best candidate name is still reported as a suggestion.
func WithSuggestAt(t float64) Option {
	return func(c *config) { c.suggestAt = t }
}

// WithAttempts sets how many times the source is tried per verification.
func WithAttempts(n uint) Option {
	return func(c *config) { c.attempts = n }
}

// WithRetryDelay sets the base delay between source attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *config) { c.delay = d }
}

// WithTimeout bounds one verification end to end, across all attempts.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a Verifier over the given retrieval source.
func New(source registry.Source, opts ...Option) (*Verifier, error) {
	if source == nil {
		return nil, fmt.Errorf("verify: source required")
	}
	cfg := &config{
		threshold: DefaultThreshold,
		suggestAt: DefaultSuggestAt,
		attempts:  2,
		delay:     500 * time.Millisecond,
		timeout:   2 * time.Minute,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.threshold < 0 || cfg.threshold > 1 {
		return nil, fmt.Errorf("verify: threshold %v outside [0,1]", cfg.threshold)
	}
	if cfg.suggestAt < 0 || cfg.suggestAt > cfg.threshold {
		return nil, fmt.Errorf("verify: suggestion threshold %v outside [0,%v]", cfg.suggestAt, cfg.threshold)
	}

	return &Verifier{
		source:    source,
		threshold: cfg.threshold,
		suggestAt: cfg.suggestAt,
		attempts:  cfg.attempts,
		delay:     cfg.delay,
		timeout:   cfg.timeout,
		logger:    cfg.logger,
	}, nil
}

// Verify answers whether the queried person appears in the registry. The
// returned error is non-nil exactly when Verdict.OK is false; the Verdict
// is populated either way so callers can render it directly.
func (v *Verifier) Verify(ctx context.Context, q registry.Query) (Verdict, error) {
	if err := q.Validate(); err != nil {
		return Verdict{Reason: err.Error()}, err
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	candidates, err := v.fetch(ctx, q)
	if err != nil {
		v.logger.ErrorContext(ctx, "registry lookup failed", "term", q.Term(), "error", err)
		return Verdict{Reason: "registry unavailable: " + err.Error()}, fmt.Errorf("verify: %w", err)
	}

	candidates = dropConflicting(q, candidates)
	if len(candidates) == 0 {
		v.logger.InfoContext(ctx, "no registry record found", "term", q.Term())
		return Verdict{OK: true, Reason: "no matching record found"}, nil
	}

	// Existence alone settles queries with no name to compare, and rows
	// from sources that yield no name column.
	if q.FullName == "" || allNameless(candidates) {
		return Verdict{OK: true, Exists: true, Record: candidates[0]}, nil
	}

	best, match := v.best(q.FullName, candidates)
	v.logger.InfoContext(ctx, "scored registry candidates",
		"term", q.Term(), "candidates", len(candidates), "best_score", match.Score)

	verdict := Verdict{
		OK: true,
		Match: &NameMatch{
			Score:     match.Score,
			Methods:   match.Methods,
			Threshold: v.threshold,
		},
	}
	switch {
	case match.Score >= v.threshold:
		verdict.Exists = true
		verdict.Record = best
	case match.Score >= v.suggestAt:
		verdict.Reason = "best name match below threshold"
		verdict.Suggestion = best.Name()
	default:
		verdict.Reason = "no candidate name matched"
	}
	return verdict, nil
}

// fetch consults the source, retrying transient failures within the request.
func (v *Verifier) fetch(ctx context.Context, q registry.Query) ([]registry.Record, error) {
	return retry.DoWithData(
		func() ([]registry.Record, error) {
			return v.source.FetchCandidates(ctx, q)
		},
		retry.Context(ctx),
		retry.Attempts(v.attempts),
		retry.Delay(v.delay),
		retry.MaxJitter(v.delay/2),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			v.logger.DebugContext(ctx, "retrying registry lookup", "attempt", n+1, "error", err)
		}),
	)
}

// best scores every candidate name against the queried name and returns the
// highest scorer. Ties keep source order, so the registry's own ranking
// breaks them.
func (v *Verifier) best(fullName string, candidates []registry.Record) (registry.Record, score.Match) {
	type scored struct {
		record registry.Record
		match  score.Match
	}
	results := make([]scored, len(candidates))
	for i, c := range candidates {
		results[i] = scored{record: c, match: score.Name(fullName, c.Name())}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].match.Score > results[j].match.Score
	})
	return results[0].record, results[0].match
}

// dropConflicting removes candidates whose identity digits contradict the
// queried identity number. Rows without an identity column are kept.
func dropConflicting(q registry.Query, candidates []registry.Record) []registry.Record {
	if q.IDNumber == "" {
		return candidates
	}
	kept := candidates[:0]
	for _, c := range candidates {
		digits := c.IdentityDigits()
		if digits != "" && digits != q.IDNumber {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func allNameless(candidates []registry.Record) bool {
	for _, c := range candidates {
		if c.Name() != "" {
			return false
		}
	}
	return true
}
