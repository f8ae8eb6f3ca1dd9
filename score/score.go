// Package score computes a bounded [0,1] confidence that two personal
// names denote the same person. It combines several independent signals
// with fixed weights: token-set overlap and substring inclusion weigh more
// than raw edit distance, because registry names routinely add or drop a
// middle name. The scorer is a pure function with no hidden state; the
// same inputs always produce the same score.
package score

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/regsalud/exequatur/normalize"
)

// Signal names reported in Match.Methods and Match.Breakdown.
const (
	MethodEmpty          = "empty"
	MethodTokenOverlap   = "token_overlap"
	MethodSubstring      = "substring"
	MethodSubstringComp  = "substring_compact"
	MethodTokenInclusion = "token_inclusion"
	MethodLevenshtein    = "levenshtein_ratio"
)

// Combination weights. Token overlap dominates, edit distance only nudges.
const (
	weightTokens         = 0.4
	weightSubstring      = 0.1
	weightSubstringComp  = 0.1
	weightTokenInclusion = 0.3
	weightLevenshtein    = 0.1

	// Sub-weights inside the token score.
	tokenWeightJaccard  = 0.5
	tokenWeightQueryCov = 0.35
	tokenWeightCandCov  = 0.15
)

// Match is the scored comparison of one (query, candidate) name pair.
type Match struct {
	Score     float64            // weighted sum, rounded to 4 decimals, in [0,1]
	Methods   []string           // signals that contributed
	Breakdown map[string]float64 // sub-score per signal
}

// Name scores how likely queryName and candidateName identify the same
// person. Either side empty after normalization yields score 0.
func Name(queryName, candidateName string) Match {
	query := normalize.Normalize(queryName)
	candidate := normalize.Normalize(candidateName)

	if query == "" || candidate == "" {
		return Match{Methods: []string{MethodEmpty}, Breakdown: map[string]float64{}}
	}

	queryTokens := discriminativeTokens(queryName)
	candTokens := discriminativeTokens(candidateName)

	jaccard, queryCov, candCov := overlap(queryTokens, candTokens)
	tokenScore := tokenWeightJaccard*jaccard + tokenWeightQueryCov*queryCov + tokenWeightCandCov*candCov

	substring := 0.0
	if strings.Contains(query, candidate) || strings.Contains(candidate, query) {
		substring = 1
	}

	compact := 0.0
	queryCompact := normalize.Compact(queryName)
	candCompact := normalize.Compact(candidateName)
	if strings.Contains(queryCompact, candCompact) || strings.Contains(candCompact, queryCompact) {
		compact = 1
	}

	inclusion := 0.0
	if tokensIncluded(queryTokens, candTokens) || tokensIncluded(candTokens, queryTokens) {
		inclusion = 1
	}

	editRatio := levenshteinRatio(query, candidate)

	total := weightTokens*tokenScore +
		weightSubstring*substring +
		weightSubstringComp*compact +
		weightTokenInclusion*inclusion +
		weightLevenshtein*editRatio

	methods := []string{MethodTokenOverlap, MethodLevenshtein}
	if substring > 0 {
		methods = append(methods, MethodSubstring)
	}
	if compact > 0 {
		methods = append(methods, MethodSubstringComp)
	}
	if inclusion > 0 {
		methods = append(methods, MethodTokenInclusion)
	}

	return Match{
		Score:   math.Round(total*10000) / 10000,
		Methods: methods,
		Breakdown: map[string]float64{
			"token_jaccard":       jaccard,
			"query_coverage":      queryCov,
			"candidate_coverage":  candCov,
			MethodTokenOverlap:    tokenScore,
			MethodSubstring:       substring,
			MethodSubstringComp:   compact,
			MethodTokenInclusion:  inclusion,
			MethodLevenshtein:     editRatio,
		},
	}
}

// discriminativeTokens returns particle-filtered tokens, falling back to
// the unfiltered tokens when the name consists of particles only.
func discriminativeTokens(name string) []string {
	tokens := normalize.Tokens(name, true)
	if len(tokens) == 0 {
		return normalize.Tokens(name, false)
	}
	return tokens
}

// overlap computes Jaccard similarity plus per-side coverage over token sets.
func overlap(a, b []string) (jaccard, aCoverage, bCoverage float64) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union),
		float64(intersection) / float64(len(setA)),
		float64(intersection) / float64(len(setB))
}

// tokensIncluded reports whether every token of a (length >= 3) is a
// substring or superstring of some token in b. Short tokens (initials,
// particles that survived filtering) are skipped as non-discriminative.
func tokensIncluded(a, b []string) bool {
	checked := false
	for _, ta := range a {
		if len(ta) < 3 {
			continue
		}
		checked = true
		found := false
		for _, tb := range b {
			if strings.Contains(tb, ta) || strings.Contains(ta, tb) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return checked
}

// levenshteinRatio is 1 - distance/maxLen over the normalized strings:
// 1.0 for identical names, approaching 0 as they diverge.
func levenshteinRatio(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(maxLen)
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
