package score

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNameSelfMatch(t *testing.T) {
	got := Name("Juan Pérez", "Juan Pérez")
	if got.Score != 1.0 {
		t.Errorf("self match score = %v, want 1.0", got.Score)
	}
}

func TestNameEmpty(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		candidate string
	}{
		{"both empty", "", ""},
		{"empty query", "", "Juan Pérez"},
		{"empty candidate", "Juan Pérez", ""},
		{"symbols only query", "¿?!", "Juan Pérez"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.query, tt.candidate)
			if got.Score != 0 {
				t.Errorf("Score = %v, want 0", got.Score)
			}
			if len(got.Methods) != 1 || got.Methods[0] != MethodEmpty {
				t.Errorf("Methods = %v, want [%s]", got.Methods, MethodEmpty)
			}
		})
	}
}

func TestNameDecisions(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		candidate string
		atLeast   float64
		below     float64
	}{
		{
			name:      "registry adds a surname",
			query:     "Juan Perez",
			candidate: "Juan Pérez Gómez",
			atLeast:   0.6,
			below:     1.0,
		},
		{
			name:      "transposed name parts",
			query:     "Ana Torres",
			candidate: "Torres Ana",
			atLeast:   0.6,
			below:     1.0,
		},
		{
			name:      "particles dropped by registry",
			query:     "María de los Santos",
			candidate: "Maria Santos",
			atLeast:   0.6,
			below:     1.0,
		},
		{
			name:      "accents only difference",
			query:     "Jose Maria Gomez",
			candidate: "José María Gómez",
			atLeast:   1.0,
			below:     1.01,
		},
		{
			name:      "unrelated names",
			query:     "Juan Perez",
			candidate: "Maria Rodriguez",
			atLeast:   0,
			below:     0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.query, tt.candidate)
			if got.Score < tt.atLeast || got.Score >= tt.below {
				t.Errorf("Name(%q, %q).Score = %v, want in [%v,%v)",
					tt.query, tt.candidate, got.Score, tt.atLeast, tt.below)
			}
		})
	}
}

func TestNameSymmetricTokenSignals(t *testing.T) {
	ab := Name("Ana Torres", "Torres Ana")
	ba := Name("Torres Ana", "Ana Torres")
	if ab.Breakdown["token_jaccard"] != ba.Breakdown["token_jaccard"] {
		t.Errorf("jaccard not symmetric: %v vs %v",
			ab.Breakdown["token_jaccard"], ba.Breakdown["token_jaccard"])
	}
	if ab.Breakdown[MethodLevenshtein] != ba.Breakdown[MethodLevenshtein] {
		t.Errorf("edit ratio not symmetric: %v vs %v",
			ab.Breakdown[MethodLevenshtein], ba.Breakdown[MethodLevenshtein])
	}
}

func TestNameDeterministic(t *testing.T) {
	first := Name("Juan Perez", "Juan Pérez Gómez")
	second := Name("Juan Perez", "Juan Pérez Gómez")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated scoring differs (-first +second):\n%s", diff)
	}
}

func TestNameBounds(t *testing.T) {
	pairs := [][2]string{
		{"Juan Perez", "Juan Pérez Gómez"},
		{"a", "b"},
		{"X Y", "X Y Z"},
		{"María de los Santos", "Santos"},
		{"Pedro Pablo Hernandez", "Hernandez Pedro"},
	}
	for _, p := range pairs {
		got := Name(p[0], p[1])
		if got.Score < 0 || got.Score > 1 {
			t.Errorf("Name(%q, %q).Score = %v, outside [0,1]", p[0], p[1], got.Score)
		}
		for signal, value := range got.Breakdown {
			if value < 0 || value > 1 {
				t.Errorf("Name(%q, %q) signal %s = %v, outside [0,1]", p[0], p[1], signal, value)
			}
		}
	}
}

func TestNameMethodsReported(t *testing.T) {
	got := Name("Juan Perez", "Juan Pérez Gómez")

	want := map[string]bool{
		MethodTokenOverlap:   true,
		MethodLevenshtein:    true,
		MethodSubstring:      true,
		MethodSubstringComp:  true,
		MethodTokenInclusion: true,
	}
	have := make(map[string]bool, len(got.Methods))
	for _, m := range got.Methods {
		have[m] = true
	}
	for m := range want {
		if !have[m] {
			t.Errorf("Methods missing %q: %v", m, got.Methods)
		}
	}
}

func TestTokensIncluded(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want bool
	}{
		{"all present", []string{"juan", "perez"}, []string{"juan", "perez", "gomez"}, true},
		{"prefix token", []string{"jua"}, []string{"juan"}, true},
		{"one missing", []string{"juan", "rodriguez"}, []string{"juan", "perez"}, false},
		{"only short tokens", []string{"jo", "li"}, []string{"jo", "li"}, false},
		{"empty side", nil, []string{"juan"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokensIncluded(tt.a, tt.b); got != tt.want {
				t.Errorf("tokensIncluded(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestLevenshteinRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"juan", "juan", 1},
		{"", "", 0},
		{"abcd", "wxyz", 0},
	}
	for _, tt := range tests {
		if got := levenshteinRatio(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinRatio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
