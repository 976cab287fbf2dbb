package stats_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/stats"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "央行宣布降准", "央行宣布降准", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "abc", "", 0.0},
		{"disjoint", "abc", "xyz", 0.0},
		// 13 matching runes out of 13+17.
		{"suffix annotation", "央行宣布降准0.5个百分点", "央行宣布降准0.5个百分点（更新）", 26.0 / 30.0},
		// Matching blocks "ab" and "cd" around a substitution: 4 of 5+5.
		{"mid substitution", "abxcd", "abycd", 8.0 / 10.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, stats.Similarity(tt.a, tt.b), 1e-9)
			require.InDelta(t, tt.want, stats.Similarity(tt.b, tt.a), 1e-9, "ratio should not depend on argument order here")
		})
	}
}

func TestSimilarityAboveMergeThreshold(t *testing.T) {
	// Scenario: a re-published headline with a short suffix must clear the
	// 0.7 merge threshold.
	got := stats.Similarity("央行宣布降准0.5个百分点", "央行宣布降准0.5个百分点（更新）")
	require.Greater(t, got, 0.7)
}

func TestSimilarityCountsSplitBlocks(t *testing.T) {
	// "abcd" matches as two blocks "ab" and "cd" inside "ab__cd".
	require.InDelta(t, 8.0/10.0, stats.Similarity("abcd", "ab__cd"), 1e-9)
}
