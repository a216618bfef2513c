package summary

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clause_lens/internal/clause"
	"clause_lens/internal/risk"
)

func scored(id string, level risk.Level, score int) clause.Clause {
	return clause.Clause{ID: id, Text: "Klausel " + id, RiskLevel: level, RiskScore: score}
}

func TestSummarizeCounts(t *testing.T) {
	clauses := []clause.Clause{
		scored("c1", risk.LevelHigh, 75),
		scored("c2", risk.LevelMedium, 30),
		scored("c3", risk.LevelLow, 2),
		{ID: "c4", Text: "Berlin, den 1. Januar 2024", NonAnalyzable: clause.NonAnalyzable{Flag: true}},
	}

	s := Summarize(clauses, 0)

	assert.Equal(t, 1, s.High)
	assert.Equal(t, 1, s.Medium)
	assert.Equal(t, 2, s.Low, "unscored clause counts as low")
	assert.Equal(t, 1, s.NonAnalyzable)
	assert.Equal(t, 26.8, s.AverageScore)

	require.Len(t, s.Highest, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{s.Highest[0].ID, s.Highest[1].ID, s.Highest[2].ID})
}

func TestSummarizeTopNStableAndPreview(t *testing.T) {
	long := strings.Repeat("Haftung ", 40)
	clauses := []clause.Clause{
		scored("c1", risk.LevelMedium, 20),
		{ID: "c2", Text: long, RiskLevel: risk.LevelHigh, RiskScore: 60},
		scored("c3", risk.LevelMedium, 20),
		scored("c4", risk.LevelLow, 0),
	}

	s := Summarize(clauses, 2)

	require.Len(t, s.Highest, 2)
	assert.Equal(t, "c2", s.Highest[0].ID)
	assert.Equal(t, "c1", s.Highest[1].ID, "ties keep document order")
	assert.Equal(t, PreviewRunes+1, utf8.RuneCountInString(s.Highest[0].Preview))
	assert.True(t, strings.HasSuffix(s.Highest[0].Preview, "…"))
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, 5)
	assert.Zero(t, s.AverageScore)
	assert.NotNil(t, s.Highest)
	assert.Empty(t, s.Highest)
}
