// Package summary сводит оценки риска клауз документа
package summary

import (
	"math"
	"slices"

	"github.com/samber/lo"

	"clause_lens/internal/chunker"
	"clause_lens/internal/clause"
	"clause_lens/internal/risk"
)

const (
	DefaultTopN  = 5
	PreviewRunes = 100
)

// Entry - клауза в списке самых рискованных
type Entry struct {
	ID      string     `json:"id"`
	Title   string     `json:"title,omitempty"`
	Level   risk.Level `json:"level"`
	Score   int        `json:"score"`
	Preview string     `json:"preview"`
}

// Summary - гистограмма уровней, средний балл и самые рискованные клаузы
type Summary struct {
	High          int     `json:"high"`
	Medium        int     `json:"medium"`
	Low           int     `json:"low"`
	NonAnalyzable int     `json:"nonAnalyzable"`
	AverageScore  float64 `json:"averageScore"`
	Highest       []Entry `json:"highestRiskClauses"`
}

// Summarize считает сводку. Клауза без оценки считается low.
// В топ попадают только клаузы с ненулевым баллом, по убыванию балла, при равенстве в порядке документа
func Summarize(clauses []clause.Clause, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}

	s := Summary{
		High:          lo.CountBy(clauses, func(c clause.Clause) bool { return c.RiskLevel == risk.LevelHigh }),
		Medium:        lo.CountBy(clauses, func(c clause.Clause) bool { return c.RiskLevel == risk.LevelMedium }),
		NonAnalyzable: lo.CountBy(clauses, func(c clause.Clause) bool { return c.NonAnalyzable.Flag }),
		Highest:       []Entry{},
	}
	s.Low = len(clauses) - s.High - s.Medium

	if len(clauses) > 0 {
		total := lo.SumBy(clauses, func(c clause.Clause) int { return c.RiskScore })
		s.AverageScore = math.Round(float64(total)/float64(len(clauses))*10) / 10
	}

	scored := lo.Filter(clauses, func(c clause.Clause, _ int) bool { return c.RiskScore > 0 })
	slices.SortStableFunc(scored, func(a, b clause.Clause) int { return b.RiskScore - a.RiskScore })
	for _, c := range lo.Subset(scored, 0, uint(topN)) {
		s.Highest = append(s.Highest, Entry{
			ID:      c.ID,
			Title:   c.Title,
			Level:   c.RiskLevel,
			Score:   c.RiskScore,
			Preview: chunker.Preview(c.Text, PreviewRunes),
		})
	}
	return s
}
