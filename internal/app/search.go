package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"clause_lens/internal/chunker"
	"clause_lens/internal/clause"
	"clause_lens/internal/index"
	"clause_lens/internal/risk"
)

// SearchResult - найденная клауза документа
type SearchResult struct {
	ClauseID   string
	Title      string
	RiskLevel  risk.Level
	Preview    string
	Similarity float32
}

const searchPreviewRunes = 120

// Search ищет клаузы документа: векторно, если индекс включён и документ в нём есть,
// иначе подстрокой по сохранённым клаузам
func (a *App) Search(ctx context.Context, docID, query string, topK int) ([]SearchResult, error) {
	if a.index != nil {
		hits, err := a.index.Query(ctx, docID, query, topK)
		if err == nil {
			results := make([]SearchResult, 0, len(hits))
			for _, h := range hits {
				results = append(results, SearchResult{
					ClauseID:   h.ClauseID,
					Title:      h.Title,
					RiskLevel:  risk.Level(h.RiskLevel),
					Preview:    chunker.Preview(h.Content, searchPreviewRunes),
					Similarity: h.Similarity,
				})
			}
			return results, nil
		}
		if !errors.Is(err, index.ErrNoCollection) {
			return nil, err
		}
		a.log.Debug("document not indexed, falling back to text search", "document", docID)
	}

	_, res, err := a.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	var results []SearchResult
	for _, c := range clause.Search(res.Clauses, query) {
		if topK > 0 && len(results) >= topK {
			break
		}
		results = append(results, SearchResult{
			ClauseID:   c.ID,
			Title:      c.Title,
			RiskLevel:  c.RiskLevel,
			Preview:    chunker.Preview(c.Text, searchPreviewRunes),
			Similarity: 1,
		})
	}
	return results, nil
}

// groupByRiskLevel группирует результаты по уровню риска
func groupByRiskLevel(results []SearchResult) map[risk.Level][]SearchResult {
	grouped := make(map[risk.Level][]SearchResult)
	for _, r := range results {
		level := r.RiskLevel
		if level == "" {
			level = risk.LevelLow
		}
		grouped[level] = append(grouped[level], r)
	}
	return grouped
}

// PrintSearch выводит результаты поиска, сначала самые рискованные
func PrintSearch(w io.Writer, results []SearchResult) {
	fmt.Fprintf(w, "🔍 Found %d clauses\n", len(results))
	grouped := groupByRiskLevel(results)
	for _, level := range []risk.Level{risk.LevelHigh, risk.LevelMedium, risk.LevelLow} {
		for _, r := range grouped[level] {
			fmt.Fprintf(w, "   %s %s [%s] %s (similarity: %.2f)\n      %s\n",
				levelIcon[level], r.ClauseID, level, r.Title, r.Similarity, r.Preview)
		}
	}
}

// Show выводит сохранённый результат как markdown-отчёт. reviewOnly оставляет
// только клаузы с юридическим содержанием
func (a *App) Show(ctx context.Context, docID string, w io.Writer, reviewOnly bool) error {
	doc, res, err := a.store.Load(ctx, docID)
	if err != nil {
		return err
	}
	if reviewOnly {
		res.Clauses = clause.Reviewable(res.Clauses)
	}
	_, err = io.WriteString(w, renderReport(doc.Name, res))
	return err
}

// Documents выводит список сохранённых договоров
func (a *App) Documents(ctx context.Context, w io.Writer) error {
	docs, err := a.store.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %s  %s  %d clauses\n", d.ID, d.ParsedAt.Local().Format("2006-01-02 15:04"), d.Name, d.TotalClauses)
	}
	return nil
}
