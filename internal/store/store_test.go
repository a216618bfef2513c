package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clause_lens/internal/clause"
	"clause_lens/internal/pipeline"
	"clause_lens/internal/risk"
	"clause_lens/internal/summary"
)

func sampleResult(parsedAt time.Time) *pipeline.Result {
	clauses := []clause.Clause{
		{ID: "c1", Title: "Mietvertrag", Text: "MIETVERTRAG", Type: clause.TypeHeader, SourceBlockIDs: []string{"b1"},
			RiskLevel: risk.LevelLow, RiskKeywords: []risk.Match{},
			NonAnalyzable: clause.NonAnalyzable{Flag: true, Reason: "contract title", Category: "title"}},
		{ID: "c2", Title: "Haftung", Number: "§ 1", Text: "§ 1 Haftung\nDer Vermieter haftet nicht für Schäden.",
			Type: clause.TypeParagraph, SourceBlockIDs: []string{"b2"}, Confidence: 0.6,
			RiskLevel: risk.LevelMedium, RiskScore: 30,
			RiskKeywords: []risk.Match{{Keyword: "haftet", Severity: risk.LevelMedium}}},
		{ID: "c3", Text: "Der Mieter verzichtet unwiderruflich auf jede Minderung.", Type: clause.TypeParagraph,
			SourceBlockIDs: []string{"b3", "b4"}, RiskLevel: risk.LevelHigh, RiskScore: 55, RiskKeywords: []risk.Match{}},
	}
	return &pipeline.Result{
		Clauses:      clauses,
		TotalClauses: len(clauses),
		RiskSummary:  summary.Summarize(clauses, summary.DefaultTopN),
		Metadata:     pipeline.Metadata{BlockCount: 4, BatchCount: 1, ParsedAt: parsedAt, ParserVersion: pipeline.Version},
	}
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "clauses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	parsedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	want := sampleResult(parsedAt)

	require.NoError(t, s.Save(ctx, Document{ID: "doc-1", Name: "Mietvertrag", FileName: "miete.txt"}, want))

	doc, got, err := s.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Mietvertrag", doc.Name)
	assert.Equal(t, "miete.txt", doc.FileName)
	assert.True(t, parsedAt.Equal(doc.ParsedAt))
	assert.Equal(t, want.Clauses, got.Clauses)
	assert.Equal(t, want.RiskSummary, got.RiskSummary)
	assert.Equal(t, want.TotalClauses, got.TotalClauses)
	assert.True(t, parsedAt.Equal(got.Metadata.ParsedAt))
}

func TestSaveReplacesPreviousParse(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	res := sampleResult(time.Now())
	doc := Document{ID: "doc-1", Name: "Mietvertrag"}

	require.NoError(t, s.Save(ctx, doc, res))
	res.Clauses = res.Clauses[:1]
	res.TotalClauses = 1
	require.NoError(t, s.Save(ctx, doc, res))

	_, got, err := s.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, got.Clauses, 1)
}

func TestReviewableAndRiskLevel(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Document{ID: "doc-1"}, sampleResult(time.Now())))

	reviewable, err := s.Reviewable(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, reviewable, 2)
	assert.Equal(t, "c2", reviewable[0].ID)
	assert.Equal(t, "c3", reviewable[1].ID)

	high, err := s.ByRiskLevel(ctx, "doc-1", risk.LevelHigh)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "c3", high[0].ID)
}

func TestNotFound(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, _, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Reviewable(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, Document{ID: "old", Name: "Alt"}, sampleResult(base)))
	require.NoError(t, s.Save(ctx, Document{ID: "new", Name: "Neu"}, sampleResult(base.Add(time.Hour))))

	docs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, 3, docs[0].TotalClauses)
}
