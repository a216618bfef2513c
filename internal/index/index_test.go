package index

import (
	"context"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clause_lens/internal/clause"
	"clause_lens/internal/risk"
)

// wordEmbedding - детерминированные эмбеддинги по словам, без сети
func wordEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 65)
	vec[64] = 0.01
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,;:")))
		vec[h.Sum32()%64]++
	}
	return vec, nil
}

func sampleClauses() []clause.Clause {
	return []clause.Clause{
		{ID: "c1", Text: "MIETVERTRAG", NonAnalyzable: clause.NonAnalyzable{Flag: true, Category: "title"}},
		{ID: "c2", Title: "Haftung", Text: "Der Vermieter haftet nicht für Schäden", RiskLevel: risk.LevelMedium},
		{ID: "c3", Title: "Miete", Text: "Die Miete beträgt 900 Euro im Monat", RiskLevel: risk.LevelLow},
		{ID: "c4", Title: "Kündigung", Text: "Die Kündigung bedarf der Schriftform", RiskLevel: risk.LevelMedium},
	}
}

func TestAddAndQuery(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "clauses.gob"), wordEmbedding, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "doc-1", sampleClauses()))

	hits, err := idx.Query(ctx, "doc-1", "Miete Euro Monat", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3, "non-analyzable clause is not indexed")
	assert.Equal(t, "c3", hits[0].ClauseID)
	assert.Equal(t, "Miete", hits[0].Title)
	assert.Equal(t, "low", hits[0].RiskLevel)
}

func TestAddReplacesCollection(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "clauses.gob"), wordEmbedding, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "doc-1", sampleClauses()))
	require.NoError(t, idx.Add(ctx, "doc-1", sampleClauses()[:2]))

	hits, err := idx.Query(ctx, "doc-1", "Schäden", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ClauseID)
}

func TestQueryUnknownDocument(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "clauses.gob"), wordEmbedding, nil)
	require.NoError(t, err)

	_, err = idx.Query(context.Background(), "missing", "Haftung", 3)
	assert.ErrorIs(t, err, ErrNoCollection)
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clauses.gob")
	ctx := context.Background()

	idx, err := Open(path, wordEmbedding, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "doc-1", sampleClauses()))
	require.NoError(t, idx.Persist())

	reloaded, err := Open(path, wordEmbedding, nil)
	require.NoError(t, err)
	hits, err := reloaded.Query(ctx, "doc-1", "Kündigung Schriftform", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c4", hits[0].ClauseID)
}
