package reconcile

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clause_lens/internal/chunker"
	"clause_lens/internal/clause"
)

func blocksFrom(start int, texts ...string) []chunker.Block {
	blocks := make([]chunker.Block, 0, len(texts))
	for i, text := range texts {
		idx := start + i
		blocks = append(blocks, chunker.Block{ID: chunker.BlockID(idx), Index: idx, Text: text})
	}
	return blocks
}

func clauseOf(text string, ids ...string) clause.Clause {
	return clause.Clause{Text: text, Type: clause.TypeParagraph, SourceBlockIDs: ids, Confidence: 0.9}
}

func TestOrphanedBlockIsRecovered(t *testing.T) {
	batch := blocksFrom(0, "§ 1 Gegenstand", "Die Wohnung wird vermietet.", "Gerichtsstand ist Berlin.")
	acc := NewAccumulator(chunker.ParseHeading)

	report := acc.Reconcile(batch, []clause.Clause{
		clauseOf("§ 1 Gegenstand\n\nDie Wohnung wird vermietet.", "b1", "b2"),
	})

	assert.Equal(t, 1, report.Orphans)
	assert.Equal(t, 1, acc.Recovered())

	out := acc.Finalize()
	require.Len(t, out, 2)
	orphan := out[1]
	assert.Equal(t, []string{"b3"}, orphan.SourceBlockIDs)
	assert.Equal(t, "Gerichtsstand ist Berlin.", orphan.Text)
	assert.True(t, orphan.Recovered)
	assert.Equal(t, clause.ReasonOrphanedBlock, orphan.RecoveryReason)
	assert.Equal(t, OrphanConfidence, orphan.Confidence)
	assert.True(t, acc.Covered(batch))
}

func TestDuplicateTextIsAbsorbed(t *testing.T) {
	batch := blocksFrom(0, "Die Miete ist monatlich fällig.", "Die  miete ist monatlich FÄLLIG.", "Anderer Text.")
	acc := NewAccumulator(nil)

	report := acc.Reconcile(batch, []clause.Clause{
		clauseOf(batch[0].Text, "b1"),
		clauseOf(batch[1].Text, "b2"),
		clauseOf(batch[2].Text, "b3"),
	})

	assert.Equal(t, 1, report.Duplicates)
	out := acc.Finalize()
	require.Len(t, out, 2)
	assert.Equal(t, batch[0].Text, out[0].Text, "first occurrence survives")
	assert.Equal(t, []string{"b1", "b2"}, out[0].SourceBlockIDs)
	assert.True(t, acc.Covered(batch))
}

func TestSharedPrefixIsNotDuplicate(t *testing.T) {
	prefix := strings.Repeat("Der Mieter trägt die Kosten der laufenden Instandhaltung. ", 6)
	batch := blocksFrom(0, prefix+"Ausgenommen sind Dach und Fach.", prefix+"Dies gilt auch für Gemeinschaftsflächen.")
	require.Equal(t, clause.NormalizedHash(batch[0].Text), clause.NormalizedHash(batch[1].Text))
	acc := NewAccumulator(nil)

	report := acc.Reconcile(batch, []clause.Clause{
		clauseOf(batch[0].Text, "b1"),
		clauseOf(batch[1].Text, "b2"),
	})

	assert.Zero(t, report.Duplicates)
	out := acc.Finalize()
	require.Len(t, out, 2)
	for i, c := range out {
		assert.Equal(t, batch[i].Text, c.Text)
		assert.Equal(t, []string{batch[i].ID}, c.SourceBlockIDs)
	}
}

func TestFirstClaimWins(t *testing.T) {
	batch := blocksFrom(0, "Eins.", "Zwei.", "Drei.")
	acc := NewAccumulator(nil)

	report := acc.Reconcile(batch, []clause.Clause{
		clauseOf("Eins.\n\nZwei.", "b1", "b2"),
		clauseOf("Zwei.\n\nDrei.", "b2", "b3"),
		clauseOf("Eins.", "b1"),
	})

	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 2, report.DroppedClaims)
	assert.Equal(t, 1, report.DroppedEmpty)

	out := acc.Finalize()
	require.Len(t, out, 2)
	assert.Equal(t, []string{"b3"}, out[1].SourceBlockIDs)
	assert.Equal(t, "Drei.", out[1].Text, "text re-stitched from remaining blocks")
}

func TestProcessedKeyIsSkipped(t *testing.T) {
	batch := blocksFrom(0, "Eins.", "Zwei.")
	acc := NewAccumulator(nil)

	report := acc.Reconcile(batch, []clause.Clause{
		clauseOf("Eins.\n\nZwei.", "b1", "b2"),
		clauseOf("Eins.\n\nZwei.", "b2", "b1"),
	})

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Accepted)
}

func TestClaimsAcrossBatches(t *testing.T) {
	acc := NewAccumulator(nil)
	first := blocksFrom(0, "Eins.", "Zwei.")
	second := blocksFrom(2, "Drei.", "Vier.")

	acc.Reconcile(first, []clause.Clause{clauseOf("Eins.\n\nZwei.", "b1", "b2")})
	report := acc.Reconcile(second, []clause.Clause{clauseOf("Zwei.\n\nDrei.\n\nVier.", "b2", "b3", "b4")})

	assert.Equal(t, 1, report.DroppedClaims)
	out := acc.Finalize()
	require.Len(t, out, 2)
	assert.Equal(t, []string{"c1", "c2"}, []string{out[0].ID, out[1].ID})
	assert.Equal(t, []string{"b3", "b4"}, out[1].SourceBlockIDs)
	assert.Equal(t, "Drei.\n\nVier.", out[1].Text)
}

func TestWhitespaceBlockAttachesToPredecessor(t *testing.T) {
	batch := blocksFrom(0, "Eins.", "   ", "Drei.")
	acc := NewAccumulator(nil)

	report := acc.Reconcile(batch, []clause.Clause{clauseOf("Eins.", "b1"), clauseOf("Drei.", "b3")})

	assert.Zero(t, report.Orphans)
	out := acc.Finalize()
	require.Len(t, out, 2)
	assert.Equal(t, []string{"b1", "b2"}, out[0].SourceBlockIDs)
}

func TestFinalizeOrdersAndHashes(t *testing.T) {
	batch := blocksFrom(0, "Eins.", "Zwei.", "Drei.")
	acc := NewAccumulator(nil)
	acc.Reconcile(batch, []clause.Clause{clauseOf("Drei.", "b3"), clauseOf("Eins.", "b1")})

	out := acc.Finalize()
	require.Len(t, out, 3)
	for i, c := range out {
		assert.Equal(t, clause.ID(i), c.ID)
		assert.Equal(t, []string{chunker.BlockID(i)}, c.SourceBlockIDs)
		assert.Len(t, c.TextHash, 16)
	}
	assert.True(t, out[1].Recovered)
}

func TestReconcileCoverageProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 100; run++ {
		n := 1 + rng.Intn(30)
		texts := make([]string, n)
		for i := range texts {
			texts[i] = fmt.Sprintf("Absatz %d.", rng.Intn(10))
		}
		blocks := blocksFrom(0, texts...)
		acc := NewAccumulator(nil)

		for start := 0; start < n; {
			end := min(n, start+1+rng.Intn(8))
			batch := blocks[start:end]
			var clauses []clause.Clause
			for k := 0; k < rng.Intn(5); k++ {
				var ids []string
				for j := 0; j < 1+rng.Intn(3); j++ {
					ids = append(ids, chunker.BlockID(rng.Intn(n+2)))
				}
				clauses = append(clauses, clauseOf("egal", ids...))
			}
			acc.Reconcile(batch, clauses)
			start = end
		}

		seen := make(map[string]int)
		for _, c := range acc.Finalize() {
			require.NotEmpty(t, c.SourceBlockIDs)
			for _, id := range c.SourceBlockIDs {
				seen[id]++
			}
		}
		require.Len(t, seen, n, "run %d", run)
		for id, count := range seen {
			require.Equal(t, 1, count, "run %d block %s", run, id)
		}
	}
}
