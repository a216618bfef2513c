package planner

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clause_lens/internal/chunker"
	"clause_lens/internal/llm"
)

// block длиной runes символов. JSON-запись блока b1..b9 длиннее текста на 29 символов,
// так что при одном символе на токен блок из 71 символа стоит 100 токенов
func block(i, runes int, structural bool) chunker.Block {
	return chunker.Block{
		ID:              chunker.BlockID(i),
		Index:           i,
		Text:            strings.Repeat("x", runes),
		StructuralStart: structural,
	}
}

func flatten(batches []Batch) []string {
	var ids []string
	for _, b := range batches {
		for _, bl := range b.Blocks {
			ids = append(ids, bl.ID)
		}
	}
	return ids
}

func TestPlanPrefersStructuralCut(t *testing.T) {
	blocks := []chunker.Block{
		block(0, 71, true),
		block(1, 71, false),
		block(2, 71, true),
		block(3, 71, false),
		block(4, 71, false),
		block(5, 71, false),
	}
	p := New(Options{MaxTokens: 450, CharsPerToken: 1, MinBatchBlocks: 2})

	batches := p.Plan(blocks)

	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Blocks, 2, "cut before the section that starts at b3")
	assert.Equal(t, 200, batches[0].EstimatedTokens)
	assert.Equal(t, "b3", batches[1].Blocks[0].ID)
	assert.Equal(t, 400, batches[1].EstimatedTokens)
	assert.Equal(t, 1, batches[1].Index)
}

func TestPlanCutsAtIdealPointWithoutStructure(t *testing.T) {
	blocks := make([]chunker.Block, 6)
	for i := range blocks {
		blocks[i] = block(i, 71, false)
	}
	batches := New(Options{MaxTokens: 450, CharsPerToken: 1, MinBatchBlocks: 2}).Plan(blocks)

	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Blocks, 4)
	assert.Len(t, batches[1].Blocks, 2)
}

func TestPlanRespectsMinBatchFloor(t *testing.T) {
	blocks := []chunker.Block{
		block(0, 71, false),
		block(1, 71, true),
		block(2, 71, false),
		block(3, 71, false),
		block(4, 71, false),
	}
	batches := New(Options{MaxTokens: 450, CharsPerToken: 1, MinBatchBlocks: 2}).Plan(blocks)

	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Blocks, 4, "structural block b2 is below the floor, cut stays at the ideal point")
}

func TestPlanMaxBatchBlocks(t *testing.T) {
	blocks := make([]chunker.Block, 7)
	for i := range blocks {
		blocks[i] = block(i, 7, false)
	}
	batches := New(Options{MaxTokens: 1000, CharsPerToken: 3.5, MaxBatchBlocks: 3}).Plan(blocks)

	require.Len(t, batches, 3)
	assert.Len(t, batches[2].Blocks, 1)
}

func TestPlanOversizedBlockIsCapped(t *testing.T) {
	blocks := []chunker.Block{
		block(0, 35, false),
		block(1, 5000, false),
		block(2, 35, false),
	}
	p := New(Options{MaxTokens: 100, CharsPerToken: 3.5})

	batches := p.Plan(blocks)

	require.Len(t, batches, 3)
	assert.Equal(t, 100, batches[1].EstimatedTokens)
	assert.Equal(t, []string{"b1", "b2", "b3"}, flatten(batches))
}

func TestPlanPreviewCapLimitsCost(t *testing.T) {
	p := New(Options{MaxTokens: 1000, CharsPerToken: 1, PreviewChars: 70})
	assert.Equal(t, 100, p.BlockCost(block(0, 700, false)), "70 runes, ellipsis and the JSON record")
	assert.Equal(t, 64, p.BlockCost(block(0, 35, false)))
}

func TestBlockCostCountsJSONEscaping(t *testing.T) {
	p := New(Options{MaxTokens: 1000, CharsPerToken: 1})
	plain := chunker.Block{ID: "b1", Text: "abcdef"}
	quoted := chunker.Block{ID: "b1", Text: "\"a\"\n\"b"}

	assert.Equal(t, 35, p.BlockCost(plain))
	assert.Equal(t, 39, p.BlockCost(quoted), "each quote and newline is escaped with a backslash")
	assert.Equal(t, 27, PreviewTokens(llm.BlockPreview{}, 1))
}

func TestPlanEmpty(t *testing.T) {
	assert.Nil(t, New(Options{MaxTokens: 10}).Plan(nil))
}

func TestPlanBudgetAndCoverageProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		n := 1 + rnd.Intn(60)
		blocks := make([]chunker.Block, n)
		want := make([]string, n)
		for i := range blocks {
			blocks[i] = block(i, 1+rnd.Intn(3000), rnd.Intn(4) == 0)
			want[i] = blocks[i].ID
		}
		opts := Options{
			MaxTokens:      50 + rnd.Intn(2000),
			CharsPerToken:  3.5,
			PreviewChars:   200 + rnd.Intn(1500),
			MinBatchBlocks: 1 + rnd.Intn(4),
			MaxBatchBlocks: rnd.Intn(20),
		}
		p := New(opts)

		batches := p.Plan(blocks)

		require.Equal(t, want, flatten(batches), "run %d: batches must cover all blocks once, in order", run)
		for _, b := range batches {
			require.NotEmpty(t, b.Blocks)
			require.LessOrEqual(t, b.EstimatedTokens, opts.MaxTokens, "run %d: batch %d over budget", run, b.Index)
			if opts.MaxBatchBlocks > 0 {
				require.LessOrEqual(t, len(b.Blocks), opts.MaxBatchBlocks)
			}
		}
	}
}
