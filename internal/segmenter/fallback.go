package segmenter

import (
	"context"

	"clause_lens/internal/chunker"
	"clause_lens/internal/clause"
)

// Уверенность правил, не использующих сервис
const (
	FallbackConfidence  = 0.3
	StructureConfidence = 0.6
)

// PerBlock - последняя стратегия цепочки: каждый блок становится клаузой. Никогда не отказывает
type PerBlock struct {
	heading HeadingFunc
}

func NewPerBlock(heading HeadingFunc) *PerBlock {
	return &PerBlock{heading: heading}
}

func (s *PerBlock) Name() string {
	return "per_block"
}

func (s *PerBlock) Segment(_ context.Context, blocks []chunker.Block) ([]clause.Clause, error) {
	clauses := make([]clause.Clause, 0, len(blocks))
	for _, b := range blocks {
		c := clause.Clause{
			Text:           b.Text,
			Type:           clause.TypeParagraph,
			SourceBlockIDs: []string{b.ID},
			Confidence:     FallbackConfidence,
			Recovered:      true,
			RecoveryReason: clause.ReasonSegmenterFallback,
		}
		describe(&c, b, s.heading)
		clauses = append(clauses, c)
	}
	return clauses, nil
}

// Structure группирует блоки по заголовкам разделов: клауза начинается со структурного
// блока и забирает следующие за ним обычные блоки. Используется, когда сервис не настроен
type Structure struct {
	heading HeadingFunc
}

func NewStructure(heading HeadingFunc) *Structure {
	return &Structure{heading: heading}
}

func (s *Structure) Name() string {
	return "structure"
}

func (s *Structure) Segment(_ context.Context, blocks []chunker.Block) ([]clause.Clause, error) {
	structural := 0
	for _, b := range blocks {
		if b.StructuralStart {
			structural++
		}
	}
	if structural == 0 {
		return nil, ErrNoStructure
	}

	var groups [][]chunker.Block
	for _, b := range blocks {
		if b.StructuralStart || len(groups) == 0 {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], b)
	}

	clauses := make([]clause.Clause, 0, len(groups))
	for _, g := range groups {
		c := clause.Clause{
			Text:           joinBlocks(g),
			Type:           clause.TypeParagraph,
			SourceBlockIDs: blockIDs(g),
			Confidence:     StructureConfidence,
		}
		describe(&c, g[0], s.heading)
		clauses = append(clauses, c)
	}
	return clauses, nil
}
