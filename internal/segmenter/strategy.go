// Package segmenter группирует блоки батча в клаузы цепочкой стратегий:
// внешний сервис, группировка по заголовкам, один блок - одна клауза.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clause_lens/internal/chunker"
	"clause_lens/internal/clause"
)

var (
	ErrEmptyResponse     = errors.New("segmenter: service returned no clauses")
	ErrMalformedResponse = errors.New("segmenter: malformed service response")
	ErrNoStructure       = errors.New("segmenter: batch has no section structure")
)

// Strategy превращает блоки батча в клаузы или сообщает об отказе
type Strategy interface {
	Name() string
	Segment(ctx context.Context, blocks []chunker.Block) ([]clause.Clause, error)
}

// HeadingFunc разбирает заголовок абзаца, см. chunker.Splitter.Heading
type HeadingFunc func(paragraph string) (chunker.Heading, bool)

// Outcome - результат цепочки стратегий для одного батча
type Outcome struct {
	Clauses  []clause.Clause
	Strategy string  // стратегия, давшая результат
	Failures []error // отказы предыдущих стратегий
}

// Fallback - результат дала не первая стратегия цепочки
func (o Outcome) Fallback() bool {
	return len(o.Failures) > 0
}

// FirstSuccess запускает стратегии по порядку и возвращает первый успешный результат.
// Если отказали все, возвращается объединённая ошибка
func FirstSuccess(ctx context.Context, blocks []chunker.Block, strategies ...Strategy) (Outcome, error) {
	var failures []error
	for _, s := range strategies {
		clauses, err := s.Segment(ctx, blocks)
		if err == nil {
			return Outcome{Clauses: clauses, Strategy: s.Name(), Failures: failures}, nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return Outcome{Failures: failures}, errors.Join(failures...)
}

// joinBlocks склеивает полный текст блоков
func joinBlocks(blocks []chunker.Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n\n")
}

func blockIDs(blocks []chunker.Block) []string {
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.ID)
	}
	return ids
}

// describe заполняет заголовок, номер и тип клаузы по первому блоку
func describe(c *clause.Clause, first chunker.Block, heading HeadingFunc) {
	if heading == nil {
		return
	}
	h, ok := heading(first.Text)
	if !ok {
		return
	}
	if c.Title == "" {
		c.Title = h.Title
	}
	if c.Number == "" {
		c.Number = h.Number
	}
	if c.Type == "" || c.Type == clause.TypeParagraph {
		c.Type = clause.ParseType(h.Type)
	}
}
