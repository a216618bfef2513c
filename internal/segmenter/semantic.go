package segmenter

import (
	"context"
	"fmt"
	"slices"

	"clause_lens/internal/chunker"
	"clause_lens/internal/clause"
	"clause_lens/internal/llm"
	"clause_lens/internal/logger"
)

// DefaultSemanticConfidence - уверенность, если сервис её не указал
const DefaultSemanticConfidence = 0.7

// SemanticOptions - параметры запроса к сервису
type SemanticOptions struct {
	ContractName string
	Preview      PreviewOptions
}

// Semantic - первая стратегия цепочки: группировка блоков внешним сервисом
type Semantic struct {
	svc     llm.Service
	opts    SemanticOptions
	heading HeadingFunc
	log     *logger.Logger
}

func NewSemantic(svc llm.Service, opts SemanticOptions, heading HeadingFunc, log *logger.Logger) *Semantic {
	if log == nil {
		log = logger.Nop()
	}
	return &Semantic{svc: svc, opts: opts, heading: heading, log: log}
}

func (s *Semantic) Name() string {
	return "semantic:" + s.svc.Name()
}

func (s *Semantic) Segment(ctx context.Context, blocks []chunker.Block) ([]clause.Clause, error) {
	previews, truncated := BuildPreviews(blocks, s.opts.Preview)
	if len(truncated) > 0 {
		s.log.Warn("⚠️ batch over budget, previews truncated",
			"truncated", truncated,
			"minPreviewChars", s.opts.Preview.MinPreviewChars,
			"estimatedTokens", previewTokens(previews, s.opts.Preview.CharsPerToken),
			"maxTokens", s.opts.Preview.MaxTokens)
	}

	raw, err := s.svc.Segment(ctx, llm.Request{
		SystemInstruction: SystemPrompt,
		Blocks:            previews,
		ContractName:      RequestName(s.opts.ContractName),
	})
	if err != nil {
		return nil, fmt.Errorf("service request: %w", err)
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	clauses := resolve(parsed, blocks, s.heading)
	if len(clauses) == 0 {
		return nil, ErrEmptyResponse
	}
	return clauses, nil
}

// resolve сопоставляет id из ответа с блоками батча. Неизвестные id игнорируются,
// текст клаузы всегда собирается из полного текста блоков
func resolve(parsed []rawClause, blocks []chunker.Block, heading HeadingFunc) []clause.Clause {
	byID := make(map[string]chunker.Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}

	clauses := make([]clause.Clause, 0, len(parsed))
	for _, rc := range parsed {
		seen := make(map[string]bool, len(rc.BlockIDs))
		var members []chunker.Block
		for _, id := range rc.BlockIDs {
			b, ok := byID[id]
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			members = append(members, b)
		}
		if len(members) == 0 {
			continue
		}
		slices.SortFunc(members, func(a, b chunker.Block) int { return a.Index - b.Index })

		confidence := DefaultSemanticConfidence
		if rc.HasConf {
			confidence = min(max(rc.Confidence, 0), 1)
		}

		c := clause.Clause{
			Title:          rc.Title,
			Number:         rc.Number,
			Text:           joinBlocks(members),
			Type:           clause.ParseType(rc.Type),
			SourceBlockIDs: blockIDs(members),
			Confidence:     confidence,
		}
		describe(&c, members[0], heading)
		clauses = append(clauses, c)
	}
	return clauses
}

// Segmenter прогоняет батч через цепочку стратегий. Последней всегда стоит PerBlock,
// поэтому результат есть всегда
type Segmenter struct {
	strategies []Strategy
	fallback   *PerBlock
	log        *logger.Logger
}

// New собирает цепочку; PerBlock добавляется в конец автоматически
func New(log *logger.Logger, heading HeadingFunc, strategies ...Strategy) *Segmenter {
	if log == nil {
		log = logger.Nop()
	}
	return &Segmenter{strategies: strategies, fallback: NewPerBlock(heading), log: log}
}

// Segment всегда возвращает клаузы. Если контекст уже истёк, сервис не вызывается
func (s *Segmenter) Segment(ctx context.Context, blocks []chunker.Block) Outcome {
	if err := ctx.Err(); err != nil {
		clauses, _ := s.fallback.Segment(ctx, blocks)
		return Outcome{Clauses: clauses, Strategy: s.fallback.Name(), Failures: []error{err}}
	}

	chain := append(slices.Clone(s.strategies), Strategy(s.fallback))
	outcome, err := FirstSuccess(ctx, blocks, chain...)
	if err != nil {
		// PerBlock не отказывает, сюда попасть нельзя
		clauses, _ := s.fallback.Segment(ctx, blocks)
		outcome.Clauses, outcome.Strategy = clauses, s.fallback.Name()
	}
	for _, f := range outcome.Failures {
		s.log.Warn("strategy failed, falling back", "error", f, "blocks", len(blocks), "used", outcome.Strategy)
	}
	return outcome
}
