// Package pipeline собирает полный проход по договору: нормализация, блоки, батчи,
// сегментация, сверка, оценка риска и классификация, сводка.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"clause_lens/internal/chunker"
	"clause_lens/internal/classifier"
	"clause_lens/internal/clause"
	"clause_lens/internal/config"
	"clause_lens/internal/llm"
	"clause_lens/internal/logger"
	"clause_lens/internal/planner"
	"clause_lens/internal/reconcile"
	"clause_lens/internal/risk"
	"clause_lens/internal/segmenter"
	"clause_lens/internal/summary"
)

// Version попадает в метаданные результата
const Version = "1.0.0"

// ErrInvalidInput - пустой или состоящий из пробелов текст
var ErrInvalidInput = errors.New("pipeline: contract text is empty")

// Options - параметры одного разбора
type Options struct {
	IsOCR        bool
	DetectRisk   bool
	ContractName string
	FileName     string // по расширению выбирается детектор структуры
	SplitMethod  string // text | markdown, перекрывает расширение
}

// Metadata - сведения о проходе
type Metadata struct {
	OriginalLength           int       `json:"originalLength"`
	CleanedLength            int       `json:"cleanedLength"`
	RemovedHeaderFooterCount int       `json:"removedHeaderFooterCount"`
	UsedSemanticSegmenter    bool      `json:"usedSemanticSegmenter"`
	Splitter                 string    `json:"splitter"`
	BlockCount               int       `json:"blockCount"`
	BatchCount               int       `json:"batchCount"`
	FallbackBatches          int       `json:"fallbackBatches"`
	RecoveredBlocks          int       `json:"recoveredBlocks"`
	ParsedAt                 time.Time `json:"parsedAt"`
	ParserVersion            string    `json:"parserVersion"`
}

// Result - итог разбора одного договора
type Result struct {
	Clauses      []clause.Clause `json:"clauses"`
	TotalClauses int             `json:"totalClauses"`
	RiskSummary  summary.Summary `json:"riskSummary"`
	Metadata     Metadata        `json:"metadata"`
}

// Parser не хранит состояния между вызовами и может использоваться из нескольких горутин
type Parser struct {
	service   llm.Service // nil - сегментация только правилами
	risk      *risk.Engine
	splitters *chunker.Factory
	segment   config.SegmentConfig
	budget    int
	timeout   time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewParser проверяет бюджет: после вычета системного промпта на блоки должно что-то остаться
func NewParser(svc llm.Service, engine *risk.Engine, segment config.SegmentConfig, timeout time.Duration, log *logger.Logger) (*Parser, error) {
	if log == nil {
		log = logger.Nop()
	}
	if engine == nil {
		engine = risk.Default()
	}
	if segment.MaxTokens <= 0 || segment.CharsPerToken <= 0 {
		return nil, fmt.Errorf("segment budget must be positive: maxTokens=%d charsPerToken=%v",
			segment.MaxTokens, segment.CharsPerToken)
	}

	budget := segment.MaxTokens
	if svc != nil {
		overhead := segmenter.PromptOverheadTokens(segment.CharsPerToken, "")
		budget -= overhead
		if budget <= 0 {
			return nil, fmt.Errorf("SEGMENT_MAX_TOKENS=%d leaves no room for blocks after the %d-token prompt",
				segment.MaxTokens, overhead)
		}
	}

	return &Parser{
		service:   svc,
		risk:      engine,
		splitters: chunker.NewFactory(chunker.Config{}),
		segment:   segment,
		budget:    budget,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}, nil
}

// Parse разбирает договор. Ошибка возвращается только для пустого ввода:
// сбои сервиса и истечение таймаута приводят к разбору правилами, а не к потере текста
func (p *Parser) Parse(ctx context.Context, text string, opts Options) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	log := p.log.With("contract", opts.ContractName)

	budget := p.blockBudget(opts.ContractName)
	if budget <= 0 {
		log.Warn("⚠️ contract name does not fit the token budget, sending requests without it")
		opts.ContractName = ""
		budget = p.budget
	}

	normalized := chunker.Normalize(text, chunker.NormalizeOptions{IsOCR: opts.IsOCR})
	splitter := p.splitters.GetSplitter(opts.FileName, opts.SplitMethod, normalized.Text)
	blocks := splitter.Split(normalized.Text)

	batches := planner.New(planner.Options{
		MaxTokens:      budget,
		CharsPerToken:  p.segment.CharsPerToken,
		PreviewChars:   p.segment.PreviewChars,
		MinBatchBlocks: p.segment.MinBatchBlocks,
		MaxBatchBlocks: p.segment.MaxBatchBlocks,
	}).Plan(blocks)

	log.Info("📄 contract split",
		"splitter", splitter.Name(),
		"blocks", len(blocks),
		"batches", len(batches),
		"removedHeaderFooter", normalized.RemovedHeaderFooter)

	seg := p.segmenterFor(splitter, opts, budget)
	acc := reconcile.NewAccumulator(splitter.Heading)

	meta := Metadata{
		OriginalLength:           utf8.RuneCountInString(text),
		CleanedLength:            utf8.RuneCountInString(normalized.Text),
		RemovedHeaderFooterCount: normalized.RemovedHeaderFooter,
		Splitter:                 splitter.Name(),
		BlockCount:               len(blocks),
		BatchCount:               len(batches),
		ParserVersion:            Version,
	}

	for _, batch := range batches {
		outcome := seg.Segment(ctx, batch.Blocks)
		if outcome.Fallback() {
			meta.FallbackBatches++
		}
		if strings.HasPrefix(outcome.Strategy, "semantic") {
			meta.UsedSemanticSegmenter = true
		}

		report := acc.Reconcile(batch.Blocks, outcome.Clauses)
		log.Debug("batch reconciled",
			"batch", batch.Index,
			"strategy", outcome.Strategy,
			"estimatedTokens", batch.EstimatedTokens,
			"accepted", report.Accepted,
			"orphans", report.Orphans,
			"duplicates", report.Duplicates,
			"droppedClaims", report.DroppedClaims)
	}

	clauses := acc.Finalize()
	for i := range clauses {
		p.annotate(&clauses[i], opts.DetectRisk)
	}
	meta.RecoveredBlocks = acc.Recovered()
	meta.ParsedAt = p.now().UTC()

	if !acc.Covered(blocks) {
		// сверка восстанавливает все блоки; сюда попадаем только при ошибке в коде
		log.Error("coverage violated", "blocks", len(blocks), "clauses", len(clauses))
	}

	log.Info("✅ contract parsed",
		"clauses", len(clauses),
		"fallbackBatches", meta.FallbackBatches,
		"recovered", meta.RecoveredBlocks)

	return &Result{
		Clauses:      clauses,
		TotalClauses: len(clauses),
		RiskSummary:  summary.Summarize(clauses, summary.DefaultTopN),
		Metadata:     meta,
	}, nil
}

// blockBudget - токены на записи блоков одного запроса для договора с таким названием
func (p *Parser) blockBudget(contractName string) int {
	if p.service == nil {
		return p.budget
	}
	return p.segment.MaxTokens - segmenter.PromptOverheadTokens(p.segment.CharsPerToken, contractName)
}

func (p *Parser) segmenterFor(splitter chunker.Splitter, opts Options, budget int) *segmenter.Segmenter {
	heading := segmenter.HeadingFunc(splitter.Heading)
	if p.service == nil {
		return segmenter.New(p.log, heading, segmenter.NewStructure(heading))
	}
	semantic := segmenter.NewSemantic(p.service, segmenter.SemanticOptions{
		ContractName: opts.ContractName,
		Preview: segmenter.PreviewOptions{
			MaxTokens:       budget,
			CharsPerToken:   p.segment.CharsPerToken,
			PreviewChars:    p.segment.PreviewChars,
			MinPreviewChars: p.segment.MinPreviewChars,
		},
	}, heading, p.log)
	return segmenter.New(p.log, heading, semantic)
}

// annotate проставляет классификацию и, если включено, оценку риска
func (p *Parser) annotate(c *clause.Clause, detectRisk bool) {
	r := classifier.Classify(c.Text, c.Title)
	c.NonAnalyzable = clause.NonAnalyzable{Flag: r.NonAnalyzable, Reason: r.Reason, Category: r.Category}

	c.RiskKeywords = []risk.Match{}
	if !detectRisk {
		return
	}
	a := p.risk.Assess(c.Text)
	c.RiskLevel, c.RiskScore = a.Level, a.Score
	if a.Keywords != nil {
		c.RiskKeywords = a.Keywords
	}
}
