// Package planner группирует блоки в батчи запросов к сервису сегментации,
// ограниченные оценкой токенов и по возможности разрезанные на границах разделов.
package planner

import (
	"encoding/json"
	"math"
	"unicode/utf8"

	"clause_lens/internal/chunker"
	"clause_lens/internal/llm"
)

// Options - параметры планировщика
type Options struct {
	MaxTokens      int     // потолок токенов блоков батча (уже за вычетом системного промпта и обёртки запроса)
	CharsPerToken  float64 // ≈ 3.5 символа на токен
	PreviewChars   int     // жёсткий лимит превью одного блока
	MinBatchBlocks int     // раньше этого числа блоков батч по структуре не режется
	MaxBatchBlocks int     // 0 - без ограничения
}

// Batch - план одного запроса. Живёт один проход сегментатора
type Batch struct {
	Index           int
	Blocks          []chunker.Block
	EstimatedTokens int
}

// Planner - жадный планировщик батчей
type Planner struct {
	opts Options
}

// New создаёт планировщик; некорректные значения заменяются безопасными
func New(opts Options) *Planner {
	if opts.CharsPerToken <= 0 {
		opts.CharsPerToken = 3.5
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1
	}
	if opts.MinBatchBlocks <= 0 {
		opts.MinBatchBlocks = 1
	}
	return &Planner{opts: opts}
}

// EstimateTokens - грубая оценка: ceil(runes / charsPerToken)
func EstimateTokens(text string, charsPerToken float64) int {
	return TokensForRunes(utf8.RuneCountInString(text), charsPerToken)
}

// TokensForRunes - то же для уже посчитанного числа символов
func TokensForRunes(runes int, charsPerToken float64) int {
	if runes == 0 {
		return 0
	}
	return int(math.Ceil(float64(runes) / charsPerToken))
}

// PreviewTokens - стоимость блока в пользовательском сообщении:
// его JSON-запись вместе с экранированием и запятая-разделитель
func PreviewTokens(p llm.BlockPreview, charsPerToken float64) int {
	data, _ := json.Marshal(p)
	return TokensForRunes(utf8.RuneCount(data)+1, charsPerToken)
}

// BlockCost - стоимость блока в батче: запись с превью не длиннее PreviewChars, не больше потолка
func (p *Planner) BlockCost(b chunker.Block) int {
	preview := b.Text
	if p.opts.PreviewChars > 0 {
		preview = chunker.Preview(b.Text, p.opts.PreviewChars)
	}
	cost := PreviewTokens(llm.BlockPreview{ID: b.ID, TextPreview: preview}, p.opts.CharsPerToken)
	return min(cost, p.opts.MaxTokens)
}

// Plan разбивает блоки на упорядоченные непересекающиеся батчи, покрывающие все блоки ровно один раз.
// Если следующий блок не помещается, ищется ближайший назад блок-начало раздела,
// но не раньше MinBatchBlocks от начала батча; иначе режем в идеальной точке.
func (p *Planner) Plan(blocks []chunker.Block) []Batch {
	n := len(blocks)
	if n == 0 {
		return nil
	}

	costs := make([]int, n)
	for i, b := range blocks {
		costs[i] = p.BlockCost(b)
	}

	var batches []Batch
	for start := 0; start < n; {
		total, end := 0, start
		for end < n {
			full := p.opts.MaxBatchBlocks > 0 && end-start >= p.opts.MaxBatchBlocks
			if end > start && (total+costs[end] > p.opts.MaxTokens || full) {
				break
			}
			total += costs[end]
			end++
		}

		cut := end
		if end < n && !blocks[end].StructuralStart {
			for k := end - 1; k >= start+p.opts.MinBatchBlocks; k-- {
				if blocks[k].StructuralStart {
					cut = k
					break
				}
			}
		}

		estimated := 0
		for i := start; i < cut; i++ {
			estimated += costs[i]
		}
		batches = append(batches, Batch{
			Index:           len(batches),
			Blocks:          blocks[start:cut],
			EstimatedTokens: estimated,
		})
		start = cut
	}
	return batches
}
