package segmenter

import (
	"sort"
	"unicode/utf8"

	"clause_lens/internal/chunker"
	"clause_lens/internal/llm"
	"clause_lens/internal/planner"
)

// PreviewOptions - лимиты превью блоков в запросе
type PreviewOptions struct {
	MaxTokens       int // бюджет на JSON-записи блоков батча
	CharsPerToken   float64
	PreviewChars    int // жёсткий лимит на блок
	MinPreviewChars int // ниже этого превью не обрезается
}

// BuildPreviews строит превью блоков в пределах бюджета. Стоимость блока считается
// так же, как у планировщика: по JSON-записи превью. Если батч не влезает,
// лимит один раз уменьшается пропорционально доле текста, затем самые неважные блоки
// (не структурные, самые длинные) обрезаются до MinPreviewChars.
// Возвращает превью и id обрезанных на последнем шаге блоков
func BuildPreviews(blocks []chunker.Block, opts PreviewOptions) ([]llm.BlockPreview, []string) {
	limits := make([]int, len(blocks))
	runes := make([]int, len(blocks))
	for i, b := range blocks {
		runes[i] = utf8.RuneCountInString(b.Text)
		limits[i] = opts.PreviewChars
	}

	preview := func(i int) llm.BlockPreview {
		return llm.BlockPreview{ID: blocks[i].ID, TextPreview: chunker.Preview(blocks[i].Text, limits[i])}
	}
	cost := func() int {
		total := 0
		for i := range blocks {
			total += planner.PreviewTokens(preview(i), opts.CharsPerToken)
		}
		return total
	}

	var truncated []string
	if total := cost(); total > opts.MaxTokens && total > 0 {
		// записи блоков с пустым текстом не сжимаются, пропорция считается по тексту
		fixed := 0
		for _, b := range blocks {
			fixed += planner.PreviewTokens(llm.BlockPreview{ID: b.ID}, opts.CharsPerToken)
		}
		shrunk := opts.MinPreviewChars
		if text := total - fixed; text > 0 && opts.MaxTokens > fixed {
			// минус один символ на многоточие
			shrunk = int(float64(opts.PreviewChars)*float64(opts.MaxTokens-fixed)/float64(text)) - 1
		}
		shrunk = max(shrunk, opts.MinPreviewChars)
		for i := range limits {
			limits[i] = min(limits[i], shrunk)
		}

		if cost() > opts.MaxTokens {
			order := make([]int, len(blocks))
			for i := range order {
				order[i] = i
			}
			sort.SliceStable(order, func(a, b int) bool {
				ba, bb := blocks[order[a]], blocks[order[b]]
				if ba.StructuralStart != bb.StructuralStart {
					return !ba.StructuralStart
				}
				return runes[order[a]] > runes[order[b]]
			})
			for _, i := range order {
				if cost() <= opts.MaxTokens {
					break
				}
				if runes[i] > opts.MinPreviewChars && limits[i] > opts.MinPreviewChars {
					limits[i] = opts.MinPreviewChars
					truncated = append(truncated, blocks[i].ID)
				}
			}
		}
	}

	previews := make([]llm.BlockPreview, len(blocks))
	for i := range blocks {
		previews[i] = preview(i)
	}
	return previews, truncated
}

// previewTokens - стоимость превью в запросе, так же как у планировщика
func previewTokens(previews []llm.BlockPreview, charsPerToken float64) int {
	total := 0
	for _, p := range previews {
		total += planner.PreviewTokens(p, charsPerToken)
	}
	return total
}
