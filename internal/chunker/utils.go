package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// paragraph - границы содержимого абзаца в исходном тексте
type paragraph struct {
	start int // начало первой непустой строки
	end   int // конец последней непустой строки
}

// splitParagraphs находит абзацы, разделённые пустыми строками, сохраняя смещения
func splitParagraphs(s string) []paragraph {
	var paras []paragraph
	inPara := false
	var cur paragraph

	pos := 0
	for {
		nl := strings.IndexByte(s[pos:], '\n')
		lineEnd := len(s)
		if nl >= 0 {
			lineEnd = pos + nl
		}

		if strings.TrimSpace(s[pos:lineEnd]) == "" {
			if inPara {
				paras = append(paras, cur)
				inPara = false
			}
		} else {
			if !inPara {
				inPara = true
				cur.start = pos
			}
			cur.end = lineEnd
		}

		if nl < 0 {
			break
		}
		pos = lineEnd + 1
	}
	if inPara {
		paras = append(paras, cur)
	}
	return paras
}

// buildBlocks превращает абзацы в блоки. Разделители между абзацами относятся
// к предыдущему блоку, поэтому блоки покрывают [0, len(s)) без дыр и пересечений.
func buildBlocks(s string, cfg Config, structural func(string) bool) []Block {
	paras := splitParagraphs(s)
	blocks := make([]Block, 0, len(paras))
	for i, p := range paras {
		start := p.start
		if i == 0 {
			start = 0
		}
		end := len(s)
		if i+1 < len(paras) {
			end = paras[i+1].start
		}

		text := strings.TrimSpace(s[p.start:p.end])
		blocks = append(blocks, Block{
			ID:              BlockID(i),
			Index:           i,
			Text:            text,
			Start:           start,
			End:             end,
			Short:           utf8.RuneCountInString(text) < cfg.shortLimit(),
			StructuralStart: structural(text),
		})
	}
	return blocks
}

// BlockID возвращает идентификатор блока по его индексу
func BlockID(index int) string {
	return fmt.Sprintf("b%d", index+1)
}

// firstLine возвращает первую строку текста
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// Preview обрезает текст до n рун, добавляя многоточие
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
