package chunker

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeOptions управляют нормализацией сырого текста договора
type NormalizeOptions struct {
	// IsOCR включает исправление путаницы цифр и букв. На чистом цифровом тексте
	// эти правки портят содержимое, поэтому только по явному флагу.
	IsOCR bool
}

// Normalized - результат нормализации
type Normalized struct {
	Text                string
	RemovedHeaderFooter int // число удалённых строк колонтитулов и номеров страниц
}

// Калибровочные константы для распознавания колонтитулов
const (
	headerFooterMaxRunes   = 80
	headerFooterMinLetters = 3
	headerFooterEdgeLines  = 2   // непустых строк сверху и снизу страницы
	headerFooterPageShare  = 0.6 // доля страниц, на краях которых повторяется строка
	headerFooterMinPages   = 2
)

var (
	ligatures = strings.NewReplacer(
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬀ", "ff",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
		"ﬆ", "st",
		"\u00a0", " ",
		"\u200b", "",
		"\ufeff", "",
	)

	inlineSpaces   = regexp.MustCompile(`[ \t]+`)
	excessNewlines = regexp.MustCompile(`\n{4,}`)

	pageNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:seite|page|s\.)\s*\d+(?:\s*(?:von|of|/)\s*\d+)?$`),
		regexp.MustCompile(`^[-–—]\s*\d+\s*[-–—]$`),
		regexp.MustCompile(`^\d+\s*/\s*\d+$`),
		regexp.MustCompile(`^\d{1,4}$`),
	}

	ocrRepairs = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`l(\d)`), "1${1}"},
		{regexp.MustCompile(`(\d)l`), "${1}1"},
		{regexp.MustCompile(`O(\d)`), "0${1}"},
		{regexp.MustCompile(`(\d)O`), "${1}0"},
	}
)

// Normalize чистит сырой текст: переводы строк, юникод, пробелы, колонтитулы,
// номера страниц, лишние пустые строки, опционально OCR-артефакты.
// Колонтитулы и номера страниц ищутся только на краях страниц, разделённых \f;
// текст без разрывов страниц ими не трогается.
// Ошибок не бывает: в худшем случае текст возвращается почти без изменений.
func Normalize(raw string, opts NormalizeOptions) Normalized {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = ligatures.Replace(s)
	if normalized, _, err := transform.String(norm.NFC, s); err == nil {
		s = normalized
	}

	pages := strings.Split(s, "\f")
	for p, page := range pages {
		lines := strings.Split(page, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimSpace(inlineSpaces.ReplaceAllString(line, " "))
		}
		pages[p] = strings.Join(lines, "\n")
	}

	removed := 0
	if len(pages) >= headerFooterMinPages {
		pages, removed = dropHeaderFooter(pages)
	}

	s = strings.Join(pages, "\n\n")
	s = excessNewlines.ReplaceAllString(s, "\n\n\n")

	if opts.IsOCR {
		for _, r := range ocrRepairs {
			s = r.re.ReplaceAllString(s, r.repl)
		}
	}

	return Normalized{Text: strings.TrimSpace(s), RemovedHeaderFooter: removed}
}

// dropHeaderFooter удаляет с краёв страниц строки, повторяющиеся на краях большинства страниц,
// и номера страниц в первой или последней строке. Середина страницы не трогается
func dropHeaderFooter(pages []string) ([]string, int) {
	split := make([][]string, len(pages))
	counts := make(map[string]int)
	filled := 0
	for p, page := range pages {
		lines := strings.Split(page, "\n")
		split[p] = lines

		edges := edgeLines(lines, headerFooterEdgeLines)
		if len(edges) > 0 {
			filled++
		}
		seen := make(map[string]bool)
		for _, i := range edges {
			if line := lines[i]; isHeaderFooterCandidate(line) && !seen[line] {
				seen[line] = true
				counts[line]++
			}
		}
	}
	threshold := max(headerFooterMinPages, int(math.Ceil(headerFooterPageShare*float64(filled))))

	removed := 0
	out := make([]string, len(pages))
	for p, lines := range split {
		drop := make(map[int]bool)
		for _, i := range edgeLines(lines, headerFooterEdgeLines) {
			if counts[lines[i]] >= threshold {
				drop[i] = true
			}
		}
		for _, i := range edgeLines(lines, 1) {
			if isPageNumber(lines[i]) {
				drop[i] = true
			}
		}

		kept := lines[:0:0]
		for i, line := range lines {
			if drop[i] {
				removed++
				continue
			}
			kept = append(kept, line)
		}
		out[p] = strings.Join(kept, "\n")
	}
	return out, removed
}

// edgeLines - индексы первых и последних n непустых строк страницы
func edgeLines(lines []string, n int) []int {
	var nonEmpty []int
	for i, line := range lines {
		if line != "" {
			nonEmpty = append(nonEmpty, i)
		}
	}
	if len(nonEmpty) <= 2*n {
		return nonEmpty
	}
	edges := append([]int{}, nonEmpty[:n]...)
	return append(edges, nonEmpty[len(nonEmpty)-n:]...)
}

func isHeaderFooterCandidate(line string) bool {
	if line == "" || utf8.RuneCountInString(line) > headerFooterMaxRunes {
		return false
	}
	if IsSectionStart(line) {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= headerFooterMinLetters
}

func isPageNumber(line string) bool {
	if line == "" {
		return false
	}
	for _, re := range pageNumberPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
