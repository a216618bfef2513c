package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TextSplitter разбивает plain text по абзацам, распознавая маркеры разделов регулярками
type TextSplitter struct {
	config Config
}

// NewTextSplitter создаёт новый text splitter
func NewTextSplitter(config Config) *TextSplitter {
	return &TextSplitter{config: config}
}

func (s *TextSplitter) Name() string {
	return "text"
}

func (s *TextSplitter) Split(text string) []Block {
	return buildBlocks(text, s.config, IsSectionStart)
}

func (s *TextSplitter) Heading(paragraph string) (Heading, bool) {
	return ParseHeading(paragraph)
}

// Маркеры начала раздела: § 1, Artikel 2, 1. Titel, 1.2 Titel, IV. Titel, a) ...
var sectionMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^§+\s*\d+[a-z]?(?:\.\d+)*`),
	regexp.MustCompile(`(?i)^(?:art(?:ikel)?\.?|article)\s*\d+`),
	regexp.MustCompile(`^\d{1,3}(?:\.\d{1,2})*\.?\s+\p{Lu}`),
	regexp.MustCompile(`^[IVXLC]+\.\s+\p{Lu}`),
	regexp.MustCompile(`^[a-z]\)\s+\S`),
	regexp.MustCompile(`(?i)^(?:präambel|vorbemerkung(?:en)?|anlage\s+\d+|anhang\s+\d+)`),
}

var capsHeadingPattern = regexp.MustCompile(`^\p{Lu}[\p{Lu}\s\-]{3,}$`)

// maxHeadingRunes - заголовок длиннее этого считается обычным текстом
const maxHeadingRunes = 60

// IsSectionStart сообщает, открывается ли абзац маркером раздела
func IsSectionStart(paragraph string) bool {
	line := strings.TrimLeft(firstLine(paragraph), "# ")
	if line == "" {
		return false
	}
	for _, re := range sectionMarkerPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return isCapsHeading(line)
}

func isCapsHeading(line string) bool {
	return utf8.RuneCountInString(line) < maxHeadingRunes && capsHeadingPattern.MatchString(line)
}

// Heading - разобранный заголовок раздела
type Heading struct {
	Number string // "§ 3", "Art. 2", "1.2"
	Title  string
	Type   string // paragraph | article | section | header
}

var (
	paragraphHeading = regexp.MustCompile(`^§+\s*(\d+[a-z]?(?:\.\d+)*)\s*[:\-–]?\s*(.*)$`)
	articleHeading   = regexp.MustCompile(`(?i)^(?:art(?:ikel)?\.?|article)\s*(\d+)\s*[:\-–]?\s*(.*)$`)
	numberedHeading  = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,2})*)\.?\s+(\p{Lu}.*)$`)
	romanHeading     = regexp.MustCompile(`^([IVXLC]+)\.\s+(\p{Lu}.*)$`)
)

// ParseHeading извлекает номер и название раздела из первой строки абзаца.
// Если после номера название пустое, берётся короткая вторая строка.
func ParseHeading(paragraph string) (Heading, bool) {
	lines := strings.SplitN(strings.TrimSpace(paragraph), "\n", 3)
	line := strings.TrimSpace(strings.TrimLeft(lines[0], "# "))
	next := ""
	if len(lines) > 1 {
		next = strings.TrimSpace(lines[1])
	}

	var h Heading
	switch {
	case paragraphHeading.MatchString(line):
		m := paragraphHeading.FindStringSubmatch(line)
		h = Heading{Number: "§ " + m[1], Title: m[2], Type: "paragraph"}
	case articleHeading.MatchString(line):
		m := articleHeading.FindStringSubmatch(line)
		h = Heading{Number: "Art. " + m[1], Title: m[2], Type: "article"}
	case numberedHeading.MatchString(line):
		m := numberedHeading.FindStringSubmatch(line)
		if utf8.RuneCountInString(m[2]) >= maxHeadingRunes {
			return Heading{}, false
		}
		h = Heading{Number: m[1], Title: m[2], Type: "section"}
	case romanHeading.MatchString(line):
		m := romanHeading.FindStringSubmatch(line)
		h = Heading{Number: m[1], Title: m[2], Type: "section"}
	case isCapsHeading(line):
		return Heading{Title: toTitleCase(line), Type: "header"}, true
	default:
		return Heading{}, false
	}

	h.Title = strings.TrimSpace(h.Title)
	if h.Title == "" && next != "" && utf8.RuneCountInString(next) < maxHeadingRunes {
		h.Title = next
	}
	if h.Title == "" {
		h.Title = h.Number
	}
	return h, true
}

func toTitleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
