// Package classifier помечает клаузы без юридического содержания: заголовок договора,
// список сторон, место и дата, подписи, адреса, номера страниц.
// Классификатор только аннотирует, текст никогда не удаляется.
package classifier

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Категории non-analyzable клауз
const (
	CategoryTitle        = "title"
	CategoryParties      = "parties"
	CategoryDateLocation = "date_location"
	CategorySignature    = "signature"
	CategoryAddress      = "address"
	CategoryPageNumber   = "page_number"
)

// Калибровочные константы
const (
	ShortTextRunes     = 200 // короче этого применяются эвристики по индикаторам
	MinIndicators      = 2   // столько индикаторов нужно для срабатывания
	FuzzyTitleMinRunes = 6   // нечёткое сравнение заголовков только для длинных
	FuzzyTitleDistance = 1
	maxTitleLineRunes  = 80
	maxAddressRunes    = 200
	maxAddressLines    = 5
)

// Result - решение классификатора
type Result struct {
	NonAnalyzable bool
	Reason        string
	Category      string
}

var analyzable = Result{}

// Термины, наличие которых в тексте или заголовке делает клаузу анализируемой.
// Ищутся как начало слова
var legalTerms = []string{
	"haftung", "haftet", "haften", "pflicht", "verpflicht", "mängel", "produkthaftung", "kündig", "gerichtsstand", "gewährleist",
	"vertragsstrafe", "schadensersatz", "schadenersatz", "rücktritt", "widerruf",
	"datenschutz", "geheimhalt", "vertraulich", "laufzeit", "anwendbares recht",
	"zahlung", "vergütung", "frist", "berechtigt", "garantie", "freistell", "verzicht",
	"streitigkeit", "schiedsgericht", "abtretung", "wettbewerbsverbot", "force majeure",
	"höhere gewalt", "salvatorisch",
}

var titleSets = map[string][]string{
	CategoryTitle: {
		"vertrag", "mietvertrag", "arbeitsvertrag", "kaufvertrag", "dienstvertrag",
		"dienstleistungsvertrag", "werkvertrag", "rahmenvertrag", "lizenzvertrag",
		"darlehensvertrag", "vertragstitel", "contract", "agreement",
	},
	CategoryParties: {
		"vertragsparteien", "parteien", "die parteien", "vertragspartner", "zwischen", "parties",
	},
	CategoryDateLocation: {
		"ort und datum", "ort, datum", "ort/datum", "datum und ort", "datum", "date", "place and date",
	},
	CategorySignature: {
		"unterschrift", "unterschriften", "unterzeichnung", "signatur", "signature", "signatures",
	},
}

// Порядок проверки категорий по заголовку
var titleOrder = []string{CategorySignature, CategoryParties, CategoryDateLocation, CategoryTitle}

var (
	underscoreLine = regexp.MustCompile(`_{3,}`)

	signatureIndicators = []*regexp.Regexp{
		underscoreLine,
		regexp.MustCompile(`\.{5,}`),
		regexp.MustCompile(`(?i)unterschrift`),
		regexp.MustCompile(`(?i)unterzeichne`),
		regexp.MustCompile(`(?i)\(\s*(?:auftraggeber|auftragnehmer|vermieter|mieter|käufer|verkäufer|arbeitgeber|arbeitnehmer|lizenzgeber|lizenznehmer|darlehensgeber|darlehensnehmer)(?:in)?\s*\)`),
		regexp.MustCompile(`(?im)^\s*(?:i\.\s?a\.|i\.\s?v\.|ppa\.)`),
		regexp.MustCompile(`(?i)stempel`),
	}

	dateIndicators = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}\.\s?\d{1,2}\.\s?\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:den|am)\s+\d{1,2}\.`),
		regexp.MustCompile(`(?i)\b(?:ort|datum)\b`),
		regexp.MustCompile(`(?m)^\p{Lu}\p{Ll}+(?:[\s\-]\p{Lu}\p{Ll}+)?,\s*(?:den\s+)?\d{1,2}\.`),
		regexp.MustCompile(`(?i)\d{1,2}\.\s*(?:januar|februar|märz|april|mai|juni|juli|august|september|oktober|november|dezember)`),
	}

	contractTitle = regexp.MustCompile(`(?i)^[\p{L}\-]*vertrag(?:\s+(?:über|zwischen|für|zur|zum)\s+[\p{L}\s\-]+)?$`)
	dateStamp     = regexp.MustCompile(`^\p{L}[\p{L}\s\-\.]*,\s*(?:den\s+)?\d{1,2}\.\s?(?:\d{1,2}\.|\p{L}+)\s?\d{2,4}$`)
	signatureOnly = regexp.MustCompile(`^[\s_\.]*(?:_{3,}|\.{5,})[\s_\.]*$`)
	postalCode    = regexp.MustCompile(`(?m)^\s*(?:D-)?\d{5}\s+\p{Lu}\p{L}+`)
	streetLine    = regexp.MustCompile(`(?im)^\s*[\p{L}\.\-\s]+(?:straße|strasse|str\.|weg|platz|allee|gasse|ring|damm)\s*\d+\s*[a-z]?\s*$`)
	bareNumber    = regexp.MustCompile(`(?i)^(?:seite\s*)?\d+(?:\s*(?:von|/)\s*\d+)?$`)
)

// Classify решает, несёт ли клауза юридическое содержание. Порядок правил:
// два точных переопределения, юридические термины, заголовок, индикаторы в коротком тексте,
// шаблоны по полному тексту. По умолчанию клауза анализируемая.
func Classify(text, title string) Result {
	text = strings.TrimSpace(text)
	normTitle := normalizeTitle(title)

	if normTitle != "" && underscoreLine.MatchString(text) && titleMatches(normTitle, CategorySignature) {
		return Result{NonAnalyzable: true, Reason: "signature field by title", Category: CategorySignature}
	}
	if normTitle != "" && slices.Contains(titleSets[CategoryParties], normTitle) {
		return Result{NonAnalyzable: true, Reason: "party listing by title", Category: CategoryParties}
	}

	if hasLegalTerm(text) || hasLegalTerm(title) {
		return analyzable
	}

	if normTitle != "" {
		for _, category := range titleOrder {
			if titleMatches(normTitle, category) {
				return Result{NonAnalyzable: true, Reason: "title matches " + category, Category: category}
			}
		}
	}

	if utf8.RuneCountInString(text) < ShortTextRunes {
		if r, ok := classifyShort(text); ok {
			return r
		}
	}

	return classifyFullText(text)
}

func classifyShort(text string) (Result, bool) {
	sig := countMatches(signatureIndicators, text)
	date := countMatches(dateIndicators, text)

	switch {
	case sig >= MinIndicators:
		return Result{NonAnalyzable: true, Reason: "signature indicators", Category: CategorySignature}, true
	case date >= MinIndicators:
		return Result{NonAnalyzable: true, Reason: "date/location indicators", Category: CategoryDateLocation}, true
	case sig > 0 && sig+date >= MinIndicators:
		return Result{NonAnalyzable: true, Reason: "signature with date/location", Category: CategorySignature}, true
	}
	return Result{}, false
}

func classifyFullText(text string) Result {
	if text == "" {
		return analyzable
	}
	singleLine := !strings.Contains(text, "\n")

	switch {
	case singleLine && utf8.RuneCountInString(text) <= maxTitleLineRunes && contractTitle.MatchString(text):
		return Result{NonAnalyzable: true, Reason: "contract title", Category: CategoryTitle}
	case singleLine && dateStamp.MatchString(text):
		return Result{NonAnalyzable: true, Reason: "date/location stamp", Category: CategoryDateLocation}
	case isSignatureBlock(text):
		return Result{NonAnalyzable: true, Reason: "signature line", Category: CategorySignature}
	case isAddress(text):
		return Result{NonAnalyzable: true, Reason: "address", Category: CategoryAddress}
	case bareNumber.MatchString(text):
		return Result{NonAnalyzable: true, Reason: "page number", Category: CategoryPageNumber}
	}
	return analyzable
}

// isSignatureBlock - хотя бы одна линия для подписи, остальные строки короткие подписи к ней
func isSignatureBlock(text string) bool {
	hasLine := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case signatureOnly.MatchString(line):
			hasLine = true
		case utf8.RuneCountInString(line) > 40 || strings.HasSuffix(line, "."):
			return false
		}
	}
	return hasLine
}

func isAddress(text string) bool {
	if utf8.RuneCountInString(text) > maxAddressRunes || strings.Count(text, "\n")+1 > maxAddressLines {
		return false
	}
	return postalCode.MatchString(text) && streetLine.MatchString(text)
}

func hasLegalTerm(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, term := range legalTerms {
		if containsStem(lower, term) {
			return true
		}
	}
	return false
}

// containsStem ищет stem с начала слова: "haften" не находится внутри "gesellschaften"
func containsStem(s, stem string) bool {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], stem)
		if i < 0 {
			return false
		}
		i += from
		if i == 0 {
			return true
		}
		if r, _ := utf8.DecodeLastRuneInString(s[:i]); !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
		from = i + len(stem)
	}
	return false
}

func normalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = strings.TrimRight(t, ":.")
	return strings.Join(strings.Fields(t), " ")
}

func titleMatches(normTitle, category string) bool {
	for _, candidate := range titleSets[category] {
		if normTitle == candidate {
			return true
		}
		if utf8.RuneCountInString(candidate) >= FuzzyTitleMinRunes &&
			utf8.RuneCountInString(normTitle) >= FuzzyTitleMinRunes &&
			levenshtein(normTitle, candidate) <= FuzzyTitleDistance {
			return true
		}
	}
	return false
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// levenshtein - расстояние редактирования по рунам
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
