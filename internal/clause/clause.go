package clause

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"

	"clause_lens/internal/risk"
)

// Type - вид клаузы
type Type string

const (
	TypeParagraph Type = "paragraph"
	TypeArticle   Type = "article"
	TypeSection   Type = "section"
	TypeHeader    Type = "header"
	TypeCondition Type = "condition"
)

// ParseType приводит тип из ответа сервиса к известному; неизвестное становится paragraph
func ParseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeParagraph, TypeArticle, TypeSection, TypeHeader, TypeCondition:
		return t
	default:
		return TypeParagraph
	}
}

// Причины восстановления клаузы
const (
	ReasonOrphanedBlock     = "orphaned_block"
	ReasonSegmenterFallback = "segmenter_fallback"
)

// NonAnalyzable - пометка клаузы, не несущей юридического смысла
type NonAnalyzable struct {
	Flag     bool   `json:"flag"`
	Reason   string `json:"reason,omitempty"`
	Category string `json:"category,omitempty"`
}

// Clause - итоговая единица вывода, составленная из одного или нескольких блоков
type Clause struct {
	ID             string        `json:"id"`
	Title          string        `json:"title,omitempty"`
	Number         string        `json:"number,omitempty"`
	Text           string        `json:"text"`
	Type           Type          `json:"type"`
	SourceBlockIDs []string      `json:"sourceBlockIds"`
	Confidence     float64       `json:"confidence"`
	Recovered      bool          `json:"recovered"`
	RecoveryReason string        `json:"recoveryReason,omitempty"`
	RiskLevel      risk.Level    `json:"riskLevel"`
	RiskScore      int           `json:"riskScore"`
	RiskKeywords   []risk.Match  `json:"riskKeywords"`
	NonAnalyzable  NonAnalyzable `json:"nonAnalyzable"`
	TextHash       string        `json:"textHash"`
}

// ID - идентификатор клаузы по её позиции в документе: c1, c2, ...
func ID(index int) string {
	return "c" + strconv.Itoa(index+1)
}

// hashPrefixRunes - сколько нормализованных символов участвует в хеше дедупликации
const hashPrefixRunes = 300

// NormalizedHash считает sha256 от первых 300 символов текста после NFC,
// приведения к нижнему регистру и схлопывания пробелов
func NormalizedHash(text string) string {
	s := normalizeText(text)
	if r := []rune(s); len(r) > hashPrefixRunes {
		s = string(r[:hashPrefixRunes])
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SameText сравнивает тексты целиком после той же нормализации, что и NormalizedHash
func SameText(a, b string) bool {
	return normalizeText(a) == normalizeText(b)
}

func normalizeText(text string) string {
	s := strings.ToLower(norm.NFC.String(text))
	return strings.Join(strings.Fields(s), " ")
}

// ShortHash - укороченный хеш для ключей кеша и отображения
func ShortHash(text string) string {
	return NormalizedHash(text)[:16]
}

// FindByID ищет клаузу по идентификатору
func FindByID(clauses []Clause, id string) (Clause, bool) {
	return lo.Find(clauses, func(c Clause) bool {
		return c.ID == id
	})
}

// ByRiskLevel возвращает клаузы заданного уровня риска
func ByRiskLevel(clauses []Clause, level risk.Level) []Clause {
	return lo.Filter(clauses, func(c Clause, _ int) bool {
		return c.RiskLevel == level
	})
}

// Search ищет подстроку в тексте клауз без учёта регистра
func Search(clauses []Clause, query string) []Clause {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	return lo.Filter(clauses, func(c Clause, _ int) bool {
		return strings.Contains(strings.ToLower(c.Text), q)
	})
}

// Reviewable возвращает клаузы для интерактивного разбора (без non-analyzable)
func Reviewable(clauses []Clause) []Clause {
	return lo.Filter(clauses, func(c Clause, _ int) bool {
		return !c.NonAnalyzable.Flag
	})
}
