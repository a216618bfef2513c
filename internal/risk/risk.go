package risk

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywords []byte

// Level - уровень риска
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Калибровочные константы: подобраны эмпирически, менять только вместе с эталонными договорами
const (
	WeightHigh   = 25
	WeightMedium = 10
	WeightLow    = 2

	ShortClauseRunes = 100
	ShortClauseBonus = 5

	NegationBonus = 5
	NegationCap   = 15

	HighThreshold   = 50
	MediumThreshold = 20

	MaxReportedKeywords = 5
)

// Match - найденное ключевое слово
type Match struct {
	Keyword  string `json:"keyword"`
	Severity Level  `json:"severity"`
}

// Assessment - оценка риска текста
type Assessment struct {
	Level    Level   `json:"level"`
	Score    int     `json:"score"`
	Keywords []Match `json:"keywords"`
}

// Tables - словари ключевых слов по уровням. Строится один раз при старте
type Tables struct {
	High      []string `yaml:"high"`
	Medium    []string `yaml:"medium"`
	Low       []string `yaml:"low"`
	Negations []string `yaml:"negations"`
}

// DefaultTables возвращает встроенные словари
func DefaultTables() Tables {
	t, err := ParseTables(defaultKeywords)
	if err != nil {
		panic(fmt.Sprintf("embedded keywords.yaml: %v", err))
	}
	return t
}

// ParseTables разбирает словари из YAML
func ParseTables(data []byte) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, fmt.Errorf("parse keyword tables: %w", err)
	}
	if len(t.High) == 0 && len(t.Medium) == 0 && len(t.Low) == 0 {
		return Tables{}, fmt.Errorf("keyword tables are empty")
	}
	return t, nil
}

// LoadTables читает словари из файла
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read keyword tables: %w", err)
	}
	return ParseTables(data)
}

type term struct {
	text   string
	phrase bool
}

type tier struct {
	level  Level
	weight int
	terms  []term
}

// Engine оценивает риск текста. Неизменяем после создания, безопасен для конкурентного использования
type Engine struct {
	tiers     []tier
	negations []term
}

// NewEngine создаёт движок из словарей
func NewEngine(t Tables) *Engine {
	return &Engine{
		tiers: []tier{
			{level: LevelHigh, weight: WeightHigh, terms: compile(t.High)},
			{level: LevelMedium, weight: WeightMedium, terms: compile(t.Medium)},
			{level: LevelLow, weight: WeightLow, terms: compile(t.Low)},
		},
		negations: compile(t.Negations),
	}
}

// Default - движок со встроенными словарями
func Default() *Engine {
	return NewEngine(DefaultTables())
}

func compile(words []string) []term {
	terms := make([]term, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		terms = append(terms, term{text: w, phrase: strings.ContainsFunc(w, unicode.IsSpace)})
	}
	return terms
}

// Assess - чистая функция: одинаковый текст всегда даёт одинаковую оценку
func (e *Engine) Assess(text string) Assessment {
	lower := strings.ToLower(text)

	score := 0
	seen := make(map[string]bool)
	var found []Match
	for _, tr := range e.tiers {
		for _, t := range tr.terms {
			if seen[t.text] || !t.matches(lower) {
				continue
			}
			seen[t.text] = true
			score += tr.weight
			found = append(found, Match{Keyword: t.text, Severity: tr.level})
		}
	}

	if len(found) > 0 && utf8.RuneCountInString(text) < ShortClauseRunes {
		score += ShortClauseBonus
	}

	negations := 0
	for _, t := range e.negations {
		if t.matches(lower) {
			negations++
		}
	}
	score += min(negations*NegationBonus, NegationCap)

	score = max(0, min(100, score))

	if len(found) > MaxReportedKeywords {
		found = found[:MaxReportedKeywords]
	}
	return Assessment{Level: levelFor(score), Score: score, Keywords: found}
}

func levelFor(score int) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

func (t term) matches(lower string) bool {
	if t.phrase {
		return strings.Contains(lower, t.text)
	}
	return containsWord(lower, t.text)
}

// containsWord ищет слово целиком; \b в regexp не знает про умлауты, поэтому границы проверяются по рунам
func containsWord(s, word string) bool {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(word)

		before, _ := utf8.DecodeLastRuneInString(s[:i])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		from = i + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
