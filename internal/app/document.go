package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"clause_lens/internal/clause"
	"clause_lens/internal/pipeline"
	"clause_lens/internal/risk"
)

var supportedExt = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".pdf": true}

// fileCanProcess - .txt, .md или .pdf
func fileCanProcess(path string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(path))]
}

// readDocument извлекает текст договора; из PDF берётся текстовый слой, страницы через пустую строку
func readDocument(path string) (string, error) {
	if !fileCanProcess(path) {
		return "", fmt.Errorf("unsupported format: %s", filepath.Ext(path))
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, content)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("no extractable text found in pdf")
	}
	// разрыв страницы сохраняется, по нему нормализатор находит колонтитулы
	return strings.Join(pages, "\f"), nil
}

// saveJSON пишет результат разбора как JSON
func saveJSON(res *pipeline.Result, outputPath string) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return os.WriteFile(outputPath, data, 0o644)
}

var levelIcon = map[risk.Level]string{
	risk.LevelHigh:   "🔴",
	risk.LevelMedium: "🟡",
	risk.LevelLow:    "🟢",
}

// renderReport формирует markdown-отчёт по результату разбора
func renderReport(name string, res *pipeline.Result) string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("# Анализ договора: %s\n\n", name))
	buf.WriteString(fmt.Sprintf("**Дата анализа:** %s\n\n", res.Metadata.ParsedAt.Local().Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("**Всего клауз:** %d\n\n", res.TotalClauses))

	s := res.RiskSummary
	buf.WriteString("## Итоговая статистика\n\n")
	buf.WriteString(fmt.Sprintf("- 🔴 Высокий риск: %d\n", s.High))
	buf.WriteString(fmt.Sprintf("- 🟡 Средний риск: %d\n", s.Medium))
	buf.WriteString(fmt.Sprintf("- 🟢 Низкий риск: %d\n", s.Low))
	buf.WriteString(fmt.Sprintf("- Без юридического содержания: %d\n", s.NonAnalyzable))
	buf.WriteString(fmt.Sprintf("- Средний балл: %.1f\n", s.AverageScore))
	if res.Metadata.RecoveredBlocks > 0 || res.Metadata.FallbackBatches > 0 {
		buf.WriteString(fmt.Sprintf("- ⚠️ Восстановлено блоков: %d, батчей без сервиса: %d из %d\n",
			res.Metadata.RecoveredBlocks, res.Metadata.FallbackBatches, res.Metadata.BatchCount))
	}
	buf.WriteString("\n")

	if len(s.Highest) > 0 {
		buf.WriteString("## Самые рискованные клаузы\n\n")
		for _, e := range s.Highest {
			buf.WriteString(fmt.Sprintf("1. %s **%s** %s (%d): %s\n", levelIcon[e.Level], e.ID, e.Title, e.Score, e.Preview))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Клаузы\n\n")
	for _, c := range res.Clauses {
		buf.WriteString(fmt.Sprintf("### %s %s\n\n", c.ID, clauseHeading(c)))
		if c.NonAnalyzable.Flag {
			buf.WriteString(fmt.Sprintf("_Без юридического содержания: %s_\n\n", c.NonAnalyzable.Category))
		} else if c.RiskLevel != "" {
			buf.WriteString(fmt.Sprintf("**Риск:** %s %s (%d)", levelIcon[c.RiskLevel], c.RiskLevel, c.RiskScore))
			if len(c.RiskKeywords) > 0 {
				keywords := make([]string, 0, len(c.RiskKeywords))
				for _, k := range c.RiskKeywords {
					keywords = append(keywords, k.Keyword)
				}
				buf.WriteString(" · " + strings.Join(keywords, ", "))
			}
			buf.WriteString("\n\n")
		}
		buf.WriteString(c.Text)
		buf.WriteString("\n\n---\n\n")
	}
	return buf.String()
}

func clauseHeading(c clause.Clause) string {
	switch {
	case c.Number != "" && c.Title != "" && c.Number != c.Title:
		return c.Number + " " + c.Title
	case c.Title != "":
		return c.Title
	default:
		return c.Number
	}
}

// saveReport пишет markdown-отчёт
func saveReport(name string, res *pipeline.Result, outputPath string) error {
	return os.WriteFile(outputPath, []byte(renderReport(name, res)), 0o644)
}
