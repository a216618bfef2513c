package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownSplitter разбивает markdown-договоры: кроме маркеров разделов,
// структурным считается абзац, который goldmark разбирает как заголовок
type MarkdownSplitter struct {
	config Config
	md     goldmark.Markdown
}

// NewMarkdownSplitter создаёт новый markdown splitter
func NewMarkdownSplitter(config Config) *MarkdownSplitter {
	return &MarkdownSplitter{config: config, md: goldmark.New()}
}

func (m *MarkdownSplitter) Name() string {
	return "markdown"
}

func (m *MarkdownSplitter) Split(content string) []Block {
	return buildBlocks(content, m.config, func(paragraph string) bool {
		if IsSectionStart(paragraph) {
			return true
		}
		_, ok := m.headingText(paragraph)
		return ok
	})
}

// Heading разбирает заголовок абзаца; setext/ATX-заголовки без номера получают тип header
func (m *MarkdownSplitter) Heading(paragraph string) (Heading, bool) {
	if h, ok := ParseHeading(paragraph); ok {
		return h, true
	}
	if title, ok := m.headingText(paragraph); ok && title != "" {
		return Heading{Title: title, Type: "header"}, true
	}
	return Heading{}, false
}

// minMarkdownHeadings - столько заголовков верхнего уровня нужно, чтобы считать текст markdown
const minMarkdownHeadings = 2

// HasHeadings сообщает, размечен ли текст markdown-заголовками
func (m *MarkdownSplitter) HasHeadings(content string) bool {
	source := []byte(content)
	doc := m.md.Parser().Parse(text.NewReader(source))

	found := 0
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if _, ok := child.(*ast.Heading); ok {
			found++
			if found >= minMarkdownHeadings {
				return true
			}
		}
	}
	return false
}

// headingText возвращает текст заголовка, если абзац начинается с markdown-заголовка
func (m *MarkdownSplitter) headingText(paragraph string) (string, bool) {
	source := []byte(paragraph)
	doc := m.md.Parser().Parse(text.NewReader(source))

	heading, ok := doc.FirstChild().(*ast.Heading)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(extractText(heading, source)), true
}

// extractText извлекает текст из узла AST
func extractText(node ast.Node, source []byte) string {
	var buf strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if textNode, ok := child.(*ast.Text); ok {
			buf.Write(textNode.Segment.Value(source))
			if textNode.SoftLineBreak() {
				buf.WriteByte(' ')
			}
			continue
		}
		buf.WriteString(extractText(child, source))
	}
	return buf.String()
}
