package chunker

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Методы разбиения, которые можно задать явно (--split)
const (
	MethodText     = "text"
	MethodMarkdown = "markdown"
)

var methodAliases = map[string]string{
	"markdown": MethodMarkdown,
	"md":       MethodMarkdown,
	"text":     MethodText,
	"txt":      MethodText,
	"simple":   MethodText,
}

// Factory выбирает детектор структуры договора
type Factory struct {
	config Config
}

func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// GetSplitter выбирает детектор: явный метод, затем расширение файла, затем содержимое.
// Текст из PDF всегда разбирается как обычный; .txt и файлы без расширения
// считаются markdown, если goldmark находит в них заголовки
func (f *Factory) GetSplitter(filePath, method, content string) Splitter {
	if s, err := f.GetSplitterByMethod(method); err == nil {
		return s
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".md", ".markdown":
		return NewMarkdownSplitter(f.config)
	case ".pdf":
		return NewTextSplitter(f.config)
	}

	md := NewMarkdownSplitter(f.config)
	if md.HasHeadings(content) {
		return md
	}
	return NewTextSplitter(f.config)
}

// GetSplitterByMethod возвращает детектор по названию метода
func (f *Factory) GetSplitterByMethod(method string) (Splitter, error) {
	switch methodAliases[strings.ToLower(strings.TrimSpace(method))] {
	case MethodMarkdown:
		return NewMarkdownSplitter(f.config), nil
	case MethodText:
		return NewTextSplitter(f.config), nil
	default:
		return nil, fmt.Errorf("unknown split method: %q", method)
	}
}
