package chunker

// Block - неизменяемый фрагмент нормализованного текста (абзац)
type Block struct {
	ID              string `json:"id"`    // b1..bn, стабилен в пределах одного прогона
	Index           int    `json:"index"` // порядковый номер, с нуля
	Text            string `json:"text"`  // текст абзаца без пустых строк по краям
	Start           int    `json:"startOffset"`
	End             int    `json:"endOffset"` // [Start, End) в байтах нормализованного текста
	Short           bool   `json:"short"`
	StructuralStart bool   `json:"structuralStart"`
}

// Splitter - интерфейс для всех типов splitter'ов
type Splitter interface {
	// Split разбивает нормализованный текст на блоки, покрывающие его целиком
	Split(text string) []Block

	// Heading разбирает заголовок раздела в начале абзаца
	Heading(paragraph string) (Heading, bool)

	// Name возвращает название splitter'а для логирования
	Name() string
}

// Config содержит общие параметры для splitter'ов
type Config struct {
	ShortBlockChars int // блоки короче этого (в рунах) помечаются как short
}

// DefaultShortBlockChars - калибровочная константа: порог "короткого" абзаца
const DefaultShortBlockChars = 100

func (c Config) shortLimit() int {
	if c.ShortBlockChars <= 0 {
		return DefaultShortBlockChars
	}
	return c.ShortBlockChars
}
