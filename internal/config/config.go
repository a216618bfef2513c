package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	DataDir        string        `env:"DATA_DIR" envDefault:"./data"`
	LogMode        string        `env:"LOG_MODE" envDefault:"dev"`
	KeywordsFile   string        `env:"KEYWORDS_FILE"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"2"`
	ParseTimeout   time.Duration `env:"PARSE_TIMEOUT" envDefault:"5m"`

	LLM     LLMConfig     `envPrefix:"LLM_"`
	Gemini  GeminiConfig  `envPrefix:"GEMINI_"`
	Segment SegmentConfig `envPrefix:"SEGMENT_"`
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	Ollama  OllamaConfig  `envPrefix:"OLLAMA_"`

	IndexEnabled bool `env:"INDEX_ENABLED" envDefault:"false"`

	// Вычисляются из DataDir, если не заданы явно
	DBFile    string `env:"DB_FILE"`
	IndexFile string `env:"INDEX_FILE"`
}

// LLMConfig - OpenAI-совместимый сервис сегментации
type LLMConfig struct {
	Provider    string        `env:"PROVIDER" envDefault:"openai"` // openai | gemini | none
	URL         string        `env:"URL" envDefault:"https://api.openai.com/v1"`
	Key         string        `env:"KEY"`
	Model       string        `env:"MODEL" envDefault:"gpt-4o-mini"`
	Temperature float64       `env:"TEMPERATURE" envDefault:"0.1"`
	MaxTokens   int           `env:"MAX_TOKENS" envDefault:"4096"`
	MaxRetries  int           `env:"MAX_RETRIES" envDefault:"3"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"90s"`
}

type GeminiConfig struct {
	APIKey string `env:"API_KEY"`
	Model  string `env:"MODEL" envDefault:"gemini-2.0-flash"`
}

// SegmentConfig - бюджеты батчей и превью
type SegmentConfig struct {
	MaxTokens       int     `env:"MAX_TOKENS" envDefault:"6000"`
	CharsPerToken   float64 `env:"CHARS_PER_TOKEN" envDefault:"3.5"`
	MinBatchBlocks  int     `env:"MIN_BATCH_BLOCKS" envDefault:"3"`
	MaxBatchBlocks  int     `env:"MAX_BATCH_BLOCKS" envDefault:"40"`
	PreviewChars    int     `env:"PREVIEW_CHARS" envDefault:"1200"`
	MinPreviewChars int     `env:"MIN_PREVIEW_CHARS" envDefault:"200"`
}

type RedisConfig struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"24h"`
}

type OllamaConfig struct {
	URL        string `env:"URL" envDefault:"http://localhost:11434"`
	EmbedModel string `env:"EMBED_MODEL" envDefault:"nomic-embed-text"`
}

func Init(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if cfg.DBFile == "" {
		cfg.DBFile = filepath.Join(cfg.DataDir, "clauses.db")
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = filepath.Join(cfg.DataDir, "clauses.gob")
	}
	return cfg.Validate()
}

// Validate проверяет бюджеты, без которых пайплайн не может гарантировать ограниченность батчей
func (c *Config) Validate() error {
	if c.Segment.MaxTokens <= 0 {
		return fmt.Errorf("SEGMENT_MAX_TOKENS must be positive, got %d", c.Segment.MaxTokens)
	}
	if c.Segment.CharsPerToken <= 0 {
		return fmt.Errorf("SEGMENT_CHARS_PER_TOKEN must be positive, got %v", c.Segment.CharsPerToken)
	}
	if c.Segment.PreviewChars <= 0 || c.Segment.MinPreviewChars <= 0 {
		return fmt.Errorf("preview limits must be positive")
	}
	if c.Segment.MinPreviewChars > c.Segment.PreviewChars {
		return fmt.Errorf("SEGMENT_MIN_PREVIEW_CHARS (%d) exceeds SEGMENT_PREVIEW_CHARS (%d)",
			c.Segment.MinPreviewChars, c.Segment.PreviewChars)
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	switch c.LLM.Provider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER: %s", c.LLM.Provider)
	}
	return nil
}
