// Package index - векторный поиск по клаузам разобранных договоров.
// На каждый документ отдельная коллекция chromem, база сохраняется в gob-файл
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/philippgille/chromem-go"

	"clause_lens/internal/clause"
	"clause_lens/internal/config"
	"clause_lens/internal/logger"
)

var ErrNoCollection = errors.New("index: document is not indexed")

// Hit - найденная клауза
type Hit struct {
	ClauseID   string
	Title      string
	RiskLevel  string
	Content    string
	Similarity float32
}

// Index хранит эмбеддинги клауз
type Index struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
	path  string
	log   *logger.Logger
}

// OllamaEmbedding - функция эмбеддингов через локальную Ollama
func OllamaEmbedding(cfg config.OllamaConfig) chromem.EmbeddingFunc {
	return chromem.NewEmbeddingFuncOllama(cfg.EmbedModel, strings.TrimRight(cfg.URL, "/")+"/api")
}

// Open загружает базу из файла, если он есть, иначе начинает с пустой
func Open(path string, embed chromem.EmbeddingFunc, log *logger.Logger) (*Index, error) {
	if log == nil {
		log = logger.Nop()
	}
	idx := &Index{db: chromem.NewDB(), embed: embed, path: path, log: log}

	if _, err := os.Stat(path); err == nil {
		log.Info("Loading clause index", "path", path)
		if err := idx.db.ImportFromFile(path, ""); err != nil {
			return nil, fmt.Errorf("failed to import index: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	return idx, nil
}

func collectionName(docID string) string {
	return "doc_" + docID
}

// Add индексирует клаузы документа, заменяя прежнюю коллекцию.
// Клаузы без юридического содержания не индексируются
func (i *Index) Add(ctx context.Context, docID string, clauses []clause.Clause) error {
	name := collectionName(docID)
	if err := i.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	coll, err := i.db.CreateCollection(name, map[string]string{"document": docID}, i.embed)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	reviewable := clause.Reviewable(clauses)
	if len(reviewable) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(reviewable))
	for _, c := range reviewable {
		docs = append(docs, chromem.Document{
			ID:      c.ID,
			Content: c.Text,
			Metadata: map[string]string{
				"title":     c.Title,
				"riskLevel": string(c.RiskLevel),
			},
		})
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add clauses: %w", err)
	}
	i.log.Info("Indexed clauses", "document", docID, "count", len(docs))
	return nil
}

// Query ищет клаузы документа, похожие на запрос
func (i *Index) Query(ctx context.Context, docID, query string, topK int) ([]Hit, error) {
	coll := i.db.GetCollection(collectionName(docID), i.embed)
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCollection, docID)
	}
	n := min(topK, coll.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := coll.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ClauseID:   r.ID,
			Title:      r.Metadata["title"],
			RiskLevel:  r.Metadata["riskLevel"],
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

// Persist сохраняет базу в файл
func (i *Index) Persist() error {
	if dir := filepath.Dir(i.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
	}
	if err := i.db.ExportToFile(i.path, true, ""); err != nil {
		return fmt.Errorf("failed to export index: %w", err)
	}
	return nil
}
