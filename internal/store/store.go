package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clause_lens/internal/clause"
	"clause_lens/internal/pipeline"
	"clause_lens/internal/risk"
)

var ErrNotFound = errors.New("store: document not found")

// Document - сохранённый договор
type Document struct {
	ID           string
	Name         string
	FileName     string
	ParsedAt     time.Time
	TotalClauses int
}

// Store - репозиторий результатов разбора
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save сохраняет результат, заменяя прежний разбор того же документа
func (s *Store) Save(ctx context.Context, doc Document, res *pipeline.Result) error {
	summary, err := json.Marshal(res.RiskSummary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	metadata, err := json.Marshal(res.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clauses WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear clauses: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents(id, name, file_name, parsed_at, total_clauses, summary, metadata) VALUES(?,?,?,?,?,?,?)`,
		doc.ID,
		doc.Name,
		doc.FileName,
		res.Metadata.ParsedAt.UTC().Format(time.RFC3339Nano),
		res.TotalClauses,
		string(summary),
		string(metadata),
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for i, c := range res.Clauses {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal clause %s: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clauses(document_id, clause_id, position, title, risk_level, risk_score, non_analyzable, payload) VALUES(?,?,?,?,?,?,?,?)`,
			doc.ID,
			c.ID,
			i,
			c.Title,
			string(c.RiskLevel),
			c.RiskScore,
			c.NonAnalyzable.Flag,
			string(payload),
		); err != nil {
			return fmt.Errorf("insert clause %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Load восстанавливает результат разбора
func (s *Store) Load(ctx context.Context, id string) (Document, *pipeline.Result, error) {
	var (
		doc               Document
		parsedAt          string
		summary, metadata string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, file_name, parsed_at, total_clauses, summary, metadata FROM documents WHERE id = ?`, id)
	if err := row.Scan(&doc.ID, &doc.Name, &doc.FileName, &parsedAt, &doc.TotalClauses, &summary, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Document{}, nil, fmt.Errorf("scan document: %w", err)
	}
	doc.ParsedAt, _ = time.Parse(time.RFC3339Nano, parsedAt)

	res := &pipeline.Result{TotalClauses: doc.TotalClauses}
	if err := json.Unmarshal([]byte(summary), &res.RiskSummary); err != nil {
		return Document{}, nil, fmt.Errorf("decode summary: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &res.Metadata); err != nil {
		return Document{}, nil, fmt.Errorf("decode metadata: %w", err)
	}

	clauses, err := s.queryClauses(ctx, `SELECT payload FROM clauses WHERE document_id = ? ORDER BY position`, id)
	if err != nil {
		return Document{}, nil, err
	}
	res.Clauses = clauses
	return doc, res, nil
}

// Reviewable - клаузы документа для интерактивного разбора, без non-analyzable
func (s *Store) Reviewable(ctx context.Context, id string) ([]clause.Clause, error) {
	if _, err := s.document(ctx, id); err != nil {
		return nil, err
	}
	return s.queryClauses(ctx,
		`SELECT payload FROM clauses WHERE document_id = ? AND non_analyzable = 0 ORDER BY position`, id)
}

// ByRiskLevel - клаузы документа заданного уровня, от самых рискованных
func (s *Store) ByRiskLevel(ctx context.Context, id string, level risk.Level) ([]clause.Clause, error) {
	return s.queryClauses(ctx,
		`SELECT payload FROM clauses WHERE document_id = ? AND risk_level = ? ORDER BY risk_score DESC, position`, id, string(level))
}

// List возвращает документы, последние сверху
func (s *Store) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, file_name, parsed_at, total_clauses FROM documents ORDER BY parsed_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc      Document
			parsedAt string
		)
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.FileName, &parsedAt, &doc.TotalClauses); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.ParsedAt, _ = time.Parse(time.RFC3339Nano, parsedAt)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *Store) document(ctx context.Context, id string) (string, error) {
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("lookup document: %w", err)
	}
	return found, nil
}

func (s *Store) queryClauses(ctx context.Context, query string, args ...any) ([]clause.Clause, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clauses: %w", err)
	}
	defer rows.Close()

	clauses := []clause.Clause{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan clause: %w", err)
		}
		var c clause.Clause
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("decode clause: %w", err)
		}
		clauses = append(clauses, c)
	}
	return clauses, rows.Err()
}
