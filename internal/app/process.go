package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"clause_lens/internal/pipeline"
	"clause_lens/internal/store"
)

// ParseOptions - параметры команды parse
type ParseOptions struct {
	IsOCR       bool
	DetectRisk  bool
	Name        string // название договора; по умолчанию имя файла
	SplitMethod string
	OutputDir   string // куда писать JSON и отчёт; пусто - не писать
	Report      bool
}

// Processed - итог обработки одного файла
type Processed struct {
	Path   string
	DocID  string
	Result *pipeline.Result
	Err    error
}

// ProcessFiles разбирает файлы параллельно, не больше MAX_CONCURRENCY одновременно.
// Ошибка одного файла не останавливает остальные и возвращается в его Processed
func (a *App) ProcessFiles(ctx context.Context, paths []string, opts ParseOptions) ([]Processed, error) {
	results := make([]Processed, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrency)

	for i, path := range paths {
		g.Go(func() error {
			results[i] = a.processFile(gCtx, path, opts)
			return gCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	if a.index != nil {
		if err := a.index.Persist(); err != nil {
			a.log.Warn("⚠️ Failed to save clause index", "error", err)
		}
	}

	success := 0
	for _, r := range results {
		if r.Err == nil {
			success++
		}
	}
	a.log.Info("📊 Summary", "files", len(paths), "parsed", success, "errors", len(paths)-success)
	return results, nil
}

func (a *App) processFile(ctx context.Context, path string, opts ParseOptions) Processed {
	out := Processed{Path: path, DocID: uuid.New().String()}

	text, err := readDocument(path)
	if err != nil {
		out.Err = err
		a.log.Error("❌ Processing failed", "file", path, "error", err)
		return out
	}
	a.log.Info("📄 File loaded", "file", path, "bytes", len(text))

	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	res, err := a.parser.Parse(ctx, text, pipeline.Options{
		IsOCR:        opts.IsOCR,
		DetectRisk:   opts.DetectRisk,
		ContractName: name,
		FileName:     path,
		SplitMethod:  opts.SplitMethod,
	})
	if err != nil {
		out.Err = fmt.Errorf("parse %s: %w", path, err)
		a.log.Error("❌ Processing failed", "file", path, "error", err)
		return out
	}
	out.Result = res

	doc := store.Document{ID: out.DocID, Name: name, FileName: filepath.Base(path)}
	if err := a.store.Save(ctx, doc, res); err != nil {
		out.Err = err
		a.log.Error("❌ Failed to save result", "file", path, "error", err)
		return out
	}

	if a.index != nil {
		if err := a.index.Add(ctx, out.DocID, res.Clauses); err != nil {
			a.log.Warn("⚠️ Failed to index clauses", "document", out.DocID, "error", err)
		}
	}

	if opts.OutputDir != "" {
		if err := a.writeOutputs(name, res, opts); err != nil {
			a.log.Warn("⚠️ Failed to save results", "error", err)
		}
	}

	a.log.Info("✅ Contract stored",
		"document", out.DocID,
		"clauses", res.TotalClauses,
		"high", res.RiskSummary.High,
		"medium", res.RiskSummary.Medium)
	return out
}

func (a *App) writeOutputs(name string, res *pipeline.Result, opts ParseOptions) error {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	timestamp := time.Now().Format("20060102_150405")

	jsonPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_clauses_%s.json", name, timestamp))
	if err := saveJSON(res, jsonPath); err != nil {
		return err
	}
	a.log.Info("💾 Results saved", "path", jsonPath)

	if opts.Report {
		reportPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_analysis_%s.md", name, timestamp))
		if err := saveReport(name, res, reportPath); err != nil {
			return err
		}
		a.log.Info("💾 Report saved", "path", reportPath)
	}
	return nil
}
